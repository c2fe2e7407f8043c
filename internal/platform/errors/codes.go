// Package errors provides structured error handling for the platform.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Username policy errors
	CodeUsernameBanned            Code = "USERNAME_BANNED"
	CodeUsernameTooShort          Code = "USERNAME_TOO_SHORT"
	CodeUsernameTooLong           Code = "USERNAME_TOO_LONG"
	CodeUsernameInvalidStartOrEnd Code = "USERNAME_INVALID_START_OR_END"
	CodeUsernameInvalidCharacters Code = "USERNAME_INVALID_CHARACTERS"

	// Conflict errors
	CodeUsernameTaken   Code = "USERNAME_TAKEN"
	CodeCredentialTaken Code = "CREDENTIAL_ALREADY_REGISTERED"

	// Lookup errors
	CodeNotFound   Code = "NOT_FOUND"
	CodeNoPasskeys Code = "NO_PASSKEYS"

	// Ceremony errors
	CodeInvalidChallenge       Code = "INVALID_CHALLENGE"
	CodeCredentialVerification Code = "BAD_CREDENTIALS"

	// Authorization errors
	CodeUnauthorized Code = "UNAUTHORIZED"

	// Token errors
	CodeTokenInvalid Code = "TOKEN_INVALID"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeUsernameBanned,
		CodeUsernameTooShort,
		CodeUsernameTooLong,
		CodeUsernameInvalidStartOrEnd,
		CodeUsernameInvalidCharacters,
		CodeInvalidChallenge:
		return http.StatusBadRequest

	case CodeUsernameTaken,
		CodeCredentialTaken:
		return http.StatusConflict

	case CodeNotFound,
		CodeNoPasskeys:
		return http.StatusNotFound

	case CodeCredentialVerification,
		CodeUnauthorized,
		CodeTokenInvalid:
		return http.StatusUnauthorized

	default:
		return http.StatusInternalServerError
	}
}
