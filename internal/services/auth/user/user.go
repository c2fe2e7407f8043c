package user

import (
	"strings"
	"time"

	apperrors "github.com/starhaven/platform/internal/platform/errors"
)

var (
	// ErrBanned indicates a reserved or system-like username.
	ErrBanned = apperrors.New(apperrors.CodeUsernameBanned, "this username is not allowed")
	// ErrTooShort indicates a username under the minimum length.
	ErrTooShort = apperrors.New(apperrors.CodeUsernameTooShort, "too short, must be at least 4 characters")
	// ErrTooLong indicates a username over the maximum length.
	ErrTooLong = apperrors.New(apperrors.CodeUsernameTooLong, "too long, must be at most 20 characters")
	// ErrInvalidStartOrEnd indicates a username that does not start and end with a letter or number.
	ErrInvalidStartOrEnd = apperrors.New(apperrors.CodeUsernameInvalidStartOrEnd, "must start and end with a letter or number")
	// ErrInvalidCharacters indicates a username with characters outside the allowed set.
	ErrInvalidCharacters = apperrors.New(apperrors.CodeUsernameInvalidCharacters, "letters, numbers, underscores, and hyphens only")
)

// banlist holds reserved and system-like names, compared in normalized form.
var banlist = map[string]struct{}{
	"admin":         {},
	"administrator": {},
	"root":          {},
	"superuser":     {},
	"test":          {},
	"guest":         {},
	"anon":          {},
	"anonymous":     {},
	"support":       {},
	"info":          {},
	"contact":       {},
	"webmaster":     {},
	"sysadmin":      {},
	"system":        {},
	"service":       {},
	"starhaven":     {},
	"star_haven":    {},
}

// User represents an authenticated identity record.
type User struct {
	ID                 string
	Username           string
	UsernameNormalized string
	CreatedAt          time.Time
}

// Normalize folds a username into its collision-resistant canonical form:
// surrounding whitespace trimmed, lowercased, hyphens collapsed into
// underscores, and the digit 1 folded into the letter l to defend against
// visually-confusable squatting. Idempotent.
func Normalize(username string) string {
	normalized := strings.ToLower(strings.TrimSpace(username))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	return strings.ReplaceAll(normalized, "1", "l")
}

// Validate checks a username against the platform policy. Rules run in a
// fixed order and the first failing rule wins.
func Validate(username string) error {
	if _, ok := banlist[Normalize(username)]; ok {
		return ErrBanned
	}
	if len(username) < 4 {
		return ErrTooShort
	}
	if len(username) > 20 {
		return ErrTooLong
	}
	if !isASCIIAlphanumeric(username[0]) || !isASCIIAlphanumeric(username[len(username)-1]) {
		return ErrInvalidStartOrEnd
	}
	for i := 0; i < len(username); i++ {
		c := username[i]
		if !isASCIIAlphanumeric(c) && c != '_' && c != '-' {
			return ErrInvalidCharacters
		}
	}
	return nil
}

func isASCIIAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
