// Package id generates opaque identifiers for users, credentials, and
// in-flight ceremonies.
package id

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a random identifier: 16 random bytes with UUIDv4 version and
// variant bits, encoded as 26 lowercase base32 characters.
func NewID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	buf[6] = (buf[6] & 0x0F) | 0x40
	buf[8] = (buf[8] & 0x3F) | 0x80
	return strings.ToLower(encoding.EncodeToString(buf)), nil
}
