// Package sanitize provides shared identifier sanitization for vector
// collection names.
//
// Collection names must match: ^[A-Za-z0-9][A-Za-z0-9._-]{1,510}[A-Za-z0-9]$
// (length 3-512, alphanumeric boundaries). This package ensures all
// user-supplied names conform to this requirement deterministically.
package sanitize

import (
	"crypto/md5" //nolint:gosec // non-cryptographic name suffix
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
)

const (
	// MinCollectionNameLength is the minimum length for a collection name.
	MinCollectionNameLength = 3

	// MaxCollectionNameLength is the maximum length for a collection name.
	MaxCollectionNameLength = 512

	// hashSuffixLength is the number of hash characters appended when a
	// name had to be rewritten. The separator adds one more character.
	hashSuffixLength = 6

	// fallbackPrefix seeds names that sanitize to nothing at all.
	fallbackPrefix = "collection"
)

// ErrInvalidCollectionName indicates a name that fails validation.
var ErrInvalidCollectionName = errors.New("invalid collection name")

var (
	invalidChars     = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	leadingNonAlnum  = regexp.MustCompile(`^[^A-Za-z0-9]+`)
	trailingNonAlnum = regexp.MustCompile(`[^A-Za-z0-9]+$`)
	validName        = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{1,510}[A-Za-z0-9]$`)
)

// CollectionName sanitizes a user-supplied name into a valid collection name.
//
// Rules applied:
//   - Runs of disallowed characters are replaced with a single '-'
//   - Leading/trailing non-alphanumerics are trimmed
//   - Names the rewrite altered get a 6-char suffix derived from the MD5 of
//     the ORIGINAL name, so two distinct inputs cannot silently collide on
//     the same sanitized identifier
//   - Names longer than 512 chars are truncated with the same hash suffix
//   - Names shorter than 3 chars are extended with the hash suffix
//   - Inputs that sanitize to nothing become "collection-<hash>"
//
// The function is idempotent: any output fed back in is returned unchanged.
func CollectionName(name string) string {
	sanitized := invalidChars.ReplaceAllString(name, "-")
	sanitized = leadingNonAlnum.ReplaceAllString(sanitized, "")
	sanitized = trailingNonAlnum.ReplaceAllString(sanitized, "")

	if sanitized == "" {
		return fallbackPrefix + "-" + shortHash(name)
	}

	if sanitized != name {
		sanitized = sanitized + "-" + shortHash(name)
	}

	if len(sanitized) > MaxCollectionNameLength {
		sanitized = sanitized[:MaxCollectionNameLength-hashSuffixLength-1]
		sanitized = trailingNonAlnum.ReplaceAllString(sanitized, "")
		sanitized = sanitized + "-" + shortHash(name)
	}

	if len(sanitized) < MinCollectionNameLength {
		sanitized = sanitized + "-" + shortHash(name)
	}

	return sanitized
}

// ValidateCollectionName checks a name against the collection naming rules
// without rewriting it.
func ValidateCollectionName(name string) error {
	if len(name) < MinCollectionNameLength || len(name) > MaxCollectionNameLength {
		return fmt.Errorf("%w: length must be %d-%d, got %d",
			ErrInvalidCollectionName, MinCollectionNameLength, MaxCollectionNameLength, len(name))
	}
	if !validName.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidCollectionName, name, validName.String())
	}
	return nil
}

// shortHash returns the first 6 hex characters of the MD5 of s.
func shortHash(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // non-cryptographic name suffix
	return hex.EncodeToString(sum[:])[:hashSuffixLength]
}
