// Package accesscode generates and validates the short human-typeable codes
// students use to join an activity.
package accesscode

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"regexp"
	"strings"
)

// Alphabet excludes I, O, 0 and 1 so codes survive being read off a
// projector or dictated aloud.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Length is the fixed code length.
const Length = 6

// DefaultMaxAttempts caps the generate-and-check loop in Assign. With a
// 33^6 code space a collision is already negligible; the cap only guards
// against pathological stores.
const DefaultMaxAttempts = 100

// ErrSpaceExhausted is returned by Assign when no unused code was found
// within the attempt budget.
var ErrSpaceExhausted = errors.New("access code space exhausted")

var wellFormed = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// CodeChecker reports whether a code is already held by any activity,
// regardless of its lifecycle state. Codes are never recycled.
type CodeChecker interface {
	CodeInUse(ctx context.Context, code string) (bool, error)
}

// Generate returns a 6-character code drawn uniformly from Alphabet using
// crypto/rand. Uniqueness is the caller's problem; see Assign.
func Generate() string {
	b := make([]byte, Length)
	max := big.NewInt(int64(len(Alphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the platform entropy source is
			// broken; nothing sensible to do but panic.
			panic("accesscode: " + err.Error())
		}
		b[i] = Alphabet[n.Int64()]
	}
	return string(b)
}

// IsWellFormed checks the shape of a user-entered code: 6 characters from
// [A-Z0-9] after upper-casing. It accepts characters outside Alphabet on
// purpose; lookup, not validation, decides whether a code exists.
func IsWellFormed(code string) bool {
	return wellFormed.MatchString(strings.ToUpper(code))
}

// Assign generates codes until one is not in use per the checker, retrying
// on collision. maxAttempts <= 0 uses DefaultMaxAttempts.
func Assign(ctx context.Context, checker CodeChecker, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	for i := 0; i < maxAttempts; i++ {
		code := Generate()
		inUse, err := checker.CodeInUse(ctx, code)
		if err != nil {
			return "", err
		}
		if !inUse {
			return code, nil
		}
	}
	return "", ErrSpaceExhausted
}
