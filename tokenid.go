package typeshield

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// base62Chars is the token alphabet: 0-9, A-Z, a-z.
const base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// TokenIDLength is the exact length of challenge and disable token ids.
const TokenIDLength = 6

// GenerateTokenID produces a 6-character base62 identifier from the
// current timestamp plus a random component, regenerated until it mixes
// at least one letter with at least one digit. The mixed constraint
// keeps ids from looking like OTPs (all digits) or words (all letters).
func GenerateTokenID() string {
	for {
		combined := time.Now().UnixMilli()*1_000_000 + randBelow(1_000_000)

		var id []byte
		for num := combined; num > 0 && len(id) < TokenIDLength; num /= 62 {
			id = append([]byte{base62Chars[num%62]}, id...)
		}
		for len(id) < TokenIDLength {
			id = append([]byte{base62Chars[randBelow(62)]}, id...)
		}
		if len(id) > TokenIDLength {
			id = id[len(id)-TokenIDLength:]
		}

		if ValidateTokenID(string(id)) {
			return string(id)
		}
	}
}

// ValidateTokenID reports whether a string is an acceptable token id on
// intake: exactly 6 base62 characters with at least one letter and at
// least one digit.
func ValidateTokenID(id string) bool {
	if len(id) != TokenIDLength {
		return false
	}
	var hasLetter, hasDigit bool
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= '0' && c <= '9':
			hasDigit = true
		case (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z'):
			hasLetter = true
		default:
			return false
		}
	}
	return hasLetter && hasDigit
}

// randBelow returns a uniform value in [0, n) from the system CSPRNG.
func randBelow(n int64) int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// The system entropy source failing is unrecoverable; fall back
		// to a timestamp-derived value rather than aborting the request.
		return time.Now().UnixNano() % n
	}
	return int64(binary.BigEndian.Uint64(buf[:]) % uint64(n))
}
