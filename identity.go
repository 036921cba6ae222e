package typeshield

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	phonePattern    = regexp.MustCompile(`^\+\d{6,15}$`)
	phoneLeadDigits = regexp.MustCompile(`^\+?\d+`)
	otpPattern      = regexp.MustCompile(`\b\d{4,8}\b`)
)

// HashIdentity derives the deterministic user id for a phone number:
// sha256(phone + salt), hex encoded. This is the only place raw phone
// numbers are consumed; the plaintext is never stored.
func HashIdentity(phone, salt string) string {
	sum := sha256.Sum256([]byte(phone + salt))
	return hex.EncodeToString(sum[:])
}

// SanitizePhone strips everything after the leading plus-and-digits run.
// Vendors occasionally append extension noise or whitespace.
func SanitizePhone(phone string) string {
	return phoneLeadDigits.FindString(strings.TrimSpace(phone))
}

// ValidatePhone reports whether a phone is in international format: a
// leading plus followed by 6 to 15 digits.
func ValidatePhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// ExtractOTP pulls the first 4-8 digit run out of an arbitrary vendor
// message body. Returns "" when the message carries no OTP.
func ExtractOTP(message string) string {
	return otpPattern.FindString(message)
}

// BasicAuthOK validates an HTTP Basic authorization header against the
// expected credentials in constant time.
func BasicAuthOK(authHeader, expectedUser, expectedPass string) bool {
	const prefix = "Basic "
	if !strings.HasPrefix(authHeader, prefix) {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(authHeader[len(prefix):])
	if err != nil {
		return false
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(expectedUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(expectedPass)) == 1
	return userOK && passOK
}
