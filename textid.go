package typeshield

import "strings"

// TextID computes the biometric provider's 32-bit sentence hash. Both
// sides must agree on the id for a sentence, so the algorithm (an
// FNV-style mix over the lowercased string, seed 0x721b5ad4) is fixed.
func TextID(text string) int64 {
	lowered := strings.ToLower(text)
	hval := uint32(0x721b5ad4)
	for i := 0; i < len(lowered); i++ {
		hval ^= uint32(lowered[i])
		hval += (hval << 1) + (hval << 4) + (hval << 7) + (hval << 8) + (hval << 24)
	}
	return int64(hval)
}

// ValidateMotionData structurally checks a mobile typing pattern before
// it is sent to the provider: the second and third hash-separated
// segments carry the accelerometer data and must be present.
func ValidateMotionData(pattern string) bool {
	if pattern == "" {
		return false
	}
	parts := strings.Split(pattern, "#")
	if len(parts) < 3 {
		return false
	}
	return parts[1] != "" && parts[2] != ""
}
