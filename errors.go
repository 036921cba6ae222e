package typeshield

import "errors"

var (
	// ErrUnauthorized is returned when a bridge webhook fails its authorization check.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidPhone is returned when a phone number is not in international format.
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrPhoneMismatch is returned when a phone number does not re-derive the token's user id.
	ErrPhoneMismatch = errors.New("phone number does not match")
	// ErrNoOTP is returned when no OTP can be extracted from the vendor message.
	ErrNoOTP = errors.New("no otp found")
	// ErrSMSDeliveryFailed is returned when the SMS gateway reports a send failure.
	ErrSMSDeliveryFailed = errors.New("sms send failed")
	// ErrTokenInvalid is returned for a malformed, unknown, or expired challenge token.
	ErrTokenInvalid = errors.New("link expired or invalid")
	// ErrTokenMissingUser is returned when a stored token carries no user id.
	ErrTokenMissingUser = errors.New("token missing user id")
	// ErrUserNotFound is returned when the token's user record no longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserLocked is returned while a global per-user lockout is active.
	ErrUserLocked = errors.New("too many failed attempts, user locked")
	// ErrChallengeLocked is returned when one challenge link exhausted its failure budget.
	ErrChallengeLocked = errors.New("too many failed attempts, challenge locked")
	// ErrIncorrectPosition is returned when the typing posture check fails with no retries left.
	ErrIncorrectPosition = errors.New("incorrect typing position")
	// ErrIncorrectPositionRetry is returned when the posture check fails but a retry is allowed.
	ErrIncorrectPositionRetry = errors.New("incorrect typing position, try again")
	// ErrMotionDataInvalid is returned when a typing pattern carries no usable motion data.
	ErrMotionDataInvalid = errors.New("motion not detected")
	// ErrTextIDMismatch is returned when the submitted sentence id differs from the user's.
	ErrTextIDMismatch = errors.New("text id not matching")
	// ErrMissingData is returned when a request omits required fields.
	ErrMissingData = errors.New("missing required data")
	// ErrProviderUnavailable is returned when the biometric provider cannot be reached or used.
	ErrProviderUnavailable = errors.New("biometric provider unavailable")
	// ErrEngineNotReady is returned when the engine is used before Build completed.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// ProviderError is a non-verdict diagnostic from the biometric provider,
// such as auto-enroll being disabled on the verify route. It is passed
// through to the challenge page unchanged.
type ProviderError struct {
	Message     string `json:"message"`
	MessageCode int    `json:"message_code"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return e.Message
}
