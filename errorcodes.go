package typeshield

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable integer carried on the wire for programmatic
// handling by the challenge page scripts. The values are a frozen
// contract; never renumber.
type ErrorCode int

const (
	// CodeMissingRequiredData is the wire code for requests omitting required fields.
	CodeMissingRequiredData ErrorCode = 100
	// CodeLinkExpiredOrInvalid is the wire code for malformed, unknown, or expired tokens.
	CodeLinkExpiredOrInvalid ErrorCode = 101
	// CodeTokenMissingUserID is the wire code for stored tokens without a user id.
	CodeTokenMissingUserID ErrorCode = 102
	// CodeChallengeLocked is the wire code for a per-challenge lockout.
	CodeChallengeLocked ErrorCode = 104
	// CodeUserLocked is the wire code for a global per-user lockout.
	CodeUserLocked ErrorCode = 105
	// CodeTokenNotFound is the wire code for a token lookup miss.
	CodeTokenNotFound ErrorCode = 106
	// CodeUserNotFound is the wire code for a user lookup miss.
	CodeUserNotFound ErrorCode = 107
	// CodeIncorrectPosition is the wire code for a hard posture failure.
	CodeIncorrectPosition ErrorCode = 108
	// CodeIncorrectPositionTryAgain is the wire code for a retryable posture failure.
	CodeIncorrectPositionTryAgain ErrorCode = 109
	// CodeMotionDataInvalid is the wire code for typing patterns without motion data.
	CodeMotionDataInvalid ErrorCode = 110
	// CodePhoneNumberMismatch is the wire code for a phone that does not match the token.
	CodePhoneNumberMismatch ErrorCode = 111
	// CodePhoneNumberInvalid is the wire code for a malformed phone number.
	CodePhoneNumberInvalid ErrorCode = 112
	// CodeTextIDMismatch is the wire code for a stale challenge sentence id.
	CodeTextIDMismatch ErrorCode = 113
)

// WireError is the error body sent to callers: a stable code, a
// human-readable default message, the translation key for localized
// rendering, and the lockout wait time when one applies.
type WireError struct {
	Code            ErrorCode `json:"code"`
	Message         string    `json:"message"`
	TranslationKey  string    `json:"translationKey,omitempty"`
	TryAgainMinutes int       `json:"tryAgainMinutes,omitempty"`
}

// Error implements the error interface.
func (e *WireError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// Is matches a WireError against the sentinel it was built from, so
// callers can keep using errors.Is with the Err* variables.
func (e *WireError) Is(target error) bool {
	return codeSentinel(e.Code) == target
}

func codeSentinel(code ErrorCode) error {
	switch code {
	case CodeMissingRequiredData:
		return ErrMissingData
	case CodeLinkExpiredOrInvalid, CodeTokenNotFound:
		return ErrTokenInvalid
	case CodeTokenMissingUserID:
		return ErrTokenMissingUser
	case CodeChallengeLocked:
		return ErrChallengeLocked
	case CodeUserLocked:
		return ErrUserLocked
	case CodeUserNotFound:
		return ErrUserNotFound
	case CodeIncorrectPosition:
		return ErrIncorrectPosition
	case CodeIncorrectPositionTryAgain:
		return ErrIncorrectPositionRetry
	case CodeMotionDataInvalid:
		return ErrMotionDataInvalid
	case CodePhoneNumberMismatch:
		return ErrPhoneMismatch
	case CodePhoneNumberInvalid:
		return ErrInvalidPhone
	case CodeTextIDMismatch:
		return ErrTextIDMismatch
	}
	return nil
}

func wireError(code ErrorCode, message, translationKey string) *WireError {
	return &WireError{Code: code, Message: message, TranslationKey: translationKey}
}

// NewMissingDataError reports omitted required request fields.
func NewMissingDataError() *WireError {
	return wireError(CodeMissingRequiredData, "Missing required data", "missingRequiredData")
}

// NewLinkExpiredError reports a malformed, unknown, or expired link.
func NewLinkExpiredError() *WireError {
	return wireError(CodeLinkExpiredOrInvalid, "This link is no longer valid.", "linkExpiredOrInvalid")
}

// NewTokenMissingUserError reports a token record without a user id.
func NewTokenMissingUserError() *WireError {
	return wireError(CodeTokenMissingUserID, "Token missing userId", "tokenMissingUserId")
}

// NewChallengeLockedError reports a per-challenge lockout. It carries no
// wait time: the link stays locked until it expires.
func NewChallengeLockedError() *WireError {
	return wireError(CodeChallengeLocked,
		"This challenge link has been locked due to too many failed verifications.",
		"tooManyFailedAttemptsSessionLocked")
}

// NewUserLockedError reports a global lockout with the remaining wait.
func NewUserLockedError(tryAgainMinutes int) *WireError {
	e := wireError(CodeUserLocked,
		fmt.Sprintf("Try again in %d minutes.", tryAgainMinutes),
		"tooManyFailedAttemptsUserLocked")
	e.TryAgainMinutes = tryAgainMinutes
	return e
}

// NewUserNotFoundError reports a missing user record.
func NewUserNotFoundError() *WireError {
	return wireError(CodeUserNotFound, "User not found", "userNotFound")
}

// NewIncorrectPositionError reports a hard posture failure.
func NewIncorrectPositionError() *WireError {
	return wireError(CodeIncorrectPosition,
		"You are not typing in the recommended position. Please use both hands and refresh the page.",
		"incorrectPosition")
}

// NewIncorrectPositionRetryError reports a posture failure with retries left.
func NewIncorrectPositionRetryError() *WireError {
	return wireError(CodeIncorrectPositionTryAgain,
		"You are not typing in the recommended position. Please use both hands and try again.",
		"incorrectPositionTryAgain")
}

// NewMotionDataInvalidError reports a typing pattern without motion data.
func NewMotionDataInvalidError() *WireError {
	return wireError(CodeMotionDataInvalid, "Motion not detected.", "motionDataInvalid")
}

// NewPhoneMismatchError reports a phone that does not re-derive the token's user id.
func NewPhoneMismatchError() *WireError {
	return wireError(CodePhoneNumberMismatch, "Phone number does not match", "phoneNumberMismatch")
}

// NewPhoneInvalidError reports a malformed phone number.
func NewPhoneInvalidError() *WireError {
	return wireError(CodePhoneNumberInvalid,
		"Phone number is invalid. Please enter in international format.",
		"phoneNumberInvalid")
}

// NewTextIDMismatchError reports a stale challenge sentence id.
func NewTextIDMismatchError() *WireError {
	return wireError(CodeTextIDMismatch, "TextId not matching.", "textIdMismatch")
}

// AsWireError extracts the WireError from an error chain, if any.
func AsWireError(err error) (*WireError, bool) {
	var we *WireError
	if errors.As(err, &we) {
		return we, true
	}
	return nil, false
}
