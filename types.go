package typeshield

import (
	"context"
	"net/http"
)

// Bridge adapts one upstream IAM platform's webhook format and auth
// scheme to the normalized tuple the engine consumes. Implementations
// live in the bridge package and are registered explicitly at startup.
type Bridge interface {
	// ID is the webhook path segment for this bridge.
	ID() string
	// Name is the human-readable platform name.
	Name() string
	// Enabled reports whether the bridge accepts traffic.
	Enabled() bool

	IsAuthorized(r *http.Request) bool
	GetPhoneNumber(r *http.Request) string
	GetOtpMessage(r *http.Request) string
	ExtractOtpFromMessage(message string) string
	IsTest(message string) bool

	// HandleSuccess, HandleTest and HandleError write the platform's
	// expected response body.
	HandleSuccess(w http.ResponseWriter, r *http.Request, cid string)
	HandleTest(w http.ResponseWriter)
	HandleError(w http.ResponseWriter, err error)
}

// SMSGateway delivers a message to a phone number.
type SMSGateway interface {
	SendSMS(ctx context.Context, to, body string) error
}

// ProfileInfo is the enrollment state the biometric provider holds for
// one user and sentence.
type ProfileInfo struct {
	SampleCount int
}

// VerifyOutcome is the provider's verdict on one typing pattern.
type VerifyOutcome struct {
	// Result is 1 on a match, 0 otherwise.
	Result int
	// Action is "verify" or "enroll".
	Action string
	// Message and MessageCode carry the provider's diagnostic for
	// non-verdict responses (for example auto-enroll disabled).
	Message     string
	MessageCode int
}

// BiometricProvider is the behavioral-biometric scoring service.
// Availability failures are wrapped with ErrProviderUnavailable so
// callers can tell "try later" from "wrong pattern".
type BiometricProvider interface {
	CheckProfile(ctx context.Context, userID string, textID int64) (ProfileInfo, error)
	VerifyPattern(ctx context.Context, userID, pattern string) (VerifyOutcome, error)
	GetPosture(ctx context.Context, userID, pattern string) ([]int, error)
	DeleteProfile(ctx context.Context, userID string, textID int64) error
}

// BridgeOutcome is the result of one inbound webhook delivery.
type BridgeOutcome struct {
	// CID is the challenge token id, or "" for test and fallback paths.
	CID string
	// IsTest marks a vendor connectivity test that was acknowledged
	// without sending anything.
	IsTest bool
	// Fallback marks a delivery that bypassed the biometric gate
	// because the provider was unavailable.
	Fallback bool
}

// ChallengeView is everything the challenge page needs to render.
type ChallengeView struct {
	CID    string
	Enroll bool
	Text   string
	TextID int64
}

// VerifyRequest is one typed biometric sample submitted for a token.
type VerifyRequest struct {
	CID     string
	Pattern string
	TextID  int64
}

// VerifyResult is the outcome revealed to the challenge page.
type VerifyResult struct {
	Result int    `json:"result"`
	Action string `json:"action"`
	// OTP is set only on success.
	OTP string `json:"otp,omitempty"`
	// DisableTid authorizes turning secure codes off, issued on success.
	DisableTid string `json:"disableTid,omitempty"`
	// ResetNowTid authorizes an immediate reset, issued on success when
	// a scheduled reset is pending.
	ResetNowTid string `json:"resetNowTid,omitempty"`
}

// ResetOutcome reports which messaging a reset request should show.
type ResetOutcome struct {
	TranslationKey string `json:"translationKey"`
}
