package typeshield

import (
	"errors"
	"time"
)

// Config carries every tunable of the challenge engine. Instances are
// configured during initialization and treated as immutable afterwards.
type Config struct {
	Service Service
	Lockout LockoutConfig
	Posture PostureConfig
	Reset   ResetConfig
	Text    TextConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
SERVICE CONFIG
====================================
*/

// Service holds process-wide identity settings.
type Service struct {
	// BaseURL is the public origin embedded in SMS links. When empty,
	// the web layer falls back to the request host.
	BaseURL string
	// HashSalt feeds user-id hashing and storage-key derivation. It must
	// match across every process sharing a backend.
	HashSalt string
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig bounds failed verifications globally per user and per
// challenge link.
type LockoutConfig struct {
	GlobalMaxFailedAttempts       int
	GlobalLockoutDuration         time.Duration
	PerChallengeMaxFailedAttempts int
}

// PostureConfig bounds the "wrong typing position, ask again" usability
// allowance. This budget is separate from the security lockouts.
type PostureConfig struct {
	MaxInvalidTpAttempts int
}

/*
====================================
RESET CONFIG
====================================
*/

// ResetConfig tiers the scheduled-reset delay. A thin enrollment profile
// is reset quickly; an established one gets the long window so the
// legitimate owner can notice and cancel.
type ResetConfig struct {
	FewSamplesThreshold int
	ShortDelay          time.Duration
	LongDelay           time.Duration
}

// TextConfig configures the challenge sentence pool.
type TextConfig struct {
	// DefaultText is used when the sentence pool is empty.
	DefaultText string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig enables the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the documented defaults. Callers adjust the
// fields they need and pass the result to the builder.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Service: Service{},
		Lockout: LockoutConfig{
			GlobalMaxFailedAttempts:       5,
			GlobalLockoutDuration:         15 * time.Minute,
			PerChallengeMaxFailedAttempts: 3,
		},
		Posture: PostureConfig{
			MaxInvalidTpAttempts: 1,
		},
		Reset: ResetConfig{
			FewSamplesThreshold: 7,
			ShortDelay:          time.Hour,
			LongDelay:           24 * time.Hour,
		},
		Text: TextConfig{
			DefaultText: "secured by typingdna",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations that would disable the lockout policy
// or break delay tiering.
func (c *Config) Validate() error {
	if c.Lockout.GlobalMaxFailedAttempts <= 0 {
		return errors.New("Lockout GlobalMaxFailedAttempts must be > 0")
	}
	if c.Lockout.GlobalLockoutDuration <= 0 {
		return errors.New("Lockout GlobalLockoutDuration must be > 0")
	}
	if c.Lockout.PerChallengeMaxFailedAttempts <= 0 {
		return errors.New("Lockout PerChallengeMaxFailedAttempts must be > 0")
	}
	if c.Posture.MaxInvalidTpAttempts < 0 {
		return errors.New("Posture MaxInvalidTpAttempts must be >= 0")
	}
	if c.Reset.FewSamplesThreshold <= 0 {
		return errors.New("Reset FewSamplesThreshold must be > 0")
	}
	if c.Reset.ShortDelay <= 0 || c.Reset.LongDelay <= 0 {
		return errors.New("Reset delays must be > 0")
	}
	if c.Reset.ShortDelay > c.Reset.LongDelay {
		return errors.New("Reset ShortDelay must not exceed LongDelay")
	}
	if c.Text.DefaultText == "" {
		return errors.New("Text DefaultText must not be empty")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	return nil
}
