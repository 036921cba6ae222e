package typeshield

import (
	"context"
	"errors"
	"time"

	"github.com/typeshield/typeshield/store"
)

// lockoutVerdict reports whether an account is globally locked and, when
// it is, how long the caller should tell the user to wait.
type lockoutVerdict struct {
	Locked          bool
	TryAgainMinutes int
}

// checkGlobalLockout inspects the user's lockout deadline. An expired
// deadline self-heals: the counters are cleared in place so the next
// check starts from a clean record.
func (e *Engine) checkGlobalLockout(ctx context.Context, user store.User) (lockoutVerdict, error) {
	if user.LockoutUntil == 0 {
		return lockoutVerdict{}, nil
	}
	wait := time.Until(time.UnixMilli(user.LockoutUntil))
	if wait <= 0 {
		if _, err := e.clearGlobalFailedState(ctx, user.UserID); err != nil {
			return lockoutVerdict{}, err
		}
		return lockoutVerdict{}, nil
	}
	e.metricInc(MetricGlobalLockout)
	return lockoutVerdict{Locked: true, TryAgainMinutes: tryAgainMinutes(wait)}, nil
}

// recordGlobalFailure bumps the account-wide failure counter. Reaching
// the configured maximum arms the lockout deadline and returns a locked
// verdict sized to the full lockout window.
func (e *Engine) recordGlobalFailure(ctx context.Context, userID string) (lockoutVerdict, error) {
	doc, err := e.db.Users.Increment(ctx, userID, map[string]int64{"attempts": 1}, false, nil)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return lockoutVerdict{}, nil
		}
		return lockoutVerdict{}, err
	}
	user := store.UserFromDocument(doc)
	if user.Attempts < int64(e.config.Lockout.GlobalMaxFailedAttempts) {
		return lockoutVerdict{}, nil
	}

	until := time.Now().Add(e.config.Lockout.GlobalLockoutDuration)
	if _, err := e.updateUser(ctx, userID, store.Document{"lockoutUntil": until.UnixMilli()}); err != nil {
		return lockoutVerdict{}, err
	}
	e.metricInc(MetricGlobalLockout)
	return lockoutVerdict{Locked: true, TryAgainMinutes: tryAgainMinutes(e.config.Lockout.GlobalLockoutDuration)}, nil
}

func (e *Engine) clearGlobalFailedState(ctx context.Context, userID string) (store.User, error) {
	return e.updateUser(ctx, userID, store.Document{
		"attempts":     int64(0),
		"lockoutUntil": int64(0),
	})
}

// recordInvalidPattern bumps the malformed-typing-pattern counter and
// returns the new value. Counter failures degrade to zero so a storage
// hiccup never converts a retryable posture miss into a hard rejection.
func (e *Engine) recordInvalidPattern(ctx context.Context, userID string) int64 {
	doc, err := e.db.Users.Increment(ctx, userID, map[string]int64{"invalidTpAttempts": 1}, false, nil)
	if err != nil {
		e.auditError(ctx, "recordInvalidPattern", userID, err)
		return 0
	}
	return store.UserFromDocument(doc).InvalidTpAttempts
}

// tryAgainMinutes converts a remaining wait into the minute count shown
// to the user, always rounding up past the boundary.
func tryAgainMinutes(wait time.Duration) int {
	if wait < 0 {
		wait = 0
	}
	return int(wait/time.Minute) + 1
}
