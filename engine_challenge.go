package typeshield

import (
	"context"
	"errors"
	"time"

	"github.com/typeshield/typeshield/store"
)

// Challenge resolves a one-time link into the data the challenge page
// renders. A scheduled reset that has come due is executed here, before
// any lockout check, so a locked-out user walks straight into a fresh
// enrollment instead of waiting out a lockout on a profile that is about
// to be wiped anyway.
func (e *Engine) Challenge(ctx context.Context, cid string) (ChallengeView, error) {
	if e == nil || e.db == nil {
		return ChallengeView{}, ErrEngineNotReady
	}

	if !ValidateTokenID(cid) {
		return ChallengeView{}, NewLinkExpiredError()
	}
	token, err := e.getChallengeToken(ctx, cid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ChallengeView{}, NewLinkExpiredError()
		}
		return ChallengeView{}, err
	}

	user, err := e.getUser(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ChallengeView{}, NewTokenMissingUserError()
		}
		return ChallengeView{}, err
	}

	if due, ok := e.pendingResetTime(ctx, user.UserID); ok && !due.After(time.Now()) {
		user, err = e.executeScheduledReset(ctx, user)
		if err != nil {
			return ChallengeView{}, err
		}
	}

	verdict, err := e.checkGlobalLockout(ctx, user)
	if err != nil {
		return ChallengeView{}, err
	}
	if verdict.Locked {
		return ChallengeView{}, NewUserLockedError(verdict.TryAgainMinutes)
	}
	if token.FailedAttempts >= int64(e.config.Lockout.PerChallengeMaxFailedAttempts) {
		e.metricInc(MetricChallengeLockout)
		return ChallengeView{}, NewChallengeLockedError()
	}

	e.metricInc(MetricChallengeRendered)
	return ChallengeView{
		CID:    token.CID,
		Enroll: user.Enroll,
		Text:   user.TextToType,
		TextID: user.TextID,
	}, nil
}

// executeScheduledReset wipes the biometric profile, re-arms the user
// for enrollment with a new sentence and clears the schedule record.
func (e *Engine) executeScheduledReset(ctx context.Context, user store.User) (store.User, error) {
	// A failed wipe aborts the reset and leaves the schedule armed for
	// the next attempt. Re-enrolling while the old patterns survive on
	// the provider side would strand an orphaned profile there. The
	// client already reports a missing profile as a clean delete.
	if err := e.biometric.DeleteProfile(ctx, user.UserID, user.TextID); err != nil {
		e.auditError(ctx, "executeReset", user.UserID, err)
		return store.User{}, err
	}
	fresh, err := e.resetUserState(ctx, user.UserID)
	if err != nil {
		return store.User{}, err
	}
	if err := e.clearResetRecord(ctx, user.UserID); err != nil {
		e.auditError(ctx, "executeReset", user.UserID, err)
	}
	e.metricInc(MetricResetExecuted)
	e.emit(ctx, AuditEvent{Action: "executeReset", UserID: user.UserID, Success: true})
	return fresh, nil
}
