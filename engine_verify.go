package typeshield

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/typeshield/typeshield/store"
)

// Verify scores one typed pattern against the user's biometric profile
// and, on a match (or a successful enrollment sample), releases the
// escrowed OTP. The challenge token is consumed on success; failures
// burn both the per-challenge and the account-wide attempt budget.
func (e *Engine) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	if e == nil || e.db == nil {
		return VerifyResult{}, ErrEngineNotReady
	}

	if req.Pattern == "" {
		return VerifyResult{}, NewMissingDataError()
	}
	if !ValidateTokenID(req.CID) {
		return VerifyResult{}, NewLinkExpiredError()
	}
	token, err := e.getChallengeToken(ctx, req.CID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return VerifyResult{}, NewLinkExpiredError()
		}
		return VerifyResult{}, err
	}
	if token.UserID == "" {
		return VerifyResult{}, NewTokenMissingUserError()
	}
	if !ValidateMotionData(req.Pattern) {
		return VerifyResult{}, NewMotionDataInvalidError()
	}
	user, err := e.getUser(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return VerifyResult{}, NewUserNotFoundError()
		}
		return VerifyResult{}, err
	}

	verdict, err := e.checkGlobalLockout(ctx, user)
	if err != nil {
		return VerifyResult{}, err
	}
	if verdict.Locked {
		return VerifyResult{}, NewUserLockedError(verdict.TryAgainMinutes)
	}
	if token.FailedAttempts >= int64(e.config.Lockout.PerChallengeMaxFailedAttempts) {
		e.metricInc(MetricChallengeLockout)
		return VerifyResult{}, NewChallengeLockedError()
	}

	// The pattern must be recorded against the sentence currently bound
	// to the profile; a stale page after a reset submits the old one.
	if req.TextID != user.TextID {
		return VerifyResult{}, NewTextIDMismatchError()
	}

	if err := e.checkPosture(ctx, user, req.Pattern); err != nil {
		return VerifyResult{}, err
	}

	outcome, err := e.biometric.VerifyPattern(ctx, user.UserID, req.Pattern)
	if err != nil {
		e.auditError(ctx, "verify", user.UserID, err)
		return VerifyResult{}, err
	}

	if outcome.Result == 1 || outcome.Action == "enroll" {
		return e.verifySucceeded(ctx, token, user, outcome)
	}
	return e.verifyFailed(ctx, token, user, outcome)
}

// checkPosture asks the provider for the device positions encoded in the
// pattern. The challenge must be typed with both thumbs, which reads as
// a single position 3. A wrong posture gets a free retry while the
// budget lasts; exhausting it yields a hard rejection and re-arms the
// budget for the user's next challenge.
func (e *Engine) checkPosture(ctx context.Context, user store.User, pattern string) error {
	positions, err := e.biometric.GetPosture(ctx, user.UserID, pattern)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return err
		}
		e.auditError(ctx, "checkPosture", user.UserID, err)
		return NewIncorrectPositionError()
	}
	if len(positions) == 1 && positions[0] == 3 {
		return nil
	}
	if user.InvalidTpAttempts < int64(e.config.Posture.MaxInvalidTpAttempts) {
		e.recordInvalidPattern(ctx, user.UserID)
		e.metricInc(MetricPostureRetry)
		return NewIncorrectPositionRetryError()
	}
	if _, err := e.updateUser(ctx, user.UserID, store.Document{"invalidTpAttempts": int64(0)}); err != nil {
		e.auditError(ctx, "checkPosture", user.UserID, err)
	}
	return NewIncorrectPositionError()
}

func (e *Engine) verifySucceeded(ctx context.Context, token store.ChallengeToken, user store.User, outcome VerifyOutcome) (VerifyResult, error) {
	// The token must be gone before the OTP leaves the engine. A failed
	// delete aborts the reveal: a token that survives a success would
	// release the same OTP again.
	if err := e.consumeChallengeToken(ctx, token.CID); err != nil {
		e.auditError(ctx, "verify", user.UserID, err)
		return VerifyResult{}, err
	}

	update := store.Document{
		"attempts":          int64(0),
		"lockoutUntil":      int64(0),
		"invalidTpAttempts": int64(0),
	}
	// An accepted enrollment sample completes enrollment: the page
	// collects the full sample set in one submission.
	if outcome.Action == "enroll" {
		update["enroll"] = false
	}
	if _, err := e.updateUser(ctx, user.UserID, update); err != nil {
		e.auditError(ctx, "verify", user.UserID, err)
		return VerifyResult{}, err
	}

	result := VerifyResult{
		Result: 1,
		Action: outcome.Action,
		OTP:    token.Token,
	}
	if tid, err := e.createDisableToken(ctx, user.UserID, ""); err == nil {
		result.DisableTid = tid
	} else {
		e.auditError(ctx, "verify", user.UserID, err)
	}
	// A reset still waiting out its delay can be fast-tracked once the
	// user has just proven they are themselves.
	if due, ok := e.pendingResetTime(ctx, user.UserID); ok && due.After(time.Now()) {
		if tid, err := e.createDisableToken(ctx, user.UserID, store.DisableTokenTypeReset); err == nil {
			result.ResetNowTid = tid
		} else {
			e.auditError(ctx, "verify", user.UserID, err)
		}
	}

	e.metricInc(MetricVerifySuccess)
	e.emit(ctx, AuditEvent{Action: "verify", UserID: user.UserID, CID: token.CID, BridgeID: token.BridgeID, Success: true})
	return result, nil
}

func (e *Engine) verifyFailed(ctx context.Context, token store.ChallengeToken, user store.User, outcome VerifyOutcome) (VerifyResult, error) {
	e.metricInc(MetricVerifyFailure)
	e.emit(ctx, AuditEvent{
		Action:   "verify",
		UserID:   user.UserID,
		CID:      token.CID,
		BridgeID: token.BridgeID,
		Metadata: map[string]string{"messageCode": strconv.Itoa(outcome.MessageCode)},
	})

	verdict, err := e.recordGlobalFailure(ctx, user.UserID)
	if err != nil {
		return VerifyResult{}, err
	}
	cidFailures := e.incrementTokenFailures(ctx, token.CID, user.UserID)

	if verdict.Locked {
		return VerifyResult{}, NewUserLockedError(verdict.TryAgainMinutes)
	}
	if cidFailures >= int64(e.config.Lockout.PerChallengeMaxFailedAttempts) {
		e.metricInc(MetricChallengeLockout)
		return VerifyResult{}, NewChallengeLockedError()
	}
	return VerifyResult{Result: 0, Action: outcome.Action}, nil
}
