package typeshield

import (
	"context"
	"errors"

	"github.com/typeshield/typeshield/store"
)

// Translation keys returned to the challenge page so it can render the
// right copy without the service shipping localized strings.
const (
	KeyResetScheduledSoon  = "resetAccountMessageFewTPs"
	KeyResetScheduledLater = "resetAccountMessageManyTPs"
	KeyResetComplete       = "resetAccountNowSuccess"
	KeySecureCodesDisabled = "secureCodesDisabled"
)

// ScheduleReset arms a delayed profile reset for the account behind a
// challenge token. The delay is tiered on how much of a profile there is
// to lose: a barely-trained profile resets after a short cool-off, a
// mature one waits out a full day so a phone thief cannot immediately
// re-enroll as the victim.
func (e *Engine) ScheduleReset(ctx context.Context, cid, phone string) (ResetOutcome, error) {
	if e == nil || e.db == nil {
		return ResetOutcome{}, ErrEngineNotReady
	}

	user, err := e.userForChallenge(ctx, cid, phone)
	if err != nil {
		return ResetOutcome{}, err
	}

	// A provider miss or outage reads as an empty profile, which lands
	// in the short tier; there is little profile to protect either way.
	samples := 0
	profile, err := e.biometric.CheckProfile(ctx, user.UserID, user.TextID)
	if err != nil {
		e.auditError(ctx, "scheduleReset", user.UserID, err)
	} else {
		samples = profile.SampleCount
	}

	delay := e.config.Reset.LongDelay
	key := KeyResetScheduledLater
	if samples < e.config.Reset.FewSamplesThreshold {
		delay = e.config.Reset.ShortDelay
		key = KeyResetScheduledSoon
	}

	if err := e.scheduleResetRecord(ctx, user.UserID, delay); err != nil {
		e.auditError(ctx, "scheduleReset", user.UserID, err)
		return ResetOutcome{}, err
	}
	e.metricInc(MetricResetScheduled)
	e.emit(ctx, AuditEvent{Action: "scheduleReset", UserID: user.UserID, CID: cid, Success: true,
		Metadata: map[string]string{"delay": delay.String()}})
	return ResetOutcome{TranslationKey: key}, nil
}

// ResetNow executes a pending reset immediately. The reset-now token is
// only ever issued right after a successful verify, so possession of it
// proves the caller already passed the typing challenge.
func (e *Engine) ResetNow(ctx context.Context, resetNowTid, phone string) (ResetOutcome, error) {
	if e == nil || e.db == nil {
		return ResetOutcome{}, ErrEngineNotReady
	}

	user, token, err := e.userForDisableToken(ctx, resetNowTid, phone, store.DisableTokenTypeReset)
	if err != nil {
		return ResetOutcome{}, err
	}

	if _, err := e.executeScheduledReset(ctx, user); err != nil {
		return ResetOutcome{}, err
	}
	if err := e.deleteDisableToken(ctx, token.DisableTid); err != nil {
		e.auditError(ctx, "resetNow", user.UserID, err)
	}
	return ResetOutcome{TranslationKey: KeyResetComplete}, nil
}

// Disable turns secure codes off for an account: the biometric profile
// and the user record are wiped, so the next webhook for this phone
// starts a fresh enrollment.
func (e *Engine) Disable(ctx context.Context, disableTid, phone string) (ResetOutcome, error) {
	if e == nil || e.db == nil {
		return ResetOutcome{}, ErrEngineNotReady
	}

	user, token, err := e.userForDisableToken(ctx, disableTid, phone, "")
	if err != nil {
		return ResetOutcome{}, err
	}

	if err := e.biometric.DeleteProfile(ctx, user.UserID, user.TextID); err != nil {
		e.auditError(ctx, "disable", user.UserID, err)
	}
	if _, err := e.db.Users.Delete(ctx, user.UserID); err != nil {
		e.auditError(ctx, "disable", user.UserID, err)
		return ResetOutcome{}, err
	}
	if err := e.clearResetRecord(ctx, user.UserID); err != nil {
		e.auditError(ctx, "disable", user.UserID, err)
	}
	if err := e.deleteDisableToken(ctx, token.DisableTid); err != nil {
		e.auditError(ctx, "disable", user.UserID, err)
	}

	e.metricInc(MetricAccountDisabled)
	e.emit(ctx, AuditEvent{Action: "disable", UserID: user.UserID, Success: true})
	return ResetOutcome{TranslationKey: KeySecureCodesDisabled}, nil
}

// userForChallenge binds a {cid, phone} pair: the phone must hash to the
// same account the challenge token was minted for.
func (e *Engine) userForChallenge(ctx context.Context, cid, phone string) (store.User, error) {
	phone = SanitizePhone(phone)
	if !ValidatePhone(phone) {
		return store.User{}, NewPhoneInvalidError()
	}
	if !ValidateTokenID(cid) {
		return store.User{}, NewLinkExpiredError()
	}
	token, err := e.getChallengeToken(ctx, cid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, NewLinkExpiredError()
		}
		return store.User{}, err
	}
	if token.UserID != HashIdentity(phone, e.config.Service.HashSalt) {
		return store.User{}, NewPhoneMismatchError()
	}
	user, err := e.getUser(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, NewUserNotFoundError()
		}
		return store.User{}, err
	}
	return user, nil
}

// userForDisableToken resolves a single-use disable or reset-now token,
// enforcing the expected token type and the phone binding. Type
// mismatches report the same way as an expired link.
func (e *Engine) userForDisableToken(ctx context.Context, tid, phone, wantType string) (store.User, store.DisableToken, error) {
	phone = SanitizePhone(phone)
	if !ValidatePhone(phone) {
		return store.User{}, store.DisableToken{}, NewPhoneInvalidError()
	}
	if !ValidateTokenID(tid) {
		return store.User{}, store.DisableToken{}, NewLinkExpiredError()
	}
	token, err := e.getDisableToken(ctx, tid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, store.DisableToken{}, NewLinkExpiredError()
		}
		return store.User{}, store.DisableToken{}, err
	}
	if token.Type != wantType {
		return store.User{}, store.DisableToken{}, NewLinkExpiredError()
	}
	if token.UserID != HashIdentity(phone, e.config.Service.HashSalt) {
		return store.User{}, store.DisableToken{}, NewPhoneMismatchError()
	}
	user, err := e.getUser(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.User{}, store.DisableToken{}, NewUserNotFoundError()
		}
		return store.User{}, store.DisableToken{}, err
	}
	return user, token, nil
}
