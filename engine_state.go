package typeshield

import (
	"context"
	"errors"
	"time"

	"github.com/typeshield/typeshield/store"
)

/*
====================================
USER STATE
====================================
*/

func (e *Engine) getUser(ctx context.Context, userID string) (store.User, error) {
	doc, err := e.db.Users.FindOne(ctx, userID)
	if err != nil {
		return store.User{}, err
	}
	return store.UserFromDocument(doc), nil
}

// getOrCreateUser returns the user record, creating a blank enrolling
// profile with a fresh challenge sentence when none exists.
func (e *Engine) getOrCreateUser(ctx context.Context, userID string) (store.User, error) {
	user, err := e.getUser(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.User{}, err
	}

	text := e.texts.Random()
	fresh := store.User{
		UserID:     userID,
		TextID:     TextID(text),
		TextToType: text,
		Enroll:     true,
	}
	doc, err := e.db.Users.InsertOne(ctx, fresh.Document())
	if err != nil {
		return store.User{}, err
	}
	return store.UserFromDocument(doc), nil
}

func (e *Engine) updateUser(ctx context.Context, userID string, update store.Document) (store.User, error) {
	update["updatedAt"] = time.Now().UTC()
	doc, err := e.db.Users.Update(ctx, userID, update)
	if err != nil {
		return store.User{}, err
	}
	return store.UserFromDocument(doc), nil
}

// resetUserState allocates a new challenge sentence and returns the user
// to the enrolling state with cleared lockout counters.
func (e *Engine) resetUserState(ctx context.Context, userID string) (store.User, error) {
	text := e.texts.Random()
	return e.updateUser(ctx, userID, store.Document{
		"textToType":   text,
		"textId":       TextID(text),
		"attempts":     int64(0),
		"lockoutUntil": int64(0),
		"enroll":       true,
	})
}

/*
====================================
CHALLENGE TOKENS
====================================
*/

func (e *Engine) createChallengeToken(ctx context.Context, userID, bridgeID, otp, message string) (string, error) {
	token := store.ChallengeToken{
		CID:             GenerateTokenID(),
		UserID:          userID,
		BridgeID:        bridgeID,
		Token:           otp,
		OriginalMessage: message,
	}
	if _, err := e.db.Tokens.InsertOne(ctx, token.Document()); err != nil {
		return "", err
	}
	return token.CID, nil
}

func (e *Engine) getChallengeToken(ctx context.Context, cid string) (store.ChallengeToken, error) {
	doc, err := e.db.Tokens.FindOne(ctx, cid)
	if err != nil {
		return store.ChallengeToken{}, err
	}
	return store.ChallengeTokenFromDocument(doc), nil
}

func (e *Engine) consumeChallengeToken(ctx context.Context, cid string) error {
	_, err := e.db.Tokens.Delete(ctx, cid)
	return err
}

// incrementTokenFailures bumps the per-challenge failure counter and
// returns the new value. A missing token (deleted or expired between
// read and increment) counts as zero rather than failing the request.
func (e *Engine) incrementTokenFailures(ctx context.Context, cid, userID string) int64 {
	doc, err := e.db.Tokens.Increment(ctx, cid, map[string]int64{"failedAttempts": 1}, false, nil)
	if err != nil {
		e.auditError(ctx, "incrementTokenFailures", userID, err)
		return 0
	}
	token := store.ChallengeTokenFromDocument(doc)
	return token.FailedAttempts
}

/*
====================================
DISABLE / RESET-NOW TOKENS
====================================
*/

func (e *Engine) createDisableToken(ctx context.Context, userID, tokenType string) (string, error) {
	token := store.DisableToken{
		DisableTid: GenerateTokenID(),
		UserID:     userID,
		Type:       tokenType,
	}
	if _, err := e.db.DisableTokens.InsertOne(ctx, token.Document()); err != nil {
		return "", err
	}
	return token.DisableTid, nil
}

func (e *Engine) getDisableToken(ctx context.Context, disableTid string) (store.DisableToken, error) {
	doc, err := e.db.DisableTokens.FindOne(ctx, disableTid)
	if err != nil {
		return store.DisableToken{}, err
	}
	return store.DisableTokenFromDocument(doc), nil
}

func (e *Engine) deleteDisableToken(ctx context.Context, disableTid string) error {
	_, err := e.db.DisableTokens.Delete(ctx, disableTid)
	return err
}

/*
====================================
SCHEDULED RESETS
====================================
*/

// pendingResetTime returns the scheduled reset deadline for a user, or
// false when none exists. Lookup errors degrade to "no pending reset":
// the answer only tunes SMS copy and reset-now availability, never a
// security decision.
func (e *Engine) pendingResetTime(ctx context.Context, userID string) (time.Time, bool) {
	doc, err := e.db.Resets.FindOne(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			e.auditError(ctx, "pendingResetTime", userID, err)
		}
		return time.Time{}, false
	}
	reset := store.ScheduledResetFromDocument(doc)
	if reset.DeleteAfter.IsZero() {
		return time.Time{}, false
	}
	return reset.DeleteAfter, true
}

func (e *Engine) scheduleResetRecord(ctx context.Context, userID string, delay time.Duration) error {
	reset := store.ScheduledReset{
		UserID:      userID,
		DeleteAfter: time.Now().UTC().Add(delay),
	}
	_, err := e.db.Resets.InsertOne(ctx, reset.Document())
	return err
}

func (e *Engine) clearResetRecord(ctx context.Context, userID string) error {
	_, err := e.db.Resets.Delete(ctx, userID)
	return err
}
