package store

import "time"

// User is the per-phone account record. UserID is the salted hash of the
// phone number; the plaintext phone is never persisted.
type User struct {
	UserID            string
	TextID            int64
	TextToType        string
	Enroll            bool
	Attempts          int64
	InvalidTpAttempts int64
	LockoutUntil      int64 // epoch ms, 0 when not locked
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UserFromDocument decodes a user document.
func UserFromDocument(doc Document) User {
	return User{
		UserID:            str(doc, "userId"),
		TextID:            num(doc, "textId"),
		TextToType:        str(doc, "textToType"),
		Enroll:            boolean(doc, "enroll"),
		Attempts:          num(doc, "attempts"),
		InvalidTpAttempts: num(doc, "invalidTpAttempts"),
		LockoutUntil:      num(doc, "lockoutUntil"),
		CreatedAt:         stamp(doc, "createdAt"),
		UpdatedAt:         stamp(doc, "updatedAt"),
	}
}

// Document encodes the user for insertion.
func (u User) Document() Document {
	return Document{
		"id":         u.UserID,
		"userId":     u.UserID,
		"textId":     u.TextID,
		"textToType": u.TextToType,
		"enroll":     u.Enroll,
	}
}

// ChallengeToken is the one-time challenge record behind a cid link.
type ChallengeToken struct {
	CID             string
	UserID          string
	BridgeID        string
	Token           string // the escrowed OTP
	OriginalMessage string
	FailedAttempts  int64
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

// ChallengeTokenFromDocument decodes a challenge token document.
func ChallengeTokenFromDocument(doc Document) ChallengeToken {
	return ChallengeToken{
		CID:             str(doc, "cid"),
		UserID:          str(doc, "userId"),
		BridgeID:        str(doc, "bridgeId"),
		Token:           str(doc, "token"),
		OriginalMessage: str(doc, "originalMessage"),
		FailedAttempts:  num(doc, "failedAttempts"),
		ExpiresAt:       stamp(doc, "expiresAt"),
		CreatedAt:       stamp(doc, "createdAt"),
	}
}

// Document encodes the token for insertion. Expiry and the failure
// counter come from schema defaults.
func (t ChallengeToken) Document() Document {
	return Document{
		"id":              t.CID,
		"cid":             t.CID,
		"userId":          t.UserID,
		"bridgeId":        t.BridgeID,
		"token":           t.Token,
		"originalMessage": t.OriginalMessage,
	}
}

// DisableTokenTypeReset marks the reset-now variant of a disable token.
const DisableTokenTypeReset = "reset"

// DisableToken authorizes either an irreversible profile wipe (default)
// or an immediate reset (Type == DisableTokenTypeReset). Single use.
type DisableToken struct {
	DisableTid string
	UserID     string
	Type       string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// DisableTokenFromDocument decodes a disable token document.
func DisableTokenFromDocument(doc Document) DisableToken {
	return DisableToken{
		DisableTid: str(doc, "disableTid"),
		UserID:     str(doc, "userId"),
		Type:       str(doc, "type"),
		ExpiresAt:  stamp(doc, "expiresAt"),
		CreatedAt:  stamp(doc, "createdAt"),
	}
}

// Document encodes the disable token for insertion.
func (t DisableToken) Document() Document {
	doc := Document{
		"id":         t.DisableTid,
		"disableTid": t.DisableTid,
		"userId":     t.UserID,
	}
	if t.Type != "" {
		doc["type"] = t.Type
	}
	return doc
}

// ScheduledReset arms a delayed account reset. Keyed by userId so a
// second schedule overwrites rather than queues.
type ScheduledReset struct {
	UserID      string
	DeleteAfter time.Time
	CreatedAt   time.Time
}

// ScheduledResetFromDocument decodes a scheduled reset document.
func ScheduledResetFromDocument(doc Document) ScheduledReset {
	return ScheduledReset{
		UserID:      str(doc, "userId"),
		DeleteAfter: stamp(doc, "deleteAfter"),
		CreatedAt:   stamp(doc, "createdAt"),
	}
}

// Document encodes the scheduled reset for insertion.
func (r ScheduledReset) Document() Document {
	return Document{
		"id":          r.UserID,
		"userId":      r.UserID,
		"deleteAfter": r.DeleteAfter,
	}
}

func str(doc Document, field string) string {
	s, _ := doc[field].(string)
	return s
}

func num(doc Document, field string) int64 {
	n, _ := toInt64(doc[field])
	return n
}

func boolean(doc Document, field string) bool {
	b, _ := doc[field].(bool)
	return b
}

func stamp(doc Document, field string) time.Time {
	t, _ := doc[field].(time.Time)
	return t
}
