package store

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// DeriveKey turns a human-supplied identifier (hashed phone, generated
// token id) into the deterministic primary key used across every
// backend. Cross-backend migration keeps key meaning because all
// adapters store under the same derived value: the first 24 hex
// characters of HMAC-SHA256(id, salt).
func DeriveKey(id, salt string) string {
	if id == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(salt))
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))[:24]
}
