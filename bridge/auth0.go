package bridge

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/typeshield/typeshield"
)

// Auth0 handles the Auth0 custom phone provider action. The action signs
// a short-lived HS256 JWT with the shared signing secret; the bridge
// accepts any request carrying a valid, unexpired token.
type Auth0 struct {
	SigningSecret string
	Disabled      bool
}

type auth0Payload struct {
	Recipient   string `json:"recipient"`
	PhoneNumber string `json:"phoneNumber"`
	Message     string `json:"message"`
	SMSMessage  string `json:"smsMessage"`
}

func (a *Auth0) ID() string    { return "auth0" }
func (a *Auth0) Name() string  { return "Auth0 IAM" }
func (a *Auth0) Enabled() bool { return !a.Disabled }

func (a *Auth0) IsAuthorized(r *http.Request) bool {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || a.SigningSecret == "" {
		return false
	}
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return []byte(a.SigningSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil && token.Valid
}

func (a *Auth0) GetPhoneNumber(r *http.Request) string {
	var p auth0Payload
	decodeBody(r, &p)
	if p.Recipient != "" {
		return p.Recipient
	}
	return p.PhoneNumber
}

func (a *Auth0) GetOtpMessage(r *http.Request) string {
	var p auth0Payload
	decodeBody(r, &p)
	if p.Message != "" {
		return p.Message
	}
	return p.SMSMessage
}

func (a *Auth0) ExtractOtpFromMessage(message string) string {
	return typeshield.ExtractOTP(message)
}

func (a *Auth0) IsTest(string) bool { return false }

func (a *Auth0) HandleSuccess(w http.ResponseWriter, _ *http.Request, cid string) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"handledBy": a.Name(),
		"cid":       cid,
	})
}

func (a *Auth0) HandleTest(http.ResponseWriter) {}

func (a *Auth0) HandleError(w http.ResponseWriter, err error) {
	writeDeliveryError(w, err)
}
