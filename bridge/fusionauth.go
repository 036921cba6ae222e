package bridge

import (
	"net/http"
	"strings"

	"github.com/typeshield/typeshield"
)

const fusionAuthUser = "fusionauth"

// FusionAuth handles the FusionAuth SMS messenger webhook. Messages
// starting with "testing" are the console's connectivity check.
type FusionAuth struct {
	Password string
	Disabled bool
}

type fusionAuthPayload struct {
	PhoneNumber string `json:"phoneNumber"`
	TextMessage string `json:"textMessage"`
}

func (f *FusionAuth) ID() string    { return "fusionauth" }
func (f *FusionAuth) Name() string  { return "FusionAuth" }
func (f *FusionAuth) Enabled() bool { return !f.Disabled }

func (f *FusionAuth) IsAuthorized(r *http.Request) bool {
	return typeshield.BasicAuthOK(r.Header.Get("Authorization"), fusionAuthUser, f.Password)
}

func (f *FusionAuth) GetPhoneNumber(r *http.Request) string {
	var p fusionAuthPayload
	decodeBody(r, &p)
	return p.PhoneNumber
}

func (f *FusionAuth) GetOtpMessage(r *http.Request) string {
	var p fusionAuthPayload
	decodeBody(r, &p)
	return p.TextMessage
}

func (f *FusionAuth) ExtractOtpFromMessage(message string) string {
	return typeshield.ExtractOTP(message)
}

func (f *FusionAuth) IsTest(message string) bool {
	return strings.HasPrefix(strings.ToLower(message), "testing")
}

func (f *FusionAuth) HandleSuccess(w http.ResponseWriter, _ *http.Request, cid string) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "delivered",
		"handledBy": f.Name(),
		"cid":       cid,
	})
}

func (f *FusionAuth) HandleTest(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "test-ok"})
}

func (f *FusionAuth) HandleError(w http.ResponseWriter, err error) {
	writeDeliveryError(w, err)
}
