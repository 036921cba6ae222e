package bridge

import (
	"net/http"
	"strings"

	"github.com/typeshield/typeshield"
)

const cyberArkUser = "cyberark"

// CyberArk handles the CyberArk Identity SMS webhook. Authorization is
// HTTP Basic with a fixed username; messages starting with "test" are
// connectivity checks and acknowledged without sending.
type CyberArk struct {
	Password string
	Disabled bool
}

type cyberArkPayload struct {
	PhoneNumber string `json:"phoneNumber"`
	SMSMessage  string `json:"smsMessage"`
}

func (c *CyberArk) ID() string    { return "cyberark" }
func (c *CyberArk) Name() string  { return "CyberArk IAM" }
func (c *CyberArk) Enabled() bool { return !c.Disabled }

func (c *CyberArk) IsAuthorized(r *http.Request) bool {
	return typeshield.BasicAuthOK(r.Header.Get("Authorization"), cyberArkUser, c.Password)
}

func (c *CyberArk) GetPhoneNumber(r *http.Request) string {
	var p cyberArkPayload
	decodeBody(r, &p)
	return p.PhoneNumber
}

func (c *CyberArk) GetOtpMessage(r *http.Request) string {
	var p cyberArkPayload
	decodeBody(r, &p)
	return p.SMSMessage
}

func (c *CyberArk) ExtractOtpFromMessage(message string) string {
	return typeshield.ExtractOTP(message)
}

func (c *CyberArk) IsTest(message string) bool {
	return strings.HasPrefix(strings.ToLower(message), "test")
}

func (c *CyberArk) HandleSuccess(w http.ResponseWriter, _ *http.Request, cid string) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "delivered",
		"handledBy": c.Name(),
		"cid":       cid,
	})
}

func (c *CyberArk) HandleTest(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "test-ok"})
}

func (c *CyberArk) HandleError(w http.ResponseWriter, err error) {
	writeDeliveryError(w, err)
}
