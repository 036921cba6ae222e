package bridge

import (
	"net/http"

	"github.com/typeshield/typeshield"
)

const pingOneUser = "pingone"

// PingOne handles the PingOne custom SMS sender webhook. The success
// response echoes the challenge link so it shows up in PingOne's
// delivery logs.
type PingOne struct {
	Password string
	// BaseURL is the public origin used to rebuild the challenge link
	// for the response body.
	BaseURL  string
	Disabled bool
}

type pingOnePayload struct {
	Recipient string `json:"recipient"`
	T0        string `json:"t0"`
	Body      string `json:"body"`
	Message   string `json:"message"`
}

func (p *PingOne) ID() string    { return "pingone" }
func (p *PingOne) Name() string  { return "PingOne IAM" }
func (p *PingOne) Enabled() bool { return !p.Disabled }

func (p *PingOne) IsAuthorized(r *http.Request) bool {
	return typeshield.BasicAuthOK(r.Header.Get("Authorization"), pingOneUser, p.Password)
}

func (p *PingOne) GetPhoneNumber(r *http.Request) string {
	var body pingOnePayload
	decodeBody(r, &body)
	if body.Recipient != "" {
		return body.Recipient
	}
	return body.T0
}

// GetOtpMessage falls back to a placeholder code: PingOne's sender test
// sends an empty body, and the placeholder keeps OTP extraction happy.
func (p *PingOne) GetOtpMessage(r *http.Request) string {
	var body pingOnePayload
	decodeBody(r, &body)
	if body.Body != "" {
		return body.Body
	}
	if body.Message != "" {
		return body.Message
	}
	return "000000"
}

func (p *PingOne) ExtractOtpFromMessage(message string) string {
	return typeshield.ExtractOTP(message)
}

func (p *PingOne) IsTest(string) bool { return false }

func (p *PingOne) HandleSuccess(w http.ResponseWriter, _ *http.Request, cid string) {
	link := ""
	if cid != "" && p.BaseURL != "" {
		link = p.BaseURL + "/" + cid
	}
	writeJSON(w, http.StatusOK, map[string]string{"cid": cid, "link": link})
}

func (p *PingOne) HandleTest(http.ResponseWriter) {}

func (p *PingOne) HandleError(w http.ResponseWriter, err error) {
	writeDeliveryError(w, err)
}
