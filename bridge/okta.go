package bridge

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/typeshield/typeshield"
)

// Okta handles the Okta telephony inline hook. Authorization is a shared
// bearer secret; the response must be an Okta commands document naming
// the telephony provider and a transaction id.
type Okta struct {
	// SharedSecret is the bearer token Okta sends with each hook call.
	SharedSecret string
	// Disabled turns the webhook off without unregistering it.
	Disabled bool
}

type oktaPayload struct {
	Data struct {
		MessageProfile struct {
			PhoneNumber string `json:"phoneNumber"`
			MsgTemplate string `json:"msgTemplate"`
		} `json:"messageProfile"`
	} `json:"data"`
}

func (o *Okta) ID() string    { return "okta" }
func (o *Okta) Name() string  { return "Okta IAM" }
func (o *Okta) Enabled() bool { return !o.Disabled }

func (o *Okta) IsAuthorized(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || o.SharedSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(o.SharedSecret)) == 1
}

func (o *Okta) GetPhoneNumber(r *http.Request) string {
	var p oktaPayload
	decodeBody(r, &p)
	return p.Data.MessageProfile.PhoneNumber
}

func (o *Okta) GetOtpMessage(r *http.Request) string {
	var p oktaPayload
	decodeBody(r, &p)
	return p.Data.MessageProfile.MsgTemplate
}

func (o *Okta) ExtractOtpFromMessage(message string) string {
	return typeshield.ExtractOTP(message)
}

func (o *Okta) IsTest(string) bool { return false }

func (o *Okta) HandleSuccess(w http.ResponseWriter, _ *http.Request, cid string) {
	type value struct {
		Status        string `json:"status"`
		Provider      string `json:"provider"`
		TransactionID string `json:"transactionId"`
	}
	type command struct {
		Type  string  `json:"type"`
		Value []value `json:"value"`
	}
	writeJSON(w, http.StatusOK, map[string][]command{
		"commands": {{
			Type: "com.okta.telephony.action",
			Value: []value{{
				Status:        "SUCCESSFUL",
				Provider:      "TYPINGDNA",
				TransactionID: cid,
			}},
		}},
	})
}

func (o *Okta) HandleTest(http.ResponseWriter) {}

func (o *Okta) HandleError(w http.ResponseWriter, err error) {
	writeDeliveryError(w, err)
}
