// Package sms implements the SMS gateways the engine delivers challenge
// links through. Gateways are thin transport adapters; retry and
// fallback policy stays in the engine.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com"

// Twilio sends through the Twilio Messages API using an API key pair
// scoped to one account.
type Twilio struct {
	AccountSID string
	APIKey     string
	APISecret  string
	From       string

	// BaseURL overrides the API origin, for tests.
	BaseURL string
	// HTTPClient defaults to a client with a 15s timeout.
	HTTPClient *http.Client
}

type twilioResponse struct {
	SID          string `json:"sid"`
	Status       string `json:"status"`
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	// Error body fields on non-2xx responses.
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendSMS posts one outbound message and reports Twilio-side failures
// as errors.
func (t *Twilio) SendSMS(ctx context.Context, to, body string) error {
	base := t.BaseURL
	if base == "" {
		base = twilioAPIBase
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", base, t.AccountSID)

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.From)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("twilio: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(t.APIKey, t.APISecret)

	client := t.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio: send: %w", err)
	}
	defer resp.Body.Close()

	var payload twilioResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("twilio: decode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("twilio: sms rejected (%d): %s", payload.Code, payload.Message)
	}
	if payload.ErrorCode != 0 || payload.Status == "failed" {
		return fmt.Errorf("twilio: sms failed (%d): %s", payload.ErrorCode, payload.ErrorMessage)
	}
	return nil
}
