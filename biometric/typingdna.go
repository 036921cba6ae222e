// Package biometric implements the TypingDNA behavioral-biometrics
// client the engine scores typing patterns with.
package biometric

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/typeshield/typeshield"
)

const defaultTimeout = 20 * time.Second

// TypingDNA talks to the TypingDNA REST API with basic auth. A client
// constructed without a server or credentials is deliberately inert:
// every call reports the provider as unavailable so the engine's
// fail-open SMS path takes over.
type TypingDNA struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	log        *zap.Logger

	configured bool
}

// Option customizes the client.
type Option func(*TypingDNA)

// WithHTTPClient replaces the default 20s-timeout client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *TypingDNA) { t.httpClient = c }
}

// WithLogger enables request logging.
func WithLogger(log *zap.Logger) Option {
	return func(t *TypingDNA) { t.log = log }
}

// NewTypingDNA builds a client for the given API server and key pair.
func NewTypingDNA(server, apiKey, apiSecret string, opts ...Option) *TypingDNA {
	t := &TypingDNA{
		baseURL:    server,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: defaultTimeout},
		log:        zap.NewNop(),
		configured: server != "" && apiKey != "" && apiSecret != "",
	}
	for _, opt := range opts {
		opt(t)
	}
	if !t.configured {
		t.log.Warn("typingdna client not configured; provider calls will fail open")
	}
	return t
}

type checkUserResponse struct {
	MobileCount int `json:"mobilecount"`
	Count       int `json:"count"`
	Status      int `json:"status"`
}

type verifyResponse struct {
	Result      *int   `json:"result"`
	Action      string `json:"action"`
	Success     int    `json:"success"`
	Message     string `json:"message"`
	MessageCode int    `json:"message_code"`
	Status      int    `json:"status"`
	Positions   []int  `json:"positions"`
}

// CheckProfile returns how many mobile patterns the provider holds for
// this user and sentence. A user the provider has never seen counts as
// zero samples; only reachability and credential problems surface as
// ErrProviderUnavailable.
func (t *TypingDNA) CheckProfile(ctx context.Context, userID string, textID int64) (typeshield.ProfileInfo, error) {
	if !t.configured {
		return typeshield.ProfileInfo{}, fmt.Errorf("%w: client not configured", typeshield.ErrProviderUnavailable)
	}

	endpoint := fmt.Sprintf("%s/user/%s?textid=%s", t.baseURL, url.PathEscape(userID), strconv.FormatInt(textID, 10))
	var payload checkUserResponse
	status, err := t.do(ctx, http.MethodGet, endpoint, nil, &payload)
	if err != nil {
		return typeshield.ProfileInfo{}, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return typeshield.ProfileInfo{}, fmt.Errorf("%w: rejected credentials (%d)", typeshield.ErrProviderUnavailable, status)
	}
	if status >= 400 {
		// Unknown users read as an empty profile.
		return typeshield.ProfileInfo{}, nil
	}
	return typeshield.ProfileInfo{SampleCount: payload.MobileCount}, nil
}

// VerifyPattern submits one typing pattern for scoring. With auto-enroll
// enabled on the API side the first samples come back with action
// "enroll" instead of a verdict.
func (t *TypingDNA) VerifyPattern(ctx context.Context, userID, pattern string) (typeshield.VerifyOutcome, error) {
	if !t.configured {
		return typeshield.VerifyOutcome{}, fmt.Errorf("%w: client not configured", typeshield.ErrProviderUnavailable)
	}

	endpoint := fmt.Sprintf("%s/verify/%s", t.baseURL, url.PathEscape(userID))
	var payload verifyResponse
	if _, err := t.do(ctx, http.MethodPost, endpoint, map[string]any{"tp": pattern}, &payload); err != nil {
		return typeshield.VerifyOutcome{}, err
	}
	if payload.Result == nil {
		if payload.Success == 0 {
			return typeshield.VerifyOutcome{}, &typeshield.ProviderError{
				Message:     payload.Message,
				MessageCode: payload.MessageCode,
			}
		}
		return typeshield.VerifyOutcome{}, fmt.Errorf("typingdna: verify response carries no result")
	}
	return typeshield.VerifyOutcome{
		Result:      *payload.Result,
		Action:      payload.Action,
		Message:     payload.Message,
		MessageCode: payload.MessageCode,
	}, nil
}

// GetPosture runs a position-only verify and returns the device
// positions the provider inferred from the pattern's motion data.
func (t *TypingDNA) GetPosture(ctx context.Context, userID, pattern string) ([]int, error) {
	if !t.configured {
		return nil, fmt.Errorf("%w: client not configured", typeshield.ErrProviderUnavailable)
	}

	endpoint := fmt.Sprintf("%s/verify/%s", t.baseURL, url.PathEscape(userID))
	body := map[string]any{
		"userId":       userID,
		"tp":           pattern,
		"positionOnly": true,
	}
	var payload verifyResponse
	status, err := t.do(ctx, http.MethodPost, endpoint, body, &payload)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("typingdna: posture check failed (%d): %s", status, payload.Message)
	}
	return payload.Positions, nil
}

// DeleteProfile removes the user's patterns for one sentence.
func (t *TypingDNA) DeleteProfile(ctx context.Context, userID string, textID int64) error {
	if !t.configured {
		return fmt.Errorf("%w: client not configured", typeshield.ErrProviderUnavailable)
	}

	endpoint := fmt.Sprintf("%s/user/%s?textid=%s", t.baseURL, url.PathEscape(userID), strconv.FormatInt(textID, 10))
	status, err := t.do(ctx, http.MethodDelete, endpoint, nil, &struct{}{})
	if err != nil {
		return err
	}
	if status >= 400 && status != http.StatusNotFound {
		return fmt.Errorf("typingdna: delete profile failed (%d)", status)
	}
	return nil
}

// do performs one API call, decoding the body into out and translating
// transport-level failures into ErrProviderUnavailable.
func (t *TypingDNA) do(ctx context.Context, method, endpoint string, body any, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("typingdna: encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, fmt.Errorf("typingdna: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(t.apiKey, t.apiSecret)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.log.Error("typingdna request failed", zap.String("method", method), zap.Error(err))
		return 0, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("typingdna: decode response: %w", err)
	}
	return resp.StatusCode, nil
}

// classifyTransportError maps timeouts and DNS/connect failures to the
// fail-open sentinel; anything else stays a plain error.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", typeshield.ErrProviderUnavailable, err)
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", typeshield.ErrProviderUnavailable, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: %v", typeshield.ErrProviderUnavailable, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", typeshield.ErrProviderUnavailable, err)
	}
	return fmt.Errorf("typingdna: request: %w", err)
}
