package typeshield

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/typeshield/typeshield/store"
)

const (
	testPhone   = "+15551234567"
	testMessage = "Your verification code is 482913"
	testOTP     = "482913"
	// A structurally valid mobile pattern: hash-separated segments with
	// motion data in the second and third slots.
	testPattern = "2,0,3.1,1|171,137#8,2,9,4|5,1#6,0,2"
)

type fakeBiometric struct {
	checkFn   func(ctx context.Context, userID string, textID int64) (ProfileInfo, error)
	verifyFn  func(ctx context.Context, userID, pattern string) (VerifyOutcome, error)
	postureFn func(ctx context.Context, userID, pattern string) ([]int, error)
	deleteFn  func(ctx context.Context, userID string, textID int64) error

	deleted []int64
}

func (f *fakeBiometric) CheckProfile(ctx context.Context, userID string, textID int64) (ProfileInfo, error) {
	if f.checkFn != nil {
		return f.checkFn(ctx, userID, textID)
	}
	return ProfileInfo{SampleCount: 10}, nil
}

func (f *fakeBiometric) VerifyPattern(ctx context.Context, userID, pattern string) (VerifyOutcome, error) {
	if f.verifyFn != nil {
		return f.verifyFn(ctx, userID, pattern)
	}
	return VerifyOutcome{Result: 1, Action: "verify"}, nil
}

func (f *fakeBiometric) GetPosture(ctx context.Context, userID, pattern string) ([]int, error) {
	if f.postureFn != nil {
		return f.postureFn(ctx, userID, pattern)
	}
	return []int{3}, nil
}

func (f *fakeBiometric) DeleteProfile(ctx context.Context, userID string, textID int64) error {
	f.deleted = append(f.deleted, textID)
	if f.deleteFn != nil {
		return f.deleteFn(ctx, userID, textID)
	}
	return nil
}

type fakeSMS struct {
	sent []smsCall
	err  error
}

type smsCall struct {
	to   string
	body string
}

func (f *fakeSMS) SendSMS(_ context.Context, to, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, smsCall{to: to, body: body})
	return nil
}

func (f *fakeSMS) last(t *testing.T) smsCall {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("expected an SMS to be sent")
	}
	return f.sent[len(f.sent)-1]
}

type stubBridge struct {
	authorized bool
	phone      string
	message    string
	test       bool
}

func (b *stubBridge) ID() string                      { return "stub" }
func (b *stubBridge) Name() string                    { return "Stub" }
func (b *stubBridge) Enabled() bool                   { return true }
func (b *stubBridge) IsAuthorized(*http.Request) bool { return b.authorized }
func (b *stubBridge) GetPhoneNumber(*http.Request) string {
	return b.phone
}
func (b *stubBridge) GetOtpMessage(*http.Request) string {
	return b.message
}
func (b *stubBridge) ExtractOtpFromMessage(message string) string {
	return ExtractOTP(message)
}
func (b *stubBridge) IsTest(string) bool                                       { return b.test }
func (b *stubBridge) HandleSuccess(http.ResponseWriter, *http.Request, string) {}
func (b *stubBridge) HandleTest(http.ResponseWriter)                           {}
func (b *stubBridge) HandleError(http.ResponseWriter, error)                   {}

func okBridge() *stubBridge {
	return &stubBridge{authorized: true, phone: testPhone, message: testMessage}
}

func newFlowEngine(t *testing.T, bio *fakeBiometric, sms *fakeSMS, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := defaultConfig()
	cfg.Service.BaseURL = "https://challenge.example.com"
	cfg.Service.HashSalt = "unit-salt"
	if mutate != nil {
		mutate(&cfg)
	}
	engine, err := New().
		WithConfig(cfg).
		WithAdapter(store.NewMemoryAdapter()).
		WithBiometric(bio).
		WithSMS(sms).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return engine
}

func deliverChallenge(t *testing.T, e *Engine, bridge Bridge) string {
	t.Helper()
	outcome, err := e.HandleBridgeRequest(context.Background(), bridge, httptest.NewRequest(http.MethodPost, "/hooks/stub", nil))
	if err != nil {
		t.Fatalf("HandleBridgeRequest: %v", err)
	}
	if outcome.CID == "" {
		t.Fatal("expected a challenge token id")
	}
	return outcome.CID
}

func TestBridgeRequestEnrolledUser(t *testing.T) {
	sms := &fakeSMS{}
	e := newFlowEngine(t, &fakeBiometric{}, sms, nil)

	cid := deliverChallenge(t, e, okBridge())
	if !ValidateTokenID(cid) {
		t.Fatalf("cid %q is not a valid token id", cid)
	}

	call := sms.last(t)
	if call.to != testPhone {
		t.Fatalf("SMS to %q, want %q", call.to, testPhone)
	}
	if strings.Contains(call.body, testOTP) {
		t.Fatalf("enrolled-user SMS must not reveal the OTP: %q", call.body)
	}
	if !strings.Contains(call.body, "https://challenge.example.com/"+cid) {
		t.Fatalf("SMS body %q missing challenge link", call.body)
	}

	token, err := e.getChallengeToken(context.Background(), cid)
	if err != nil {
		t.Fatalf("token lookup: %v", err)
	}
	if token.Token != testOTP {
		t.Fatalf("escrowed OTP = %q, want %q", token.Token, testOTP)
	}
	if token.BridgeID != "stub" {
		t.Fatalf("token bridge = %q, want stub", token.BridgeID)
	}
}

func TestBridgeRequestNewUserRevealsOTP(t *testing.T) {
	bio := &fakeBiometric{
		checkFn: func(context.Context, string, int64) (ProfileInfo, error) {
			return ProfileInfo{SampleCount: 0}, nil
		},
	}
	sms := &fakeSMS{}
	e := newFlowEngine(t, bio, sms, nil)

	deliverChallenge(t, e, okBridge())

	body := sms.last(t).body
	if !strings.Contains(body, "Your code is "+testOTP) {
		t.Fatalf("enrolling SMS should reveal the OTP, got %q", body)
	}
	if !strings.Contains(body, "Turn on secure codes:") {
		t.Fatalf("enrolling SMS should invite enrollment, got %q", body)
	}
}

func TestBridgeRequestUnauthorized(t *testing.T) {
	sms := &fakeSMS{}
	e := newFlowEngine(t, &fakeBiometric{}, sms, nil)

	bridge := okBridge()
	bridge.authorized = false
	_, err := e.HandleBridgeRequest(context.Background(), bridge, httptest.NewRequest(http.MethodPost, "/hooks/stub", nil))
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(sms.sent) != 0 {
		t.Fatal("no SMS should be sent for an unauthorized webhook")
	}
}

func TestBridgeRequestTestMessage(t *testing.T) {
	sms := &fakeSMS{}
	e := newFlowEngine(t, &fakeBiometric{}, sms, nil)

	bridge := okBridge()
	bridge.test = true
	outcome, err := e.HandleBridgeRequest(context.Background(), bridge, httptest.NewRequest(http.MethodPost, "/hooks/stub", nil))
	if err != nil {
		t.Fatalf("HandleBridgeRequest: %v", err)
	}
	if !outcome.IsTest {
		t.Fatal("expected a test acknowledgment")
	}
	if len(sms.sent) != 0 {
		t.Fatal("vendor connectivity tests must not send SMS")
	}
}

func TestBridgeRequestInvalidPhone(t *testing.T) {
	e := newFlowEngine(t, &fakeBiometric{}, &fakeSMS{}, nil)

	bridge := okBridge()
	bridge.phone = "not-a-phone"
	_, err := e.HandleBridgeRequest(context.Background(), bridge, httptest.NewRequest(http.MethodPost, "/hooks/stub", nil))
	if !errors.Is(err, ErrInvalidPhone) {
		t.Fatalf("expected ErrInvalidPhone, got %v", err)
	}
}

func TestBridgeRequestWithoutOTP(t *testing.T) {
	e := newFlowEngine(t, &fakeBiometric{}, &fakeSMS{}, nil)

	bridge := okBridge()
	bridge.message = "no code in here"
	_, err := e.HandleBridgeRequest(context.Background(), bridge, httptest.NewRequest(http.MethodPost, "/hooks/stub", nil))
	if !errors.Is(err, ErrNoOTP) {
		t.Fatalf("expected ErrNoOTP, got %v", err)
	}
}

func TestBridgeFallbackWhenProviderUnavailable(t *testing.T) {
	bio := &fakeBiometric{
		checkFn: func(context.Context, string, int64) (ProfileInfo, error) {
			return ProfileInfo{}, fmt.Errorf("%w: connect timeout", ErrProviderUnavailable)
		},
	}
	sms := &fakeSMS{}
	e := newFlowEngine(t, bio, sms, nil)

	outcome, err := e.HandleBridgeRequest(context.Background(), okBridge(), httptest.NewRequest(http.MethodPost, "/hooks/stub", nil))
	if err != nil {
		t.Fatalf("HandleBridgeRequest: %v", err)
	}
	if !outcome.Fallback {
		t.Fatal("expected fallback delivery")
	}
	if outcome.CID != "" {
		t.Fatal("fallback delivery must not mint a challenge token")
	}
	if body := sms.last(t).body; body != testMessage {
		t.Fatalf("fallback SMS = %q, want the vendor's original message", body)
	}
}

func TestBridgeSMSDeliveryFailure(t *testing.T) {
	sms := &fakeSMS{err: errors.New("carrier rejected")}
	e := newFlowEngine(t, &fakeBiometric{}, sms, nil)

	_, err := e.HandleBridgeRequest(context.Background(), okBridge(), httptest.NewRequest(http.MethodPost, "/hooks/stub", nil))
	if !errors.Is(err, ErrSMSDeliveryFailed) {
		t.Fatalf("expected ErrSMSDeliveryFailed, got %v", err)
	}
}

func TestChallengeRendersView(t *testing.T) {
	e := newFlowEngine(t, &fakeBiometric{}, &fakeSMS{}, nil)
	cid := deliverChallenge(t, e, okBridge())

	view, err := e.Challenge(context.Background(), cid)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	if view.CID != cid {
		t.Fatalf("view cid = %q, want %q", view.CID, cid)
	}
	if view.Enroll {
		t.Fatal("user with a trained profile should not be in enroll mode")
	}
	if view.Text == "" {
		t.Fatal("challenge sentence must not be empty")
	}
	if view.TextID != TextID(view.Text) {
		t.Fatalf("textId %d does not match sentence %q", view.TextID, view.Text)
	}
}

func TestChallengeRejectsBadLinks(t *testing.T) {
	e := newFlowEngine(t, &fakeBiometric{}, &fakeSMS{}, nil)

	for _, cid := range []string{"", "zz", "abc!@#", "a1b2c3"} {
		if _, err := e.Challenge(context.Background(), cid); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("Challenge(%q): expected ErrTokenInvalid, got %v", cid, err)
		}
	}
}

func TestVerifySuccessRevealsOTP(t *testing.T) {
	e := newFlowEngine(t, &fakeBiometric{}, &fakeSMS{}, nil)
	cid := deliverChallenge(t, e, okBridge())

	view, err := e.Challenge(context.Background(), cid)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}

	result, err := e.Verify(context.Background(), VerifyRequest{CID: cid, Pattern: testPattern, TextID: view.TextID})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.Result != 1 {
		t.Fatalf("result = %d, want 1", result.Result)
	}
	if result.OTP != testOTP {
		t.Fatalf("revealed OTP = %q, want %q", result.OTP, testOTP)
	}
	if !ValidateTokenID(result.DisableTid) {
		t.Fatalf("disableTid %q is not a valid token id", result.DisableTid)
	}
	if result.ResetNowTid != "" {
		t.Fatal("resetNowTid must only be issued while a reset is pending")
	}

	// The token is single use.
	if _, err := e.Verify(context.Background(), VerifyRequest{CID: cid, Pattern: testPattern, TextID: view.TextID}); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("second verify: expected ErrTokenInvalid, got %v", err)
	}
}

// faultyAdapter wraps a working adapter and fails selected operations
// against one collection.
type faultyAdapter struct {
	store.Adapter
	deleteErr  error
	updateErr  error
	collection string
}

func (f *faultyAdapter) DeleteOne(ctx context.Context, collection, id string) (int64, error) {
	if f.deleteErr != nil && collection == f.collection {
		return 0, f.deleteErr
	}
	return f.Adapter.DeleteOne(ctx, collection, id)
}

func (f *faultyAdapter) FindOneAndUpdate(ctx context.Context, collection, id string, update store.Document) (store.Document, error) {
	if f.updateErr != nil && collection == f.collection {
		return nil, f.updateErr
	}
	return f.Adapter.FindOneAndUpdate(ctx, collection, id, update)
}

func newFaultyFlowEngine(t *testing.T, adapter *faultyAdapter) *Engine {
	t.Helper()
	cfg := defaultConfig()
	cfg.Service.BaseURL = "https://challenge.example.com"
	cfg.Service.HashSalt = "unit-salt"
	engine, err := New().
		WithConfig(cfg).
		WithAdapter(adapter).
		WithBiometric(&fakeBiometric{}).
		WithSMS(&fakeSMS{}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return engine
}

func TestVerifyAbortsWhenTokenConsumeFails(t *testing.T) {
	adapter := &faultyAdapter{Adapter: store.NewMemoryAdapter()}
	e := newFaultyFlowEngine(t, adapter)
	cid := deliverChallenge(t, e, okBridge())
	view, err := e.Challenge(context.Background(), cid)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	req := VerifyRequest{CID: cid, Pattern: testPattern, TextID: view.TextID}

	adapter.collection = store.CollectionTokens
	adapter.deleteErr = fmt.Errorf("%w: write timeout", store.ErrUnavailable)

	result, err := e.Verify(context.Background(), req)
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected the consume failure to propagate, got %v", err)
	}
	if result.OTP != "" {
		t.Fatalf("OTP %q must not be released when the token survives", result.OTP)
	}

	// Once the backend heals the surviving token works exactly once.
	adapter.deleteErr = nil
	result, err = e.Verify(context.Background(), req)
	if err != nil {
		t.Fatalf("Verify after recovery: %v", err)
	}
	if result.OTP != testOTP {
		t.Fatalf("revealed OTP = %q, want %q", result.OTP, testOTP)
	}
	if _, err := e.Verify(context.Background(), req); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("consumed token must not verify again, got %v", err)
	}
}

func TestVerifyAbortsWhenCounterResetFails(t *testing.T) {
	adapter := &faultyAdapter{Adapter: store.NewMemoryAdapter()}
	e := newFaultyFlowEngine(t, adapter)
	cid := deliverChallenge(t, e, okBridge())
	view, err := e.Challenge(context.Background(), cid)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}

	adapter.collection = store.CollectionUsers
	adapter.updateErr = fmt.Errorf("%w: write timeout", store.ErrUnavailable)

	result, err := e.Verify(context.Background(), VerifyRequest{CID: cid, Pattern: testPattern, TextID: view.TextID})
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected the counter-reset failure to propagate, got %v", err)
	}
	if result.OTP != "" {
		t.Fatalf("OTP %q must not be released on a half-applied success", result.OTP)
	}
}

func TestVerifyMissingPattern(t *testing.T) {
	e := newFlowEngine(t, &fakeBiometric{}, &fakeSMS{}, nil)
	cid := deliverChallenge(t, e, okBridge())

	if _, err := e.Verify(context.Background(), VerifyRequest{CID: cid}); !errors.Is(err, ErrMissingData) {
		t.Fatalf("expected ErrMissingData, got %v", err)
	}
}

func TestVerifyRejectsPatternWithoutMotionData(t *testing.T) {
	e := newFlowEngine(t, &fakeBiometric{}, &fakeSMS{}, nil)
	cid := deliverChallenge(t, e, okBridge())

	for _, tp := range []string{"no-separators", "head##", "head#only-one"} {
		_, err := e.Verify(context.Background(), VerifyRequest{CID: cid, Pattern: tp})
		if !errors.Is(err, ErrMotionDataInvalid) {
			t.Fatalf("Verify(%q): expected ErrMotionDataInvalid, got %v", tp, err)
		}
	}
}

func TestVerifyTextIDMismatch(t *testing.T) {
	e := newFlowEngine(t, &fakeBiometric{}, &fakeSMS{}, nil)
	cid := deliverChallenge(t, e, okBridge())

	_, err := e.Verify(context.Background(), VerifyRequest{CID: cid, Pattern: testPattern, TextID: 42})
	if !errors.Is(err, ErrTextIDMismatch) {
		t.Fatalf("expected ErrTextIDMismatch, got %v", err)
	}
}

func TestVerifyChallengeLockout(t *testing.T) {
	bio := &fakeBiometric{
		verifyFn: func(context.Context, string, string) (VerifyOutcome, error) {
			return VerifyOutcome{Result: 0, Action: "verify"}, nil
		},
	}
	e := newFlowEngine(t, bio, &fakeSMS{}, func(cfg *Config) {
		cfg.Lockout.GlobalMaxFailedAttempts = 100
	})
	cid := deliverChallenge(t, e, okBridge())
	view, err := e.Challenge(context.Background(), cid)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	req := VerifyRequest{CID: cid, Pattern: testPattern, TextID: view.TextID}

	for i := 0; i < 2; i++ {
		result, err := e.Verify(context.Background(), req)
		if err != nil {
			t.Fatalf("verify %d: %v", i+1, err)
		}
		if result.Result != 0 {
			t.Fatalf("verify %d: result = %d, want 0", i+1, result.Result)
		}
	}

	// The third failure exhausts the per-challenge budget.
	if _, err := e.Verify(context.Background(), req); !errors.Is(err, ErrChallengeLocked) {
		t.Fatalf("expected ErrChallengeLocked, got %v", err)
	}
	if _, err := e.Challenge(context.Background(), cid); !errors.Is(err, ErrChallengeLocked) {
		t.Fatalf("locked challenge should not render, got %v", err)
	}
}

func TestVerifyGlobalLockout(t *testing.T) {
	bio := &fakeBiometric{
		verifyFn: func(context.Context, string, string) (VerifyOutcome, error) {
			return VerifyOutcome{Result: 0, Action: "verify"}, nil
		},
	}
	e := newFlowEngine(t, bio, &fakeSMS{}, func(cfg *Config) {
		cfg.Lockout.GlobalMaxFailedAttempts = 2
		cfg.Lockout.PerChallengeMaxFailedAttempts = 10
	})
	cid := deliverChallenge(t, e, okBridge())
	view, err := e.Challenge(context.Background(), cid)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	req := VerifyRequest{CID: cid, Pattern: testPattern, TextID: view.TextID}

	if _, err := e.Verify(context.Background(), req); err != nil {
		t.Fatalf("first failure should not lock: %v", err)
	}
	_, err = e.Verify(context.Background(), req)
	if !errors.Is(err, ErrUserLocked) {
		t.Fatalf("expected ErrUserLocked, got %v", err)
	}
	we, ok := AsWireError(err)
	if !ok {
		t.Fatalf("expected a wire error, got %T", err)
	}
	if we.TryAgainMinutes != 16 {
		t.Fatalf("tryAgainMinutes = %d, want 16 for a fresh 15m lockout", we.TryAgainMinutes)
	}

	if _, err := e.Challenge(context.Background(), cid); !errors.Is(err, ErrUserLocked) {
		t.Fatalf("locked user should not see the challenge, got %v", err)
	}
}

func TestGlobalLockoutSelfHeals(t *testing.T) {
	e := newFlowEngine(t, &fakeBiometric{}, &fakeSMS{}, nil)
	cid := deliverChallenge(t, e, okBridge())

	userID := HashIdentity(testPhone, "unit-salt")
	expired := time.Now().Add(-time.Minute).UnixMilli()
	if _, err := e.updateUser(context.Background(), userID, store.Document{
		"attempts":     int64(5),
		"lockoutUntil": expired,
	}); err != nil {
		t.Fatalf("seed lockout: %v", err)
	}

	if _, err := e.Challenge(context.Background(), cid); err != nil {
		t.Fatalf("expired lockout should self-heal, got %v", err)
	}
	user, err := e.getUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("getUser: %v", err)
	}
	if user.Attempts != 0 || user.LockoutUntil != 0 {
		t.Fatalf("counters not cleared: attempts=%d lockoutUntil=%d", user.Attempts, user.LockoutUntil)
	}
}

func TestVerifyPostureRetryBudget(t *testing.T) {
	bio := &fakeBiometric{
		postureFn: func(context.Context, string, string) ([]int, error) {
			return []int{1}, nil
		},
	}
	e := newFlowEngine(t, bio, &fakeSMS{}, nil)
	cid := deliverChallenge(t, e, okBridge())
	view, err := e.Challenge(context.Background(), cid)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	req := VerifyRequest{CID: cid, Pattern: testPattern, TextID: view.TextID}

	if _, err := e.Verify(context.Background(), req); !errors.Is(err, ErrIncorrectPositionRetry) {
		t.Fatalf("first posture miss should allow a retry, got %v", err)
	}
	if _, err := e.Verify(context.Background(), req); !errors.Is(err, ErrIncorrectPosition) {
		t.Fatalf("second posture miss should be final, got %v", err)
	}
	// Posture misses are a usability allowance, not failed verifications.
	if _, err := e.Challenge(context.Background(), cid); err != nil {
		t.Fatalf("posture misses must not lock the challenge, got %v", err)
	}
}

func TestScheduleResetTiering(t *testing.T) {
	samples := 3
	bio := &fakeBiometric{
		checkFn: func(context.Context, string, int64) (ProfileInfo, error) {
			return ProfileInfo{SampleCount: samples}, nil
		},
	}
	e := newFlowEngine(t, bio, &fakeSMS{}, nil)
	cid := deliverChallenge(t, e, okBridge())

	outcome, err := e.ScheduleReset(context.Background(), cid, testPhone)
	if err != nil {
		t.Fatalf("ScheduleReset: %v", err)
	}
	if outcome.TranslationKey != KeyResetScheduledSoon {
		t.Fatalf("thin profile: key = %q, want %q", outcome.TranslationKey, KeyResetScheduledSoon)
	}

	userID := HashIdentity(testPhone, "unit-salt")
	due, ok := e.pendingResetTime(context.Background(), userID)
	if !ok {
		t.Fatal("expected a pending reset")
	}
	if wait := time.Until(due); wait < 55*time.Minute || wait > 65*time.Minute {
		t.Fatalf("thin profile delay = %v, want about 1h", wait)
	}

	samples = 12
	outcome, err = e.ScheduleReset(context.Background(), cid, testPhone)
	if err != nil {
		t.Fatalf("ScheduleReset: %v", err)
	}
	if outcome.TranslationKey != KeyResetScheduledLater {
		t.Fatalf("mature profile: key = %q, want %q", outcome.TranslationKey, KeyResetScheduledLater)
	}
	due, _ = e.pendingResetTime(context.Background(), userID)
	if wait := time.Until(due); wait < 23*time.Hour {
		t.Fatalf("mature profile delay = %v, want about 24h", wait)
	}
}

func TestScheduleResetPhoneMismatch(t *testing.T) {
	e := newFlowEngine(t, &fakeBiometric{}, &fakeSMS{}, nil)
	cid := deliverChallenge(t, e, okBridge())

	if _, err := e.ScheduleReset(context.Background(), cid, "+15550000000"); !errors.Is(err, ErrPhoneMismatch) {
		t.Fatalf("expected ErrPhoneMismatch, got %v", err)
	}
}

func TestDueResetExecutesOnChallenge(t *testing.T) {
	bio := &fakeBiometric{}
	e := newFlowEngine(t, bio, &fakeSMS{}, nil)
	cid := deliverChallenge(t, e, okBridge())

	userID := HashIdentity(testPhone, "unit-salt")
	oldUser, err := e.getUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("getUser: %v", err)
	}
	if err := e.scheduleResetRecord(context.Background(), userID, -time.Minute); err != nil {
		t.Fatalf("seed due reset: %v", err)
	}

	view, err := e.Challenge(context.Background(), cid)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	if !view.Enroll {
		t.Fatal("a reset user must come back in enroll mode")
	}
	if len(bio.deleted) != 1 || bio.deleted[0] != oldUser.TextID {
		t.Fatalf("expected profile wipe for textId %d, got %v", oldUser.TextID, bio.deleted)
	}
	if _, ok := e.pendingResetTime(context.Background(), userID); ok {
		t.Fatal("the schedule record should be cleared after execution")
	}
}

func TestDueResetAbortsWhenProfileWipeFails(t *testing.T) {
	wipeErr := errors.New("typingdna: delete profile failed (500)")
	bio := &fakeBiometric{
		deleteFn: func(context.Context, string, int64) error { return wipeErr },
	}
	e := newFlowEngine(t, bio, &fakeSMS{}, nil)
	cid := deliverChallenge(t, e, okBridge())

	userID := HashIdentity(testPhone, "unit-salt")
	if err := e.scheduleResetRecord(context.Background(), userID, -time.Minute); err != nil {
		t.Fatalf("seed due reset: %v", err)
	}

	if _, err := e.Challenge(context.Background(), cid); !errors.Is(err, wipeErr) {
		t.Fatalf("expected the wipe failure to propagate, got %v", err)
	}
	// The schedule stays armed so the reset retries on the next render.
	if _, ok := e.pendingResetTime(context.Background(), userID); !ok {
		t.Fatal("the schedule record must survive a failed wipe")
	}

	bio.deleteFn = nil
	view, err := e.Challenge(context.Background(), cid)
	if err != nil {
		t.Fatalf("Challenge after recovery: %v", err)
	}
	if !view.Enroll {
		t.Fatal("the retried reset must put the user back in enroll mode")
	}
	if _, ok := e.pendingResetTime(context.Background(), userID); ok {
		t.Fatal("the schedule record should be cleared after execution")
	}
}

func TestResetNowFlow(t *testing.T) {
	bio := &fakeBiometric{}
	e := newFlowEngine(t, bio, &fakeSMS{}, nil)
	cid := deliverChallenge(t, e, okBridge())
	view, err := e.Challenge(context.Background(), cid)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}

	userID := HashIdentity(testPhone, "unit-salt")
	if err := e.scheduleResetRecord(context.Background(), userID, time.Hour); err != nil {
		t.Fatalf("seed pending reset: %v", err)
	}

	result, err := e.Verify(context.Background(), VerifyRequest{CID: cid, Pattern: testPattern, TextID: view.TextID})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.ResetNowTid == "" {
		t.Fatal("expected a resetNowTid while a reset is pending")
	}

	// The reset-now token must not work for the disable endpoint.
	if _, err := e.Disable(context.Background(), result.ResetNowTid, testPhone); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("disable with reset token: expected ErrTokenInvalid, got %v", err)
	}

	outcome, err := e.ResetNow(context.Background(), result.ResetNowTid, testPhone)
	if err != nil {
		t.Fatalf("ResetNow: %v", err)
	}
	if outcome.TranslationKey != KeyResetComplete {
		t.Fatalf("key = %q, want %q", outcome.TranslationKey, KeyResetComplete)
	}
	if len(bio.deleted) == 0 {
		t.Fatal("expected the biometric profile to be wiped")
	}
	if _, ok := e.pendingResetTime(context.Background(), userID); ok {
		t.Fatal("the pending reset should be cleared")
	}

	// Single use.
	if _, err := e.ResetNow(context.Background(), result.ResetNowTid, testPhone); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("second ResetNow: expected ErrTokenInvalid, got %v", err)
	}
}

func TestDisableFlow(t *testing.T) {
	bio := &fakeBiometric{}
	e := newFlowEngine(t, bio, &fakeSMS{}, nil)
	cid := deliverChallenge(t, e, okBridge())
	view, err := e.Challenge(context.Background(), cid)
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	result, err := e.Verify(context.Background(), VerifyRequest{CID: cid, Pattern: testPattern, TextID: view.TextID})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if _, err := e.Disable(context.Background(), result.DisableTid, "+15550000000"); !errors.Is(err, ErrPhoneMismatch) {
		t.Fatalf("expected ErrPhoneMismatch, got %v", err)
	}

	outcome, err := e.Disable(context.Background(), result.DisableTid, testPhone)
	if err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if outcome.TranslationKey != KeySecureCodesDisabled {
		t.Fatalf("key = %q, want %q", outcome.TranslationKey, KeySecureCodesDisabled)
	}
	if len(bio.deleted) == 0 {
		t.Fatal("expected the biometric profile to be wiped")
	}

	userID := HashIdentity(testPhone, "unit-salt")
	if _, err := e.getUser(context.Background(), userID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("user record should be deleted, got %v", err)
	}
}
