package typeshield

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/typeshield/typeshield/store"
)

// HandleBridgeRequest processes one inbound IAM webhook: it authorizes
// the caller, intercepts the OTP out of the vendor's message, issues a
// challenge token and delivers the one-time link by SMS. The OTP itself
// stays escrowed behind the token until the typing challenge passes.
//
// When the biometric provider is unreachable the flow fails open: the
// vendor's original message is forwarded unmodified so the end user is
// never locked out of their OTP by an outage on our side.
func (e *Engine) HandleBridgeRequest(ctx context.Context, bridge Bridge, r *http.Request) (BridgeOutcome, error) {
	if e == nil || e.db == nil {
		return BridgeOutcome{}, ErrEngineNotReady
	}
	e.metricInc(MetricBridgeRequest)

	if !bridge.Enabled() || !bridge.IsAuthorized(r) {
		e.metricInc(MetricBridgeRejected)
		e.emit(ctx, AuditEvent{Action: "bridgeRequest", BridgeID: bridge.ID(), Error: ErrUnauthorized.Error()})
		return BridgeOutcome{}, ErrUnauthorized
	}

	message := bridge.GetOtpMessage(r)
	if bridge.IsTest(message) {
		e.metricInc(MetricBridgeTest)
		return BridgeOutcome{IsTest: true}, nil
	}

	phone := SanitizePhone(bridge.GetPhoneNumber(r))
	if !ValidatePhone(phone) {
		e.metricInc(MetricBridgeRejected)
		return BridgeOutcome{}, ErrInvalidPhone
	}

	otp := bridge.ExtractOtpFromMessage(message)
	if otp == "" {
		e.metricInc(MetricBridgeRejected)
		return BridgeOutcome{}, ErrNoOTP
	}

	userID := HashIdentity(phone, e.config.Service.HashSalt)
	user, err := e.getOrCreateUser(ctx, userID)
	if err != nil {
		e.auditError(ctx, "bridgeRequest", userID, err)
		return BridgeOutcome{}, err
	}

	profile, err := e.biometric.CheckProfile(ctx, userID, user.TextID)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return e.fallbackDelivery(ctx, bridge, userID, phone, message, err)
		}
		e.auditError(ctx, "bridgeRequest", userID, err)
		return BridgeOutcome{}, err
	}

	enroll := profile.SampleCount < 1
	if enroll != user.Enroll {
		if _, err := e.updateUser(ctx, userID, store.Document{"enroll": enroll}); err != nil {
			e.auditError(ctx, "bridgeRequest", userID, err)
			return BridgeOutcome{}, err
		}
	}

	resetting := false
	if due, ok := e.pendingResetTime(ctx, userID); ok && !due.After(time.Now()) {
		resetting = true
	}

	cid, err := e.createChallengeToken(ctx, userID, bridge.ID(), otp, message)
	if err != nil {
		e.auditError(ctx, "bridgeRequest", userID, err)
		return BridgeOutcome{}, err
	}

	link := e.challengeLink(cid)
	body := challengeSMSBody(otp, link, enroll || resetting)
	if err := e.sms.SendSMS(ctx, phone, body); err != nil {
		e.metricInc(MetricSMSFailed)
		e.emit(ctx, AuditEvent{Action: "smsDelivery", UserID: userID, CID: cid, BridgeID: bridge.ID(), Error: err.Error()})
		return BridgeOutcome{}, fmt.Errorf("%w: %v", ErrSMSDeliveryFailed, err)
	}
	e.metricInc(MetricSMSSent)

	e.emit(ctx, AuditEvent{Action: "bridgeRequest", UserID: userID, CID: cid, BridgeID: bridge.ID(), Success: true})
	return BridgeOutcome{CID: cid}, nil
}

// fallbackDelivery forwards the vendor's original SMS untouched when the
// biometric provider is down.
func (e *Engine) fallbackDelivery(ctx context.Context, bridge Bridge, userID, phone, message string, cause error) (BridgeOutcome, error) {
	e.metricInc(MetricFallbackSMS)
	if err := e.sms.SendSMS(ctx, phone, message); err != nil {
		e.metricInc(MetricSMSFailed)
		e.auditError(ctx, "fallbackDelivery", userID, err)
		return BridgeOutcome{}, fmt.Errorf("%w: %v", ErrSMSDeliveryFailed, err)
	}
	e.metricInc(MetricSMSSent)
	e.emit(ctx, AuditEvent{
		Action:   "fallbackDelivery",
		UserID:   userID,
		BridgeID: bridge.ID(),
		Success:  true,
		Error:    cause.Error(),
	})
	return BridgeOutcome{Fallback: true}, nil
}

func (e *Engine) challengeLink(cid string) string {
	return e.config.Service.BaseURL + "/" + cid
}

// challengeSMSBody picks the SMS copy. Enrolling users (and users whose
// scheduled reset has come due) get their code up front together with an
// invitation to enroll; enrolled users get the link alone, with the code
// held behind the challenge.
func challengeSMSBody(otp, link string, revealOTP bool) string {
	if revealOTP {
		return fmt.Sprintf("Your code is %s.\nTurn on secure codes: %s", otp, link)
	}
	return fmt.Sprintf("Get your secure code:\n%s", link)
}
