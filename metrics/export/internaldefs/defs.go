package internaldefs

import (
	typeshield "github.com/typeshield/typeshield"
)

// CounterDef binds one engine counter to its exported metric name.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   typeshield.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in export order.
var CounterDefs = []CounterDef{
	{ID: typeshield.MetricBridgeRequest, Name: "typeshield_bridge_request_total", Help: "Accepted inbound webhook deliveries."},
	{ID: typeshield.MetricBridgeRejected, Name: "typeshield_bridge_rejected_total", Help: "Webhook requests failing authorization or validation."},
	{ID: typeshield.MetricBridgeTest, Name: "typeshield_bridge_test_total", Help: "Short-circuited vendor test messages."},
	{ID: typeshield.MetricFallbackSMS, Name: "typeshield_fallback_sms_total", Help: "Deliveries that bypassed the biometric gate."},
	{ID: typeshield.MetricSMSSent, Name: "typeshield_sms_sent_total", Help: "Successful gateway sends."},
	{ID: typeshield.MetricSMSFailed, Name: "typeshield_sms_failed_total", Help: "Gateway send failures."},
	{ID: typeshield.MetricChallengeRendered, Name: "typeshield_challenge_rendered_total", Help: "Successful challenge page renders."},
	{ID: typeshield.MetricVerifySuccess, Name: "typeshield_verify_success_total", Help: "Successful verifications and enrollments."},
	{ID: typeshield.MetricVerifyFailure, Name: "typeshield_verify_failure_total", Help: "Rejected verifications."},
	{ID: typeshield.MetricPostureRetry, Name: "typeshield_posture_retry_total", Help: "Posture failures answered with a retry."},
	{ID: typeshield.MetricGlobalLockout, Name: "typeshield_global_lockout_total", Help: "Global lockouts triggered."},
	{ID: typeshield.MetricChallengeLockout, Name: "typeshield_challenge_lockout_total", Help: "Per-challenge lockouts triggered."},
	{ID: typeshield.MetricResetScheduled, Name: "typeshield_reset_scheduled_total", Help: "Scheduled resets armed."},
	{ID: typeshield.MetricResetExecuted, Name: "typeshield_reset_executed_total", Help: "Resets carried out, lazy or immediate."},
	{ID: typeshield.MetricAccountDisabled, Name: "typeshield_account_disabled_total", Help: "Irreversible account disables."},
}
