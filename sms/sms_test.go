package sms

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

func TestTwilioSendsForm(t *testing.T) {
	var gotPath, gotAuthUser, gotAuthPass string
	var gotForm map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuthUser, gotAuthPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{
			"To":   r.PostFormValue("To"),
			"From": r.PostFormValue("From"),
			"Body": r.PostFormValue("Body"),
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sid":"SM123","status":"queued"}`))
	}))
	defer srv.Close()

	gw := &Twilio{
		AccountSID: "AC000",
		APIKey:     "SK000",
		APISecret:  "secret",
		From:       "+15550009999",
		BaseURL:    srv.URL,
	}
	if err := gw.SendSMS(context.Background(), "+15551234567", "Get your secure code:\nhttps://x/a1b2c3"); err != nil {
		t.Fatalf("SendSMS: %v", err)
	}

	if gotPath != "/2010-04-01/Accounts/AC000/Messages.json" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuthUser != "SK000" || gotAuthPass != "secret" {
		t.Fatalf("basic auth = %q:%q", gotAuthUser, gotAuthPass)
	}
	if gotForm["To"] != "+15551234567" || gotForm["From"] != "+15550009999" {
		t.Fatalf("form = %v", gotForm)
	}
	if !strings.Contains(gotForm["Body"], "a1b2c3") {
		t.Fatalf("body = %q", gotForm["Body"])
	}
}

func TestTwilioRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	gw := &Twilio{AccountSID: "AC000", APIKey: "SK000", APISecret: "s", From: "+15550009999", BaseURL: srv.URL}
	err := gw.SendSMS(context.Background(), "bad", "body")
	if err == nil {
		t.Fatal("expected an error for a rejected message")
	}
	if !strings.Contains(err.Error(), "21211") {
		t.Fatalf("error should carry the vendor code: %v", err)
	}
}

func TestTwilioFailedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sid":"SM123","status":"failed","error_code":30003,"error_message":"Unreachable handset"}`))
	}))
	defer srv.Close()

	gw := &Twilio{AccountSID: "AC000", APIKey: "SK000", APISecret: "s", From: "+15550009999", BaseURL: srv.URL}
	if err := gw.SendSMS(context.Background(), "+15551234567", "body"); err == nil {
		t.Fatal("a failed delivery status should surface as an error")
	}
}

type mockSNSClient struct {
	publishFn func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *mockSNSClient) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.publishFn(ctx, params, optFns...)
}

func TestSNSPublish(t *testing.T) {
	var got *sns.PublishInput
	gw := &SNS{
		SenderID: "TYPESHIELD",
		Client: &mockSNSClient{
			publishFn: func(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
				got = params
				return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
			},
		},
	}

	if err := gw.SendSMS(context.Background(), "+15551234567", "Get your secure code"); err != nil {
		t.Fatalf("SendSMS: %v", err)
	}
	if aws.ToString(got.PhoneNumber) != "+15551234567" {
		t.Fatalf("phone = %q", aws.ToString(got.PhoneNumber))
	}
	smsType := got.MessageAttributes["AWS.SNS.SMS.SMSType"]
	if aws.ToString(smsType.StringValue) != "Transactional" {
		t.Fatalf("sms type = %q", aws.ToString(smsType.StringValue))
	}
	sender := got.MessageAttributes["AWS.SNS.SMS.SenderID"]
	if aws.ToString(sender.StringValue) != "TYPESHIELD" {
		t.Fatalf("sender id = %q", aws.ToString(sender.StringValue))
	}
}

func TestSNSMissingMessageID(t *testing.T) {
	gw := &SNS{
		Client: &mockSNSClient{
			publishFn: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
				return &sns.PublishOutput{}, nil
			},
		},
	}
	if err := gw.SendSMS(context.Background(), "+15551234567", "x"); err == nil {
		t.Fatal("a publish without a message id should be an error")
	}
}

func TestMaskPhone(t *testing.T) {
	logged := WithLogging(&SNS{Client: &mockSNSClient{
		publishFn: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
		},
	}}, zap.NewNop())
	if err := logged.SendSMS(context.Background(), "+15551234567", "x"); err != nil {
		t.Fatalf("SendSMS: %v", err)
	}

	if got := maskPhone("+15551234567"); got != "+15*******67" {
		t.Fatalf("maskPhone = %q", got)
	}
	if got := maskPhone("+1"); got != "***" {
		t.Fatalf("short maskPhone = %q", got)
	}
}
