package sms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSClient is the slice of the SNS API the gateway calls.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNS delivers through Amazon SNS direct-to-phone publishing. Messages
// are marked transactional so carriers prioritize them over marketing
// traffic.
type SNS struct {
	Client SNSClient
	// SenderID is the alphanumeric sender shown in supported regions.
	// Optional.
	SenderID string
}

// SendSMS publishes one message to a phone number.
func (s *SNS) SendSMS(ctx context.Context, to, body string) error {
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if s.SenderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.SenderID),
		}
	}

	out, err := s.Client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(to),
		Message:           aws.String(body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sns: publish: %w", err)
	}
	if out.MessageId == nil || *out.MessageId == "" {
		return fmt.Errorf("sns: publish accepted without a message id")
	}
	return nil
}
