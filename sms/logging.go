package sms

import (
	"context"

	"go.uber.org/zap"

	"github.com/typeshield/typeshield"
)

// WithLogging wraps a gateway with structured send logging. Message
// bodies are not logged; they carry OTPs.
func WithLogging(gateway typeshield.SMSGateway, log *zap.Logger) typeshield.SMSGateway {
	if log == nil {
		return gateway
	}
	return &loggedGateway{gateway: gateway, log: log}
}

type loggedGateway struct {
	gateway typeshield.SMSGateway
	log     *zap.Logger
}

func (g *loggedGateway) SendSMS(ctx context.Context, to, body string) error {
	err := g.gateway.SendSMS(ctx, to, body)
	if err != nil {
		g.log.Error("sms send failed", zap.String("to", maskPhone(to)), zap.Error(err))
		return err
	}
	g.log.Info("sms sent", zap.String("to", maskPhone(to)), zap.Int("bytes", len(body)))
	return nil
}

// maskPhone keeps the country prefix and last two digits.
func maskPhone(phone string) string {
	if len(phone) < 6 {
		return "***"
	}
	masked := []byte(phone)
	for i := 3; i < len(masked)-2; i++ {
		masked[i] = '*'
	}
	return string(masked)
}
