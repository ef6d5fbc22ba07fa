package sms

import (
	"fmt"

	"ridetrack/internal/config"
)

// NewProvider builds the configured SMS backend.
func NewProvider(cfg *config.SMSConfig) (Provider, error) {
	switch cfg.Provider {
	case "twilio":
		return NewTwilioProvider(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber), nil
	case "sns":
		return NewAWSSNSProvider(cfg.AWS.Region)
	default:
		return nil, fmt.Errorf("sms: unknown provider %q", cfg.Provider)
	}
}
