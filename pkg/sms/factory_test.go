package sms

import (
	"testing"

	"ridetrack/internal/config"
)

func TestNewProviderTwilio(t *testing.T) {
	prov, err := NewProvider(&config.SMSConfig{
		Provider: "twilio",
		Twilio: &config.TwilioConfig{
			AccountSID: "AC123",
			AuthToken:  "secret",
			FromNumber: "+15550000000",
		},
	})
	if err != nil {
		t.Fatalf("twilio provider failed: %v", err)
	}
	if _, ok := prov.(*TwilioProvider); !ok {
		t.Fatalf("expected TwilioProvider, got %T", prov)
	}
}

func TestNewProviderUnknown(t *testing.T) {
	if _, err := NewProvider(&config.SMSConfig{Provider: "pigeon"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
