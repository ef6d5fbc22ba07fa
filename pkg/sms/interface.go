package sms

import "context"

// Provider delivers emergency notifications to trusted contacts.
// Delivery is best effort; a failed send never blocks the alert itself.
type Provider interface {
	SendSMS(ctx context.Context, msg *Message) (*Receipt, error)
	SendBulk(ctx context.Context, msgs []*Message) []*Receipt
}

type Message struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

type Receipt struct {
	To        string `json:"to"`
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}
