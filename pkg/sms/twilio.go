package sms

import (
	"context"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type TwilioProvider struct {
	client     *twilio.RestClient
	fromNumber string
}

func NewTwilioProvider(accountSID, authToken, fromNumber string) *TwilioProvider {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})

	return &TwilioProvider{
		client:     client,
		fromNumber: fromNumber,
	}
}

func (t *TwilioProvider) SendSMS(ctx context.Context, msg *Message) (*Receipt, error) {
	params := &api.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(t.getFromNumber(msg.From))
	params.SetBody(msg.Body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return &Receipt{
			To:     msg.To,
			Status: "failed",
			Error:  err.Error(),
		}, err
	}

	return &Receipt{
		To:        msg.To,
		MessageID: *resp.Sid,
		Status:    string(*resp.Status),
	}, nil
}

func (t *TwilioProvider) SendBulk(ctx context.Context, msgs []*Message) []*Receipt {
	receipts := make([]*Receipt, len(msgs))

	for i, msg := range msgs {
		receipt, err := t.SendSMS(ctx, msg)
		if err != nil {
			receipt = &Receipt{
				To:     msg.To,
				Status: "failed",
				Error:  err.Error(),
			}
		}
		receipts[i] = receipt
	}

	return receipts
}

func (t *TwilioProvider) getFromNumber(from string) string {
	if from != "" {
		return from
	}
	return t.fromNumber
}
