package sms

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snsTypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type AWSSNSProvider struct {
	client *sns.Client
	region string
}

func NewAWSSNSProvider(region string) (*AWSSNSProvider, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSNSProvider{
		client: sns.NewFromConfig(cfg),
		region: region,
	}, nil
}

func (a *AWSSNSProvider) SendSMS(ctx context.Context, msg *Message) (*Receipt, error) {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(msg.To),
		Message:     aws.String(msg.Body),
		MessageAttributes: map[string]snsTypes.MessageAttributeValue{
			// Emergency notifications must not be throttled as
			// promotional traffic.
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String("Transactional"),
			},
		},
	}

	resp, err := a.client.Publish(ctx, input)
	if err != nil {
		return &Receipt{
			To:     msg.To,
			Status: "failed",
			Error:  err.Error(),
		}, err
	}

	return &Receipt{
		To:        msg.To,
		MessageID: *resp.MessageId,
		Status:    "sent",
	}, nil
}

func (a *AWSSNSProvider) SendBulk(ctx context.Context, msgs []*Message) []*Receipt {
	receipts := make([]*Receipt, len(msgs))

	for i, msg := range msgs {
		receipt, err := a.SendSMS(ctx, msg)
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
