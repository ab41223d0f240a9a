package channel

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/ignite/lead-router/internal/pkg/logger"
)

// SNSAPI is the slice of the SNS client the channel needs.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSChannel sends notification texts via SNS direct publish.
type SMSChannel struct {
	client   SNSAPI
	senderID string
}

// NewSMSChannel creates an SNS-backed SMS channel. senderID is optional and
// ignored by carriers that do not support it.
func NewSMSChannel(client SNSAPI, senderID string) *SMSChannel {
	return &SMSChannel{client: client, senderID: senderID}
}

// Send publishes one SMS to a phone number in E.164 form.
func (c *SMSChannel) Send(ctx context.Context, phone, message string) error {
	attrs := map[string]types.MessageAttributeValue{
		// Transactional routing: lead alerts are time-sensitive.
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if c.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(c.senderID),
		}
	}

	out, err := c.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(message),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sns publish to %s: %w", logger.RedactPhone(phone), err)
	}

	logger.Debug("sms sent",
		"phone", phone, "message_id", aws.ToString(out.MessageId))
	return nil
}
