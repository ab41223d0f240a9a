// Package channel holds the outbound notification channels. Each channel is
// a thin client wrapper; policy (who gets notified, which flags gate a send)
// lives in service/notification.
package channel

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/lead-router/internal/pkg/logger"
)

// Email is one rendered email ready to send.
type Email struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// SESAPI is the slice of the SES v2 client the channel needs.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailChannel sends notification emails via AWS SES.
type EmailChannel struct {
	client      SESAPI
	fromAddress string
	replyTo     string
}

// NewEmailChannel creates an SES-backed email channel.
func NewEmailChannel(client SESAPI, fromAddress, replyTo string) *EmailChannel {
	return &EmailChannel{client: client, fromAddress: fromAddress, replyTo: replyTo}
}

// Send delivers one email. The returned message id is logged, not persisted:
// the notification lock on the lead is the idempotency surface.
func (c *EmailChannel) Send(ctx context.Context, msg Email) error {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.fromAddress),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if msg.Text != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	if c.replyTo != "" {
		input.ReplyToAddresses = []string{c.replyTo}
	}

	out, err := c.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", logger.RedactEmail(msg.To), err)
	}

	logger.Debug("email sent",
		"recipient", msg.To, "message_id", aws.ToString(out.MessageId))
	return nil
}
