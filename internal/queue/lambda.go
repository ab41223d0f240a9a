package queue

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
)

// SQSLambdaHandler adapts a batch Handler to the Lambda SQS event shape.
// Failed message IDs become batch item failures, so SQS redelivers only
// those records. The returned function never errors: an error return would
// redeliver the whole batch, including messages that already succeeded.
func SQSLambdaHandler(h Handler) func(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	return func(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
		msgs := make([]Message, 0, len(ev.Records))
		for _, r := range ev.Records {
			msgs = append(msgs, Message{ID: r.MessageId, Body: r.Body})
		}

		result := h.HandleBatch(ctx, msgs)

		resp := events.SQSEventResponse{}
		for _, id := range result.FailedMessageIDs {
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: id})
		}
		return resp, nil
	}
}
