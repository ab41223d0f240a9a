// Package queue defines the transport-neutral batch contract shared by the
// Lambda adapters and the container poller. Handlers consume a batch of
// messages and report the subset that failed, so the queue redelivers only
// those ("partial batch acknowledgment").
package queue

import "context"

// Message is one inbound queue message, already stripped of transport
// envelope details the handlers do not care about.
type Message struct {
	// ID is the transport's message identifier (SQS MessageId). It is what
	// a handler puts in BatchResult.FailedMessageIDs to request redelivery.
	ID string
	// Body is the raw JSON payload.
	Body string
}

// BatchResult reports the messages of a batch that must be redelivered.
// An empty FailedMessageIDs means the whole batch is acknowledged.
type BatchResult struct {
	FailedMessageIDs []string
}

// Fail marks one message for redelivery.
func (r *BatchResult) Fail(id string) {
	r.FailedMessageIDs = append(r.FailedMessageIDs, id)
}

// FailAll marks every message in the batch for redelivery. Used when a
// shared precondition (missing configuration, dead dependency) makes every
// message unprocessable.
func FailAll(msgs []Message) BatchResult {
	var r BatchResult
	for _, m := range msgs {
		r.Fail(m.ID)
	}
	return r
}

// Handler processes one batch of messages.
type Handler interface {
	HandleBatch(ctx context.Context, msgs []Message) BatchResult
}
