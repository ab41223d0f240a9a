// Package handler contains the queue batch handlers: the assignment consumer
// for lead.created and the notification consumer for lead.assigned and
// lead.unassigned. Handlers implement queue.Handler and report per-message
// failures for partial batch redelivery.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ignite/lead-router/internal/domain"
)

// errMalformed marks payloads that retrying cannot fix. Handlers log and
// drop these instead of failing the message.
var errMalformed = errors.New("malformed message")

// eventBridgeEnvelope is the shape SQS delivers when the queue is fed by an
// EventBridge rule.
type eventBridgeEnvelope struct {
	DetailType string          `json:"detail-type"`
	Source     string          `json:"source"`
	Detail     json.RawMessage `json:"detail"`
}

// barePayload is the legacy shape the intake emitter sends straight to the
// queue: the event fields at the top level plus a type discriminator.
type barePayload struct {
	Type string `json:"type"`
}

// decodeEvent unwraps a message body into its event type and detail JSON.
// It accepts both the EventBridge envelope and the bare legacy shape.
func decodeEvent(body string) (domain.EventType, json.RawMessage, error) {
	raw := []byte(body)

	var env eventBridgeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if env.DetailType != "" && len(env.Detail) > 0 {
		return domain.EventType(env.DetailType), env.Detail, nil
	}

	var bare barePayload
	if err := json.Unmarshal(raw, &bare); err != nil {
		return "", nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if bare.Type == "" {
		return "", nil, fmt.Errorf("%w: no detail-type or type field", errMalformed)
	}
	return domain.EventType(bare.Type), raw, nil
}
