package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ignite/lead-router/internal/domain"
	"github.com/ignite/lead-router/internal/metrics"
	"github.com/ignite/lead-router/internal/pkg/logger"
	"github.com/ignite/lead-router/internal/queue"
)

// NotificationFlagProvider gates the notification handler.
type NotificationFlagProvider interface {
	NotificationEnabled(ctx context.Context) bool
}

// Dispatcher is the notification service surface the handler drives.
type Dispatcher interface {
	DispatchAssigned(ctx context.Context, p domain.LeadAssigned) error
	DispatchUnassigned(ctx context.Context, p domain.LeadUnassigned) error
}

// NotificationHandler consumes lead.assigned and lead.unassigned batches.
type NotificationHandler struct {
	svc        Dispatcher
	flags      NotificationFlagProvider
	configured bool
}

// NewNotificationHandler creates the handler. See NewAssignmentHandler for
// the configured flag's semantics.
func NewNotificationHandler(svc Dispatcher, flags NotificationFlagProvider, configured bool) *NotificationHandler {
	return &NotificationHandler{svc: svc, flags: flags, configured: configured}
}

// HandleBatch processes one notification batch with per-message isolation.
func (h *NotificationHandler) HandleBatch(ctx context.Context, msgs []queue.Message) queue.BatchResult {
	if !h.configured {
		logger.Error("notification handler missing required configuration, failing batch",
			"messages", fmt.Sprintf("%d", len(msgs)))
		return queue.FailAll(msgs)
	}
	if !h.flags.NotificationEnabled(ctx) {
		logger.Info("notification service disabled, acknowledging batch",
			"messages", fmt.Sprintf("%d", len(msgs)))
		return queue.BatchResult{}
	}

	var result queue.BatchResult
	for _, msg := range msgs {
		if err := h.handleMessage(ctx, msg); err != nil {
			metrics.BatchMessages.WithLabelValues("notification", "failed").Inc()
			logger.Error("notification message failed",
				"message_id", msg.ID, "error", err.Error())
			result.Fail(msg.ID)
		}
	}
	return result
}

func (h *NotificationHandler) handleMessage(ctx context.Context, msg queue.Message) error {
	eventType, detail, err := decodeEvent(msg.Body)
	if err != nil {
		h.drop(msg.ID, err)
		return nil
	}

	switch eventType {
	case domain.EventLeadAssigned:
		var payload domain.LeadAssigned
		if err := json.Unmarshal(detail, &payload); err != nil {
			h.drop(msg.ID, fmt.Errorf("%w: %v", errMalformed, err))
			return nil
		}
		if err := payload.Validate(); err != nil {
			h.drop(msg.ID, fmt.Errorf("%w: %v", errMalformed, err))
			return nil
		}
		if err := h.svc.DispatchAssigned(ctx, payload); err != nil {
			return err
		}

	case domain.EventLeadUnassigned:
		var payload domain.LeadUnassigned
		if err := json.Unmarshal(detail, &payload); err != nil {
			h.drop(msg.ID, fmt.Errorf("%w: %v", errMalformed, err))
			return nil
		}
		if err := payload.Validate(); err != nil {
			h.drop(msg.ID, fmt.Errorf("%w: %v", errMalformed, err))
			return nil
		}
		if err := h.svc.DispatchUnassigned(ctx, payload); err != nil {
			return err
		}

	default:
		h.drop(msg.ID, fmt.Errorf("unexpected event type %q", eventType))
		return nil
	}

	metrics.BatchMessages.WithLabelValues("notification", "ok").Inc()
	return nil
}

func (h *NotificationHandler) drop(messageID string, err error) {
	metrics.BatchMessages.WithLabelValues("notification", "dropped").Inc()
	logger.Warn("dropping notification message", "message_id", messageID, "error", err.Error())
}
