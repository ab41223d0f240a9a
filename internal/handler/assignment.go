package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ignite/lead-router/internal/domain"
	"github.com/ignite/lead-router/internal/metrics"
	"github.com/ignite/lead-router/internal/pkg/logger"
	"github.com/ignite/lead-router/internal/queue"
	"github.com/ignite/lead-router/internal/service/assignment"
)

// AssignmentFlagProvider gates the assignment handler.
type AssignmentFlagProvider interface {
	AssignmentEnabled(ctx context.Context) bool
}

// Orchestrator is the assignment service surface the handler drives.
type Orchestrator interface {
	Process(ctx context.Context, funnelID, leadID string) (assignment.Result, error)
}

// AssignmentHandler consumes lead.created batches.
type AssignmentHandler struct {
	svc        Orchestrator
	flags      AssignmentFlagProvider
	configured bool
}

// NewAssignmentHandler creates the handler. configured=false means required
// configuration (the lead table) is missing; every batch then fails whole so
// the queue retries once configuration is corrected.
func NewAssignmentHandler(svc Orchestrator, flags AssignmentFlagProvider, configured bool) *AssignmentHandler {
	return &AssignmentHandler{svc: svc, flags: flags, configured: configured}
}

// HandleBatch processes one lead.created batch with per-message isolation.
func (h *AssignmentHandler) HandleBatch(ctx context.Context, msgs []queue.Message) queue.BatchResult {
	if !h.configured {
		logger.Error("assignment handler missing required configuration, failing batch",
			"messages", fmt.Sprintf("%d", len(msgs)))
		return queue.FailAll(msgs)
	}
	if !h.flags.AssignmentEnabled(ctx) {
		// Deliberate no-op: report success so a disabled service does not
		// back the queue up.
		logger.Info("assignment service disabled, acknowledging batch",
			"messages", fmt.Sprintf("%d", len(msgs)))
		return queue.BatchResult{}
	}

	var result queue.BatchResult
	for _, msg := range msgs {
		if err := h.handleMessage(ctx, msg); err != nil {
			metrics.BatchMessages.WithLabelValues("assignment", "failed").Inc()
			logger.Error("assignment message failed",
				"message_id", msg.ID, "error", err.Error())
			result.Fail(msg.ID)
		}
	}
	return result
}

func (h *AssignmentHandler) handleMessage(ctx context.Context, msg queue.Message) error {
	eventType, detail, err := decodeEvent(msg.Body)
	if err != nil {
		h.drop(msg.ID, err)
		return nil
	}
	if eventType != domain.EventLeadCreated {
		h.drop(msg.ID, fmt.Errorf("unexpected event type %q", eventType))
		return nil
	}

	var payload domain.LeadCreated
	if err := json.Unmarshal(detail, &payload); err != nil {
		h.drop(msg.ID, fmt.Errorf("%w: %v", errMalformed, err))
		return nil
	}
	if err := payload.Validate(); err != nil {
		h.drop(msg.ID, fmt.Errorf("%w: %v", errMalformed, err))
		return nil
	}

	res, err := h.svc.Process(ctx, payload.FunnelID, payload.LeadID)
	if errors.Is(err, assignment.ErrLeadNotFound) {
		// The event references a lead that never landed in the store.
		// Retrying cannot create it; record and move on.
		h.drop(msg.ID, err)
		return nil
	}
	if err != nil {
		return err
	}

	metrics.BatchMessages.WithLabelValues("assignment", "ok").Inc()
	logger.Debug("assignment message processed",
		"message_id", msg.ID, "lead_id", payload.LeadID, "outcome", string(res.Outcome))
	return nil
}

func (h *AssignmentHandler) drop(messageID string, err error) {
	metrics.BatchMessages.WithLabelValues("assignment", "dropped").Inc()
	logger.Warn("dropping assignment message", "message_id", messageID, "error", err.Error())
}
