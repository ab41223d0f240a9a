// Package analytics appends lead routing facts to the Snowflake warehouse.
// The exporter consumes its own queue of lead.assigned / lead.unassigned
// events and MERGEs on the event id, so redelivered events land exactly one
// row.
package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/snowflakedb/gosnowflake" // Snowflake driver

	"github.com/ignite/lead-router/internal/domain"
	"github.com/ignite/lead-router/internal/metrics"
	"github.com/ignite/lead-router/internal/pkg/logger"
	"github.com/ignite/lead-router/internal/queue"
)

// FlagProvider gates the export.
type FlagProvider interface {
	AnalyticsEnabled(ctx context.Context) bool
}

// Exporter writes lead event facts to the LEAD_EVENTS table.
type Exporter struct {
	db    *sql.DB
	flags FlagProvider
}

// NewExporter creates an exporter on an open Snowflake connection. A nil db
// means the export is unconfigured; batches then fail whole for redelivery.
func NewExporter(db *sql.DB, flags FlagProvider) *Exporter {
	return &Exporter{db: db, flags: flags}
}

// Open connects to Snowflake with the warehouse DSN form
// user:password@account/database/schema?warehouse=xxx.
func Open(user, password, account, database, schema, warehouse string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s", user, password, account, database, schema)
	if warehouse != "" {
		dsn += "?warehouse=" + warehouse
	}

	db, err := sql.Open("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening snowflake connection: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// HandleBatch upserts one batch of lead events.
func (e *Exporter) HandleBatch(ctx context.Context, msgs []queue.Message) queue.BatchResult {
	if e.db == nil {
		logger.Error("analytics exporter missing snowflake configuration, failing batch",
			"messages", fmt.Sprintf("%d", len(msgs)))
		return queue.FailAll(msgs)
	}
	if !e.flags.AnalyticsEnabled(ctx) {
		logger.Info("analytics export disabled, acknowledging batch",
			"messages", fmt.Sprintf("%d", len(msgs)))
		return queue.BatchResult{}
	}

	var result queue.BatchResult
	for _, msg := range msgs {
		if err := e.handleMessage(ctx, msg); err != nil {
			metrics.BatchMessages.WithLabelValues("analytics", "failed").Inc()
			logger.Error("analytics message failed", "message_id", msg.ID, "error", err.Error())
			result.Fail(msg.ID)
		}
	}
	return result
}

// fact is the flattened warehouse row for either event type.
type fact struct {
	EventID    string
	EventType  string
	LeadID     string
	FunnelID   string
	OrgID      string
	UserID     string
	RuleID     string
	ZipCode    string
	Reason     string
	OccurredAt time.Time
}

func (e *Exporter) handleMessage(ctx context.Context, msg queue.Message) error {
	f, err := decodeFact(msg.Body)
	if err != nil {
		metrics.BatchMessages.WithLabelValues("analytics", "dropped").Inc()
		logger.Warn("dropping analytics message", "message_id", msg.ID, "error", err.Error())
		return nil
	}

	if err := e.upsert(ctx, f); err != nil {
		return err
	}
	metrics.BatchMessages.WithLabelValues("analytics", "ok").Inc()
	return nil
}

// upsert MERGEs one fact on EVENT_ID. Redelivery after a successful MERGE
// matches the existing row and inserts nothing.
func (e *Exporter) upsert(ctx context.Context, f *fact) error {
	_, err := e.db.ExecContext(ctx, `
		MERGE INTO LEAD_EVENTS t
		USING (SELECT ? AS EVENT_ID) s
		ON t.EVENT_ID = s.EVENT_ID
		WHEN NOT MATCHED THEN INSERT
			(EVENT_ID, EVENT_TYPE, LEAD_ID, FUNNEL_ID, ORG_ID, USER_ID,
			 RULE_ID, ZIP_CODE, REASON, OCCURRED_AT, INGESTED_AT)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP())
	`,
		f.EventID,
		f.EventID, f.EventType, f.LeadID, f.FunnelID, f.OrgID, f.UserID,
		f.RuleID, f.ZipCode, f.Reason, f.OccurredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("merging event %s: %w", f.EventID, err)
	}
	return nil
}

func decodeFact(body string) (*fact, error) {
	var env struct {
		DetailType string          `json:"detail-type"`
		Detail     json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, fmt.Errorf("malformed analytics message: %w", err)
	}
	if env.DetailType == "" || len(env.Detail) == 0 {
		return nil, fmt.Errorf("malformed analytics message: no detail-type")
	}

	switch domain.EventType(env.DetailType) {
	case domain.EventLeadAssigned:
		var p domain.LeadAssigned
		if err := json.Unmarshal(env.Detail, &p); err != nil {
			return nil, fmt.Errorf("malformed lead.assigned detail: %w", err)
		}
		if p.EventID == "" || p.Validate() != nil {
			return nil, fmt.Errorf("lead.assigned detail missing required fields")
		}
		return &fact{
			EventID:    p.EventID,
			EventType:  string(domain.EventLeadAssigned),
			LeadID:     p.LeadID,
			FunnelID:   p.FunnelID,
			OrgID:      p.AssignedOrgID,
			UserID:     p.AssignedUserID,
			RuleID:     p.AssignmentRuleID,
			ZipCode:    p.ZipCode,
			OccurredAt: p.AssignedAt,
		}, nil

	case domain.EventLeadUnassigned:
		var p domain.LeadUnassigned
		if err := json.Unmarshal(env.Detail, &p); err != nil {
			return nil, fmt.Errorf("malformed lead.unassigned detail: %w", err)
		}
		if p.EventID == "" || p.Validate() != nil {
			return nil, fmt.Errorf("lead.unassigned detail missing required fields")
		}
		return &fact{
			EventID:    p.EventID,
			EventType:  string(domain.EventLeadUnassigned),
			LeadID:     p.LeadID,
			FunnelID:   p.FunnelID,
			ZipCode:    p.ZipCode,
			Reason:     string(p.Reason),
			OccurredAt: p.EvaluatedAt,
		}, nil
	}

	return nil, fmt.Errorf("unexpected event type %q", env.DetailType)
}
