package analytics

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/lead-router/internal/queue"
)

type staticGate struct{ enabled bool }

func (g staticGate) AnalyticsEnabled(ctx context.Context) bool { return g.enabled }

const assignedMsg = `{
  "detail-type": "lead.assigned",
  "detail": {"eventId":"e1","leadId":"L1","funnelId":"roofing","assignedOrgId":"ORG1","assignmentRuleId":"R1","assignedAt":"2026-08-30T12:00:00Z","zipCode":"33101"}
}`

const unassignedMsg = `{
  "detail-type": "lead.unassigned",
  "detail": {"eventId":"e2","leadId":"L2","funnelId":"roofing","reason":"all_rules_exhausted","evaluatedAt":"2026-08-30T12:05:00Z"}
}`

func setupExporter(t *testing.T, enabled bool) (*Exporter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewExporter(db, staticGate{enabled}), mock
}

func TestHandleBatchMergesBothEventTypes(t *testing.T) {
	e, mock := setupExporter(t, true)

	mock.ExpectExec("MERGE INTO LEAD_EVENTS").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("MERGE INTO LEAD_EVENTS").WillReturnResult(sqlmock.NewResult(0, 1))

	res := e.HandleBatch(context.Background(), []queue.Message{
		{ID: "m1", Body: assignedMsg},
		{ID: "m2", Body: unassignedMsg},
	})
	assert.Empty(t, res.FailedMessageIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleBatchRedeliveredEventMatchesExistingRow(t *testing.T) {
	e, mock := setupExporter(t, true)

	// MERGE matches, inserts nothing: still a success.
	mock.ExpectExec("MERGE INTO LEAD_EVENTS").WillReturnResult(sqlmock.NewResult(0, 0))

	res := e.HandleBatch(context.Background(), []queue.Message{{ID: "m1", Body: assignedMsg}})
	assert.Empty(t, res.FailedMessageIDs)
}

func TestHandleBatchFailsOnlyBrokenMessages(t *testing.T) {
	e, mock := setupExporter(t, true)

	mock.ExpectExec("MERGE INTO LEAD_EVENTS").WillReturnError(assert.AnError)
	mock.ExpectExec("MERGE INTO LEAD_EVENTS").WillReturnResult(sqlmock.NewResult(0, 1))

	res := e.HandleBatch(context.Background(), []queue.Message{
		{ID: "m1", Body: assignedMsg},
		{ID: "m2", Body: unassignedMsg},
	})
	assert.Equal(t, []string{"m1"}, res.FailedMessageIDs)
}

func TestHandleBatchDropsMalformed(t *testing.T) {
	e, _ := setupExporter(t, true)

	res := e.HandleBatch(context.Background(), []queue.Message{
		{ID: "m1", Body: `garbage`},
		{ID: "m2", Body: `{"detail-type":"lead.assigned","detail":{"leadId":"L1"}}`},
	})
	assert.Empty(t, res.FailedMessageIDs, "unfixable payloads are dropped, not retried")
}

func TestHandleBatchDisabledAcksEverything(t *testing.T) {
	e, _ := setupExporter(t, false)

	res := e.HandleBatch(context.Background(), []queue.Message{{ID: "m1", Body: assignedMsg}})
	assert.Empty(t, res.FailedMessageIDs)
}

func TestHandleBatchNoDatabaseFailsBatch(t *testing.T) {
	e := NewExporter(nil, staticGate{true})

	res := e.HandleBatch(context.Background(), []queue.Message{
		{ID: "m1", Body: assignedMsg},
		{ID: "m2", Body: unassignedMsg},
	})
	assert.ElementsMatch(t, []string{"m1", "m2"}, res.FailedMessageIDs)
}
