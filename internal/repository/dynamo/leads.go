// Package dynamo is the DynamoDB persistence layer for leads: reads, the
// conditional assignment write, unassigned-lead records, and the notification
// locks. Every mutual-exclusion decision in the pipeline bottoms out in a
// conditional expression here.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/ignite/lead-router/internal/domain"
)

// DynamoAPI is the slice of the DynamoDB client the repository needs.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// LeadRepository stores leads and their derived records in one table.
// Key layout: leads under PK=FUNNEL#<funnelId> SK=LEAD#<leadId>, unassigned
// records under PK=UNASSIGNED#<funnelId> SK=LEAD#<leadId>.
type LeadRepository struct {
	client    DynamoAPI
	tableName string
}

// NewLeadRepository creates a repository on the given table.
func NewLeadRepository(client DynamoAPI, tableName string) *LeadRepository {
	return &LeadRepository{client: client, tableName: tableName}
}

// Assignment carries the fields of a winning assignment write.
type Assignment struct {
	OrgID  string
	UserID string
	RuleID string
	At     time.Time
}

type leadItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	domain.Lead
}

type unassignedItem struct {
	PK string `dynamodbav:"PK"`
	SK string `dynamodbav:"SK"`
	domain.UnassignedLeadRecord
}

func leadKey(funnelID, leadID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "FUNNEL#" + funnelID},
		"SK": &types.AttributeValueMemberS{Value: "LEAD#" + leadID},
	}
}

// GetLead loads one lead. The read is strongly consistent: the lead may have
// been created milliseconds before its event arrives, and an invisible item
// would be misread as already-resolved.
func (r *LeadRepository) GetLead(ctx context.Context, funnelID, leadID string) (*domain.Lead, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            leadKey(funnelID, leadID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting lead %s/%s: %w", funnelID, leadID, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrLeadNotFound
	}

	var item leadItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshaling lead %s/%s: %w", funnelID, leadID, err)
	}
	return &item.Lead, nil
}

// CommitAssignment performs the idempotent assignment write: it succeeds only
// while the lead is still unassigned and in the "new" state. A lost condition
// returns ErrAlreadyAssigned, which callers treat as success.
func (r *LeadRepository) CommitAssignment(ctx context.Context, funnelID, leadID string, a Assignment) error {
	at := a.At.UTC().Format(time.RFC3339Nano)

	update := "SET #status = :assigned, assignedOrgId = :org, assignmentRuleId = :rule, assignedAt = :at, updatedAt = :at"
	values := map[string]types.AttributeValue{
		":assigned": &types.AttributeValueMemberS{Value: string(domain.LeadStatusAssigned)},
		":new":      &types.AttributeValueMemberS{Value: string(domain.LeadNew)},
		":org":      &types.AttributeValueMemberS{Value: a.OrgID},
		":rule":     &types.AttributeValueMemberS{Value: a.RuleID},
		":at":       &types.AttributeValueMemberS{Value: at},
	}
	if a.UserID != "" {
		update += ", assignedUserId = :user"
		values[":user"] = &types.AttributeValueMemberS{Value: a.UserID}
	}

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 leadKey(funnelID, leadID),
		UpdateExpression:    aws.String(update),
		ConditionExpression: aws.String("attribute_exists(PK) AND #status = :new AND attribute_not_exists(assignedOrgId)"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		if isConditionFailure(err) {
			return ErrAlreadyAssigned
		}
		return fmt.Errorf("committing assignment for lead %s/%s: %w", funnelID, leadID, err)
	}
	return nil
}

// MarkUnassigned flips a still-new lead to the terminal unassigned state.
// A lost condition returns ErrAlreadyResolved.
func (r *LeadRepository) MarkUnassigned(ctx context.Context, funnelID, leadID string, at time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 leadKey(funnelID, leadID),
		UpdateExpression:    aws.String("SET #status = :unassigned, updatedAt = :at"),
		ConditionExpression: aws.String("attribute_exists(PK) AND #status = :new"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":unassigned": &types.AttributeValueMemberS{Value: string(domain.LeadStatusUnassigned)},
			":new":        &types.AttributeValueMemberS{Value: string(domain.LeadNew)},
			":at":         &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return ErrAlreadyResolved
		}
		return fmt.Errorf("marking lead %s/%s unassigned: %w", funnelID, leadID, err)
	}
	return nil
}

// PutUnassignedRecord writes the unassigned fact under a deterministic key,
// so a redelivered evaluation overwrites instead of duplicating.
func (r *LeadRepository) PutUnassignedRecord(ctx context.Context, rec domain.UnassignedLeadRecord) error {
	item := unassignedItem{
		PK:                   "UNASSIGNED#" + rec.FunnelID,
		SK:                   "LEAD#" + rec.LeadID,
		UnassignedLeadRecord: rec,
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshaling unassigned record: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("putting unassigned record for lead %s/%s: %w", rec.FunnelID, rec.LeadID, err)
	}
	return nil
}

// ListUnassignedRecords returns recent unassigned records for one funnel,
// newest first.
func (r *LeadRepository) ListUnassignedRecords(ctx context.Context, funnelID string, limit int32) ([]domain.UnassignedLeadRecord, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "UNASSIGNED#" + funnelID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("querying unassigned records for funnel %s: %w", funnelID, err)
	}

	var items []unassignedItem
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
		return nil, fmt.Errorf("unmarshaling unassigned records: %w", err)
	}

	records := make([]domain.UnassignedLeadRecord, 0, len(items))
	for _, it := range items {
		records = append(records, it.UnassignedLeadRecord)
	}
	return records, nil
}

// AcquireNotificationLock claims one notification fan-out for the lead by
// setting the scope's marker only if it is absent. Returns false when another
// invocation holds the lock; the caller must then not dispatch.
func (r *LeadRepository) AcquireNotificationLock(ctx context.Context, funnelID, leadID string, scope domain.NotificationScope, at time.Time) (bool, error) {
	marker := "notifiedInternalAt"
	if scope == domain.ScopeOrg {
		marker = "notifiedOrgAt"
	}

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 leadKey(funnelID, leadID),
		UpdateExpression:    aws.String("SET #marker = :at, updatedAt = :at"),
		ConditionExpression: aws.String("attribute_exists(PK) AND attribute_not_exists(#marker)"),
		ExpressionAttributeNames: map[string]string{
			"#marker": marker,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":at": &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("acquiring %s notification lock for lead %s/%s: %w", scope, funnelID, leadID, err)
	}
	return true, nil
}

func isConditionFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
