package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/lead-router/internal/domain"
)

// Source fetches the full rule set from a configuration store.
type Source interface {
	Fetch(ctx context.Context) ([]domain.AssignmentRule, error)
}

// ObjectGetter is the slice of the S3 API the flat-file source needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// s3Rule is the wire shape of the flat config source. It keeps the historical
// camelCase field names; Fetch normalizes into domain.AssignmentRule so the
// rest of the pipeline never sees this struct.
type s3Rule struct {
	RuleID      string   `json:"ruleId"`
	FunnelID    string   `json:"funnelId"`
	TargetType  string   `json:"targetType"`
	TargetID    string   `json:"targetId"`
	OrgID       string   `json:"orgId"`
	ZipPatterns []string `json:"zipPatterns"`
	Priority    int      `json:"priority"`
	DailyCap    *int     `json:"dailyCap"`
	MonthlyCap  *int     `json:"monthlyCap"`
	Active      bool     `json:"active"`
}

// S3Source reads a JSON rule array from an S3 object.
type S3Source struct {
	client ObjectGetter
	bucket string
	key    string
}

// NewS3Source creates a rule source backed by s3://bucket/key.
func NewS3Source(client ObjectGetter, bucket, key string) *S3Source {
	return &S3Source{client: client, bucket: bucket, key: key}
}

// Fetch downloads, parses, and normalizes the rule document.
func (s *S3Source) Fetch(ctx context.Context) ([]domain.AssignmentRule, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching rules from s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading rules object: %w", err)
	}

	var wire []s3Rule
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("parsing rules JSON: %w", err)
	}

	rules := make([]domain.AssignmentRule, 0, len(wire))
	for _, w := range wire {
		rules = append(rules, domain.AssignmentRule{
			RuleID:      w.RuleID,
			FunnelID:    w.FunnelID,
			TargetType:  domain.TargetType(w.TargetType),
			TargetID:    w.TargetID,
			OrgID:       w.OrgID,
			ZipPatterns: w.ZipPatterns,
			Priority:    w.Priority,
			DailyCap:    w.DailyCap,
			MonthlyCap:  w.MonthlyCap,
			Active:      w.Active,
		})
	}
	return rules, nil
}

// RuleLister is implemented by the Postgres rules repository.
type RuleLister interface {
	ListRules(ctx context.Context) ([]domain.AssignmentRule, error)
}

// RepoSource adapts the Postgres rules repository to the Source interface.
// Rows are already normalized by the repository's scanner.
type RepoSource struct {
	repo RuleLister
}

// NewRepoSource wraps a rules repository as a cacheable source.
func NewRepoSource(repo RuleLister) *RepoSource {
	return &RepoSource{repo: repo}
}

// Fetch lists the full rule table.
func (s *RepoSource) Fetch(ctx context.Context) ([]domain.AssignmentRule, error) {
	return s.repo.ListRules(ctx)
}
