package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/lead-router/internal/channel"
	"github.com/ignite/lead-router/internal/domain"
	"github.com/ignite/lead-router/internal/flags"
)

type fakeLocks struct {
	claimed map[string]bool
	err     error
}

func (f *fakeLocks) AcquireNotificationLock(ctx context.Context, funnelID, leadID string, scope domain.NotificationScope, at time.Time) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.claimed == nil {
		f.claimed = map[string]bool{}
	}
	key := funnelID + "/" + leadID + "/" + string(scope)
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

type fakeDir struct {
	org     *domain.Organization
	members []domain.Member
	err     error
}

func (f *fakeDir) GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.org, nil
}

func (f *fakeDir) ListActiveMembers(ctx context.Context, orgID string) ([]domain.Member, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.members, nil
}

func (f *fakeDir) GetActiveMember(ctx context.Context, userID, orgID string) (*domain.Member, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, m := range f.members {
		if m.UserID == userID {
			cp := m
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeEmail struct {
	sent    []channel.Email
	failFor string
}

func (f *fakeEmail) Send(ctx context.Context, msg channel.Email) error {
	if f.failFor != "" && msg.To == f.failFor {
		return errors.New("provider rejected")
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeSMS struct {
	sent []string
	err  error
}

func (f *fakeSMS) Send(ctx context.Context, phone, message string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, phone)
	return nil
}

type staticFlags struct{ f flags.Flags }

func (s staticFlags) Get(ctx context.Context) flags.Flags { return s.f }

func allOn() staticFlags {
	return staticFlags{flags.Flags{
		EnableNotificationService: true,
		EnableEmailNotifications:  true,
		EnableSMSNotifications:    true,
		EnableSESProvider:         true,
		EnableSNSProvider:         true,
	}}
}

func member(userID, email, phone string, notifyEmail, notifySMS bool) domain.Member {
	return domain.Member{
		UserID: userID, OrgID: "ORG1", Name: "Member " + userID,
		Email: email, Phone: phone, Active: true,
		NotifyEmail: notifyEmail, NotifySMS: notifySMS,
	}
}

func assignedPayload(userID string) domain.LeadAssigned {
	return domain.LeadAssigned{
		LeadID:           "L1",
		FunnelID:         "roofing",
		AssignedOrgID:    "ORG1",
		AssignedUserID:   userID,
		AssignmentRuleID: "R1",
		AssignedAt:       time.Now(),
		ZipCode:          "33101",
	}
}

func newTestService(locks *fakeLocks, dir *fakeDir, email *fakeEmail, sms *fakeSMS, fp FlagProvider) *Service {
	return NewService(locks, dir, email, sms, fp, Config{
		InternalRecipients: []string{"ops@ignite.media"},
		DashboardBaseURL:   "https://portal.ignite.media",
	})
}

func TestDispatchAssignedNotifiesInternalAndOrg(t *testing.T) {
	dir := &fakeDir{
		org: &domain.Organization{ID: "ORG1", Name: "Acme", Active: true, NotificationPolicy: domain.PolicyAllMembers},
		members: []domain.Member{
			member("U1", "u1@acme.test", "+15550000001", true, true),
			member("U2", "u2@acme.test", "", true, false),
		},
	}
	email := &fakeEmail{}
	sms := &fakeSMS{}
	svc := newTestService(&fakeLocks{}, dir, email, sms, allOn())

	require.NoError(t, svc.DispatchAssigned(context.Background(), assignedPayload("")))

	// ops + two members
	require.Len(t, email.sent, 3)
	assert.Equal(t, "ops@ignite.media", email.sent[0].To)
	assert.Contains(t, email.sent[1].HTML, "Acme")
	assert.Contains(t, email.sent[1].HTML, "https://portal.ignite.media/leads/roofing/L1")
	// only U1 opted into SMS and has a phone
	assert.Equal(t, []string{"+15550000001"}, sms.sent)
}

func TestDispatchAssignedDedupsUnderRedelivery(t *testing.T) {
	dir := &fakeDir{
		org:     &domain.Organization{ID: "ORG1", Name: "Acme", NotificationPolicy: domain.PolicyAllMembers},
		members: []domain.Member{member("U1", "u1@acme.test", "", true, false)},
	}
	email := &fakeEmail{}
	locks := &fakeLocks{}
	svc := newTestService(locks, dir, email, &fakeSMS{}, allOn())

	require.NoError(t, svc.DispatchAssigned(context.Background(), assignedPayload("")))
	first := len(email.sent)

	require.NoError(t, svc.DispatchAssigned(context.Background(), assignedPayload("")))
	assert.Equal(t, first, len(email.sent), "redelivery must not send again")
}

func TestDispatchAssignedAssignedOnlyPolicy(t *testing.T) {
	dir := &fakeDir{
		org: &domain.Organization{ID: "ORG1", Name: "Acme", NotificationPolicy: domain.PolicyAssignedOnly},
		members: []domain.Member{
			member("U1", "u1@acme.test", "", true, false),
			member("U2", "u2@acme.test", "", true, false),
		},
	}
	email := &fakeEmail{}
	svc := newTestService(&fakeLocks{}, dir, email, &fakeSMS{}, allOn())

	require.NoError(t, svc.DispatchAssigned(context.Background(), assignedPayload("U2")))

	var orgRecipients []string
	for _, m := range email.sent {
		if m.To != "ops@ignite.media" {
			orgRecipients = append(orgRecipients, m.To)
		}
	}
	assert.Equal(t, []string{"u2@acme.test"}, orgRecipients)
}

func TestDispatchAssignedAssignedOnlyFallsBackToAllMembers(t *testing.T) {
	// The winning rule targeted the org, so there is no assigned user.
	dir := &fakeDir{
		org: &domain.Organization{ID: "ORG1", Name: "Acme", NotificationPolicy: domain.PolicyAssignedOnly},
		members: []domain.Member{
			member("U1", "u1@acme.test", "", true, false),
			member("U2", "u2@acme.test", "", true, false),
		},
	}
	email := &fakeEmail{}
	svc := newTestService(&fakeLocks{}, dir, email, &fakeSMS{}, allOn())

	require.NoError(t, svc.DispatchAssigned(context.Background(), assignedPayload("")))
	assert.Len(t, email.sent, 3, "ops plus both members")
}

func TestDispatchAssignedChannelFailureDoesNotFailDispatch(t *testing.T) {
	dir := &fakeDir{
		org: &domain.Organization{ID: "ORG1", Name: "Acme", NotificationPolicy: domain.PolicyAllMembers},
		members: []domain.Member{
			member("U1", "broken@acme.test", "", true, false),
			member("U2", "u2@acme.test", "", true, false),
		},
	}
	email := &fakeEmail{failFor: "broken@acme.test"}
	svc := newTestService(&fakeLocks{}, dir, email, &fakeSMS{}, allOn())

	err := svc.DispatchAssigned(context.Background(), assignedPayload(""))
	require.NoError(t, err, "one failed recipient must not fail the dispatch")

	var got []string
	for _, m := range email.sent {
		got = append(got, m.To)
	}
	assert.Contains(t, got, "u2@acme.test", "other recipients still notified")
}

func TestDispatchAssignedEmailFlagOffSkipsEmail(t *testing.T) {
	dir := &fakeDir{
		org:     &domain.Organization{ID: "ORG1", Name: "Acme", NotificationPolicy: domain.PolicyAllMembers},
		members: []domain.Member{member("U1", "u1@acme.test", "+15550000001", true, true)},
	}
	email := &fakeEmail{}
	sms := &fakeSMS{}
	fl := allOn()
	fl.f.EnableEmailNotifications = false
	svc := newTestService(&fakeLocks{}, dir, email, sms, fl)

	require.NoError(t, svc.DispatchAssigned(context.Background(), assignedPayload("")))
	assert.Empty(t, email.sent)
	assert.Len(t, sms.sent, 1, "sms channel is gated independently")
}

func TestDispatchAssignedLockErrorPropagates(t *testing.T) {
	svc := newTestService(&fakeLocks{err: errors.New("dynamo down")}, &fakeDir{}, &fakeEmail{}, &fakeSMS{}, allOn())

	err := svc.DispatchAssigned(context.Background(), assignedPayload(""))
	assert.Error(t, err, "infrastructure failure must stay retryable")
}

func TestDispatchAssignedDirectoryErrorPropagates(t *testing.T) {
	locks := &fakeLocks{}
	svc := newTestService(locks, &fakeDir{err: errors.New("postgres down")}, &fakeEmail{}, &fakeSMS{}, allOn())

	err := svc.DispatchAssigned(context.Background(), assignedPayload(""))
	assert.Error(t, err)
	// The org fan-out lock must not be burned by the failed resolution.
	assert.False(t, locks.claimed["roofing/L1/org"])
}

func TestDispatchUnassignedNotifiesInternalOnly(t *testing.T) {
	email := &fakeEmail{}
	dir := &fakeDir{}
	svc := newTestService(&fakeLocks{}, dir, email, &fakeSMS{}, allOn())

	err := svc.DispatchUnassigned(context.Background(), domain.LeadUnassigned{
		LeadID:      "L1",
		FunnelID:    "roofing",
		Reason:      domain.ReasonNoMatchingRule,
		EvaluatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, email.sent, 1)
	assert.Equal(t, "ops@ignite.media", email.sent[0].To)
	assert.Contains(t, email.sent[0].Subject, "no_matching_rule")
}

func TestDispatchUnassignedDedups(t *testing.T) {
	email := &fakeEmail{}
	svc := newTestService(&fakeLocks{}, &fakeDir{}, email, &fakeSMS{}, allOn())

	payload := domain.LeadUnassigned{LeadID: "L1", FunnelID: "roofing", Reason: domain.ReasonAllRulesExhausted}
	require.NoError(t, svc.DispatchUnassigned(context.Background(), payload))
	require.NoError(t, svc.DispatchUnassigned(context.Background(), payload))
	assert.Len(t, email.sent, 1)
}
