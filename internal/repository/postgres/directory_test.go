package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/lead-router/internal/domain"
)

func setupDirectory(t *testing.T) (*Directory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewDirectory(db), mock
}

func TestOrgActive(t *testing.T) {
	d, mock := setupDirectory(t)

	mock.ExpectQuery("SELECT active FROM organizations").
		WithArgs("ORG1").
		WillReturnRows(sqlmock.NewRows([]string{"active"}).AddRow(true))

	active, err := d.OrgActive(context.Background(), "ORG1")
	require.NoError(t, err)
	assert.True(t, active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrgActiveMissingRowReadsInactive(t *testing.T) {
	d, mock := setupDirectory(t)

	mock.ExpectQuery("SELECT active FROM organizations").
		WithArgs("NOPE").
		WillReturnRows(sqlmock.NewRows([]string{"active"}))

	active, err := d.OrgActive(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestUserActiveInOrg(t *testing.T) {
	d, mock := setupDirectory(t)

	mock.ExpectQuery("SELECT active FROM organization_members").
		WithArgs("U1", "ORG1").
		WillReturnRows(sqlmock.NewRows([]string{"active"}).AddRow(false))

	active, err := d.UserActiveInOrg(context.Background(), "U1", "ORG1")
	require.NoError(t, err)
	assert.False(t, active)
}

func TestGetOrganization(t *testing.T) {
	d, mock := setupDirectory(t)

	mock.ExpectQuery("SELECT id, name, active").
		WithArgs("ORG1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "active", "notification_policy"}).
			AddRow("ORG1", "Acme Roofing", true, "assigned_only"))

	org, err := d.GetOrganization(context.Background(), "ORG1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Roofing", org.Name)
	assert.Equal(t, domain.PolicyAssignedOnly, org.NotificationPolicy)
}

func TestGetOrganizationNotFound(t *testing.T) {
	d, mock := setupDirectory(t)

	mock.ExpectQuery("SELECT id, name, active").
		WithArgs("NOPE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "active", "notification_policy"}))

	_, err := d.GetOrganization(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrOrgNotFound)
}

func TestListActiveMembers(t *testing.T) {
	d, mock := setupDirectory(t)

	mock.ExpectQuery("SELECT user_id, org_id, name, email").
		WithArgs("ORG1").
		WillReturnRows(sqlmock.NewRows([]string{
			"user_id", "org_id", "name", "email", "phone", "active", "notify_email", "notify_sms",
		}).
			AddRow("U1", "ORG1", "Ada", "ada@acme.test", "+15551234567", true, true, true).
			AddRow("U2", "ORG1", "Bob", "bob@acme.test", "", true, true, false))

	members, err := d.ListActiveMembers(context.Background(), "ORG1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "+15551234567", members[0].Phone)
	assert.False(t, members[1].NotifySMS)
}

func TestGetActiveMemberMissingReturnsNil(t *testing.T) {
	d, mock := setupDirectory(t)

	mock.ExpectQuery("SELECT user_id, org_id, name, email").
		WithArgs("U9", "ORG1").
		WillReturnRows(sqlmock.NewRows([]string{
			"user_id", "org_id", "name", "email", "phone", "active", "notify_email", "notify_sms",
		}))

	m, err := d.GetActiveMember(context.Background(), "U9", "ORG1")
	require.NoError(t, err)
	assert.Nil(t, m)
}
