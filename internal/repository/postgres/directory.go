// Package postgres holds the relational repositories: the read-only org
// directory owned by the portal, and the mutable assignment rules table
// managed through the ops API.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ignite/lead-router/internal/domain"
)

// ErrOrgNotFound is returned when no organization row exists.
var ErrOrgNotFound = errors.New("organization not found")

// Directory reads organizations and their members from the portal database.
// The router never writes these tables.
type Directory struct{ db *sql.DB }

// NewDirectory creates a directory on the portal database.
func NewDirectory(db *sql.DB) *Directory { return &Directory{db: db} }

// OrgActive reports whether the organization exists and is active.
func (d *Directory) OrgActive(ctx context.Context, orgID string) (bool, error) {
	var active bool
	err := d.db.QueryRowContext(ctx, `
		SELECT active FROM organizations WHERE id = $1
	`, orgID).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking org %s: %w", orgID, err)
	}
	return active, nil
}

// UserActiveInOrg reports whether the user is an active member of the org.
// A missing membership row reads as inactive, not as an error.
func (d *Directory) UserActiveInOrg(ctx context.Context, userID, orgID string) (bool, error) {
	var active bool
	err := d.db.QueryRowContext(ctx, `
		SELECT active FROM organization_members WHERE user_id = $1 AND org_id = $2
	`, userID, orgID).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking member %s in org %s: %w", userID, orgID, err)
	}
	return active, nil
}

// GetOrganization returns one organization. Returns ErrOrgNotFound when no
// row exists.
func (d *Directory) GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error) {
	org := &domain.Organization{}
	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, active, COALESCE(notification_policy, 'all_members')
		FROM organizations WHERE id = $1
	`, orgID).Scan(&org.ID, &org.Name, &org.Active, &org.NotificationPolicy)
	if err == sql.ErrNoRows {
		return nil, ErrOrgNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting org %s: %w", orgID, err)
	}
	return org, nil
}

// ListActiveMembers returns the active members of an organization.
func (d *Directory) ListActiveMembers(ctx context.Context, orgID string) ([]domain.Member, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT user_id, org_id, name, email, COALESCE(phone, ''),
		       active, notify_email, notify_sms
		FROM organization_members
		WHERE org_id = $1 AND active = true
		ORDER BY name
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing members of org %s: %w", orgID, err)
	}
	defer rows.Close()

	var out []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(
			&m.UserID, &m.OrgID, &m.Name, &m.Email, &m.Phone,
			&m.Active, &m.NotifyEmail, &m.NotifySMS,
		); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetActiveMember returns one active member of an organization, or nil when
// the membership row is missing or inactive.
func (d *Directory) GetActiveMember(ctx context.Context, userID, orgID string) (*domain.Member, error) {
	m := &domain.Member{}
	err := d.db.QueryRowContext(ctx, `
		SELECT user_id, org_id, name, email, COALESCE(phone, ''),
		       active, notify_email, notify_sms
		FROM organization_members
		WHERE user_id = $1 AND org_id = $2 AND active = true
	`, userID, orgID).Scan(
		&m.UserID, &m.OrgID, &m.Name, &m.Email, &m.Phone,
		&m.Active, &m.NotifyEmail, &m.NotifySMS,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting member %s in org %s: %w", userID, orgID, err)
	}
	return m, nil
}
