package notification

import (
	"context"
	"time"

	"github.com/ignite/lead-router/internal/channel"
	"github.com/ignite/lead-router/internal/domain"
	"github.com/ignite/lead-router/internal/flags"
)

// LockRepository claims notification fan-outs in the lead store.
type LockRepository interface {
	// AcquireNotificationLock returns true exactly once per (lead, scope):
	// the conditional write sets the scope's marker only if absent.
	AcquireNotificationLock(ctx context.Context, funnelID, leadID string, scope domain.NotificationScope, at time.Time) (bool, error)
}

// Directory reads organizations and members for recipient resolution.
type Directory interface {
	GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error)
	ListActiveMembers(ctx context.Context, orgID string) ([]domain.Member, error)
	GetActiveMember(ctx context.Context, userID, orgID string) (*domain.Member, error)
}

// EmailSender delivers one rendered email.
type EmailSender interface {
	Send(ctx context.Context, msg channel.Email) error
}

// SMSSender delivers one SMS.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

// FlagProvider serves the current feature flag snapshot.
type FlagProvider interface {
	Get(ctx context.Context) flags.Flags
}
