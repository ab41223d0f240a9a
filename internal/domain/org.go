package domain

// NotificationPolicy controls which organization members are notified when a
// lead is assigned to the organization.
type NotificationPolicy string

const (
	// PolicyAllMembers notifies every active member.
	PolicyAllMembers NotificationPolicy = "all_members"
	// PolicyAssignedOnly notifies only the assigned user. Falls back to all
	// members when the winning rule targeted the org rather than a user.
	PolicyAssignedOnly NotificationPolicy = "assigned_only"
)

// Organization is the read-only projection of a partner org from the portal
// database. The router never writes org rows.
type Organization struct {
	ID                 string             `json:"id" db:"id"`
	Name               string             `json:"name" db:"name"`
	Active             bool               `json:"active" db:"active"`
	NotificationPolicy NotificationPolicy `json:"notification_policy" db:"notification_policy"`
}

// Member is an organization member who may receive lead notifications.
type Member struct {
	UserID      string `json:"user_id" db:"user_id"`
	OrgID       string `json:"org_id" db:"org_id"`
	Name        string `json:"name" db:"name"`
	Email       string `json:"email" db:"email"`
	Phone       string `json:"phone,omitempty" db:"phone"`
	Active      bool   `json:"active" db:"active"`
	NotifyEmail bool   `json:"notify_email" db:"notify_email"`
	NotifySMS   bool   `json:"notify_sms" db:"notify_sms"`
}
