package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/lead-router/internal/channel"
	"github.com/ignite/lead-router/internal/domain"
	"github.com/ignite/lead-router/internal/metrics"
	"github.com/ignite/lead-router/internal/pkg/logger"
)

// Config holds the dispatcher's static settings.
type Config struct {
	// InternalRecipients are the internal-operations email addresses
	// notified on every assigned and unassigned lead.
	InternalRecipients []string
	// DashboardBaseURL, when set, is linked in notification bodies.
	DashboardBaseURL string
}

// Service fans out lead notifications. Stateless; safe for concurrent use.
type Service struct {
	locks     LockRepository
	directory Directory
	email     EmailSender
	sms       SMSSender
	flags     FlagProvider
	renderer  *templateRenderer
	cfg       Config
	now       func() time.Time
}

// NewService wires the dispatcher.
func NewService(locks LockRepository, directory Directory, email EmailSender, sms SMSSender, flagProvider FlagProvider, cfg Config) *Service {
	return &Service{
		locks:     locks,
		directory: directory,
		email:     email,
		sms:       sms,
		flags:     flagProvider,
		renderer:  newTemplateRenderer(),
		cfg:       cfg,
		now:       time.Now,
	}
}

// DispatchAssigned runs both fan-outs for a lead.assigned event: internal
// operations (always) and the organization's members (per its policy). Each
// fan-out is claimed separately, so a crash between them self-heals on
// redelivery without duplicating the one that already ran.
//
// Errors are returned only for infrastructure failures before a fan-out is
// claimed (lock write, directory read); those are retryable through the
// queue. Channel failures inside a claimed fan-out are logged and counted.
func (s *Service) DispatchAssigned(ctx context.Context, p domain.LeadAssigned) error {
	if err := s.dispatchAssignedInternal(ctx, p); err != nil {
		return err
	}
	return s.dispatchAssignedOrg(ctx, p)
}

// DispatchUnassigned notifies internal operations only.
func (s *Service) DispatchUnassigned(ctx context.Context, p domain.LeadUnassigned) error {
	acquired, err := s.locks.AcquireNotificationLock(ctx, p.FunnelID, p.LeadID, domain.ScopeInternal, s.now().UTC())
	if err != nil {
		return fmt.Errorf("acquiring internal lock: %w", err)
	}
	if !acquired {
		logger.Debug("internal notification already claimed",
			"funnel_id", p.FunnelID, "lead_id", p.LeadID)
		return nil
	}

	data := map[string]interface{}{
		"lead_id":   p.LeadID,
		"funnel_id": p.FunnelID,
		"lead_zip":  p.ZipCode,
		"reason":    string(p.Reason),
	}
	subject := s.renderer.render(unassignedSubjectTmpl, data,
		"Unrouted lead "+p.LeadID)
	html := s.renderer.render(unassignedHTMLTmpl, data,
		fmt.Sprintf("Lead %s (%s) ended unassigned: %s", p.LeadID, p.FunnelID, p.Reason))
	text := s.renderer.render(unassignedTextTmpl, data, "")

	s.sendInternalEmails(ctx, subject, html, text)
	return nil
}

func (s *Service) dispatchAssignedInternal(ctx context.Context, p domain.LeadAssigned) error {
	acquired, err := s.locks.AcquireNotificationLock(ctx, p.FunnelID, p.LeadID, domain.ScopeInternal, s.now().UTC())
	if err != nil {
		return fmt.Errorf("acquiring internal lock: %w", err)
	}
	if !acquired {
		logger.Debug("internal notification already claimed",
			"funnel_id", p.FunnelID, "lead_id", p.LeadID)
		return nil
	}

	data := s.assignedData(p, "", "")
	subject := s.renderer.render(assignedSubjectTmpl, data, "New lead "+p.LeadID)
	html := s.renderer.render(assignedHTMLTmpl, data, s.assignedFallback(p))
	text := s.renderer.render(assignedTextTmpl, data, "")

	s.sendInternalEmails(ctx, subject, html, text)
	return nil
}

func (s *Service) dispatchAssignedOrg(ctx context.Context, p domain.LeadAssigned) error {
	// Resolve recipients before claiming the fan-out: a directory outage
	// here stays retryable instead of burning the lock on an empty send.
	org, err := s.directory.GetOrganization(ctx, p.AssignedOrgID)
	if err != nil {
		return fmt.Errorf("loading org %s: %w", p.AssignedOrgID, err)
	}

	recipients, err := s.orgRecipients(ctx, org, p)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		logger.Info("no org recipients for lead, skipping org fan-out",
			"funnel_id", p.FunnelID, "lead_id", p.LeadID, "org_id", p.AssignedOrgID)
		return nil
	}

	acquired, err := s.locks.AcquireNotificationLock(ctx, p.FunnelID, p.LeadID, domain.ScopeOrg, s.now().UTC())
	if err != nil {
		return fmt.Errorf("acquiring org lock: %w", err)
	}
	if !acquired {
		logger.Debug("org notification already claimed",
			"funnel_id", p.FunnelID, "lead_id", p.LeadID)
		return nil
	}

	fl := s.flags.Get(ctx)
	for _, m := range recipients {
		data := s.assignedData(p, org.Name, m.Name)
		if fl.EmailEnabled() && m.NotifyEmail && m.Email != "" {
			subject := s.renderer.render(assignedSubjectTmpl, data, "New lead "+p.LeadID)
			html := s.renderer.render(assignedHTMLTmpl, data, s.assignedFallback(p))
			text := s.renderer.render(assignedTextTmpl, data, "")
			s.sendEmail(ctx, channel.Email{To: m.Email, Subject: subject, HTML: html, Text: text})
		}
		if fl.SMSEnabled() && m.NotifySMS && m.Phone != "" {
			body := s.renderer.render(assignedSMSTmpl, data, s.assignedFallback(p))
			s.sendSMS(ctx, m.Phone, body)
		}
	}
	return nil
}

// orgRecipients resolves the member list per the org's notification policy.
// assigned_only with an org-target rule (no assigned user) falls back to all
// active members.
func (s *Service) orgRecipients(ctx context.Context, org *domain.Organization, p domain.LeadAssigned) ([]domain.Member, error) {
	if org.NotificationPolicy == domain.PolicyAssignedOnly && p.AssignedUserID != "" {
		m, err := s.directory.GetActiveMember(ctx, p.AssignedUserID, p.AssignedOrgID)
		if err != nil {
			return nil, fmt.Errorf("loading assigned member: %w", err)
		}
		if m == nil {
			return nil, nil
		}
		return []domain.Member{*m}, nil
	}

	members, err := s.directory.ListActiveMembers(ctx, p.AssignedOrgID)
	if err != nil {
		return nil, fmt.Errorf("listing members of org %s: %w", p.AssignedOrgID, err)
	}
	return members, nil
}

func (s *Service) sendInternalEmails(ctx context.Context, subject, html, text string) {
	fl := s.flags.Get(ctx)
	if !fl.EmailEnabled() {
		logger.Debug("email channel disabled, skipping internal recipients")
		return
	}
	for _, to := range s.cfg.InternalRecipients {
		s.sendEmail(ctx, channel.Email{To: to, Subject: subject, HTML: html, Text: text})
	}
}

func (s *Service) sendEmail(ctx context.Context, msg channel.Email) {
	if err := s.email.Send(ctx, msg); err != nil {
		metrics.Notifications.WithLabelValues("email", "error").Inc()
		logger.Error("email send failed", "recipient", msg.To, "error", err.Error())
		return
	}
	metrics.Notifications.WithLabelValues("email", "ok").Inc()
}

func (s *Service) sendSMS(ctx context.Context, phone, body string) {
	if err := s.sms.Send(ctx, phone, body); err != nil {
		metrics.Notifications.WithLabelValues("sms", "error").Inc()
		logger.Error("sms send failed", "phone", phone, "error", err.Error())
		return
	}
	metrics.Notifications.WithLabelValues("sms", "ok").Inc()
}

func (s *Service) assignedData(p domain.LeadAssigned, orgName, recipientName string) map[string]interface{} {
	return map[string]interface{}{
		"lead_id":        p.LeadID,
		"funnel_id":      p.FunnelID,
		"lead_zip":       p.ZipCode,
		"rule_id":        p.AssignmentRuleID,
		"org_name":       orgName,
		"recipient_name": firstName(recipientName),
		"dashboard_url":  s.dashboardURL(p.FunnelID, p.LeadID),
	}
}

func (s *Service) assignedFallback(p domain.LeadAssigned) string {
	return fmt.Sprintf("New lead %s (funnel %s, zip %s) was assigned.", p.LeadID, p.FunnelID, p.ZipCode)
}

func (s *Service) dashboardURL(funnelID, leadID string) string {
	if s.cfg.DashboardBaseURL == "" {
		return ""
	}
	return strings.TrimRight(s.cfg.DashboardBaseURL, "/") + "/leads/" + funnelID + "/" + leadID
}

func firstName(full string) string {
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}
