// Package flags loads the feature flag document that gates every side-effecting
// stage of the pipeline. Flags are read from S3 and cached with a short TTL;
// when the source is unreachable the last-known-good set is served, and before
// any successful fetch every flag is off.
package flags

// Flags is the feature flag document. Missing keys unmarshal to false, which
// matches the fail-closed default.
type Flags struct {
	EnableAssignmentService   bool `json:"enable_assignment_service"`
	EnableNotificationService bool `json:"enable_notification_service"`
	EnableEmailNotifications  bool `json:"enable_email_notifications"`
	EnableSMSNotifications    bool `json:"enable_sms_notifications"`
	EnableSESProvider         bool `json:"enable_ses_provider"`
	EnableSNSProvider         bool `json:"enable_sns_provider"`
	EnableAnalyticsExport     bool `json:"enable_analytics_export"`
}

// Defaults returns the flag set used before any source fetch has succeeded.
// Everything is off: a broken config source must never switch features on.
func Defaults() Flags {
	return Flags{}
}

// EmailEnabled reports whether the email channel may send.
func (f Flags) EmailEnabled() bool {
	return f.EnableEmailNotifications && f.EnableSESProvider
}

// SMSEnabled reports whether the SMS channel may send.
func (f Flags) SMSEnabled() bool {
	return f.EnableSMSNotifications && f.EnableSNSProvider
}
