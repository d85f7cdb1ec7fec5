package domain

import "time"

// WebhookActor is recorded as the user on every audit entry written by the reconciler.
const WebhookActor = "system:webhook"

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

type AuditEntry struct {
	Action    string
	Module    string
	Severity  Severity
	Detail    string
	UserName  string
	Timestamp time.Time
}
