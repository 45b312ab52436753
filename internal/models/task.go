package models

import "time"

// TaskStatus is the state of a single scheduled send.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskSending TaskStatus = "sending" // dequeued, send in flight
	TaskSent    TaskStatus = "sent"
	TaskFailed  TaskStatus = "failed"
	TaskSkipped TaskStatus = "skipped"
)

// SkipReason records why a task was skipped. Quota skips are
// retryable on a later scheduling pass; the others are terminal for
// the contact's chain.
type SkipReason string

const (
	SkipQuotaExhausted SkipReason = "quota_exhausted"
	SkipPreviousFailed SkipReason = "previous_step_failed"
	SkipUnsubscribed   SkipReason = "unsubscribed"
)

// ErrorKind classifies a transport failure.
type ErrorKind string

const (
	ErrAuthenticationFailed     ErrorKind = "authentication_failed"
	ErrGmailAppPasswordRequired ErrorKind = "gmail_app_password_required"
	ErrConnectionFailed         ErrorKind = "connection_failed"
	ErrSSLTLS                   ErrorKind = "ssl_tls_error"
	ErrRateLimited              ErrorKind = "rate_limited"
	ErrUnknown                  ErrorKind = "unknown"
)

// Retryable reports whether a failure of this kind may self-resolve
// and is worth retrying. Authentication and TLS problems are
// configuration errors and never retried.
func (k ErrorKind) Retryable() bool {
	switch k {
	case ErrConnectionFailed, ErrRateLimited:
		return true
	}
	return false
}

// SendTask is one scheduled or resolved email send for a
// (contact, step) pair.
type SendTask struct {
	ID            string     `json:"id"`
	CampaignID    string     `json:"campaign_id"`
	ContactID     string     `json:"contact_id"`
	StepOrder     int        `json:"step_order"`
	VariationName string     `json:"variation_name"`
	AccountID     string     `json:"account_id,omitempty"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	Status        TaskStatus `json:"status"`
	Attempts      int        `json:"attempts"`
	LastError     ErrorKind  `json:"last_error,omitempty"`
	LastErrorMsg  string     `json:"last_error_message,omitempty"`
	SkipReason    SkipReason `json:"skip_reason,omitempty"`
	SentAt        *time.Time `json:"sent_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Resolved reports whether the task needs no further work.
func (t *SendTask) Resolved() bool {
	switch t.Status {
	case TaskSent, TaskFailed:
		return true
	case TaskSkipped:
		// Quota skips are re-schedulable on a later pass.
		return t.SkipReason != SkipQuotaExhausted
	}
	return false
}
