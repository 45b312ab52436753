package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mailerpro/mailerpro/internal/models"
)

// recentLimit caps how many dry-run messages stay inspectable.
const recentLimit = 100

// RecordedMessage is one message captured in dry-run mode.
type RecordedMessage struct {
	AccountID string    `json:"account_id"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	At        time.Time `json:"at"`
}

// DryRunMailer records messages instead of delivering them, so
// campaign mechanics can be rehearsed against real contact lists
// without emailing anyone.
type DryRunMailer struct {
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	recent []RecordedMessage
}

// NewDryRunMailer creates a dry-run mailer.
func NewDryRunMailer(logger *slog.Logger) *DryRunMailer {
	return &DryRunMailer{logger: logger, now: time.Now}
}

// Send records the message and reports success without touching the
// network.
func (m *DryRunMailer) Send(ctx context.Context, account *models.SmtpAccount, msg *Message) error {
	rec := RecordedMessage{
		AccountID: account.ID,
		To:        msg.To,
		Subject:   msg.Subject,
		Body:      msg.Body,
		At:        m.now(),
	}

	m.mu.Lock()
	m.recent = append(m.recent, rec)
	if len(m.recent) > recentLimit {
		m.recent = m.recent[len(m.recent)-recentLimit:]
	}
	m.mu.Unlock()

	m.logger.Info("dry run: message not sent",
		"account_id", account.ID,
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}

// Recent returns a copy of the captured messages, oldest first.
func (m *DryRunMailer) Recent() []RecordedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedMessage, len(m.recent))
	copy(out, m.recent)
	return out
}
