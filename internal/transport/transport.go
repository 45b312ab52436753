// Package transport delivers rendered emails through a sending
// account. The engine depends only on the Mailer interface; tests
// substitute fakes.
package transport

import (
	"context"

	"github.com/mailerpro/mailerpro/internal/models"
)

// Transport failure signals. Unknown values coming from other
// implementations are tolerated and mapped to "unknown" by the
// executor.
const (
	KindAuth       = "authentication_failed"
	KindConnection = "connection_failed"
	KindTLS        = "ssl_tls_error"
	KindRateLimit  = "rate_limited"
)

// Message is one rendered outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends a message through the given SMTP account.
type Mailer interface {
	Send(ctx context.Context, account *models.SmtpAccount, msg *Message) error
}

// Error is a delivery failure with its transport signal and the raw
// server message.
type Error struct {
	Kind string
	Raw  string
}

func (e *Error) Error() string {
	if e.Raw == "" {
		return e.Kind
	}
	return e.Kind + ": " + e.Raw
}
