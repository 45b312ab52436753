package executor

import (
	"context"
	"errors"
	"strings"

	"github.com/mailerpro/mailerpro/internal/models"
	"github.com/mailerpro/mailerpro/internal/transport"
)

// Classify maps a transport failure to an error kind. Signals this
// engine does not recognize map to unknown rather than failing.
func Classify(err error, provider models.Provider) models.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrConnectionFailed
	}

	var te *transport.Error
	if !errors.As(err, &te) {
		return models.ErrUnknown
	}

	switch te.Kind {
	case transport.KindAuth:
		if provider == models.ProviderGmail && looksLikeAppPasswordError(te.Raw) {
			return models.ErrGmailAppPasswordRequired
		}
		return models.ErrAuthenticationFailed
	case transport.KindConnection:
		return models.ErrConnectionFailed
	case transport.KindTLS:
		return models.ErrSSLTLS
	case transport.KindRateLimit:
		return models.ErrRateLimited
	}
	return models.ErrUnknown
}

// looksLikeAppPasswordError recognizes Gmail's rejection of plain
// passwords on accounts that require an app password (response code
// 534 5.7.9).
func looksLikeAppPasswordError(raw string) bool {
	msg := strings.ToLower(raw)
	return strings.Contains(msg, "application-specific password") ||
		strings.Contains(msg, "app password") ||
		strings.Contains(msg, "5.7.9") ||
		strings.Contains(msg, "534")
}

// OwnerMessage renders an actionable description of a permanent
// failure for the campaign owner.
func OwnerMessage(kind models.ErrorKind) string {
	switch kind {
	case models.ErrGmailAppPasswordRequired:
		return "Gmail App Password required: generate an app password and update the account credentials"
	case models.ErrAuthenticationFailed:
		return "SMTP authentication failed: check the account username and password"
	case models.ErrSSLTLS:
		return "TLS negotiation failed: check the account host, port and encryption settings"
	case models.ErrConnectionFailed:
		return "could not reach the SMTP server"
	case models.ErrRateLimited:
		return "the provider rate limited this account"
	}
	return "send failed for an unknown reason"
}
