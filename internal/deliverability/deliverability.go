// Package deliverability inspects a sending domain's DNS posture.
// Cold outreach from a domain without SPF, DKIM and DMARC records is
// routinely junked, so accounts are verified against these records
// before campaigns lean on them.
package deliverability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"

	"github.com/mailerpro/mailerpro/internal/models"
)

// Domain validation errors
var (
	ErrInvalidDomain   = errors.New("invalid domain name")
	ErrInvalidSelector = errors.New("invalid DKIM selector")
	ErrInvalidAddress  = errors.New("invalid email address")
)

// Status classifies one DNS check outcome.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusMissing Status = "missing"
	StatusError   Status = "error" // lookup failed, not a verdict
)

// Check is one DNS record inspection result.
type Check struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Record string `json:"record,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Report is the full posture report for a sending domain. Passed is
// true when SPF, DKIM and DMARC are all present.
type Report struct {
	Domain string  `json:"domain"`
	Checks []Check `json:"checks"`
	Passed bool    `json:"passed"`
}

// Resolver is the DNS surface the checker needs. Satisfied by
// net.DefaultResolver.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
}

// Checker runs deliverability checks against live DNS.
type Checker struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewChecker creates a checker using the system resolver.
func NewChecker(logger *slog.Logger) *Checker {
	return &Checker{resolver: net.DefaultResolver, logger: logger}
}

// SetResolver overrides the DNS resolver, for tests.
func (c *Checker) SetResolver(r Resolver) {
	c.resolver = r
}

// domainPattern validates domain name format (RFC 1035).
var domainPattern = regexp.MustCompile(`^(?i)[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

// selectorPattern validates a DKIM selector label.
var selectorPattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// ValidateDomain checks that domain is a well-formed DNS name.
func ValidateDomain(domain string) error {
	if domain == "" || len(domain) > 253 || !domainPattern.MatchString(domain) {
		return ErrInvalidDomain
	}
	return nil
}

// DomainFromAddress extracts the lowercased domain of an email
// address.
func DomainFromAddress(addr string) (string, error) {
	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return "", ErrInvalidAddress
	}
	domain := strings.ToLower(addr[at+1:])
	if err := ValidateDomain(domain); err != nil {
		return "", err
	}
	return domain, nil
}

// DefaultSelector returns the DKIM selector a provider conventionally
// publishes under.
func DefaultSelector(provider models.Provider) string {
	switch provider {
	case models.ProviderGmail:
		return "google"
	case models.ProviderOutlook:
		return "selector1"
	}
	return "default"
}

// CheckDomain runs the MX, SPF, DKIM and DMARC checks for a sending
// domain. selector may be empty to use "default".
func (c *Checker) CheckDomain(ctx context.Context, domain, selector string) (*Report, error) {
	if err := ValidateDomain(domain); err != nil {
		return nil, err
	}
	if selector == "" {
		selector = "default"
	}
	if len(selector) > 63 || !selectorPattern.MatchString(selector) {
		return nil, ErrInvalidSelector
	}

	report := &Report{Domain: domain}

	report.Checks = append(report.Checks,
		c.checkMX(ctx, domain),
		c.checkSPF(ctx, domain),
		c.checkDKIM(ctx, domain, selector),
		c.checkDMARC(ctx, domain),
	)

	report.Passed = true
	for _, check := range report.Checks {
		if check.Name == "mx" {
			// Senders without MX still deliver; replies bounce.
			continue
		}
		if check.Status == StatusMissing || check.Status == StatusError {
			report.Passed = false
		}
	}

	c.logger.Info("deliverability check finished",
		"domain", domain,
		"selector", selector,
		"passed", report.Passed,
	)
	return report, nil
}

func (c *Checker) checkMX(ctx context.Context, domain string) Check {
	records, err := c.resolver.LookupMX(ctx, domain)
	if err != nil {
		return lookupFailure("mx", err, "no MX records; replies to this domain will bounce")
	}
	if len(records) == 0 {
		return Check{Name: "mx", Status: StatusWarning, Detail: "no MX records; replies to this domain will bounce"}
	}

	hosts := make([]string, 0, len(records))
	for _, mx := range records {
		hosts = append(hosts, fmt.Sprintf("%s (%d)", strings.TrimSuffix(mx.Host, "."), mx.Pref))
	}
	return Check{
		Name:   "mx",
		Status: StatusOK,
		Record: strings.Join(hosts, ", "),
		Detail: fmt.Sprintf("%d MX record(s)", len(records)),
	}
}

func (c *Checker) checkSPF(ctx context.Context, domain string) Check {
	records, err := c.resolver.LookupTXT(ctx, domain)
	if err != nil {
		return lookupFailure("spf", err, "no SPF record; publish one authorizing your provider")
	}
	return evaluateSPF(records)
}

func (c *Checker) checkDKIM(ctx context.Context, domain, selector string) Check {
	records, err := c.resolver.LookupTXT(ctx, selector+"._domainkey."+domain)
	if err != nil {
		return lookupFailure("dkim", err, fmt.Sprintf("no DKIM record under selector %q", selector))
	}
	return evaluateDKIM(records, selector)
}

func (c *Checker) checkDMARC(ctx context.Context, domain string) Check {
	records, err := c.resolver.LookupTXT(ctx, "_dmarc."+domain)
	if err != nil {
		return lookupFailure("dmarc", err, "no DMARC record; publish at least p=none")
	}
	return evaluateDMARC(records)
}

// lookupFailure maps a DNS error to missing (NXDOMAIN) or error
// (anything else).
func lookupFailure(name string, err error, missingDetail string) Check {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return Check{Name: name, Status: StatusMissing, Detail: missingDetail}
	}
	return Check{Name: name, Status: StatusError, Detail: fmt.Sprintf("lookup failed: %v", err)}
}

// evaluateSPF inspects a domain's TXT records for an SPF policy.
func evaluateSPF(records []string) Check {
	for _, txt := range records {
		if !strings.HasPrefix(txt, "v=spf1") {
			continue
		}
		check := Check{Name: "spf", Status: StatusOK, Record: txt}
		switch {
		case strings.Contains(txt, "+all"):
			check.Status = StatusWarning
			check.Detail = "+all lets anyone spoof this domain; use ~all or -all"
		case strings.Contains(txt, "-all"):
			check.Detail = "strict policy (-all)"
		case strings.Contains(txt, "~all"):
			check.Detail = "soft-fail policy (~all)"
		}
		return check
	}
	return Check{Name: "spf", Status: StatusMissing, Detail: "no SPF record; publish one authorizing your provider"}
}

// evaluateDKIM inspects the selector's TXT records for a DKIM key.
// Long keys are split across multiple strings, so they are joined
// before parsing.
func evaluateDKIM(records []string, selector string) Check {
	full := strings.Join(records, "")
	if full == "" || !strings.Contains(full, "v=DKIM1") {
		return Check{
			Name:   "dkim",
			Status: StatusMissing,
			Detail: fmt.Sprintf("no DKIM record under selector %q", selector),
		}
	}

	check := Check{Name: "dkim", Status: StatusOK, Record: truncate(full, 100)}
	if !strings.Contains(full, "p=") {
		check.Status = StatusWarning
		check.Detail = "DKIM record has no public key (p=)"
	}
	return check
}

// evaluateDMARC inspects _dmarc TXT records for a DMARC policy.
func evaluateDMARC(records []string) Check {
	full := strings.Join(records, "")
	if !strings.HasPrefix(full, "v=DMARC1") {
		return Check{Name: "dmarc", Status: StatusMissing, Detail: "no DMARC record; publish at least p=none"}
	}

	check := Check{Name: "dmarc", Status: StatusOK, Record: full}
	switch {
	case strings.Contains(full, "p=reject"):
		check.Detail = "reject policy"
	case strings.Contains(full, "p=quarantine"):
		check.Detail = "quarantine policy"
	case strings.Contains(full, "p=none"):
		check.Status = StatusWarning
		check.Detail = "p=none only monitors; tighten once reports look clean"
	}
	return check
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
