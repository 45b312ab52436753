package deliverability

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/mailerpro/mailerpro/internal/models"
)

func TestValidateDomain(t *testing.T) {
	tests := []struct {
		name    string
		domain  string
		wantErr bool
	}{
		{"valid simple", "example.com", false},
		{"valid subdomain", "mail.example.com", false},
		{"valid with dash", "my-domain.com", false},
		{"empty", "", true},
		{"too long", string(make([]byte, 254)), true},
		{"invalid chars", "example!.com", true},
		{"starts with dash", "-example.com", true},
		{"double dot", "example..com", true},
		{"path injection", "../etc/passwd", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDomain(tt.domain)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDomain(%q) error = %v, wantErr %v", tt.domain, err, tt.wantErr)
			}
		})
	}
}

func TestDomainFromAddress(t *testing.T) {
	tests := []struct {
		addr    string
		want    string
		wantErr bool
	}{
		{"jane@Example.COM", "example.com", false},
		{"sales@mail.acme.io", "mail.acme.io", false},
		{"no-at-sign", "", true},
		{"trailing@", "", true},
		{"@leading.com", "", true},
		{"bad@domain!", "", true},
	}

	for _, tt := range tests {
		got, err := DomainFromAddress(tt.addr)
		if (err != nil) != tt.wantErr {
			t.Errorf("DomainFromAddress(%q) error = %v, wantErr %v", tt.addr, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("DomainFromAddress(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestDefaultSelector(t *testing.T) {
	tests := []struct {
		provider models.Provider
		want     string
	}{
		{models.ProviderGmail, "google"},
		{models.ProviderOutlook, "selector1"},
		{models.ProviderCustom, "default"},
	}

	for _, tt := range tests {
		if got := DefaultSelector(tt.provider); got != tt.want {
			t.Errorf("DefaultSelector(%s) = %q, want %q", tt.provider, got, tt.want)
		}
	}
}

func TestEvaluateSPF(t *testing.T) {
	tests := []struct {
		name       string
		records    []string
		wantStatus Status
	}{
		{"strict", []string{"v=spf1 include:_spf.google.com -all"}, StatusOK},
		{"soft fail", []string{"v=spf1 include:_spf.google.com ~all"}, StatusOK},
		{"open policy", []string{"v=spf1 +all"}, StatusWarning},
		{"unrelated txt only", []string{"google-site-verification=abc"}, StatusMissing},
		{"no records", nil, StatusMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := evaluateSPF(tt.records)
			if check.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", check.Status, tt.wantStatus)
			}
		})
	}
}

func TestEvaluateDKIM(t *testing.T) {
	tests := []struct {
		name       string
		records    []string
		wantStatus Status
	}{
		{"valid key", []string{"v=DKIM1; k=rsa; p=MIGfMA0GCSq"}, StatusOK},
		{"split record", []string{"v=DKIM1; k=rsa; ", "p=MIGfMA0GCSq"}, StatusOK},
		{"missing public key", []string{"v=DKIM1; k=rsa"}, StatusWarning},
		{"not a dkim record", []string{"hello"}, StatusMissing},
		{"no records", nil, StatusMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := evaluateDKIM(tt.records, "default")
			if check.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", check.Status, tt.wantStatus)
			}
		})
	}
}

func TestEvaluateDMARC(t *testing.T) {
	tests := []struct {
		name       string
		records    []string
		wantStatus Status
	}{
		{"reject", []string{"v=DMARC1; p=reject; rua=mailto:d@example.com"}, StatusOK},
		{"quarantine", []string{"v=DMARC1; p=quarantine"}, StatusOK},
		{"monitor only", []string{"v=DMARC1; p=none"}, StatusWarning},
		{"not dmarc", []string{"v=spf1 -all"}, StatusMissing},
		{"no records", nil, StatusMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := evaluateDMARC(tt.records)
			if check.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", check.Status, tt.wantStatus)
			}
		})
	}
}

// fakeResolver serves canned DNS answers keyed by query name.
type fakeResolver struct {
	txt map[string][]string
	mx  map[string][]*net.MX
}

func (f *fakeResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	records, ok := f.txt[name]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
	}
	return records, nil
}

func (f *fakeResolver) LookupMX(ctx context.Context, name string) ([]*net.MX, error) {
	records, ok := f.mx[name]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
	}
	return records, nil
}

func newTestChecker(resolver Resolver) *Checker {
	c := NewChecker(slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.SetResolver(resolver)
	return c
}

func TestCheckDomainPasses(t *testing.T) {
	checker := newTestChecker(&fakeResolver{
		txt: map[string][]string{
			"example.com":                   {"v=spf1 include:_spf.google.com ~all"},
			"google._domainkey.example.com": {"v=DKIM1; k=rsa; p=MIGfMA0GCSq"},
			"_dmarc.example.com":            {"v=DMARC1; p=quarantine"},
		},
		mx: map[string][]*net.MX{
			"example.com": {{Host: "mx1.example.com.", Pref: 10}},
		},
	})

	report, err := checker.CheckDomain(context.Background(), "example.com", "google")
	if err != nil {
		t.Fatalf("CheckDomain() error = %v", err)
	}
	if !report.Passed {
		t.Errorf("Passed = false, want true: %+v", report.Checks)
	}
	if len(report.Checks) != 4 {
		t.Fatalf("got %d checks, want 4", len(report.Checks))
	}
}

func TestCheckDomainMissingDKIMFails(t *testing.T) {
	checker := newTestChecker(&fakeResolver{
		txt: map[string][]string{
			"example.com":        {"v=spf1 -all"},
			"_dmarc.example.com": {"v=DMARC1; p=reject"},
		},
		mx: map[string][]*net.MX{
			"example.com": {{Host: "mx1.example.com.", Pref: 10}},
		},
	})

	report, err := checker.CheckDomain(context.Background(), "example.com", "")
	if err != nil {
		t.Fatalf("CheckDomain() error = %v", err)
	}
	if report.Passed {
		t.Error("Passed = true, want false when DKIM is missing")
	}
}

func TestCheckDomainMissingMXStillPasses(t *testing.T) {
	checker := newTestChecker(&fakeResolver{
		txt: map[string][]string{
			"example.com":                    {"v=spf1 -all"},
			"default._domainkey.example.com": {"v=DKIM1; p=MIGf"},
			"_dmarc.example.com":             {"v=DMARC1; p=reject"},
		},
	})

	report, err := checker.CheckDomain(context.Background(), "example.com", "")
	if err != nil {
		t.Fatalf("CheckDomain() error = %v", err)
	}
	if !report.Passed {
		t.Error("Passed = false, want true: MX absence is only a warning")
	}
}

func TestCheckDomainRejectsBadInput(t *testing.T) {
	checker := newTestChecker(&fakeResolver{})

	if _, err := checker.CheckDomain(context.Background(), "bad!domain", ""); err == nil {
		t.Error("expected error for invalid domain")
	}
	if _, err := checker.CheckDomain(context.Background(), "example.com", "bad selector"); err == nil {
		t.Error("expected error for invalid selector")
	}
}
