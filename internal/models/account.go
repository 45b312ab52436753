package models

import "time"

// Provider identifies the kind of SMTP account.
type Provider string

const (
	ProviderGmail   Provider = "gmail"
	ProviderOutlook Provider = "outlook"
	ProviderCustom  Provider = "custom"
)

// SmtpAccount is a sending identity with a daily quota. The engine
// reads SentToday but never resets it; the day-rollover job owns that.
type SmtpAccount struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Provider   Provider  `json:"provider"`
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	Username   string    `json:"username"`
	Password   string    `json:"-"`
	FromName   string    `json:"from_name,omitempty"`
	DailyLimit int       `json:"daily_limit"`
	SentToday  int       `json:"sent_today"`
	IsActive   bool      `json:"is_active"`
	Verified   bool      `json:"verified"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EffectiveLimit returns the per-day cap for this account under a
// campaign's per-inbox cap. A campaignCap of 0 means no extra cap.
func (a *SmtpAccount) EffectiveLimit(campaignCap int) int {
	if campaignCap > 0 && campaignCap < a.DailyLimit {
		return campaignCap
	}
	return a.DailyLimit
}

// Validate checks the account definition.
func (a *SmtpAccount) Validate() error {
	if a.Host == "" {
		return &ValidationError{Field: "host", Message: "host is required"}
	}
	if a.Port <= 0 || a.Port > 65535 {
		return &ValidationError{Field: "port", Message: "port must be between 1 and 65535"}
	}
	if a.DailyLimit <= 0 {
		return &ValidationError{Field: "daily_limit", Message: "daily limit must be positive"}
	}
	switch a.Provider {
	case ProviderGmail, ProviderOutlook, ProviderCustom:
	default:
		return &ValidationError{Field: "provider", Message: "unknown provider: " + string(a.Provider)}
	}
	return nil
}
