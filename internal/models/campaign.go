package models

import (
	"fmt"
	"time"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignPaused    CampaignStatus = "paused"
	CampaignSent      CampaignStatus = "sent"
)

// Variation is one A/B-tested content alternative for a step.
type Variation struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Content string `json:"content"`
	Weight  int    `json:"weight"` // relative likelihood, 0-100
}

// CampaignStep is one email in a campaign's sequence.
type CampaignStep struct {
	Order      int         `json:"sequence_order"` // 1-based
	DelayDays  int         `json:"delay_days"`     // after the previous step's send
	Variations []Variation `json:"variations"`
}

// Campaign is a multi-step outreach sequence sent to a set of
// contacts from a rotation pool of SMTP accounts.
type Campaign struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"user_id"`
	Name               string         `json:"name"`
	Description        string         `json:"description,omitempty"`
	Steps              []CampaignStep `json:"steps"`
	ContactIDs         []string       `json:"contact_ids"`
	AccountIDs         []string       `json:"account_ids"`
	DailyLimitPerInbox int            `json:"daily_limit_per_inbox"`
	DelayMinSeconds    int            `json:"delay_min_seconds"`
	DelayMaxSeconds    int            `json:"delay_max_seconds"`
	Personalization    bool           `json:"personalization_enabled"`
	ABTesting          bool           `json:"a_b_testing_enabled"`
	Status             CampaignStatus `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// Step returns the step with the given sequence order, or nil.
func (c *Campaign) Step(order int) *CampaignStep {
	for i := range c.Steps {
		if c.Steps[i].Order == order {
			return &c.Steps[i]
		}
	}
	return nil
}

// FinalStepOrder returns the highest sequence order, 0 when there
// are no steps.
func (c *Campaign) FinalStepOrder() int {
	max := 0
	for _, s := range c.Steps {
		if s.Order > max {
			max = s.Order
		}
	}
	return max
}

// Validate rejects malformed campaign definitions before they reach
// the scheduler.
func (c *Campaign) Validate() error {
	if c.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if len(c.Steps) == 0 {
		return &ValidationError{Field: "steps", Message: "campaign has no steps"}
	}
	prev := 0
	for i, step := range c.Steps {
		if step.Order != prev+1 {
			return &ValidationError{
				Field:   "steps",
				Message: fmt.Sprintf("step %d has sequence_order %d, want %d", i+1, step.Order, prev+1),
			}
		}
		prev = step.Order
		if step.DelayDays < 0 {
			return &ValidationError{
				Field:   "steps",
				Message: fmt.Sprintf("step %d has negative delay_days", step.Order),
			}
		}
		if len(step.Variations) == 0 {
			return &ValidationError{
				Field:   "steps",
				Message: fmt.Sprintf("step %d has no variations", step.Order),
			}
		}
		total := 0
		for _, v := range step.Variations {
			if v.Weight < 0 || v.Weight > 100 {
				return &ValidationError{
					Field:   "steps",
					Message: fmt.Sprintf("step %d variation %q weight out of range", step.Order, v.Name),
				}
			}
			total += v.Weight
		}
		if total == 0 {
			return &ValidationError{
				Field:   "steps",
				Message: fmt.Sprintf("step %d variation weights sum to zero", step.Order),
			}
		}
	}
	if c.DelayMinSeconds < 0 || c.DelayMaxSeconds < c.DelayMinSeconds {
		return &ValidationError{Field: "delay", Message: "invalid send delay window"}
	}
	if c.DailyLimitPerInbox < 0 {
		return &ValidationError{Field: "daily_limit_per_inbox", Message: "daily limit per inbox cannot be negative"}
	}
	if len(c.ContactIDs) == 0 {
		return &ValidationError{Field: "contact_ids", Message: "no contacts selected"}
	}
	if len(c.AccountIDs) == 0 {
		return &ValidationError{Field: "account_ids", Message: "no sending accounts selected"}
	}
	return nil
}
