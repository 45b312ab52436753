package models

import (
	"net/mail"
	"strings"
	"time"
)

// Contact is a single outreach recipient owned by a user.
type Contact struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name,omitempty"`
	Email        string    `json:"email"`
	Company      string    `json:"company,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Unsubscribed bool      `json:"unsubscribed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FullName joins first and last name, collapsing to just the first
// name when the last name is absent.
func (c *Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// Attributes returns the substitution variables for this contact.
func (c *Contact) Attributes() map[string]string {
	return map[string]string{
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"full_name":  c.FullName(),
		"email":      c.Email,
		"company":    c.Company,
		"phone":      c.Phone,
	}
}

// Validate checks required fields and email format.
func (c *Contact) Validate() error {
	if c.FirstName == "" {
		return &ValidationError{Field: "first_name", Message: "first name is required"}
	}
	if c.Email == "" {
		return &ValidationError{Field: "email", Message: "email is required"}
	}
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return &ValidationError{Field: "email", Message: "invalid email address: " + c.Email}
	}
	return nil
}
