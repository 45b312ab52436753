package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailerpro/mailerpro/internal/models"
)

// ContactRepository stores contacts.
type ContactRepository struct {
	db *DB
}

// NewContactRepository creates a contact repository.
func NewContactRepository(db *DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// ContactFilter narrows contact listings.
type ContactFilter struct {
	UserID string
	Search string
	Tag    string
	Limit  int
	Offset int
}

// Create inserts a contact, rejecting duplicate emails per user.
func (r *ContactRepository) Create(c *models.Contact) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	tags, _ := json.Marshal(c.Tags)
	_, err := r.db.Exec(`
		INSERT INTO contacts (id, user_id, first_name, last_name, email, company, phone, tags, unsubscribed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.FirstName, c.LastName, c.Email, c.Company, c.Phone, string(tags), c.Unsubscribed, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return &models.ValidationError{Field: "email", Message: "contact with this email already exists"}
		}
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// GetByID returns a contact, nil when absent.
func (r *ContactRepository) GetByID(id string) (*models.Contact, error) {
	row := r.db.QueryRow(`
		SELECT id, user_id, first_name, last_name, email, company, phone, tags, unsubscribed, created_at, updated_at
		FROM contacts WHERE id = ?`, id)
	return scanContact(row)
}

// GetByIDs returns the contacts for an id set, preserving only ids
// that exist.
func (r *ContactRepository) GetByIDs(ids []string) ([]*models.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.Query(`
		SELECT id, user_id, first_name, last_name, email, company, phone, tags, unsubscribed, created_at, updated_at
		FROM contacts WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectContacts(rows)
}

// List returns contacts for a user with optional search and tag
// filtering.
func (r *ContactRepository) List(filter ContactFilter) ([]*models.Contact, error) {
	query := `
		SELECT id, user_id, first_name, last_name, email, company, phone, tags, unsubscribed, created_at, updated_at
		FROM contacts WHERE user_id = ?`
	args := []any{filter.UserID}

	if filter.Search != "" {
		query += " AND (first_name LIKE ? OR last_name LIKE ? OR email LIKE ? OR company LIKE ?)"
		like := "%" + filter.Search + "%"
		args = append(args, like, like, like, like)
	}
	if filter.Tag != "" {
		query += " AND tags LIKE ?"
		args = append(args, `%"`+filter.Tag+`"%`)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectContacts(rows)
}

// EmailExists reports whether the user already has a contact with
// this email.
func (r *ContactRepository) EmailExists(userID, email string) (bool, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM contacts WHERE user_id = ? AND email = ?`, userID, email).Scan(&n)
	return n > 0, err
}

// Update rewrites a contact's mutable fields.
func (r *ContactRepository) Update(c *models.Contact) error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.UpdatedAt = time.Now()

	tags, _ := json.Marshal(c.Tags)
	_, err := r.db.Exec(`
		UPDATE contacts
		SET first_name = ?, last_name = ?, email = ?, company = ?, phone = ?, tags = ?, unsubscribed = ?, updated_at = ?
		WHERE id = ?`,
		c.FirstName, c.LastName, c.Email, c.Company, c.Phone, string(tags), c.Unsubscribed, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	return nil
}

// Delete removes a contact.
func (r *ContactRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Count returns the number of contacts a user owns.
func (r *ContactRepository) Count(userID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM contacts WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (*models.Contact, error) {
	c := &models.Contact{}
	var tags string
	err := row.Scan(&c.ID, &c.UserID, &c.FirstName, &c.LastName, &c.Email, &c.Company, &c.Phone, &tags, &c.Unsubscribed, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(tags), &c.Tags)
	return c, nil
}

func collectContacts(rows *sql.Rows) ([]*models.Contact, error) {
	var out []*models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
