package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mailerpro/mailerpro/internal/models"
)

// AccountRepository stores SMTP sending accounts.
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates an account repository.
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, user_id, name, provider, host, port, username, password, from_name, daily_limit, sent_today, is_active, verified, created_at, updated_at`

// Create inserts an account.
func (r *AccountRepository) Create(a *models.SmtpAccount) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO smtp_accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, a.Provider, a.Host, a.Port, a.Username, a.Password, a.FromName,
		a.DailyLimit, a.SentToday, a.IsActive, a.Verified, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create smtp account: %w", err)
	}
	return nil
}

// GetByID returns an account, nil when absent.
func (r *AccountRepository) GetByID(id string) (*models.SmtpAccount, error) {
	row := r.db.QueryRow(`SELECT `+accountColumns+` FROM smtp_accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// GetByIDs returns the accounts for an id set.
func (r *AccountRepository) GetByIDs(ids []string) ([]*models.SmtpAccount, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.Query(`SELECT `+accountColumns+` FROM smtp_accounts WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// ListActive returns every active account for a user.
func (r *AccountRepository) ListActive(userID string) ([]*models.SmtpAccount, error) {
	rows, err := r.db.Query(`SELECT `+accountColumns+` FROM smtp_accounts WHERE user_id = ? AND is_active = 1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// List returns every account for a user.
func (r *AccountRepository) List(userID string) ([]*models.SmtpAccount, error) {
	rows, err := r.db.Query(`SELECT `+accountColumns+` FROM smtp_accounts WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// ListAll returns every account across users. Used to seed the
// in-memory quota tracker at startup.
func (r *AccountRepository) ListAll() ([]*models.SmtpAccount, error) {
	rows, err := r.db.Query(`SELECT ` + accountColumns + ` FROM smtp_accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// Update rewrites an account's mutable fields.
func (r *AccountRepository) Update(a *models.SmtpAccount) error {
	if err := a.Validate(); err != nil {
		return err
	}
	a.UpdatedAt = time.Now()

	_, err := r.db.Exec(`
		UPDATE smtp_accounts
		SET name = ?, provider = ?, host = ?, port = ?, username = ?, password = ?, from_name = ?,
			daily_limit = ?, is_active = ?, verified = ?, updated_at = ?
		WHERE id = ?`,
		a.Name, a.Provider, a.Host, a.Port, a.Username, a.Password, a.FromName,
		a.DailyLimit, a.IsActive, a.Verified, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update smtp account: %w", err)
	}
	return nil
}

// Delete removes an account.
func (r *AccountRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM smtp_accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete smtp account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RecordSend increments the account's daily sent counter after a
// successful delivery. Satisfies the executor's UsageRecorder.
func (r *AccountRepository) RecordSend(ctx context.Context, accountID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE smtp_accounts SET sent_today = sent_today + 1, updated_at = ? WHERE id = ?`,
		at, accountID,
	)
	if err != nil {
		return fmt.Errorf("failed to record send: %w", err)
	}
	return nil
}

// ResetDailyCounts zeroes sent_today for every account. Called by
// the day-rollover job at midnight UTC.
func (r *AccountRepository) ResetDailyCounts() error {
	_, err := r.db.Exec(`UPDATE smtp_accounts SET sent_today = 0, updated_at = ?`, time.Now())
	if err != nil {
		return fmt.Errorf("failed to reset daily counts: %w", err)
	}
	return nil
}

func scanAccount(row rowScanner) (*models.SmtpAccount, error) {
	a := &models.SmtpAccount{}
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.Provider, &a.Host, &a.Port, &a.Username, &a.Password, &a.FromName,
		&a.DailyLimit, &a.SentToday, &a.IsActive, &a.Verified, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func collectAccounts(rows *sql.Rows) ([]*models.SmtpAccount, error) {
	var out []*models.SmtpAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
