package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mailerpro/mailerpro/internal/models"
)

// CampaignRepository stores campaign definitions. Steps and
// variations are owned by the campaign and serialized with it.
type CampaignRepository struct {
	db *DB
}

// NewCampaignRepository creates a campaign repository.
func NewCampaignRepository(db *DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

const campaignColumns = `id, user_id, name, description, steps, contact_ids, account_ids, daily_limit_per_inbox, delay_min_seconds, delay_max_seconds, personalization, ab_testing, status, created_at, updated_at`

// Create inserts a campaign in draft status.
func (r *CampaignRepository) Create(c *models.Campaign) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = models.CampaignDraft
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	steps, _ := json.Marshal(c.Steps)
	contactIDs, _ := json.Marshal(c.ContactIDs)
	accountIDs, _ := json.Marshal(c.AccountIDs)

	_, err := r.db.Exec(`
		INSERT INTO campaigns (`+campaignColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, c.Description, string(steps), string(contactIDs), string(accountIDs),
		c.DailyLimitPerInbox, c.DelayMinSeconds, c.DelayMaxSeconds, c.Personalization, c.ABTesting,
		c.Status, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID returns a campaign, nil when absent.
func (r *CampaignRepository) GetByID(id string) (*models.Campaign, error) {
	row := r.db.QueryRow(`SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
	return scanCampaign(row)
}

// List returns a user's campaigns, newest first.
func (r *CampaignRepository) List(userID string) ([]*models.Campaign, error) {
	rows, err := r.db.Query(`SELECT `+campaignColumns+` FROM campaigns WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListByStatus returns every campaign in the given status, across
// users. Used by the worker to find sending campaigns.
func (r *CampaignRepository) ListByStatus(status models.CampaignStatus) ([]*models.Campaign, error) {
	rows, err := r.db.Query(`SELECT `+campaignColumns+` FROM campaigns WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update rewrites a draft campaign's definition.
func (r *CampaignRepository) Update(c *models.Campaign) error {
	if err := c.Validate(); err != nil {
		return err
	}
	c.UpdatedAt = time.Now()

	steps, _ := json.Marshal(c.Steps)
	contactIDs, _ := json.Marshal(c.ContactIDs)
	accountIDs, _ := json.Marshal(c.AccountIDs)

	_, err := r.db.Exec(`
		UPDATE campaigns
		SET name = ?, description = ?, steps = ?, contact_ids = ?, account_ids = ?,
			daily_limit_per_inbox = ?, delay_min_seconds = ?, delay_max_seconds = ?,
			personalization = ?, ab_testing = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Description, string(steps), string(contactIDs), string(accountIDs),
		c.DailyLimitPerInbox, c.DelayMinSeconds, c.DelayMaxSeconds,
		c.Personalization, c.ABTesting, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign: %w", err)
	}
	return nil
}

// UpdateStatus persists a lifecycle transition.
func (r *CampaignRepository) UpdateStatus(id string, status models.CampaignStatus) error {
	_, err := r.db.Exec(`UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}
	return nil
}

// Delete removes a campaign together with its steps and variations.
func (r *CampaignRepository) Delete(id string) error {
	res, err := r.db.Exec(`DELETE FROM campaigns WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Count returns the number of campaigns a user owns.
func (r *CampaignRepository) Count(userID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM campaigns WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	c := &models.Campaign{}
	var steps, contactIDs, accountIDs string
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Description, &steps, &contactIDs, &accountIDs,
		&c.DailyLimitPerInbox, &c.DelayMinSeconds, &c.DelayMaxSeconds,
		&c.Personalization, &c.ABTesting, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(steps), &c.Steps)
	json.Unmarshal([]byte(contactIDs), &c.ContactIDs)
	json.Unmarshal([]byte(accountIDs), &c.AccountIDs)
	return c, nil
}
