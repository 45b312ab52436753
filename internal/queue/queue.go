// Package queue persists send tasks in BoltDB with a time-ordered
// dispatch index, so due tasks and backoff retries are both picked up
// by the same scan.
package queue

import (
	"context"
	"time"

	"github.com/mailerpro/mailerpro/internal/models"
)

// TaskQueue is the storage interface for send tasks.
type TaskQueue interface {
	// Put inserts or updates a task and maintains the dispatch index.
	Put(ctx context.Context, task *models.SendTask) error

	// Get retrieves a task by ID, nil when absent.
	Get(ctx context.Context, id string) (*models.SendTask, error)

	// Dequeue claims up to limit pending tasks whose scheduled_at is
	// due, marking them as sending.
	Dequeue(ctx context.Context, now time.Time, limit int) ([]*models.SendTask, error)

	// Find returns the task for a (campaign, contact, step) triple,
	// nil when none exists.
	Find(ctx context.Context, campaignID, contactID string, stepOrder int) (*models.SendTask, error)

	// ListByCampaign returns every task belonging to a campaign.
	ListByCampaign(ctx context.Context, campaignID string) ([]*models.SendTask, error)

	// Stats aggregates task counts per status for a campaign, or for
	// every campaign when campaignID is empty.
	Stats(ctx context.Context, campaignID string) (*TaskStats, error)

	// Delete removes a task and its index entries.
	Delete(ctx context.Context, id string) error

	// Close closes the storage.
	Close() error
}

// TaskStats holds per-status task counts for a campaign.
type TaskStats struct {
	Total   int64 `json:"total"`
	Pending int64 `json:"pending"`
	Sending int64 `json:"sending"`
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Skipped int64 `json:"skipped"`
}
