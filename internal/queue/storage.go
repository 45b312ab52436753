package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mailerpro/mailerpro/internal/models"
)

var (
	bucketTasks    = []byte("tasks")
	bucketDispatch = []byte("dispatch") // scheduled_at index for pending tasks
	bucketChain    = []byte("chain")    // campaign|contact|step -> task id
)

// BoltStorage implements TaskQueue using BoltDB.
type BoltStorage struct {
	db *bolt.DB
}

// NewBoltStorage opens (creating if needed) the task database.
func NewBoltStorage(path string) (*BoltStorage, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketTasks, bucketDispatch, bucketChain} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStorage{db: db}, nil
}

// Put inserts or updates a task. The dispatch index entry follows the
// task's status: present for pending tasks, absent otherwise.
func (s *BoltStorage) Put(ctx context.Context, task *models.SendTask) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		tasks := tx.Bucket(bucketTasks)
		dispatch := tx.Bucket(bucketDispatch)
		chain := tx.Bucket(bucketChain)

		// Drop the old index entry if the schedule changed.
		if old := tasks.Get([]byte(task.ID)); old != nil {
			var prev models.SendTask
			if err := json.Unmarshal(old, &prev); err == nil {
				dispatch.Delete(makeIndexKey(prev.ScheduledAt, prev.ID))
			}
		}

		task.UpdatedAt = time.Now()
		data, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}
		if err := tasks.Put([]byte(task.ID), data); err != nil {
			return fmt.Errorf("failed to store task: %w", err)
		}

		if err := chain.Put(chainKey(task.CampaignID, task.ContactID, task.StepOrder), []byte(task.ID)); err != nil {
			return fmt.Errorf("failed to index task chain: %w", err)
		}

		if task.Status == models.TaskPending {
			if err := dispatch.Put(makeIndexKey(task.ScheduledAt, task.ID), []byte(task.ID)); err != nil {
				return fmt.Errorf("failed to index task: %w", err)
			}
		}
		return nil
	})
}

// Get retrieves a task by ID.
func (s *BoltStorage) Get(ctx context.Context, id string) (*models.SendTask, error) {
	var task *models.SendTask

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTasks).Get([]byte(id))
		if data == nil {
			return nil
		}
		task = &models.SendTask{}
		return json.Unmarshal(data, task)
	})

	return task, err
}

// Dequeue claims due pending tasks, marking each as sending so a
// concurrent dispatcher cannot pick it up twice.
func (s *BoltStorage) Dequeue(ctx context.Context, now time.Time, limit int) ([]*models.SendTask, error) {
	var claimed []*models.SendTask

	err := s.db.Update(func(tx *bolt.Tx) error {
		tasks := tx.Bucket(bucketTasks)
		dispatch := tx.Bucket(bucketDispatch)

		c := dispatch.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(claimed) >= limit {
				break
			}
			if parseTimestampFromKey(k).After(now) {
				break // index is time-ordered, the rest are in the future
			}

			data := tasks.Get(v)
			if data == nil {
				c.Delete()
				continue
			}

			var task models.SendTask
			if err := json.Unmarshal(data, &task); err != nil {
				continue
			}
			if task.Status != models.TaskPending {
				c.Delete()
				continue
			}

			task.Status = models.TaskSending
			task.UpdatedAt = now
			updated, err := json.Marshal(&task)
			if err != nil {
				return err
			}
			if err := tasks.Put([]byte(task.ID), updated); err != nil {
				return err
			}
			if err := c.Delete(); err != nil {
				return err
			}
			claimed = append(claimed, &task)
		}
		return nil
	})

	return claimed, err
}

// Find returns the task for one (campaign, contact, step) triple.
func (s *BoltStorage) Find(ctx context.Context, campaignID, contactID string, stepOrder int) (*models.SendTask, error) {
	var task *models.SendTask

	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketChain).Get(chainKey(campaignID, contactID, stepOrder))
		if id == nil {
			return nil
		}
		data := tx.Bucket(bucketTasks).Get(id)
		if data == nil {
			return nil
		}
		task = &models.SendTask{}
		return json.Unmarshal(data, task)
	})

	return task, err
}

// ListByCampaign returns every task belonging to a campaign.
func (s *BoltStorage) ListByCampaign(ctx context.Context, campaignID string) ([]*models.SendTask, error) {
	var out []*models.SendTask

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTasks).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var task models.SendTask
			if err := json.Unmarshal(v, &task); err != nil {
				continue
			}
			if task.CampaignID == campaignID {
				t := task
				out = append(out, &t)
			}
		}
		return nil
	})

	return out, err
}

// Stats aggregates task counts per status. An empty campaignID
// aggregates over every campaign.
func (s *BoltStorage) Stats(ctx context.Context, campaignID string) (*TaskStats, error) {
	stats := &TaskStats{}

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketTasks).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var task models.SendTask
			if err := json.Unmarshal(v, &task); err != nil {
				continue
			}
			if campaignID != "" && task.CampaignID != campaignID {
				continue
			}

			stats.Total++
			switch task.Status {
			case models.TaskPending:
				stats.Pending++
			case models.TaskSending:
				stats.Sending++
			case models.TaskSent:
				stats.Sent++
			case models.TaskFailed:
				stats.Failed++
			case models.TaskSkipped:
				stats.Skipped++
			}
		}
		return nil
	})

	return stats, err
}

// Delete removes a task and its index entries.
func (s *BoltStorage) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		tasks := tx.Bucket(bucketTasks)

		data := tasks.Get([]byte(id))
		if data != nil {
			var task models.SendTask
			if err := json.Unmarshal(data, &task); err == nil {
				tx.Bucket(bucketDispatch).Delete(makeIndexKey(task.ScheduledAt, task.ID))
				tx.Bucket(bucketChain).Delete(chainKey(task.CampaignID, task.ContactID, task.StepOrder))
			}
		}
		return tasks.Delete([]byte(id))
	})
}

// Close closes the database.
func (s *BoltStorage) Close() error {
	return s.db.Close()
}

// DB returns the underlying bolt.DB instance.
func (s *BoltStorage) DB() *bolt.DB {
	return s.db
}

// makeIndexKey creates a sortable key from timestamp and ID.
func makeIndexKey(t time.Time, id string) []byte {
	return []byte(t.UTC().Format(time.RFC3339Nano) + ":" + id)
}

// parseTimestampFromKey extracts the timestamp from an index key.
func parseTimestampFromKey(key []byte) time.Time {
	s := string(key)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			ts, _ := time.Parse(time.RFC3339Nano, s[:i])
			return ts
		}
	}
	return time.Time{}
}

func chainKey(campaignID, contactID string, stepOrder int) []byte {
	return []byte(fmt.Sprintf("%s|%s|%d", campaignID, contactID, stepOrder))
}
