package campaign

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mailerpro/mailerpro/internal/models"
	"github.com/mailerpro/mailerpro/internal/queue"
	"github.com/mailerpro/mailerpro/internal/rotation"
	"github.com/mailerpro/mailerpro/internal/scheduler"
	"github.com/mailerpro/mailerpro/internal/store"
)

var serviceTestTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *queue.BoltStorage, *store.CampaignRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	db, err := store.Open(filepath.Join(dir, "app.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	tasks, err := queue.NewBoltStorage(filepath.Join(dir, "tasks.db"))
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}
	t.Cleanup(func() { tasks.Close() })

	campaigns := store.NewCampaignRepository(db)
	contacts := store.NewContactRepository(db)
	accounts := store.NewAccountRepository(db)

	for i, email := range []string{"ada@example.com", "grace@example.com"} {
		c := &models.Contact{
			ID:        []string{"con-1", "con-2"}[i],
			UserID:    "user-1",
			FirstName: []string{"Ada", "Grace"}[i],
			Email:     email,
		}
		if err := contacts.Create(c); err != nil {
			t.Fatalf("failed to create contact: %v", err)
		}
	}
	account := &models.SmtpAccount{
		ID:         "acc-1",
		UserID:     "user-1",
		Name:       "primary",
		Provider:   models.ProviderCustom,
		Host:       "smtp.example.com",
		Port:       587,
		Username:   "sender@example.com",
		Password:   "secret",
		DailyLimit: 100,
		IsActive:   true,
	}
	if err := accounts.Create(account); err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	sched := scheduler.New(tasks, rotation.NewRotator(rotation.NewTracker()), logger)
	svc := NewService(campaigns, contacts, accounts, tasks, sched, logger)
	svc.SetClock(func() time.Time { return serviceTestTime })
	return svc, tasks, campaigns
}

func createDraft(t *testing.T, campaigns *store.CampaignRepository) *models.Campaign {
	t.Helper()
	c := &models.Campaign{
		ID:         "cam-1",
		UserID:     "user-1",
		Name:       "launch",
		Status:     models.CampaignDraft,
		ContactIDs: []string{"con-1", "con-2"},
		AccountIDs: []string{"acc-1"},
		Steps: []models.CampaignStep{
			{Order: 1, Variations: []models.Variation{
				{Name: "A", Subject: "Hello", Content: "Hi there", Weight: 100},
			}},
			{Order: 2, DelayDays: 3, Variations: []models.Variation{
				{Name: "A", Subject: "Following up", Content: "Bump", Weight: 100},
			}},
		},
	}
	if err := campaigns.Create(c); err != nil {
		t.Fatalf("failed to create campaign: %v", err)
	}
	return c
}

func TestStartSchedulesFirstStep(t *testing.T) {
	svc, tasks, campaigns := newTestService(t)
	c := createDraft(t, campaigns)
	ctx := context.Background()

	started, err := svc.Start(ctx, c.ID)
	if err != nil {
		t.Fatalf("failed to start campaign: %v", err)
	}
	if started.Status != models.CampaignSending {
		t.Errorf("status = %s, want %s", started.Status, models.CampaignSending)
	}

	list, err := tasks.ListByCampaign(ctx, c.ID)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d tasks, want 2", len(list))
	}
	for _, task := range list {
		if task.StepOrder != 1 {
			t.Errorf("task %s step = %d, want 1", task.ID, task.StepOrder)
		}
		if task.Status != models.TaskPending {
			t.Errorf("task %s status = %s, want %s", task.ID, task.Status, models.TaskPending)
		}
		if task.AccountID != "acc-1" {
			t.Errorf("task %s account = %q, want acc-1", task.ID, task.AccountID)
		}
	}

	// Persisted status matches the in-memory transition.
	got, err := campaigns.GetByID(c.ID)
	if err != nil {
		t.Fatalf("failed to load campaign: %v", err)
	}
	if got.Status != models.CampaignSending {
		t.Errorf("stored status = %s, want %s", got.Status, models.CampaignSending)
	}
}

func TestStartRejectsSendingCampaign(t *testing.T) {
	svc, _, campaigns := newTestService(t)
	c := createDraft(t, campaigns)
	ctx := context.Background()

	if _, err := svc.Start(ctx, c.ID); err != nil {
		t.Fatalf("failed to start campaign: %v", err)
	}

	_, err := svc.Start(ctx, c.ID)
	var tErr *InvalidStateTransitionError
	if !errors.As(err, &tErr) {
		t.Fatalf("got %v, want InvalidStateTransitionError", err)
	}
	if tErr.From != models.CampaignSending || tErr.Event != EventStart {
		t.Errorf("got transition error %v, want start from sending", tErr)
	}
}

func TestStartUnknownCampaign(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Start(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for unknown campaign")
	}
}

func TestPauseAndResume(t *testing.T) {
	svc, _, campaigns := newTestService(t)
	c := createDraft(t, campaigns)
	ctx := context.Background()

	if _, err := svc.Start(ctx, c.ID); err != nil {
		t.Fatalf("failed to start campaign: %v", err)
	}

	paused, err := svc.Pause(ctx, c.ID)
	if err != nil {
		t.Fatalf("failed to pause campaign: %v", err)
	}
	if paused.Status != models.CampaignPaused {
		t.Errorf("status = %s, want %s", paused.Status, models.CampaignPaused)
	}

	resumed, err := svc.Resume(ctx, c.ID)
	if err != nil {
		t.Fatalf("failed to resume campaign: %v", err)
	}
	if resumed.Status != models.CampaignSending {
		t.Errorf("status = %s, want %s", resumed.Status, models.CampaignSending)
	}

	got, err := campaigns.GetByID(c.ID)
	if err != nil {
		t.Fatalf("failed to load campaign: %v", err)
	}
	if got.Status != models.CampaignSending {
		t.Errorf("stored status = %s, want %s", got.Status, models.CampaignSending)
	}
}

func TestPauseDraftRejected(t *testing.T) {
	svc, _, campaigns := newTestService(t)
	c := createDraft(t, campaigns)

	_, err := svc.Pause(context.Background(), c.ID)
	var tErr *InvalidStateTransitionError
	if !errors.As(err, &tErr) {
		t.Fatalf("got %v, want InvalidStateTransitionError", err)
	}
}

// markSent resolves every queued task as sent at the given time.
func markSent(t *testing.T, tasks *queue.BoltStorage, campaignID string, at time.Time) {
	t.Helper()
	ctx := context.Background()
	list, err := tasks.ListByCampaign(ctx, campaignID)
	if err != nil {
		t.Fatalf("failed to list tasks: %v", err)
	}
	for _, task := range list {
		if task.Status != models.TaskPending {
			continue
		}
		task.Status = models.TaskSent
		sentAt := at
		task.SentAt = &sentAt
		task.UpdatedAt = at
		if err := tasks.Put(ctx, task); err != nil {
			t.Fatalf("failed to update task: %v", err)
		}
	}
}

func TestAdvanceEmitsFollowUpAfterDelay(t *testing.T) {
	svc, tasks, campaigns := newTestService(t)
	c := createDraft(t, campaigns)
	ctx := context.Background()

	started, err := svc.Start(ctx, c.ID)
	if err != nil {
		t.Fatalf("failed to start campaign: %v", err)
	}
	markSent(t, tasks, c.ID, serviceTestTime)

	// Before the step-2 delay elapses nothing is schedulable.
	created, err := svc.Advance(ctx, started)
	if err != nil {
		t.Fatalf("failed to advance campaign: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("got %d tasks before delay, want 0", len(created))
	}

	svc.SetClock(func() time.Time { return serviceTestTime.AddDate(0, 0, 3) })
	created, err = svc.Advance(ctx, started)
	if err != nil {
		t.Fatalf("failed to advance campaign: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("got %d tasks after delay, want 2", len(created))
	}
	for _, task := range created {
		if task.StepOrder != 2 {
			t.Errorf("task %s step = %d, want 2", task.ID, task.StepOrder)
		}
	}
}

func TestAdvanceCompletesWhenChainsResolve(t *testing.T) {
	svc, tasks, campaigns := newTestService(t)
	c := createDraft(t, campaigns)
	ctx := context.Background()

	started, err := svc.Start(ctx, c.ID)
	if err != nil {
		t.Fatalf("failed to start campaign: %v", err)
	}
	markSent(t, tasks, c.ID, serviceTestTime)

	svc.SetClock(func() time.Time { return serviceTestTime.AddDate(0, 0, 3) })
	if _, err := svc.Advance(ctx, started); err != nil {
		t.Fatalf("failed to advance campaign: %v", err)
	}
	markSent(t, tasks, c.ID, serviceTestTime.AddDate(0, 0, 3))

	if _, err := svc.Advance(ctx, started); err != nil {
		t.Fatalf("failed to advance campaign: %v", err)
	}
	if started.Status != models.CampaignSent {
		t.Errorf("status = %s, want %s", started.Status, models.CampaignSent)
	}
	got, err := campaigns.GetByID(c.ID)
	if err != nil {
		t.Fatalf("failed to load campaign: %v", err)
	}
	if got.Status != models.CampaignSent {
		t.Errorf("stored status = %s, want %s", got.Status, models.CampaignSent)
	}
}
