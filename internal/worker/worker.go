// Package worker runs the background send loop: it claims due tasks
// from the queue, pushes them through the executor and advances
// sending campaigns so follow-up steps get scheduled.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mailerpro/mailerpro/internal/campaign"
	"github.com/mailerpro/mailerpro/internal/executor"
	"github.com/mailerpro/mailerpro/internal/models"
	"github.com/mailerpro/mailerpro/internal/queue"
	"github.com/mailerpro/mailerpro/internal/store"
)

// Config contains worker tuning.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
}

// Deps bundles the worker's collaborators.
type Deps struct {
	Tasks     queue.TaskQueue
	Campaigns *store.CampaignRepository
	Contacts  *store.ContactRepository
	Accounts  *store.AccountRepository
	Executor  *executor.Executor
	Lifecycle *campaign.Service
}

// Worker is the background send loop.
type Worker struct {
	tasks     queue.TaskQueue
	campaigns *store.CampaignRepository
	contacts  *store.ContactRepository
	accounts  *store.AccountRepository
	executor  *executor.Executor
	lifecycle *campaign.Service

	pollInterval time.Duration
	batchSize    int
	logger       *slog.Logger
	now          func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a worker.
func New(deps Deps, cfg Config, logger *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{
		tasks:        deps.Tasks,
		campaigns:    deps.Campaigns,
		contacts:     deps.Contacts,
		accounts:     deps.Accounts,
		executor:     deps.Executor,
		lifecycle:    deps.Lifecycle,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		logger:       logger,
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
}

// SetClock overrides the time source, for tests.
func (w *Worker) SetClock(now func() time.Time) {
	w.now = now
}

// Start starts the poll loop.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting send worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
	)
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop stops the worker gracefully, waiting for an in-flight poll to
// finish.
func (w *Worker) Stop() {
	w.logger.Info("stopping send worker")
	close(w.stopCh)
	w.wg.Wait()
	w.logger.Info("send worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll runs one pass of the loop: execute every due task, then
// advance sending campaigns so the next steps are scheduled and
// completed campaigns are closed out.
func (w *Worker) Poll(ctx context.Context) {
	now := w.now()

	batch, err := w.tasks.Dequeue(ctx, now, w.batchSize)
	if err != nil {
		w.logger.Error("failed to dequeue tasks", "error", err)
		return
	}

	cache := make(map[string]*models.Campaign)
	for _, task := range batch {
		if err := w.process(ctx, task, cache, now); err != nil {
			w.logger.Error("failed to process task", "task_id", task.ID, "error", err)
		}
	}

	w.advanceAll(ctx)
}

// process executes one claimed task. Tasks whose campaign is paused
// are put back as pending without counting an attempt; tasks whose
// campaign or contact no longer exists are resolved so they stop
// recycling through the queue.
func (w *Worker) process(ctx context.Context, task *models.SendTask, cache map[string]*models.Campaign, now time.Time) error {
	c, ok := cache[task.CampaignID]
	if !ok {
		var err error
		c, err = w.campaigns.GetByID(task.CampaignID)
		if err != nil {
			return err
		}
		cache[task.CampaignID] = c
	}

	if c == nil {
		w.logger.Warn("dropping task for deleted campaign", "task_id", task.ID, "campaign_id", task.CampaignID)
		return w.tasks.Delete(ctx, task.ID)
	}
	if c.Status != models.CampaignSending {
		task.Status = models.TaskPending
		task.UpdatedAt = now
		return w.tasks.Put(ctx, task)
	}

	contact, err := w.contacts.GetByID(task.ContactID)
	if err != nil {
		return err
	}
	if contact == nil || contact.Unsubscribed {
		task.Status = models.TaskSkipped
		task.SkipReason = models.SkipUnsubscribed
		task.UpdatedAt = now
		return w.tasks.Put(ctx, task)
	}

	account, err := w.accounts.GetByID(task.AccountID)
	if err != nil {
		return err
	}
	if account == nil || !account.IsActive {
		// The assigned inbox is gone; release the task so the next
		// scheduling pass can reassign it.
		task.Status = models.TaskSkipped
		task.SkipReason = models.SkipQuotaExhausted
		task.AccountID = ""
		task.UpdatedAt = now
		return w.tasks.Put(ctx, task)
	}

	_, err = w.executor.Execute(ctx, task, c, contact, account)
	return err
}

// advanceAll runs a scheduling pass over every sending campaign.
func (w *Worker) advanceAll(ctx context.Context) {
	sending, err := w.campaigns.ListByStatus(models.CampaignSending)
	if err != nil {
		w.logger.Error("failed to list sending campaigns", "error", err)
		return
	}

	for _, c := range sending {
		if _, err := w.lifecycle.Advance(ctx, c); err != nil {
			w.logger.Error("failed to advance campaign", "campaign_id", c.ID, "error", err)
		}
	}
}
