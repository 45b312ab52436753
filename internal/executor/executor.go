// Package executor drains scheduled send tasks: it renders content,
// invokes the mail transport, classifies the outcome and drives the
// retry and permanent-failure policy.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mailerpro/mailerpro/internal/metrics"
	"github.com/mailerpro/mailerpro/internal/models"
	"github.com/mailerpro/mailerpro/internal/queue"
	"github.com/mailerpro/mailerpro/internal/template"
	"github.com/mailerpro/mailerpro/internal/transport"
)

// UsageRecorder persists a successful send against the account's
// daily counter.
type UsageRecorder interface {
	RecordSend(ctx context.Context, accountID string, at time.Time) error
}

// Config holds executor tuning.
type Config struct {
	SendTimeout time.Duration // per-send transport timeout
	MaxRetries  int           // retries after the first attempt
	BackoffBase time.Duration // first retry delay, doubled per attempt
}

// DefaultConfig returns the production retry policy: 30s transport
// timeout, three retries at 60s, 120s and 240s.
func DefaultConfig() Config {
	return Config{
		SendTimeout: 30 * time.Second,
		MaxRetries:  3,
		BackoffBase: 60 * time.Second,
	}
}

// Executor executes send tasks.
type Executor struct {
	mailer transport.Mailer
	tasks  queue.TaskQueue
	usage  UsageRecorder
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates an executor. usage may be nil when no persistence of
// account counters is wanted (tests).
func New(mailer transport.Mailer, tasks queue.TaskQueue, usage UsageRecorder, cfg Config, logger *slog.Logger) *Executor {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 60 * time.Second
	}
	return &Executor{
		mailer: mailer,
		tasks:  tasks,
		usage:  usage,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (e *Executor) SetClock(now func() time.Time) {
	e.now = now
}

// Outcome describes the result of one execution attempt.
type Outcome struct {
	Task      *models.SendTask
	Delivered bool
	Kind      models.ErrorKind
	Retrying  bool
	NextRetry time.Time
}

// Execute performs one delivery attempt for a claimed task. It
// updates the task in the queue: sent on success, pending with a
// backoff schedule on a retryable failure, failed (with downstream
// steps skipped) on a permanent one.
func (e *Executor) Execute(ctx context.Context, task *models.SendTask, campaign *models.Campaign, contact *models.Contact, account *models.SmtpAccount) (*Outcome, error) {
	step := campaign.Step(task.StepOrder)
	if step == nil {
		return nil, fmt.Errorf("campaign %s has no step %d", campaign.ID, task.StepOrder)
	}
	variation := findVariation(step, task.VariationName)
	if variation == nil {
		return nil, fmt.Errorf("step %d has no variation %q", task.StepOrder, task.VariationName)
	}

	subject, body := variation.Subject, variation.Content
	if campaign.Personalization {
		attrs := contact.Attributes()
		subject = template.Render(subject, attrs)
		body = template.Render(body, attrs)
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.cfg.SendTimeout)
	err := e.mailer.Send(sendCtx, account, &transport.Message{
		To:      contact.Email,
		Subject: subject,
		Body:    body,
	})
	cancel()

	now := e.now()
	task.Attempts++

	if err == nil {
		task.Status = models.TaskSent
		task.SentAt = &now
		task.LastError = ""
		task.LastErrorMsg = ""
		if putErr := e.tasks.Put(ctx, task); putErr != nil {
			return nil, fmt.Errorf("failed to update task: %w", putErr)
		}
		if e.usage != nil {
			if recErr := e.usage.RecordSend(ctx, account.ID, now); recErr != nil {
				e.logger.Error("failed to record account usage", "account_id", account.ID, "error", recErr)
			}
		}
		metrics.IncEmailsSent(task.CampaignID)
		e.logger.Info("email sent",
			"task_id", task.ID,
			"campaign_id", task.CampaignID,
			"contact_id", task.ContactID,
			"step", task.StepOrder,
			"account_id", account.ID,
		)
		return &Outcome{Task: task, Delivered: true}, nil
	}

	kind := Classify(err, account.Provider)
	task.LastError = kind
	task.LastErrorMsg = err.Error()

	if kind.Retryable() && task.Attempts <= e.cfg.MaxRetries {
		backoff := e.cfg.BackoffBase << (task.Attempts - 1)
		task.Status = models.TaskPending
		task.ScheduledAt = now.Add(backoff)
		if putErr := e.tasks.Put(ctx, task); putErr != nil {
			return nil, fmt.Errorf("failed to defer task: %w", putErr)
		}
		metrics.IncEmailsRetried(task.CampaignID, string(kind))
		e.logger.Warn("send failed, retrying",
			"task_id", task.ID,
			"kind", kind,
			"attempt", task.Attempts,
			"next_retry_at", task.ScheduledAt,
		)
		return &Outcome{Task: task, Kind: kind, Retrying: true, NextRetry: task.ScheduledAt}, nil
	}

	// Permanent failure: the rest of this contact's chain is skipped.
	task.Status = models.TaskFailed
	if putErr := e.tasks.Put(ctx, task); putErr != nil {
		return nil, fmt.Errorf("failed to fail task: %w", putErr)
	}
	if skipErr := e.skipDownstream(ctx, task, campaign, now); skipErr != nil {
		e.logger.Error("failed to skip downstream steps", "task_id", task.ID, "error", skipErr)
	}
	metrics.IncEmailsFailed(task.CampaignID, string(kind))
	e.logger.Error("send failed permanently",
		"task_id", task.ID,
		"kind", kind,
		"attempts", task.Attempts,
		"detail", OwnerMessage(kind),
	)
	return &Outcome{Task: task, Kind: kind}, nil
}

// skipDownstream records skipped tasks for every later step of the
// failed contact's chain, so dashboards can report the exact reason.
func (e *Executor) skipDownstream(ctx context.Context, failed *models.SendTask, campaign *models.Campaign, now time.Time) error {
	for _, step := range campaign.Steps {
		if step.Order <= failed.StepOrder {
			continue
		}
		existing, err := e.tasks.Find(ctx, failed.CampaignID, failed.ContactID, step.Order)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		skip := &models.SendTask{
			ID:         uuid.New().String(),
			CampaignID: failed.CampaignID,
			ContactID:  failed.ContactID,
			StepOrder:  step.Order,
			Status:     models.TaskSkipped,
			SkipReason: models.SkipPreviousFailed,
			CreatedAt:  now,
		}
		if err := e.tasks.Put(ctx, skip); err != nil {
			return err
		}
	}
	return nil
}

func findVariation(step *models.CampaignStep, name string) *models.Variation {
	for i := range step.Variations {
		if step.Variations[i].Name == name {
			return &step.Variations[i]
		}
	}
	return nil
}
