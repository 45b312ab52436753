// Package scheduler expands a campaign into a time-ordered plan of
// send tasks, enforcing per-account daily caps, per-contact step
// sequencing and inter-message jitter.
package scheduler

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mailerpro/mailerpro/internal/metrics"
	"github.com/mailerpro/mailerpro/internal/models"
	"github.com/mailerpro/mailerpro/internal/queue"
	"github.com/mailerpro/mailerpro/internal/rotation"
	"github.com/mailerpro/mailerpro/internal/variant"
)

// Scheduler creates send tasks for campaigns.
type Scheduler struct {
	tasks   queue.TaskQueue
	rotator *rotation.Rotator
	logger  *slog.Logger
}

// New creates a scheduler.
func New(tasks queue.TaskQueue, rotator *rotation.Rotator, logger *slog.Logger) *Scheduler {
	return &Scheduler{tasks: tasks, rotator: rotator, logger: logger}
}

// Schedule runs the initial pass for a campaign: one step-1 task per
// contact, account assignments from the rotation pool, and scheduled
// times staggered per account by the campaign's jitter window.
// Contacts the pool has no quota left for get a quota-skipped task;
// they become schedulable again once quotas replenish.
func (s *Scheduler) Schedule(ctx context.Context, campaign *models.Campaign, contacts []*models.Contact, pool []*models.SmtpAccount, now time.Time) ([]*models.SendTask, error) {
	if err := campaign.Validate(); err != nil {
		return nil, err
	}
	p := s.newPass(campaign, pool, now)

	var out []*models.SendTask
	for _, contact := range sortedByID(contacts) {
		task, err := p.ensureStep(ctx, contact, 1, now)
		if err != nil {
			return nil, err
		}
		if task != nil {
			out = append(out, task)
		}
	}

	s.logger.Info("campaign scheduled",
		"campaign_id", campaign.ID,
		"contacts", len(contacts),
		"tasks", len(out),
	)
	return out, nil
}

// Advance runs an incremental pass: it emits step N>1 tasks for
// contacts whose previous step resolved as sent and whose delay has
// elapsed, materializes downstream skips behind failed or
// unsubscribed chains, and re-attempts contacts previously skipped
// for quota. It is idempotent and safe to call on resume.
func (s *Scheduler) Advance(ctx context.Context, campaign *models.Campaign, contacts []*models.Contact, pool []*models.SmtpAccount, now time.Time) ([]*models.SendTask, error) {
	p := s.newPass(campaign, pool, now)

	var out []*models.SendTask
	for _, contact := range sortedByID(contacts) {
		created, err := p.advanceContact(ctx, contact, now)
		if err != nil {
			return nil, err
		}
		out = append(out, created...)
	}
	return out, nil
}

// pass carries the per-invocation state of one scheduling pass; the
// cumulative per-account schedule lives here so consecutive sends
// from the same account are spread out instead of bursting.
type pass struct {
	s             *Scheduler
	campaign      *models.Campaign
	pool          []*models.SmtpAccount
	lastByAccount map[string]time.Time
}

func (s *Scheduler) newPass(campaign *models.Campaign, pool []*models.SmtpAccount, now time.Time) *pass {
	return &pass{
		s:             s,
		campaign:      campaign,
		pool:          pool,
		lastByAccount: make(map[string]time.Time),
	}
}

// advanceContact walks a contact's chain and emits whatever task is
// due next, if any.
func (p *pass) advanceContact(ctx context.Context, contact *models.Contact, now time.Time) ([]*models.SendTask, error) {
	prevSentAt := time.Time{}
	for _, step := range p.campaign.Steps {
		task, err := p.s.tasks.Find(ctx, p.campaign.ID, contact.ID, step.Order)
		if err != nil {
			return nil, err
		}

		if task == nil {
			// First missing step: schedulable only if this is step 1
			// or the previous step resolved as sent and its delay
			// elapsed.
			earliest := now
			if step.Order > 1 {
				if prevSentAt.IsZero() {
					return nil, nil
				}
				earliest = prevSentAt.AddDate(0, 0, step.DelayDays)
				if now.Before(earliest) {
					return nil, nil
				}
			}
			created, err := p.ensureStep(ctx, contact, step.Order, earliest)
			if err != nil || created == nil {
				return nil, err
			}
			return []*models.SendTask{created}, nil
		}

		switch task.Status {
		case models.TaskSent:
			if task.SentAt != nil {
				prevSentAt = *task.SentAt
			} else {
				prevSentAt = task.UpdatedAt
			}
			continue
		case models.TaskPending, models.TaskSending:
			return nil, nil
		case models.TaskFailed:
			skips, err := p.skipRemaining(ctx, contact, step.Order, models.SkipPreviousFailed, now)
			return skips, err
		case models.TaskSkipped:
			if task.SkipReason == models.SkipQuotaExhausted {
				// Quota skips are retryable once counters reset.
				updated, err := p.reschedule(ctx, task, contact, now)
				if err != nil || updated == nil {
					return nil, err
				}
				return []*models.SendTask{updated}, nil
			}
			return nil, nil
		}
	}
	return nil, nil
}

// ensureStep creates the task for (contact, step) when absent. The
// unsubscribed get a terminal skip chain instead of a send.
func (p *pass) ensureStep(ctx context.Context, contact *models.Contact, stepOrder int, earliest time.Time) (*models.SendTask, error) {
	existing, err := p.s.tasks.Find(ctx, p.campaign.ID, contact.ID, stepOrder)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Status == models.TaskSkipped && existing.SkipReason == models.SkipQuotaExhausted {
			return p.reschedule(ctx, existing, contact, earliest)
		}
		return nil, nil
	}

	if contact.Unsubscribed {
		skips, err := p.skipRemaining(ctx, contact, stepOrder-1, models.SkipUnsubscribed, earliest)
		if err != nil || len(skips) == 0 {
			return nil, err
		}
		return skips[0], nil
	}

	task := &models.SendTask{
		ID:         uuid.New().String(),
		CampaignID: p.campaign.ID,
		ContactID:  contact.ID,
		StepOrder:  stepOrder,
		CreatedAt:  earliest,
	}
	if err := p.assign(task, contact, earliest); err != nil {
		return nil, err
	}
	if err := p.s.tasks.Put(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// reschedule turns a quota-skipped task back into a pending one if
// the pool has capacity again.
func (p *pass) reschedule(ctx context.Context, task *models.SendTask, contact *models.Contact, earliest time.Time) (*models.SendTask, error) {
	if err := p.assign(task, contact, earliest); err != nil {
		return nil, err
	}
	if task.Status == models.TaskSkipped {
		// Still no quota; nothing changed.
		return nil, nil
	}
	if err := p.s.tasks.Put(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// assign picks the variation, sending account and scheduled time for
// a task. Without remaining pool quota the task becomes (or stays) a
// quota skip.
func (p *pass) assign(task *models.SendTask, contact *models.Contact, earliest time.Time) error {
	step := p.campaign.Step(task.StepOrder)
	if step == nil {
		return fmt.Errorf("campaign %s has no step %d", p.campaign.ID, task.StepOrder)
	}

	v := variant.Select(step.Variations, p.campaign.ABTesting, p.campaign.ID, contact.ID, task.StepOrder)
	if v == nil {
		return fmt.Errorf("step %d has no variations", task.StepOrder)
	}
	task.VariationName = v.Name

	account := p.s.rotator.Next(p.pool, p.campaign.DailyLimitPerInbox)
	if account == nil {
		if task.Status != models.TaskSkipped {
			metrics.IncTasksSkipped(p.campaign.ID, string(models.SkipQuotaExhausted))
			metrics.IncQuotaExhausted(p.campaign.ID)
		}
		task.Status = models.TaskSkipped
		task.SkipReason = models.SkipQuotaExhausted
		return nil
	}

	base := p.lastByAccount[account.ID]
	if base.Before(earliest) {
		base = earliest
	}
	scheduledAt := base.Add(p.jitter(contact.ID, task.StepOrder))
	p.lastByAccount[account.ID] = scheduledAt

	task.AccountID = account.ID
	task.ScheduledAt = scheduledAt
	task.Status = models.TaskPending
	task.SkipReason = ""
	return nil
}

// skipRemaining records terminal skips for every step after
// afterStep in a contact's chain. Idempotent.
func (p *pass) skipRemaining(ctx context.Context, contact *models.Contact, afterStep int, reason models.SkipReason, now time.Time) ([]*models.SendTask, error) {
	var out []*models.SendTask
	for _, step := range p.campaign.Steps {
		if step.Order <= afterStep {
			continue
		}
		existing, err := p.s.tasks.Find(ctx, p.campaign.ID, contact.ID, step.Order)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}
		skip := &models.SendTask{
			ID:         uuid.New().String(),
			CampaignID: p.campaign.ID,
			ContactID:  contact.ID,
			StepOrder:  step.Order,
			Status:     models.TaskSkipped,
			SkipReason: reason,
			CreatedAt:  now,
		}
		if err := p.s.tasks.Put(ctx, skip); err != nil {
			return nil, err
		}
		metrics.IncTasksSkipped(p.campaign.ID, string(reason))
		out = append(out, skip)
	}
	return out, nil
}

// jitter derives the inter-message delay for one task from the
// campaign's delay window. The draw is deterministic per (campaign,
// contact, step) so repeated passes produce the same plan.
func (p *pass) jitter(contactID string, stepOrder int) time.Duration {
	min, max := p.campaign.DelayMinSeconds, p.campaign.DelayMaxSeconds
	if max <= min {
		return time.Duration(min) * time.Second
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d|jitter", p.campaign.ID, contactID, stepOrder)
	span := uint64(max - min + 1)
	return time.Duration(min+int(h.Sum64()%span)) * time.Second
}

func sortedByID(contacts []*models.Contact) []*models.Contact {
	out := make([]*models.Contact, len(contacts))
	copy(out, contacts)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
