package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mailerpro/mailerpro/internal/models"
	"github.com/mailerpro/mailerpro/internal/queue"
	"github.com/mailerpro/mailerpro/internal/scheduler"
	"github.com/mailerpro/mailerpro/internal/store"
)

// Service drives campaign lifecycle operations: start, pause, resume
// and the completion check. Collaborator stores are injected so tests
// can substitute fixtures.
type Service struct {
	campaigns *store.CampaignRepository
	contacts  *store.ContactRepository
	accounts  *store.AccountRepository
	tasks     queue.TaskQueue
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a campaign service.
func NewService(
	campaigns *store.CampaignRepository,
	contacts *store.ContactRepository,
	accounts *store.AccountRepository,
	tasks queue.TaskQueue,
	sched *scheduler.Scheduler,
	logger *slog.Logger,
) *Service {
	return &Service{
		campaigns: campaigns,
		contacts:  contacts,
		accounts:  accounts,
		tasks:     tasks,
		scheduler: sched,
		logger:    logger,
		now:       time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Start begins (or resumes) sending a campaign: it validates the
// definition, applies the lifecycle transition and runs the initial
// scheduling pass.
func (s *Service) Start(ctx context.Context, id string) (*models.Campaign, error) {
	c, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := Transition(c, EventStart); err != nil {
		return nil, err
	}

	contacts, pool, err := s.collaborators(c)
	if err != nil {
		return nil, err
	}
	if _, err := s.scheduler.Schedule(ctx, c, contacts, pool, s.now()); err != nil {
		return nil, err
	}
	if err := s.campaigns.UpdateStatus(c.ID, c.Status); err != nil {
		return nil, err
	}

	s.logger.Info("campaign started", "campaign_id", c.ID, "name", c.Name)
	return c, nil
}

// Pause stops new task dispatch for a campaign. In-flight sends are
// left to resolve.
func (s *Service) Pause(ctx context.Context, id string) (*models.Campaign, error) {
	c, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if err := Transition(c, EventPause); err != nil {
		return nil, err
	}
	if err := s.campaigns.UpdateStatus(c.ID, c.Status); err != nil {
		return nil, err
	}

	s.logger.Info("campaign paused", "campaign_id", c.ID)
	return c, nil
}

// Resume restarts a paused campaign and runs an Advance pass so
// contacts previously skipped for quota get another chance.
func (s *Service) Resume(ctx context.Context, id string) (*models.Campaign, error) {
	c, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if err := Transition(c, EventResume); err != nil {
		return nil, err
	}
	if err := s.campaigns.UpdateStatus(c.ID, c.Status); err != nil {
		return nil, err
	}

	if _, err := s.Advance(ctx, c); err != nil {
		s.logger.Error("advance on resume failed", "campaign_id", c.ID, "error", err)
	}

	s.logger.Info("campaign resumed", "campaign_id", c.ID)
	return c, nil
}

// Advance runs an incremental scheduling pass for a sending campaign
// and flips it to sent when no schedulable work remains.
func (s *Service) Advance(ctx context.Context, c *models.Campaign) ([]*models.SendTask, error) {
	contacts, pool, err := s.collaborators(c)
	if err != nil {
		return nil, err
	}

	created, err := s.scheduler.Advance(ctx, c, contacts, pool, s.now())
	if err != nil {
		return nil, err
	}

	done, err := s.complete(ctx, c, contacts)
	if err != nil {
		return created, err
	}
	if done {
		if err := Transition(c, EventComplete); err == nil {
			if err := s.campaigns.UpdateStatus(c.ID, c.Status); err != nil {
				return created, err
			}
			s.logger.Info("campaign completed", "campaign_id", c.ID)
		}
	}
	return created, nil
}

// complete reports whether every contact's chain is resolved: final
// step sent, or the chain terminated by a failure, unsubscribe or
// permanent skip. Quota skips keep the campaign alive.
func (s *Service) complete(ctx context.Context, c *models.Campaign, contacts []*models.Contact) (bool, error) {
	final := c.FinalStepOrder()
	for _, contact := range contacts {
		resolved := false
		for _, step := range c.Steps {
			task, err := s.tasks.Find(ctx, c.ID, contact.ID, step.Order)
			if err != nil {
				return false, err
			}
			if task == nil {
				return false, nil // chain not yet expanded
			}
			if !task.Resolved() {
				return false, nil
			}
			if task.Status == models.TaskSkipped && task.SkipReason == models.SkipQuotaExhausted {
				return false, nil // retryable once quota resets
			}
			if task.Status == models.TaskFailed || task.Status == models.TaskSkipped {
				resolved = true
				break
			}
			if step.Order == final && task.Status == models.TaskSent {
				resolved = true
			}
		}
		if !resolved {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) load(id string) (*models.Campaign, error) {
	c, err := s.campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("campaign not found: %s", id)
	}
	return c, nil
}

// collaborators resolves the campaign's contact set and rotation
// pool from their id sets.
func (s *Service) collaborators(c *models.Campaign) ([]*models.Contact, []*models.SmtpAccount, error) {
	contacts, err := s.contacts.GetByIDs(c.ContactIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load contacts: %w", err)
	}
	pool, err := s.accounts.GetByIDs(c.AccountIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load accounts: %w", err)
	}
	return contacts, pool, nil
}
