// Package campaign tracks campaign lifecycle state and orchestrates
// scheduling passes around it.
package campaign

import (
	"fmt"

	"github.com/mailerpro/mailerpro/internal/models"
)

// Event is a campaign lifecycle trigger.
type Event string

const (
	EventStart    Event = "start"
	EventPause    Event = "pause"
	EventResume   Event = "resume"
	EventComplete Event = "complete" // derived, never caller-issued
)

// InvalidStateTransitionError reports a rejected lifecycle event. The
// campaign's status is left unchanged; transitions never silently
// no-op.
type InvalidStateTransitionError struct {
	From  models.CampaignStatus
	Event Event
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: cannot %s a campaign in status %q", e.Event, e.From)
}

// transitions maps (current status, event) to the next status.
var transitions = map[models.CampaignStatus]map[Event]models.CampaignStatus{
	models.CampaignDraft: {
		EventStart: models.CampaignSending,
	},
	models.CampaignScheduled: {
		EventStart: models.CampaignSending,
		EventPause: models.CampaignPaused,
	},
	models.CampaignSending: {
		EventPause:    models.CampaignPaused,
		EventComplete: models.CampaignSent,
	},
	models.CampaignPaused: {
		EventStart:  models.CampaignSending,
		EventResume: models.CampaignSending,
	},
}

// Transition applies a lifecycle event to the campaign, mutating its
// status on success.
func Transition(c *models.Campaign, event Event) error {
	next, ok := transitions[c.Status][event]
	if !ok {
		return &InvalidStateTransitionError{From: c.Status, Event: event}
	}
	c.Status = next
	return nil
}

// CanTransition reports whether the event is legal for the status.
func CanTransition(status models.CampaignStatus, event Event) bool {
	_, ok := transitions[status][event]
	return ok
}
