package rotation

import (
	"sort"
	"sync"

	"github.com/mailerpro/mailerpro/internal/models"
)

// Rotator selects the next sending account from a pool. Selection is
// least-recently-used first so load spreads evenly instead of
// exhausting one account before touching the next; providers throttle
// accounts that send in bursts.
type Rotator struct {
	tracker *Tracker

	mu       sync.Mutex
	lastUsed map[string]uint64
	seq      uint64
}

// NewRotator creates a rotator backed by the shared usage tracker.
func NewRotator(tracker *Tracker) *Rotator {
	return &Rotator{
		tracker:  tracker,
		lastUsed: make(map[string]uint64),
	}
}

// Next returns the next account eligible to send, reserving one slot
// of its daily quota, or nil when every account in the pool is
// inactive or exhausted. A nil result means "cannot schedule more
// today", not an error.
func (r *Rotator) Next(pool []*models.SmtpAccount, campaignCap int) *models.SmtpAccount {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Least-recently-used first; ties broken by id for determinism.
	candidates := make([]*models.SmtpAccount, 0, len(pool))
	for _, a := range pool {
		if a.IsActive {
			candidates = append(candidates, a)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ui, uj := r.lastUsed[candidates[i].ID], r.lastUsed[candidates[j].ID]
		if ui != uj {
			return ui < uj
		}
		return candidates[i].ID < candidates[j].ID
	})

	for _, a := range candidates {
		if r.tracker.Reserve(a.ID, a.EffectiveLimit(campaignCap)) {
			r.seq++
			r.lastUsed[a.ID] = r.seq
			return a
		}
	}
	return nil
}
