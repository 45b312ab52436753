// Package rotation assigns sending accounts to outbound emails,
// spreading load round-robin across a campaign's pool while holding
// every account under its daily cap.
package rotation

import "sync"

// Tracker holds per-account daily usage counters. It is shared by
// every campaign in the process: reservation is a single
// check-and-increment under one lock, so two campaigns racing over a
// shared account can never together exceed its limit.
type Tracker struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewTracker creates an empty usage tracker.
func NewTracker() *Tracker {
	return &Tracker{counts: make(map[string]int)}
}

// Set seeds the counter for an account, typically from the persisted
// sent_today value at startup.
func (t *Tracker) Set(accountID string, count int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[accountID] = count
}

// Reserve consumes one send slot for the account if usage is still
// under limit. It returns false when the account is exhausted.
func (t *Tracker) Reserve(accountID string, limit int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.counts[accountID] >= limit {
		return false
	}
	t.counts[accountID]++
	return true
}

// Count returns the current usage for an account.
func (t *Tracker) Count(accountID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[accountID]
}

// Reset zeroes all counters. Called by the day-rollover job at the
// provider reset boundary (midnight UTC).
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = make(map[string]int)
}
