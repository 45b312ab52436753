package rotation

import (
	"sync"
	"testing"

	"github.com/mailerpro/mailerpro/internal/models"
)

func account(id string, limit int) *models.SmtpAccount {
	return &models.SmtpAccount{
		ID:         id,
		Host:       "smtp.example.com",
		Port:       587,
		DailyLimit: limit,
		IsActive:   true,
	}
}

func TestNextRoundRobin(t *testing.T) {
	tracker := NewTracker()
	rotator := NewRotator(tracker)

	pool := []*models.SmtpAccount{
		account("acc-a", 10),
		account("acc-b", 10),
		account("acc-c", 10),
	}

	var got []string
	for i := 0; i < 6; i++ {
		a := rotator.Next(pool, 0)
		if a == nil {
			t.Fatalf("Next() = nil at draw %d", i)
		}
		got = append(got, a.ID)
	}

	want := []string{"acc-a", "acc-b", "acc-c", "acc-a", "acc-b", "acc-c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotation order = %v, want %v", got, want)
		}
	}
}

func TestNextRespectsDailyLimit(t *testing.T) {
	tracker := NewTracker()
	rotator := NewRotator(tracker)

	pool := []*models.SmtpAccount{account("acc-a", 2)}

	for i := 0; i < 2; i++ {
		if a := rotator.Next(pool, 0); a == nil {
			t.Fatalf("Next() = nil before limit reached")
		}
	}
	if a := rotator.Next(pool, 0); a != nil {
		t.Fatalf("Next() = %s after limit reached, want nil", a.ID)
	}
	if got := tracker.Count("acc-a"); got != 2 {
		t.Errorf("tracker count = %d, want 2", got)
	}
}

func TestNextCampaignCapBelowAccountLimit(t *testing.T) {
	tracker := NewTracker()
	rotator := NewRotator(tracker)

	pool := []*models.SmtpAccount{account("acc-a", 100)}

	for i := 0; i < 3; i++ {
		if a := rotator.Next(pool, 3); a == nil {
			t.Fatalf("Next() = nil before campaign cap reached")
		}
	}
	if a := rotator.Next(pool, 3); a != nil {
		t.Fatalf("Next() exceeded campaign per-inbox cap")
	}
}

func TestNextSkipsInactiveAndExhausted(t *testing.T) {
	tracker := NewTracker()
	tracker.Set("acc-b", 5)
	rotator := NewRotator(tracker)

	inactive := account("acc-a", 10)
	inactive.IsActive = false
	exhausted := account("acc-b", 5)
	ok := account("acc-c", 10)

	pool := []*models.SmtpAccount{inactive, exhausted, ok}

	a := rotator.Next(pool, 0)
	if a == nil || a.ID != "acc-c" {
		t.Fatalf("Next() = %v, want acc-c", a)
	}
}

func TestNextSeededFromSentToday(t *testing.T) {
	tracker := NewTracker()
	tracker.Set("acc-a", 9)
	rotator := NewRotator(tracker)

	pool := []*models.SmtpAccount{account("acc-a", 10)}

	if a := rotator.Next(pool, 0); a == nil {
		t.Fatalf("Next() = nil with one slot remaining")
	}
	if a := rotator.Next(pool, 0); a != nil {
		t.Fatalf("Next() ignored persisted sent_today")
	}
}

func TestConcurrentCampaignsSharedAccount(t *testing.T) {
	tracker := NewTracker()

	const limit = 50
	pool := []*models.SmtpAccount{account("shared", limit)}

	// Two campaigns, each with its own rotator, race over one
	// account. Together they must never exceed the daily limit.
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for c := 0; c < 2; c++ {
		rotator := NewRotator(tracker)
		wg.Add(1)
		go func(r *Rotator) {
			defer wg.Done()
			for i := 0; i < limit; i++ {
				if a := r.Next(pool, 0); a != nil {
					mu.Lock()
					granted++
					mu.Unlock()
				}
			}
		}(rotator)
	}
	wg.Wait()

	if granted != limit {
		t.Errorf("granted %d sends across campaigns, want exactly %d", granted, limit)
	}
	if got := tracker.Count("shared"); got != limit {
		t.Errorf("tracker count = %d, want %d", got, limit)
	}
}

func TestTrackerReset(t *testing.T) {
	tracker := NewTracker()
	tracker.Set("acc-a", 10)
	tracker.Reset()

	if got := tracker.Count("acc-a"); got != 0 {
		t.Errorf("count after reset = %d, want 0", got)
	}
}
