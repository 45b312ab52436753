package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}

	if m.Registry() == nil {
		t.Error("Registry() returned nil")
	}

	// Check that all metrics are registered
	if m.EmailsSentTotal == nil {
		t.Error("EmailsSentTotal is nil")
	}
	if m.EmailsFailedTotal == nil {
		t.Error("EmailsFailedTotal is nil")
	}
	if m.EmailsRetriedTotal == nil {
		t.Error("EmailsRetriedTotal is nil")
	}
	if m.TasksSkippedTotal == nil {
		t.Error("TasksSkippedTotal is nil")
	}
	if m.TasksPending == nil {
		t.Error("TasksPending is nil")
	}
	if m.QuotaExhaustedTotal == nil {
		t.Error("QuotaExhaustedTotal is nil")
	}
	if m.APIRequestsTotal == nil {
		t.Error("APIRequestsTotal is nil")
	}
	if m.APIRequestDurationSeconds == nil {
		t.Error("APIRequestDurationSeconds is nil")
	}
}

func TestGlobalMetrics(t *testing.T) {
	// Initially global should be nil
	if Global() != nil {
		t.Error("Global() should be nil before SetGlobal")
	}

	m := New()
	SetGlobal(m)

	if Global() != m {
		t.Error("Global() did not return the set metrics")
	}

	// Cleanup
	SetGlobal(nil)
}

func counterValue(t *testing.T, c interface {
	Write(*dto.Metric) error
}) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func TestIncEmailsSent(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncEmailsSent("cam-1")
	IncEmailsSent("cam-1")
	IncEmailsSent("cam-2")

	counter, err := m.EmailsSentTotal.GetMetricWithLabelValues("cam-1")
	if err != nil {
		t.Fatalf("Failed to get counter: %v", err)
	}
	if got := counterValue(t, counter); got != 2 {
		t.Errorf("Expected counter value 2, got %f", got)
	}
}

func TestIncEmailsFailed(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncEmailsFailed("cam-1", "authentication_failed")
	IncEmailsFailed("cam-1", "connection_failed")
	IncEmailsFailed("cam-1", "authentication_failed")

	counter, err := m.EmailsFailedTotal.GetMetricWithLabelValues("cam-1", "authentication_failed")
	if err != nil {
		t.Fatalf("Failed to get counter: %v", err)
	}
	if got := counterValue(t, counter); got != 2 {
		t.Errorf("Expected counter value 2, got %f", got)
	}
}

func TestIncTasksSkipped(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncTasksSkipped("cam-1", "quota_exhausted")
	IncTasksSkipped("cam-1", "unsubscribed")

	counter, err := m.TasksSkippedTotal.GetMetricWithLabelValues("cam-1", "quota_exhausted")
	if err != nil {
		t.Fatalf("Failed to get counter: %v", err)
	}
	if got := counterValue(t, counter); got != 1 {
		t.Errorf("Expected counter value 1, got %f", got)
	}
}

func TestHelpersWithNilGlobal(t *testing.T) {
	SetGlobal(nil)

	// None of these should panic without a global instance
	IncEmailsSent("cam-1")
	IncEmailsFailed("cam-1", "unknown")
	IncEmailsRetried("cam-1", "connection_failed")
	IncTasksSkipped("cam-1", "quota_exhausted")
	IncQuotaExhausted("cam-1")
}
