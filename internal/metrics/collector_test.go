package metrics

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

type fakeStatsProvider struct {
	stats *QueueStats
	err   error
}

func (p *fakeStatsProvider) QueueStats(ctx context.Context) (*QueueStats, error) {
	return p.stats, p.err
}

func gaugeValue(t *testing.T, g interface {
	Write(*dto.Metric) error
}) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestCollectorRefresh(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New()
	provider := &fakeStatsProvider{stats: &QueueStats{
		Pending: 7,
		Sending: 2,
		Failed:  1,
		Total:   10,
	}}

	c := NewCollector(m, provider, time.Second, logger)
	c.refresh(context.Background())

	if got := gaugeValue(t, m.TasksPending); got != 7 {
		t.Errorf("TasksPending = %f, want 7", got)
	}
	if got := gaugeValue(t, m.TasksSending); got != 2 {
		t.Errorf("TasksSending = %f, want 2", got)
	}
	if got := gaugeValue(t, m.TasksFailed); got != 1 {
		t.Errorf("TasksFailed = %f, want 1", got)
	}
	if got := gaugeValue(t, m.Goroutines); got <= 0 {
		t.Errorf("Goroutines = %f, want > 0", got)
	}
}

func TestCollectorNilProvider(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New()

	c := NewCollector(m, nil, time.Second, logger)
	// Should not panic
	c.refresh(context.Background())
}

func TestCollectorStartStop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New()
	provider := &fakeStatsProvider{stats: &QueueStats{Pending: 1}}

	c := NewCollector(m, provider, 10*time.Millisecond, logger)
	c.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	c.Stop()

	if got := gaugeValue(t, m.TasksPending); got != 1 {
		t.Errorf("TasksPending = %f, want 1", got)
	}
}
