package metrics

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// QueueStats contains task queue statistics for metrics
type QueueStats struct {
	Pending int
	Sending int
	Sent    int
	Failed  int
	Skipped int
	Total   int
}

// QueueStatsProvider provides task queue statistics for metrics
type QueueStatsProvider interface {
	QueueStats(ctx context.Context) (*QueueStats, error)
}

// Collector periodically refreshes the queue and system gauges.
type Collector struct {
	metrics    *Metrics
	queueStats QueueStatsProvider
	interval   time.Duration
	startTime  time.Time
	logger     *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new metrics collector
func NewCollector(m *Metrics, queueStats QueueStatsProvider, interval time.Duration, logger *slog.Logger) *Collector {
	if interval == 0 {
		interval = 10 * time.Second
	}
	return &Collector{
		metrics:    m,
		queueStats: queueStats,
		interval:   interval,
		startTime:  time.Now(),
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the collector background loop
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.loop(ctx)
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

func (c *Collector) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.refresh(ctx)
	for {
		select {
		case <-ticker.C:
			c.refresh(ctx)
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Collector) refresh(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.queueStats == nil {
		return
	}
	stats, err := c.queueStats.QueueStats(ctx)
	if err != nil {
		c.logger.Warn("failed to collect queue stats", "error", err)
		return
	}
	c.metrics.TasksPending.Set(float64(stats.Pending))
	c.metrics.TasksSending.Set(float64(stats.Sending))
	c.metrics.TasksFailed.Set(float64(stats.Failed))
}
