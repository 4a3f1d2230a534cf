package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const purgeTimeout = time.Minute

// Janitor deletes journal entries older than the retention window on a
// cron schedule.
type Janitor struct {
	c   *cron.Cron
	log *slog.Logger
}

// NewJanitor validates the schedule and prepares the purge job. Standard
// five-field cron specs and descriptors like "@hourly" or "@every 10m"
// are accepted.
func NewJanitor(p Purger, retention time.Duration, schedule string, log *slog.Logger) (*Janitor, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()
		cutoff := time.Now().Add(-retention)
		n, err := p.PurgeOlderThan(ctx, cutoff)
		if err != nil {
			log.Warn("journal purge failed", "error", err)
			return
		}
		if n > 0 {
			log.Info("journal purged", "removed", n, "cutoff", cutoff)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}
	return &Janitor{c: c, log: log}, nil
}

// Start begins scheduling purge runs.
func (j *Janitor) Start() { j.c.Start() }

// Stop halts the schedule and waits for an in-flight purge to finish.
func (j *Janitor) Stop() {
	ctx := j.c.Stop()
	<-ctx.Done()
}
