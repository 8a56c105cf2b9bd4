package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jobrepeat/scheduler/internal/keys"
)

// demoPoller is a stand-in for the real dispatcher/worker this module
// does not own (spec.md §1). It drains the delayed set's due entries
// and logs them; it does not execute jobs, retry, or remove anything the
// scheduler core doesn't already manage.
type demoPoller struct {
	rdb      redis.UniversalClient
	keys     keys.Keys
	logger   *slog.Logger
	interval time.Duration
}

func newDemoPoller(rdb redis.UniversalClient, k keys.Keys, logger *slog.Logger, interval time.Duration) *demoPoller {
	return &demoPoller{
		rdb:      rdb,
		keys:     k,
		logger:   logger.With("component", "demo_poller"),
		interval: interval,
	}
}

func (p *demoPoller) start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *demoPoller) tick(ctx context.Context) {
	nowMs := time.Now().UnixMilli()

	due, err := p.rdb.ZRangeByScore(ctx, p.keys.Delayed(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(nowMs, 10),
	}).Result()
	if err != nil {
		p.logger.Error("poll delayed set", "error", err)
		return
	}

	for _, jobID := range due {
		p.logger.Info("instance due", "job_id", jobID)
		if err := p.rdb.ZRem(ctx, p.keys.Delayed(), jobID).Err(); err != nil {
			p.logger.Error("remove due instance", "job_id", jobID, "error", err)
		}
	}
}
