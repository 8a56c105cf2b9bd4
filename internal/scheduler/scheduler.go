// Package scheduler orchestrates validation, timing math, and the
// transactional advance of a repeating job definition into its next
// concrete instance (spec.md §4.4-§4.6). It owns no worker threads;
// every exported method is a plain procedure callers invoke directly.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jobrepeat/scheduler/internal/clock"
	"github.com/jobrepeat/scheduler/internal/keys"
	"github.com/jobrepeat/scheduler/internal/metrics"
	"github.com/jobrepeat/scheduler/internal/redisstore"
	"github.com/jobrepeat/scheduler/internal/strategy"
	"github.com/jobrepeat/scheduler/internal/telemetry"
)

// Core is the scheduler entity described in spec.md §4.4. QueueName is
// used only to build the telemetry span name ("add <queue>.<jobName>").
type Core struct {
	Store     *redisstore.Store
	Keys      keys.Keys
	Clock     clock.Clock
	QueueName string

	// StrategyFor builds the strategy function for one upsert, given the
	// definition's prevMillis. Defaults to strategy.Default. Overridable
	// for a caller-supplied custom calendar (spec.md §4.1 last
	// paragraph).
	StrategyFor func(prevMillis int64) strategy.Func
}

func New(store *redisstore.Store, k keys.Keys, c clock.Clock, queueName string) *Core {
	return &Core{
		Store:       store,
		Keys:        k,
		Clock:       c,
		QueueName:   queueName,
		StrategyFor: strategy.Default,
	}
}

// Upsert implements spec.md §4.4 steps 1-8. A nil Job with a nil error
// means the upsert was a legitimate no-op (limit reached, endDate
// passed, or a dead strategy) — not a failure.
func (c *Core) Upsert(ctx context.Context, p UpsertParams) (*Job, error) {
	timer := metricsTimer()
	defer timer()

	if err := validateRepeatOptions(p.Repeat); err != nil {
		metrics.UpsertsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	now := clock.NowMs(c.Clock)

	iterationCount := p.Repeat.Count + 1
	if p.Repeat.Limit != nil && iterationCount > *p.Repeat.Limit {
		metrics.UpsertsTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}
	if p.Repeat.EndDate != nil && now > *p.Repeat.EndDate {
		metrics.UpsertsTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}

	if p.Repeat.StartDate != nil && *p.Repeat.StartDate > now {
		now = *p.Repeat.StartDate
	}
	prevMillis := p.Template.PrevMillis
	if prevMillis > now {
		now = prevMillis
	}

	strategyFn := c.StrategyFor
	if strategyFn == nil {
		strategyFn = strategy.Default
	}
	res := strategyFn(prevMillis)(now, p.Repeat, p.JobName)
	if !res.Ok {
		metrics.UpsertsTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}

	ctx, span := telemetry.StartProducerSpan(ctx, c.QueueName, p.JobName)
	defer span.End()

	jobID := keys.Instance(p.ID, res.NextFireMs)
	delay := res.NextFireMs - now
	if delay < 0 {
		delay = 0
	}

	meta := repeatMeta{
		Count:        iterationCount,
		Offset:       res.NewOffset,
		Every:        p.Repeat.Every,
		Pattern:      p.Repeat.Pattern,
		EndDate:      p.Repeat.EndDate,
		Limit:        p.Repeat.Limit,
		RepeatJobKey: p.ID,
	}
	instOpts := instanceOpts{
		JobID:      jobID,
		Delay:      delay,
		Timestamp:  now,
		PrevMillis: res.NextFireMs,
		Repeat:     meta,
		Extra:      p.Template.Opts,
	}
	optsJSON, err := json.Marshal(instOpts)
	if err != nil {
		metrics.UpsertsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("scheduler: encode instance opts: %w", err)
	}

	inst := redisstore.Instance{
		ID:        jobID,
		Data:      p.JobData,
		Opts:      string(optsJSON),
		Delay:     delay,
		Timestamp: now,
	}

	var resultID string
	if p.Override {
		def := redisstore.Definition{
			ID:      p.ID,
			Name:    p.JobName,
			EndDate: formatOptionalInt(p.Repeat.EndDate),
			TZ:      p.Repeat.TZ,
			Pattern: p.Repeat.Pattern,
			Every:   formatOptionalEvery(p.Repeat.Every),
			Data:    p.JobData,
			Opts:    p.Template.Opts,
		}
		resultID, err = c.Store.AddJobScheduler(ctx, def, res.NextFireMs, inst)
	} else {
		resultID, err = c.Store.UpdateJobSchedulerNextMillis(ctx, p.ID, res.NextFireMs, inst)
	}

	if err != nil {
		if errors.Is(err, redisstore.ErrNotFound) {
			// Non-override upsert against a definition that no longer
			// exists is treated as "definition missing" per spec.md
			// §4.3 — a silent no-op, not an error.
			metrics.UpsertsTotal.WithLabelValues("empty").Inc()
			return nil, nil
		}
		metrics.UpsertsTotal.WithLabelValues("error").Inc()
		cause := "script_error"
		if errors.Is(err, redisstore.ErrDuplicateInstance) {
			cause = "duplicate_instance"
		}
		metrics.TransactionErrorsTotal.WithLabelValues(cause).Inc()
		return nil, &TransactionError{SchedulerID: p.ID, Cause: err}
	}

	telemetry.SetUpsertAttributes(span, p.ID, resultID)
	metrics.UpsertsTotal.WithLabelValues("committed").Inc()

	return &Job{
		ID:         resultID,
		NextFireMs: res.NextFireMs,
		Delay:      delay,
		Timestamp:  now,
		Offset:     res.NewOffset,
	}, nil
}

// Remove deletes a scheduler definition and its index entry. Returns
// whether anything was removed.
func (c *Core) Remove(ctx context.Context, id string) (bool, error) {
	removed, err := c.Store.RemoveJobScheduler(ctx, id)
	if err != nil {
		return false, fmt.Errorf("scheduler: remove %s: %w", id, err)
	}
	if removed {
		metrics.RemovalsTotal.Inc()
	}
	return removed, nil
}

// Get returns the stored descriptor for id. If the definition hash is
// absent, it attempts to synthesize a legacy descriptor from a
// colon-delimited id of the historical form
// "name:id:endDate:tz:pattern" (spec.md §4.6); failing that it returns a
// zero-value descriptor, never an error.
func (c *Core) Get(ctx context.Context, id string) (SchedulerJSON, error) {
	def, score, err := c.Store.GetJobScheduler(ctx, id)
	if err == nil {
		return SchedulerJSON{
			ID:      id,
			Name:    def.Name,
			EndDate: def.EndDate,
			TZ:      def.TZ,
			Pattern: def.Pattern,
			Every:   def.Every,
			Data:    def.Data,
			Opts:    def.Opts,
			Next:    score,
		}, nil
	}
	if !errors.Is(err, redisstore.ErrNotFound) {
		return SchedulerJSON{}, fmt.Errorf("scheduler: get %s: %w", id, err)
	}
	if legacy, ok := parseLegacyDescriptor(id); ok {
		return legacy, nil
	}
	return SchedulerJSON{}, nil
}

// List ranges the repeat index and fans out per-id definition reads
// concurrently, ordered by nextFireMs (spec.md §4.6).
func (c *Core) List(ctx context.Context, start, end int64, ascending bool) ([]SchedulerJSON, error) {
	ids, err := c.Store.ListJobSchedulerIDs(ctx, start, end-start+1)
	if err != nil {
		return nil, fmt.Errorf("scheduler: list: %w", err)
	}

	out := make([]SchedulerJSON, len(ids))
	var wg sync.WaitGroup
	var firstErr error
	var mu sync.Mutex
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			desc, err := c.Get(ctx, id)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			out[i] = desc
		}(i, id)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Next == out[j].Next {
			if ascending {
				return out[i].ID < out[j].ID
			}
			return out[i].ID > out[j].ID
		}
		if ascending {
			return out[i].Next < out[j].Next
		}
		return out[i].Next > out[j].Next
	})

	metrics.LiveSchedulers.Set(float64(len(out)))
	return out, nil
}

func (c *Core) Count(ctx context.Context) (int64, error) {
	n, err := c.Store.CountJobSchedulers(ctx)
	if err != nil {
		return 0, fmt.Errorf("scheduler: count: %w", err)
	}
	return n, nil
}

func validateRepeatOptions(r strategy.RepeatOptions) error {
	hasEvery := r.Every > 0
	hasPattern := r.Pattern != ""
	if hasEvery == hasPattern {
		return fmt.Errorf("exactly one of every/pattern must be set")
	}
	if r.Immediately && r.StartDate != nil {
		return fmt.Errorf("immediately and startDate are mutually exclusive")
	}
	return nil
}

func parseLegacyDescriptor(id string) (SchedulerJSON, bool) {
	parts := strings.SplitN(id, ":", 5)
	if len(parts) != 5 {
		return SchedulerJSON{}, false
	}
	return SchedulerJSON{
		ID:      parts[1],
		Name:    parts[0],
		EndDate: parts[2],
		TZ:      parts[3],
		Pattern: parts[4],
	}, true
}

func formatOptionalInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatOptionalEvery(every int64) string {
	if every <= 0 {
		return ""
	}
	return strconv.FormatInt(every, 10)
}

func metricsTimer() func() {
	start := clock.System{}.Now()
	return func() {
		metrics.UpsertDuration.Observe(clock.System{}.Now().Sub(start).Seconds())
	}
}
