// Package strategy implements the pluggable repeat strategies described in
// spec.md §4.1: pure functions of (nowMs, RepeatOptions, jobName) that
// compute the next fire time for a repeating job definition.
package strategy

import (
	"time"

	"github.com/robfig/cron/v3"
)

// RepeatOptions is the union of the interval and cron-pattern forms a
// caller may supply to upsertJobScheduler. Exactly one of Every/Pattern
// must be set; Immediately and StartDate are mutually exclusive.
type RepeatOptions struct {
	// Interval form.
	Every  int64 // positive integer ms
	Offset *int64

	// Pattern form.
	Pattern string
	TZ      string

	Immediately bool

	// Common.
	StartDate *int64
	EndDate   *int64
	Limit     *int
	Count     int
}

// Result is what a strategy computes for one tick. Ok is false when the
// schedule is dead (spec.md's StrategyDead condition) — the caller must
// treat this as a no-op, not an error.
type Result struct {
	Ok         bool
	NextFireMs int64
	// NewOffset is non-nil only for the interval form, and only when the
	// stored offset must change (first fire). Callers persist it back
	// onto the definition.
	NewOffset *int64
}

// Func is the pluggable strategy signature. Implementations must be pure
// and reentrant: no shared mutable state, no I/O.
type Func func(nowMs int64, opts RepeatOptions, jobName string) Result

// FixedInterval implements the `every` form of §4.1.
//
// First fire (no prevMillis and no stored offset): the next fire is now,
// and a new offset is published so subsequent fires land on a stable
// phase. Subsequent fires land on the next period boundary plus that
// offset, clamped forward if it would otherwise land in the past.
//
// prevMillis is the last fire time recorded on the template options
// (§4.4 step 3); it distinguishes "never fired" from "already fired" when
// a definition is recreated without a stored offset.
func FixedInterval(prevMillis int64) Func {
	return func(nowMs int64, opts RepeatOptions, _ string) Result {
		if opts.Every <= 0 {
			return Result{Ok: false}
		}

		isFirstFire := prevMillis == 0 && opts.Offset == nil
		if isFirstFire {
			// Quirk (documented, not fixed — see DESIGN.md): when nowMs
			// lands exactly on a period boundary this publishes an
			// offset equal to a full period, not zero.
			mod := nowMs % opts.Every
			newOffset := opts.Every - mod
			return Result{Ok: true, NextFireMs: nowMs, NewOffset: &newOffset}
		}

		offset := int64(0)
		if opts.Offset != nil {
			offset = *opts.Offset
		}

		// Quirk (documented, not fixed — see DESIGN.md): this always
		// advances to the boundary strictly after nowMs and then adds
		// the offset, overshooting by one period when the offset itself
		// already represents a full period.
		nextBoundary := (nowMs/opts.Every)*opts.Every + opts.Every
		next := nextBoundary + offset
		if next < nowMs {
			next = nowMs
		}
		return Result{Ok: true, NextFireMs: next}
	}
}

// CronPattern implements the `pattern` form of §4.1. On parse or
// iteration failure it reports a dead schedule (Ok=false) rather than
// erroring — the upsert caller treats that as a silent no-op.
func CronPattern() Func {
	return func(nowMs int64, opts RepeatOptions, _ string) Result {
		if opts.Pattern == "" {
			return Result{Ok: false}
		}

		loc := time.UTC
		if opts.TZ != "" {
			l, err := time.LoadLocation(opts.TZ)
			if err != nil {
				return Result{Ok: false}
			}
			loc = l
		}

		if opts.Immediately {
			return Result{Ok: true, NextFireMs: nowMs}
		}

		sched, err := cron.ParseStandard(opts.Pattern)
		if err != nil {
			return Result{Ok: false}
		}

		now := time.UnixMilli(nowMs).In(loc)
		next := sched.Next(now)
		if next.IsZero() {
			return Result{Ok: false}
		}
		return Result{Ok: true, NextFireMs: next.UnixMilli()}
	}
}

// Default picks FixedInterval or CronPattern based on which of
// opts.Every/opts.Pattern is populated. Validation that exactly one is
// set happens earlier, in the scheduler core (spec.md §4.4 step 1).
func Default(prevMillis int64) Func {
	interval := FixedInterval(prevMillis)
	cronFn := CronPattern()
	return func(nowMs int64, opts RepeatOptions, jobName string) Result {
		if opts.Pattern != "" {
			return cronFn(nowMs, opts, jobName)
		}
		return interval(nowMs, opts, jobName)
	}
}
