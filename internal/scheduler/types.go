package scheduler

import "github.com/jobrepeat/scheduler/internal/strategy"

// UpsertParams is the input to Upsert, matching spec.md §4.4's signature
// `(schedulerId, repeatOpts, jobName, jobData, templateOpts, {override})`.
type UpsertParams struct {
	ID       string
	Repeat   strategy.RepeatOptions
	JobName  string
	JobData  string // opaque serialized payload
	Template TemplateOptions
	Override bool
}

// TemplateOptions carries the caller's job-template fields that survive
// across fires. PrevMillis anchors the "never fire before the last
// emitted instance" guarantee (spec.md §4.4 step 3). Opts is stored
// verbatim, as one string under the "extra" key of the per-instance
// options the instance builder writes; its fields are not merged into
// those options.
type TemplateOptions struct {
	PrevMillis int64
	Opts       string // opaque serialized job options, delay/jobId/repeat excluded
}

// Job is the handle returned by a successful Upsert.
type Job struct {
	ID         string
	NextFireMs int64
	Delay      int64
	Timestamp  int64
	// Offset is non-nil only when the interval strategy republished a
	// new phase offset (first fire).
	Offset *int64
}

// SchedulerJSON is the descriptor shape returned by Get and List.
type SchedulerJSON struct {
	ID      string
	Name    string
	EndDate string
	TZ      string
	Pattern string
	Every   string
	Data    string
	Opts    string
	Next    int64
}

// repeatMeta is what the instance builder folds into the per-instance
// job options under the "repeat" key (spec.md §4.5).
type repeatMeta struct {
	Count        int     `json:"count"`
	Offset       *int64  `json:"offset,omitempty"`
	Every        int64   `json:"every,omitempty"`
	Pattern      string  `json:"pattern,omitempty"`
	EndDate      *int64  `json:"endDate,omitempty"`
	Limit        *int    `json:"limit,omitempty"`
	RepeatJobKey string  `json:"repeatJobKey"`
}

type instanceOpts struct {
	JobID      string     `json:"jobId"`
	Delay      int64      `json:"delay"`
	Timestamp  int64      `json:"timestamp"`
	PrevMillis int64      `json:"prevMillis"`
	Repeat     repeatMeta `json:"repeat"`
	Extra      string     `json:"extra,omitempty"`
}
