// Package redisstore is the atomic-scripts layer described in spec.md
// §4.3. Every multi-key mutation the scheduler core needs — upsert,
// advance, read, remove — is fused into a single Lua script so the
// index, definition hash, and enqueued instance always move together.
package redisstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jobrepeat/scheduler/internal/keys"
)

//go:embed scripts/add_job_scheduler.lua
var addJobSchedulerSrc string

//go:embed scripts/update_job_scheduler_next_millis.lua
var updateJobSchedulerNextMillisSrc string

//go:embed scripts/get_job_scheduler.lua
var getJobSchedulerSrc string

//go:embed scripts/remove_job_scheduler.lua
var removeJobSchedulerSrc string

var (
	addJobSchedulerScript               = redis.NewScript(addJobSchedulerSrc)
	updateJobSchedulerNextMillisScript  = redis.NewScript(updateJobSchedulerNextMillisSrc)
	getJobSchedulerScript               = redis.NewScript(getJobSchedulerSrc)
	removeJobSchedulerScript            = redis.NewScript(removeJobSchedulerSrc)
)

// ErrNotFound is returned by GetJobScheduler and UpdateJobSchedulerNextMillis
// when the definition does not (or no longer) exist.
var ErrNotFound = errors.New("redisstore: scheduler definition not found")

// ErrDuplicateInstance is returned when the deterministic job id for the
// computed nextFireMs already exists. The scheduler core surfaces this as
// a TransactionError with cause "duplicate_instance" (spec.md §7).
var ErrDuplicateInstance = errors.New("redisstore: duplicate instance")

const duplicateInstancePrefix = "DUPLICATE_INSTANCE "

// NewClient builds the go-redis client the rest of this package and the
// scheduler core share. Pool sizing mirrors the connection tuning the
// Postgres pool in this codebase used to carry — a fixed ceiling plus a
// bounded idle timeout — adapted to go-redis's options struct.
func NewClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opt.PoolSize = 25
	opt.MinIdleConns = 5
	opt.ConnMaxLifetime = 1 * time.Hour
	opt.ConnMaxIdleTime = 30 * time.Minute
	opt.DialTimeout = 5 * time.Second

	return redis.NewClient(opt), nil
}

// Store wraps a redis.UniversalClient with the namespaced key scheme and
// the four atomic scripts that implement the scheduler core's storage
// contract.
type Store struct {
	rdb  redis.UniversalClient
	keys keys.Keys
}

func New(rdb redis.UniversalClient, k keys.Keys) *Store {
	return &Store{rdb: rdb, keys: k}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Definition is the set of fields addJobScheduler/getJobScheduler read
// and write on the definition hash. Optional fields are carried as
// strings and interpreted empty-means-unset, matching how they're stored
// in Redis; the caller maps these to/from strategy.RepeatOptions.
type Definition struct {
	ID      string
	Name    string
	EndDate string
	TZ      string
	Pattern string
	Every   string
	Data    string
	Opts    string
}

// Instance is the concrete job record produced for one fire of a
// scheduler, per spec.md §4.5.
type Instance struct {
	ID        string
	Data      string
	Opts      string
	Delay     int64
	Timestamp int64
}

// AddJobScheduler creates (or overwrites) a scheduler definition, sets
// its score in the repeat index, and enqueues its first instance. It
// fails with ErrDuplicateInstance if that instance's job id already
// exists — the scheduler core maps this back to a caller-visible
// TransactionError rather than retrying.
func (s *Store) AddJobScheduler(ctx context.Context, def Definition, nextFireMs int64, inst Instance) (string, error) {
	jobKey := s.keys.Job(inst.ID)
	res, err := addJobSchedulerScript.Run(ctx, s.rdb, []string{
		s.keys.Index(),
		s.keys.Definition(def.ID),
		s.keys.Delayed(),
		jobKey,
	},
		def.ID,
		nextFireMs,
		def.Data,
		def.Opts,
		def.Name,
		def.EndDate,
		def.TZ,
		def.Pattern,
		def.Every,
		inst.ID,
		inst.Data,
		inst.Opts,
		inst.Delay,
		inst.Timestamp,
	).Result()
	if err != nil {
		return "", translateScriptErr(err)
	}
	id, _ := res.(string)
	return id, nil
}

// UpdateJobSchedulerNextMillis advances an existing scheduler's score and
// enqueues its next instance. Returns ErrNotFound if the definition was
// removed since the caller last read it — the scheduler core treats that
// as a harmless no-op, not a failure (spec.md §4.4 step 5).
func (s *Store) UpdateJobSchedulerNextMillis(ctx context.Context, schedulerID string, nextFireMs int64, inst Instance) (string, error) {
	jobKey := s.keys.Job(inst.ID)
	res, err := updateJobSchedulerNextMillisScript.Run(ctx, s.rdb, []string{
		s.keys.Index(),
		s.keys.Delayed(),
		jobKey,
	},
		schedulerID,
		nextFireMs,
		inst.ID,
		inst.Data,
		inst.Opts,
		inst.Delay,
		inst.Timestamp,
	).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", translateScriptErr(err)
	}
	if res == nil {
		return "", ErrNotFound
	}
	id, _ := res.(string)
	return id, nil
}

// GetJobScheduler reads a definition and its current repeat-index score.
// Returns ErrNotFound when the definition hash is empty.
func (s *Store) GetJobScheduler(ctx context.Context, schedulerID string) (Definition, int64, error) {
	res, err := getJobSchedulerScript.Run(ctx, s.rdb, []string{
		s.keys.Definition(schedulerID),
		s.keys.Index(),
	}, schedulerID).Result()
	if err != nil {
		return Definition{}, 0, translateScriptErr(err)
	}

	rows, ok := res.([]interface{})
	if !ok || len(rows) != 2 {
		return Definition{}, 0, fmt.Errorf("redisstore: unexpected getJobScheduler reply shape")
	}

	fields, ok := rows[0].([]interface{})
	if !ok || len(fields) == 0 {
		return Definition{}, 0, ErrNotFound
	}

	def := Definition{ID: schedulerID}
	for i := 0; i+1 < len(fields); i += 2 {
		field, _ := fields[i].(string)
		value, _ := fields[i+1].(string)
		switch field {
		case "name":
			def.Name = value
		case "endDate":
			def.EndDate = value
		case "tz":
			def.TZ = value
		case "pattern":
			def.Pattern = value
		case "every":
			def.Every = value
		case "data":
			def.Data = value
		case "opts":
			def.Opts = value
		}
	}

	var score int64
	if raw, _ := rows[1].(string); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Definition{}, 0, fmt.Errorf("redisstore: parse score: %w", err)
		}
		score = int64(parsed)
	}

	return def, score, nil
}

// RemoveJobScheduler deletes a scheduler's index entry and definition
// hash. Returns false if it did not exist.
func (s *Store) RemoveJobScheduler(ctx context.Context, schedulerID string) (bool, error) {
	res, err := removeJobSchedulerScript.Run(ctx, s.rdb, []string{
		s.keys.Definition(schedulerID),
		s.keys.Index(),
	}, schedulerID).Result()
	if err != nil {
		return false, translateScriptErr(err)
	}
	removed, _ := res.(int64)
	return removed > 0, nil
}

// CountJobSchedulers reports the cardinality of the repeat index.
func (s *Store) CountJobSchedulers(ctx context.Context) (int64, error) {
	return s.rdb.ZCard(ctx, s.keys.Index()).Result()
}

// ListJobSchedulerIDs returns scheduler ids ordered by nextFireMs,
// supporting the cursor-style pagination the admin surface exposes
// (spec.md §4.6).
func (s *Store) ListJobSchedulerIDs(ctx context.Context, offset, count int64) ([]string, error) {
	return s.rdb.ZRange(ctx, s.keys.Index(), offset, offset+count-1).Result()
}

func translateScriptErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if idx := strings.Index(msg, duplicateInstancePrefix); idx >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateInstance, strings.TrimSpace(msg[idx+len(duplicateInstancePrefix):]))
	}
	return err
}
