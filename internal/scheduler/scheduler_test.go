package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jobrepeat/scheduler/internal/clock"
	"github.com/jobrepeat/scheduler/internal/keys"
	"github.com/jobrepeat/scheduler/internal/redisstore"
	"github.com/jobrepeat/scheduler/internal/scheduler"
	"github.com/jobrepeat/scheduler/internal/strategy"
)

func newTestStore(t *testing.T) *redisstore.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return redisstore.New(rdb, keys.New("test"))
}

func coreAt(store *redisstore.Store, now time.Time) *scheduler.Core {
	return scheduler.New(store, keys.New("test"), clock.Fixed{At: now}, "scheduler")
}

func newTestCore(t *testing.T, now time.Time) *scheduler.Core {
	t.Helper()
	return coreAt(newTestStore(t), now)
}

func int64p(v int64) *int64 { return &v }

func TestUpsert_Scenario1_FirstFireOnEvery(t *testing.T) {
	core := newTestCore(t, time.UnixMilli(1000))
	ctx := context.Background()

	job, err := core.Upsert(ctx, scheduler.UpsertParams{
		ID:       "s1",
		Repeat:   strategy.RepeatOptions{Every: 1000},
		JobName:  "j",
		JobData:  `{"x":1}`,
		Override: true,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if job == nil {
		t.Fatal("expected a job handle")
	}
	if job.ID != "repeat:s1:1000" {
		t.Fatalf("expected id repeat:s1:1000, got %q", job.ID)
	}
	if job.Delay != 0 {
		t.Fatalf("expected delay 0, got %d", job.Delay)
	}
	if job.Offset == nil || *job.Offset != 1000 {
		t.Fatalf("expected published offset 1000, got %v", job.Offset)
	}

	desc, err := core.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if desc.Next != 1000 {
		t.Fatalf("expected index score 1000, got %d", desc.Next)
	}
}

func TestUpsert_Scenario2_SubsequentFireAdvances(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	first := coreAt(store, time.UnixMilli(1000))

	if _, err := first.Upsert(ctx, scheduler.UpsertParams{
		ID:       "s1",
		Repeat:   strategy.RepeatOptions{Every: 1000},
		JobName:  "j",
		JobData:  "{}",
		Override: true,
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := coreAt(store, time.UnixMilli(1500))
	job, err := second.Upsert(ctx, scheduler.UpsertParams{
		ID:       "s1",
		Repeat:   strategy.RepeatOptions{Every: 1000, Offset: int64p(1000)},
		JobName:  "j",
		JobData:  "{}",
		Template: scheduler.TemplateOptions{PrevMillis: 1000},
		Override: false,
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if job == nil {
		t.Fatal("expected a job handle")
	}
	if job.ID != "repeat:s1:3000" {
		t.Fatalf("expected id repeat:s1:3000, got %q", job.ID)
	}
	if job.Delay != 1500 {
		t.Fatalf("expected delay 1500, got %d", job.Delay)
	}
}

func TestUpsert_Scenario3_CronPattern(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 30, 0, 0, time.UTC)
	core := newTestCore(t, now)

	job, err := core.Upsert(ctx, scheduler.UpsertParams{
		ID:       "s2",
		Repeat:   strategy.RepeatOptions{Pattern: "0 * * * *"},
		JobName:  "j",
		JobData:  "{}",
		Override: true,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	want := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC).UnixMilli()
	if job.NextFireMs != want {
		t.Fatalf("expected nextFireMs=%d, got %d", want, job.NextFireMs)
	}
}

func TestUpsert_Scenario4_LimitReachedIsNoOp(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t, time.UnixMilli(2000))

	job, err := core.Upsert(ctx, scheduler.UpsertParams{
		ID:       "s3",
		Repeat:   strategy.RepeatOptions{Every: 1000, Limit: intp(2), Count: 2},
		JobName:  "j",
		JobData:  "{}",
		Template: scheduler.TemplateOptions{PrevMillis: 2000},
		Override: false,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if job != nil {
		t.Fatalf("expected a no-op, got %+v", job)
	}

	count, err := core.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no index mutation, got count=%d", count)
	}
}

func TestUpsert_Scenario5_ImmediatelyCronFiresNow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	core := newTestCore(t, now)

	job, err := core.Upsert(ctx, scheduler.UpsertParams{
		ID:       "s4",
		Repeat:   strategy.RepeatOptions{Pattern: "* * * * *", Immediately: true},
		JobName:  "j",
		JobData:  "{}",
		Override: true,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if job.NextFireMs != now.UnixMilli() {
		t.Fatalf("expected nextFireMs=now, got %d want %d", job.NextFireMs, now.UnixMilli())
	}
}

func TestUpsert_Scenario6_ConcurrentRaceSurfacesTransactionError(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t, time.UnixMilli(1000))

	params := scheduler.UpsertParams{
		ID:       "s5",
		Repeat:   strategy.RepeatOptions{Every: 1000},
		JobName:  "j",
		JobData:  "{}",
		Override: true,
	}

	if _, err := core.Upsert(ctx, params); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	_, err := core.Upsert(ctx, params)
	if err == nil {
		t.Fatal("expected the second identical upsert to fail")
	}
	var txErr *scheduler.TransactionError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected a TransactionError, got %v (%T)", err, err)
	}
	if txErr.SchedulerID != "s5" {
		t.Fatalf("expected SchedulerID=s5, got %q", txErr.SchedulerID)
	}
}

func TestUpsert_EndDatePassedIsNoOp(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t, time.UnixMilli(5000))

	job, err := core.Upsert(ctx, scheduler.UpsertParams{
		ID:       "s6",
		Repeat:   strategy.RepeatOptions{Every: 1000, EndDate: int64p(4000)},
		JobName:  "j",
		JobData:  "{}",
		Override: true,
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if job != nil {
		t.Fatalf("expected a no-op past endDate, got %+v", job)
	}
}

func TestUpsert_InvalidOptionsIsValidationError(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t, time.UnixMilli(1000))

	_, err := core.Upsert(ctx, scheduler.UpsertParams{
		ID:       "s7",
		Repeat:   strategy.RepeatOptions{}, // neither every nor pattern
		JobName:  "j",
		JobData:  "{}",
		Override: true,
	})
	if !errors.Is(err, scheduler.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRemoveThenGet_ReturnsEmptyShape(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t, time.UnixMilli(1000))

	if _, err := core.Upsert(ctx, scheduler.UpsertParams{
		ID:       "s8",
		Repeat:   strategy.RepeatOptions{Every: 1000},
		JobName:  "j",
		JobData:  "{}",
		Override: true,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	removed, err := core.Remove(ctx, "s8")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}

	desc, err := core.Get(ctx, "s8")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if desc != (scheduler.SchedulerJSON{}) {
		t.Fatalf("expected empty descriptor, got %+v", desc)
	}

	count, err := core.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected count 0 after removal, got %d", count)
	}
}

func TestGet_SynthesizesLegacyDescriptor(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t, time.UnixMilli(1000))

	desc, err := core.Get(ctx, "reminder:s9:0:UTC:0 * * * *")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if desc.Name != "reminder" || desc.ID != "s9" || desc.Pattern != "0 * * * *" {
		t.Fatalf("unexpected legacy descriptor: %+v", desc)
	}
}

func TestList_OrdersByNextFireMs(t *testing.T) {
	ctx := context.Background()
	core := newTestCore(t, time.UnixMilli(1000))

	for i, id := range []string{"s1", "s2", "s3"} {
		if _, err := core.Upsert(ctx, scheduler.UpsertParams{
			ID:       id,
			Repeat:   strategy.RepeatOptions{Every: 1000},
			JobName:  "j",
			JobData:  "{}",
			Override: true,
		}); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
		_ = i
	}

	descs, err := core.List(ctx, 0, 10, true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(descs) != 3 {
		t.Fatalf("expected 3 descriptors, got %d", len(descs))
	}
	for i := 1; i < len(descs); i++ {
		if descs[i-1].Next > descs[i].Next {
			t.Fatalf("expected ascending order, got %+v", descs)
		}
	}
}

func intp(v int) *int { return &v }
