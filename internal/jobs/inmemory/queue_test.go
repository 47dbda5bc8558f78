package inmemory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/align/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus) *jobs.SyncJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	t.Fatalf("job %s did not reach %q, last state: %+v", jobID, want, job)
	return nil
}

func newTestQueue(store *Store, maxRetries int) *Queue {
	return NewQueue(store, Options{
		BufferSize: 4,
		Workers:    1,
		MaxRetries: maxRetries,
		Backoff:    func(int) time.Duration { return time.Millisecond },
		Logger:     zerolog.Nop(),
	})
}

func TestQueue_ProcessesJob(t *testing.T) {
	store := NewStore()
	q := newTestQueue(store, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, job jobs.Job) error {
		sj := job.(*jobs.SyncJob)
		sj.NewTransactions = 4
		sj.AlertRaised = true
		return nil
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatal(err)
	}
	defer q.Close()

	job := &jobs.SyncJob{Trigger: jobs.TriggerAPI}
	if err := q.PublishSync(ctx, job); err != nil {
		t.Fatalf("PublishSync() failed: %v", err)
	}
	if job.JobID == "" || job.CreatedAt.IsZero() {
		t.Fatal("PublishSync should assign an ID and creation time")
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.NewTransactions != 4 || !done.AlertRaised {
		t.Errorf("handler outcome not stored: %+v", done)
	}
	if done.StartedAt == nil || done.CompletedAt == nil {
		t.Error("expected start and completion timestamps")
	}
}

func TestQueue_RetriesTransientErrors(t *testing.T) {
	store := NewStore()
	q := newTestQueue(store, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	handler := func(context.Context, jobs.Job) error {
		if calls.Add(1) == 1 {
			return errors.New("temporary")
		}
		return nil
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatal(err)
	}
	defer q.Close()

	job := &jobs.SyncJob{Trigger: jobs.TriggerSchedule}
	if err := q.PublishSync(ctx, job); err != nil {
		t.Fatal(err)
	}

	done := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if done.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", done.RetryCount)
	}
	if calls.Load() != 2 {
		t.Errorf("handler calls = %d, want 2", calls.Load())
	}
}

func TestQueue_PermanentErrorsFailImmediately(t *testing.T) {
	store := NewStore()
	q := newTestQueue(store, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	handler := func(context.Context, jobs.Job) error {
		calls.Add(1)
		return jobs.Permanent(errors.New("sync already in progress"))
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatal(err)
	}
	defer q.Close()

	job := &jobs.SyncJob{}
	if err := q.PublishSync(ctx, job); err != nil {
		t.Fatal(err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.RetryCount != 0 || failed.Error != "sync already in progress" {
		t.Errorf("unexpected failed job: %+v", failed)
	}
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("handler calls = %d, want 1", calls.Load())
	}
}

func TestQueue_ExhaustsRetries(t *testing.T) {
	store := NewStore()
	q := newTestQueue(store, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Start(ctx, func(context.Context, jobs.Job) error { return errors.New("still down") }); err != nil {
		t.Fatal(err)
	}
	defer q.Close()

	job := &jobs.SyncJob{}
	if err := q.PublishSync(ctx, job); err != nil {
		t.Fatal(err)
	}

	failed := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed)
	if failed.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", failed.RetryCount)
	}
}

func TestQueue_ClosedRejectsPublish(t *testing.T) {
	q := newTestQueue(NewStore(), 0)
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if err := q.PublishSync(context.Background(), &jobs.SyncJob{}); err == nil {
		t.Error("expected error publishing to a closed queue")
	}
	if err := q.Start(context.Background(), func(context.Context, jobs.Job) error { return nil }); err == nil {
		t.Error("expected error starting a closed queue")
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() = %v, want nil", err)
	}
}

func TestQueue_StopWaitsForInFlight(t *testing.T) {
	store := NewStore()
	q := newTestQueue(store, 0)

	started := make(chan struct{})
	release := make(chan struct{})
	handler := func(context.Context, jobs.Job) error {
		close(started)
		<-release
		return nil
	}
	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatal(err)
	}
	if err := q.PublishSync(context.Background(), &jobs.SyncJob{}); err != nil {
		t.Fatal(err)
	}
	<-started

	shortCtx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := q.Stop(shortCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stop() with in-flight job = %v, want deadline exceeded", err)
	}
	close(release)
}

func TestQueue_OneSyncAtATime(t *testing.T) {
	store := NewStore()
	q := newTestQueue(store, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	handler := func(context.Context, jobs.Job) error {
		started <- struct{}{}
		<-release
		return nil
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatal(err)
	}
	defer q.Close()

	first := &jobs.SyncJob{Trigger: jobs.TriggerAPI}
	if err := q.PublishSync(ctx, first); err != nil {
		t.Fatal(err)
	}
	<-started

	second := &jobs.SyncJob{Trigger: jobs.TriggerSchedule}
	if err := q.PublishSync(ctx, second); !errors.Is(err, jobs.ErrSyncQueued) {
		t.Fatalf("PublishSync() while running = %v, want ErrSyncQueued", err)
	}
	if second.JobID != "" {
		t.Error("rejected job should not be recorded")
	}

	close(release)
	waitForStatus(t, store, first.JobID, jobs.JobStatusCompleted)

	third := &jobs.SyncJob{Trigger: jobs.TriggerSchedule}
	if err := q.PublishSync(ctx, third); err != nil {
		t.Fatalf("PublishSync() after completion = %v", err)
	}
	waitForStatus(t, store, third.JobID, jobs.JobStatusCompleted)
}

func TestQueue_RetryHoldsTheSlot(t *testing.T) {
	store := NewStore()
	q := NewQueue(store, Options{
		Workers:    1,
		MaxRetries: 1,
		Backoff:    func(int) time.Duration { return 50 * time.Millisecond },
		Logger:     zerolog.Nop(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	handler := func(context.Context, jobs.Job) error {
		if calls.Add(1) == 1 {
			return errors.New("temporary")
		}
		return nil
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatal(err)
	}
	defer q.Close()

	job := &jobs.SyncJob{}
	if err := q.PublishSync(ctx, job); err != nil {
		t.Fatal(err)
	}
	waitForStatus(t, store, job.JobID, jobs.JobStatusRetrying)

	if err := q.PublishSync(ctx, &jobs.SyncJob{}); !errors.Is(err, jobs.ErrSyncQueued) {
		t.Errorf("PublishSync() while retrying = %v, want ErrSyncQueued", err)
	}
	waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
}

func TestQueue_ConcurrentPublishAdmitsOne(t *testing.T) {
	q := newTestQueue(NewStore(), 0)

	var accepted, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := q.PublishSync(context.Background(), &jobs.SyncJob{Trigger: jobs.TriggerAPI})
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, jobs.ErrSyncQueued):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted.Load() != 1 || rejected.Load() != 19 {
		t.Errorf("accepted %d, rejected %d, want 1 and 19", accepted.Load(), rejected.Load())
	}
}

func TestStore_ListJobs(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	seedJobs := []*jobs.SyncJob{
		{JobID: "a", Trigger: jobs.TriggerAPI, Status: jobs.JobStatusCompleted, CreatedAt: base},
		{JobID: "b", Trigger: jobs.TriggerSchedule, Status: jobs.JobStatusFailed, CreatedAt: base.Add(time.Minute)},
		{JobID: "c", Trigger: jobs.TriggerAPI, Status: jobs.JobStatusCompleted, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, j := range seedJobs {
		if err := store.SaveJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{"all newest first", jobs.JobFilter{}, []string{"c", "b", "a"}},
		{"by status", jobs.JobFilter{Status: jobs.JobStatusCompleted}, []string{"c", "a"}},
		{"by trigger", jobs.JobFilter{Trigger: jobs.TriggerSchedule}, []string{"b"}},
		{"limit", jobs.JobFilter{Limit: 1}, []string{"c"}},
		{"offset", jobs.JobFilter{Offset: 1}, []string{"b", "a"}},
		{"offset past end", jobs.JobFilter{Offset: 5}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d jobs, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].JobID != id {
					t.Errorf("jobs[%d] = %q, want %q", i, got[i].JobID, id)
				}
			}
		})
	}
}

func TestStore_GetAndUpdate(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, err := store.GetJob(ctx, "missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("GetJob(missing) = %v, want ErrJobNotFound", err)
	}
	if err := store.SaveJob(ctx, &jobs.SyncJob{}); err == nil {
		t.Error("expected error saving a job without ID")
	}

	if err := store.SaveJob(ctx, &jobs.SyncJob{JobID: "x", Status: jobs.JobStatusPending}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateJobStatus(ctx, "x", jobs.JobStatusFailed, "boom"); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetJob(ctx, "x")
	if got.Status != jobs.JobStatusFailed || got.Error != "boom" {
		t.Errorf("unexpected job: %+v", got)
	}

	got.Status = jobs.JobStatusCompleted
	again, _ := store.GetJob(ctx, "x")
	if again.Status != jobs.JobStatusFailed {
		t.Error("GetJob should return a copy")
	}

	if err := store.UpdateJobStatus(ctx, "nope", jobs.JobStatusFailed, ""); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("UpdateJobStatus(nope) = %v", err)
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("busy")
	err := jobs.Permanent(base)
	if !jobs.IsPermanent(err) || !errors.Is(err, base) {
		t.Error("Permanent should be detectable and unwrap to the cause")
	}
	if jobs.IsPermanent(base) {
		t.Error("plain errors are not permanent")
	}
	if jobs.Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
