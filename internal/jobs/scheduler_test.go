package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wardenbot/internal/storage"
)

type memStore struct {
	mu     sync.Mutex
	jobs   map[string]*storage.Job
	dueErr error
}

func newMemStore() *memStore {
	return &memStore{jobs: map[string]*storage.Job{}}
}

func (m *memStore) CreateJob(_ context.Context, job *storage.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return storage.ErrConflict
	}
	if job.Status == "" {
		job.Status = storage.JobPending
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memStore) DueJobs(_ context.Context, now time.Time) ([]storage.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dueErr != nil {
		return nil, m.dueErr
	}
	var out []storage.Job
	for _, j := range m.jobs {
		if j.Status == storage.JobPending && !j.DueAt.After(now) {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].DueAt.Equal(out[k].DueAt) {
			return out[i].DueAt.Before(out[k].DueAt)
		}
		return out[i].ID < out[k].ID
	})
	return out, nil
}

func (m *memStore) FinishJob(_ context.Context, id string, status storage.JobStatus, executedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return storage.ErrNotFound
	}
	j.Status = status
	t := executedAt
	j.ExecutedAt = &t
	return nil
}

func (m *memStore) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func (m *memStore) snapshot() map[string]storage.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]storage.Job, len(m.jobs))
	for id, j := range m.jobs {
		out[id] = *j
	}
	return out
}

func TestTickExecutesDueJobs(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	now := time.Now().UTC()

	var mu sync.Mutex
	var executed []string
	reg := NewRegistry()
	reg.Register("track", ExecutorFunc(func(_ context.Context, job storage.Job) error {
		mu.Lock()
		executed = append(executed, job.ID)
		mu.Unlock()
		return nil
	}))

	mustCreate(t, store, &storage.Job{ID: "due-1", Description: "track", DueAt: now.Add(-time.Minute)})
	mustCreate(t, store, &storage.Job{ID: "due-2", Description: "track", DueAt: now.Add(-time.Second)})
	mustCreate(t, store, &storage.Job{ID: "future", Description: "track", DueAt: now.Add(time.Hour)})

	s := NewScheduler(store, reg, time.Minute, zerolog.Nop())
	if err := s.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(executed) != 2 || executed[0] != "due-1" || executed[1] != "due-2" {
		t.Fatalf("executed = %v, want [due-1 due-2]", executed)
	}

	left := store.snapshot()
	if _, ok := left["due-1"]; ok {
		t.Fatal("completed job was retained")
	}
	if j, ok := left["future"]; !ok || j.Status != storage.JobPending {
		t.Fatalf("future job = %+v, want untouched pending", j)
	}
}

func TestTickIsolatesFailures(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	now := time.Now().UTC()

	reg := NewRegistry()
	reg.Register("boom", ExecutorFunc(func(context.Context, storage.Job) error {
		return errors.New("executor blew up")
	}))
	reg.Register("panics", ExecutorFunc(func(context.Context, storage.Job) error {
		panic("unexpected")
	}))
	var ran bool
	reg.Register("ok", ExecutorFunc(func(context.Context, storage.Job) error {
		ran = true
		return nil
	}))

	mustCreate(t, store, &storage.Job{ID: "a-boom", Description: "boom", DueAt: now.Add(-time.Minute)})
	mustCreate(t, store, &storage.Job{ID: "b-panic", Description: "panics", DueAt: now.Add(-time.Minute)})
	mustCreate(t, store, &storage.Job{ID: "c-ok", Description: "ok", DueAt: now.Add(-time.Minute)})
	mustCreate(t, store, &storage.Job{ID: "d-unknown", Description: "mystery", DueAt: now.Add(-time.Minute)})

	s := NewScheduler(store, reg, time.Minute, zerolog.Nop())
	if err := s.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if !ran {
		t.Fatal("healthy job did not run alongside failing ones")
	}
	left := store.snapshot()
	for _, id := range []string{"a-boom", "b-panic", "d-unknown"} {
		j, ok := left[id]
		if !ok {
			t.Fatalf("failed job %s was deleted", id)
		}
		if j.Status != storage.JobFailed || j.ExecutedAt == nil {
			t.Fatalf("job %s = %+v, want failed with executed_at", id, j)
		}
	}
	if _, ok := left["c-ok"]; ok {
		t.Fatal("completed job was retained")
	}
}

func TestTickSelectErrorAbortsWithoutSideEffects(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	store.dueErr = errors.New("store down")
	now := time.Now().UTC()

	var calls int
	reg := NewRegistry()
	reg.Register("track", ExecutorFunc(func(context.Context, storage.Job) error {
		calls++
		return nil
	}))

	s := NewScheduler(store, reg, time.Minute, zerolog.Nop())
	if err := s.Tick(context.Background(), now); err == nil {
		t.Fatal("expected select error to surface")
	}
	if calls != 0 {
		t.Fatal("executor ran despite selection failure")
	}
}

func TestTickSingleFlight(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	now := time.Now().UTC()

	block := make(chan struct{})
	started := make(chan struct{})
	var calls int
	reg := NewRegistry()
	reg.Register("slow", ExecutorFunc(func(context.Context, storage.Job) error {
		calls++
		close(started)
		<-block
		return nil
	}))
	mustCreate(t, store, &storage.Job{ID: "slow-1", Description: "slow", DueAt: now.Add(-time.Minute)})

	s := NewScheduler(store, reg, time.Minute, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Tick(context.Background(), now)
	}()
	<-started

	// An overlapping tick must be skipped, not run concurrently.
	if err := s.Tick(context.Background(), now); err != nil {
		t.Fatalf("overlapping Tick: %v", err)
	}
	if calls != 1 {
		t.Fatalf("executor calls = %d during overlap, want 1", calls)
	}

	close(block)
	<-done
}

func TestRecurringJobReschedules(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	now := time.Now().UTC()

	reg := NewRegistry()
	reg.Register("noop", NewNoopExecutor())

	mustCreate(t, store, &storage.Job{
		ID: "rec-1", Description: "noop", DueAt: now.Add(-time.Second), Recur: "*/5 * * * *",
	})

	s := NewScheduler(store, reg, time.Minute, zerolog.Nop())
	if err := s.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	left := store.snapshot()
	if len(left) != 1 {
		t.Fatalf("rows after tick = %d, want exactly the next occurrence", len(left))
	}
	for id, j := range left {
		if id == "rec-1" {
			t.Fatal("original row should have been deleted")
		}
		if j.Status != storage.JobPending || !j.DueAt.After(now) {
			t.Fatalf("next occurrence = %+v, want pending in the future", j)
		}
		if j.Recur != "*/5 * * * *" {
			t.Fatalf("recurrence not carried: %q", j.Recur)
		}
	}
}

func TestEnqueueValidatesRecurrence(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	if _, err := Enqueue(context.Background(), store, "noop", "", time.Now(), "not-cron"); err == nil {
		t.Fatal("invalid recurrence accepted")
	}
	job, err := Enqueue(context.Background(), store, "noop", "", time.Now(), "0 9 * * *")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.ID == "" {
		t.Fatal("job id not assigned")
	}
}

func mustCreate(t *testing.T, store *memStore, job *storage.Job) {
	t.Helper()
	if err := store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("create %s: %v", job.ID, err)
	}
}
