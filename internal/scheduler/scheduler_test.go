package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"job-compass/internal/collab"
	"job-compass/internal/model"
	"job-compass/internal/storage"
)

type fakeStore struct {
	snap  storage.Snapshot
	err   error
	calls atomic.Int32
}

func (f *fakeStore) Snapshot(ctx context.Context) (storage.Snapshot, error) {
	f.calls.Add(1)
	return f.snap, f.err
}

type fakeNotifier struct {
	digests []Digest
	err     error
}

func (f *fakeNotifier) Notify(ctx context.Context, d Digest) error {
	f.digests = append(f.digests, d)
	return f.err
}

type fakeTicker struct {
	ch chan time.Time
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               {}

func deadlineIn(now time.Time, days int) *time.Time {
	d := now.Add(time.Duration(days) * 24 * time.Hour)
	return &d
}

func TestRunOnceBuildsDigest(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{snap: storage.Snapshot{Jobs: []model.JobApplication{
		{ID: "urgent", Stage: model.StageApplied, Deadline: deadlineIn(now, 1), CreatedAt: now.Add(-time.Hour)},
		{ID: "overdue", Stage: model.StageApplied, Deadline: deadlineIn(now, -2), CreatedAt: now.Add(-time.Hour)},
		{ID: "stale", Stage: model.StageInterview, CreatedAt: now.Add(-20 * 24 * time.Hour)},
		{ID: "fresh", Stage: model.StageApplied, Deadline: deadlineIn(now, 30), CreatedAt: now.Add(-time.Hour)},
		{ID: "done", Stage: model.StageOffer, CreatedAt: now.Add(-40 * 24 * time.Hour)},
	}}}
	notif := &fakeNotifier{}

	s := NewScheduler(store, notif, nil, Config{Interval: "1h", FollowUpAfter: 7})
	s.now = func() time.Time { return now }

	count, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(notif.digests) != 1 {
		t.Fatalf("notify calls = %d, want 1", len(notif.digests))
	}

	digest := notif.digests[0]
	if len(digest.Urgent) != 2 {
		t.Errorf("urgent cards = %d, want 2", len(digest.Urgent))
	}
	if len(digest.Overdue) != 1 || digest.Overdue[0].JobID != "overdue" {
		t.Errorf("overdue = %v, want job overdue", digest.Overdue)
	}
	if len(digest.FollowUps) != 1 {
		t.Fatalf("follow-ups = %d, want 1", len(digest.FollowUps))
	}
	fu := digest.FollowUps[0]
	if fu.JobID != "stale" || fu.IdleDays != 20 {
		t.Errorf("follow-up = %+v", fu)
	}
	if count != len(digest.Urgent)+len(digest.FollowUps) {
		t.Errorf("count = %d", count)
	}
}

func TestRunOnceSkipsNotifyWhenQuiet(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := &fakeStore{snap: storage.Snapshot{Jobs: []model.JobApplication{
		{ID: "fresh", Stage: model.StageApplied, Deadline: deadlineIn(now, 30), CreatedAt: now},
	}}}
	notif := &fakeNotifier{}

	s := NewScheduler(store, notif, nil, Config{Interval: "1h"})

	count, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if count != 0 || len(notif.digests) != 0 {
		t.Errorf("count = %d, notify calls = %d, want 0/0", count, len(notif.digests))
	}
}

func TestRunOnceFollowUpUsesLastTransition(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &fakeStore{snap: storage.Snapshot{Jobs: []model.JobApplication{
		{
			ID:        "moved-recently",
			Stage:     model.StageApplied,
			CreatedAt: now.Add(-30 * 24 * time.Hour),
			History: []model.StageTransition{
				{From: model.StageInterested, To: model.StageApplied, MovedAt: now.Add(-2 * 24 * time.Hour)},
			},
		},
	}}}
	notif := &fakeNotifier{}

	s := NewScheduler(store, notif, nil, Config{Interval: "1h", FollowUpAfter: 7})
	s.now = func() time.Time { return now }

	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(notif.digests) != 0 {
		t.Errorf("expected no digest for recently moved job, got %+v", notif.digests)
	}
}

type fakeApplier struct {
	applied int
	calls   atomic.Int32
}

func (f *fakeApplier) ApplyDetections(ctx context.Context, d collab.EmailStatusDetector, opts collab.Options) (int, error) {
	f.calls.Add(1)
	return f.applied, nil
}

type fakeDetector struct{}

func (f *fakeDetector) Detect(ctx context.Context) ([]collab.StatusDetection, error) {
	return nil, nil
}

func TestRunOnceAppliesDetectionsFirst(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	applier := &fakeApplier{applied: 1}

	s := NewScheduler(store, &fakeNotifier{}, nil, Config{Interval: "1h"})
	s.WithDetection(applier, &fakeDetector{})

	if _, err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if applier.calls.Load() != 1 {
		t.Errorf("applier calls = %d, want 1", applier.calls.Load())
	}
	if store.calls.Load() != 1 {
		t.Errorf("snapshot calls = %d, want 1", store.calls.Load())
	}
}

func TestRunOnceSnapshotError(t *testing.T) {
	t.Parallel()

	store := &fakeStore{err: errors.New("db locked")}
	s := NewScheduler(store, &fakeNotifier{}, nil, Config{Interval: "1h"})

	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestStartRunsOnTick(t *testing.T) {
	t.Parallel()

	now := time.Now()
	store := &fakeStore{snap: storage.Snapshot{Jobs: []model.JobApplication{
		{ID: "urgent", Stage: model.StageApplied, Deadline: deadlineIn(now, 0), CreatedAt: now},
	}}}
	notif := &fakeNotifier{}

	s := NewScheduler(store, notif, nil, Config{Interval: "1h"})
	tick := &fakeTicker{ch: make(chan time.Time, 1)}
	s.newTicker = func(time.Duration) ticker { return tick }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	tick.ch <- time.Now()
	deadline := time.After(2 * time.Second)
	for store.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("tick never triggered a run")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Start returned %v, want context.Canceled", err)
	}
}

func TestParseScheduleFallsBackToDefault(t *testing.T) {
	t.Parallel()

	d, cron := parseSchedule("not-a-duration not-a-cron")
	if cron != nil || d != time.Hour {
		t.Errorf("parseSchedule = %v %v, want 1h default", d, cron)
	}
}

func TestParseCronFieldRangesAndSteps(t *testing.T) {
	t.Parallel()

	cases := []struct {
		expr string
		min  int
		max  int
		want []int
		ok   bool
	}{
		{"*/15", 0, 59, []int{0, 15, 30, 45}, true},
		{"9-11", 0, 23, []int{9, 10, 11}, true},
		{"1-9/3", 1, 31, []int{1, 4, 7}, true},
		{"5,30", 0, 59, []int{5, 30}, true},
		{"61", 0, 59, nil, false},
		{"9-5", 0, 23, nil, false},
	}

	for _, tc := range cases {
		got, err := parseCronField(tc.expr, tc.min, tc.max)
		if tc.ok != (err == nil) {
			t.Errorf("%q: err = %v, want ok=%v", tc.expr, err, tc.ok)
			continue
		}
		if !tc.ok {
			continue
		}
		if len(got) != len(tc.want) {
			t.Errorf("%q: %v values, want %v", tc.expr, got, tc.want)
			continue
		}
		for _, v := range tc.want {
			if _, ok := got[v]; !ok {
				t.Errorf("%q: missing %d", tc.expr, v)
			}
		}
	}
}

func TestCronNext(t *testing.T) {
	t.Parallel()

	sched, err := parseCronSpec("0 9 * * 1-5")
	if err != nil {
		t.Fatalf("parseCronSpec: %v", err)
	}

	// Saturday afternoon rolls over to Monday 09:00.
	after := time.Date(2026, 3, 7, 15, 30, 0, 0, time.UTC)
	next, err := sched.next(after)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	want := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}
