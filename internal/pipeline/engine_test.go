package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"job-compass/internal/collab"
	"job-compass/internal/model"
	"job-compass/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, *storage.Store) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewEngine(store, nil), store
}

func createJob(t *testing.T, store *storage.Store) *model.JobApplication {
	t.Helper()
	job := &model.JobApplication{Title: "Software Engineer", Company: "Acme Corp"}
	if err := store.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob error: %v", err)
	}
	return job
}

func TestMoveRecordsOrderedHistory(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	job := createJob(t, store)
	ctx := context.Background()

	t1 := time.Date(2025, 10, 13, 9, 30, 0, 0, time.UTC)
	t2 := t1.Add(72 * time.Hour)

	if _, err := engine.Move(ctx, job.ID, "Applied", t1); err != nil {
		t.Fatalf("Move to Applied error: %v", err)
	}
	if _, err := engine.Move(ctx, job.ID, "Interview", t2); err != nil {
		t.Fatalf("Move to Interview error: %v", err)
	}

	timeline, err := engine.Timeline(ctx, job.ID)
	if err != nil {
		t.Fatalf("Timeline error: %v", err)
	}
	if len(timeline) != 2 {
		t.Fatalf("expected exactly 2 history entries, got %d", len(timeline))
	}
	if timeline[0].From != model.StageInterested || timeline[0].To != model.StageApplied {
		t.Fatalf("unexpected first entry %+v", timeline[0])
	}
	if timeline[1].From != model.StageApplied || timeline[1].To != model.StageInterview {
		t.Fatalf("unexpected second entry %+v", timeline[1])
	}

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob error: %v", err)
	}
	if got.Stage != model.StageInterview {
		t.Fatalf("expected current stage Interview, got %s", got.Stage)
	}
}

func TestMoveUnknownStage(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	job := createJob(t, store)

	_, err := engine.Move(context.Background(), job.ID, "Ghosted", time.Now().UTC())
	if !errors.Is(err, model.ErrUnknownStage) {
		t.Fatalf("expected unknown stage error, got %v", err)
	}

	timeline, err := engine.Timeline(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Timeline error: %v", err)
	}
	if len(timeline) != 0 {
		t.Fatalf("expected history unchanged, got %d entries", len(timeline))
	}
}

func TestMoveAllStagesReachable(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	ctx := context.Background()

	// Permissive policy: every stage reachable, including backward moves
	// and direct rejection.
	at := time.Date(2025, 10, 13, 9, 30, 0, 0, time.UTC)
	for i, target := range []string{"Applied", "Interview", "Applied", "Phone Screen", "Offer", "Rejected"} {
		job := createJob(t, store)
		if _, err := engine.Move(ctx, job.ID, target, at.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatalf("Move to %s error: %v", target, err)
		}
	}

	// Backward move on the same job is also audited.
	job := createJob(t, store)
	if _, err := engine.Move(ctx, job.ID, "Interview", at); err != nil {
		t.Fatalf("Move error: %v", err)
	}
	if _, err := engine.Move(ctx, job.ID, "Applied", at.Add(time.Hour)); err != nil {
		t.Fatalf("backward Move error: %v", err)
	}
	timeline, _ := engine.Timeline(ctx, job.ID)
	if len(timeline) != 2 {
		t.Fatalf("expected backward move logged, got %d entries", len(timeline))
	}
}

func TestMoveNonMonotonicTimeRejected(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	job := createJob(t, store)
	ctx := context.Background()

	t1 := time.Date(2025, 10, 13, 9, 30, 0, 0, time.UTC)
	if _, err := engine.Move(ctx, job.ID, "Applied", t1); err != nil {
		t.Fatalf("Move error: %v", err)
	}

	_, err := engine.Move(ctx, job.ID, "Interview", t1.Add(-time.Hour))
	if !errors.Is(err, model.ErrNonMonotonicTime) {
		t.Fatalf("expected non-monotonic time error, got %v", err)
	}

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob error: %v", err)
	}
	if got.Stage != model.StageApplied || len(got.History) != 1 {
		t.Fatalf("expected state unchanged after rejection, got stage=%s history=%d", got.Stage, len(got.History))
	}
}

func TestUpdateMergesFieldsAndLogsEdits(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	job := createJob(t, store)
	ctx := context.Background()

	notes := "Phone screen went well"
	updated, err := engine.Update(ctx, job.ID, Patch{
		Notes:    &notes,
		Contacts: map[string]any{"Sam": "sam@acme.example"},
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if updated.Notes != notes {
		t.Fatalf("expected notes merged, got %q", updated.Notes)
	}
	if _, ok := updated.Contacts["Sam"]; !ok {
		t.Fatalf("expected contact merged, got %+v", updated.Contacts)
	}
	if len(updated.Edits) != 2 {
		t.Fatalf("expected 2 edit entries, got %d", len(updated.Edits))
	}
	if updated.Stage != model.StageInterested {
		t.Fatalf("update must not alter stage, got %s", updated.Stage)
	}
}

func TestUpdateRejectsOversizedDescription(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	job := createJob(t, store)

	long := make([]rune, model.MaxDescriptionLen+1)
	for i := range long {
		long[i] = 'y'
	}
	desc := string(long)
	_, err := engine.Update(context.Background(), job.ID, Patch{Description: &desc})
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestApplyDetections(t *testing.T) {
	t.Parallel()

	engine, store := newTestEngine(t)
	job := createJob(t, store)
	ctx := context.Background()

	detector := &stubDetector{detections: []collab.StatusDetection{
		{JobID: job.ID, Status: "Interview", Timestamp: time.Date(2025, 10, 18, 12, 0, 0, 0, time.UTC)},
		{JobID: job.ID, Status: "Not A Stage", Timestamp: time.Date(2025, 10, 19, 12, 0, 0, 0, time.UTC)},
		{JobID: "missing", Status: "Applied", Timestamp: time.Date(2025, 10, 19, 12, 0, 0, 0, time.UTC)},
	}}

	applied, err := engine.ApplyDetections(ctx, detector, collab.Options{Timeout: time.Second, Backoff: time.Millisecond})
	if err != nil {
		t.Fatalf("ApplyDetections error: %v", err)
	}
	if applied != 1 {
		t.Fatalf("expected 1 applied detection, got %d", applied)
	}

	got, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob error: %v", err)
	}
	if got.Stage != model.StageInterview {
		t.Fatalf("expected detection to move stage, got %s", got.Stage)
	}
}

func TestApplyDetectionsDegraded(t *testing.T) {
	t.Parallel()

	engine, _ := newTestEngine(t)

	detector := &stubDetector{err: fmt.Errorf("imap down")}
	applied, err := engine.ApplyDetections(context.Background(), detector, collab.Options{Timeout: time.Second, Backoff: time.Millisecond})
	if err != nil {
		t.Fatalf("degraded detector must not fail the operation, got %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected 0 applied, got %d", applied)
	}
	if detector.calls != 2 {
		t.Fatalf("expected one retry before degrading, got %d calls", detector.calls)
	}
}

// --- stubs ---

type stubDetector struct {
	detections []collab.StatusDetection
	err        error
	calls      int
}

func (s *stubDetector) Detect(ctx context.Context) ([]collab.StatusDetection, error) {
	s.calls++
	return s.detections, s.err
}
