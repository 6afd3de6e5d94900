package collab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"job-compass/internal/model"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := atomic.Int32{}
	out, err := Do(context.Background(), nil, "research", Options{Timeout: time.Second, Backoff: time.Millisecond},
		func(ctx context.Context) (string, error) {
			calls.Add(1)
			return "ok", nil
		})
	if err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if out != "ok" || calls.Load() != 1 {
		t.Fatalf("expected single successful call, got out=%q calls=%d", out, calls.Load())
	}
}

func TestDoRetriesOnceThenSucceeds(t *testing.T) {
	t.Parallel()

	calls := atomic.Int32{}
	out, err := Do(context.Background(), nil, "calendar", Options{Timeout: time.Second, Backoff: time.Millisecond},
		func(ctx context.Context) (int, error) {
			if calls.Add(1) == 1 {
				return 0, fmt.Errorf("temporary outage")
			}
			return 42, nil
		})
	if err != nil {
		t.Fatalf("Do error: %v", err)
	}
	if out != 42 || calls.Load() != 2 {
		t.Fatalf("expected success on second attempt, got out=%d calls=%d", out, calls.Load())
	}
}

func TestDoDegradesAfterRetry(t *testing.T) {
	t.Parallel()

	calls := atomic.Int32{}
	_, err := Do(context.Background(), nil, "email", Options{Timeout: time.Second, Backoff: time.Millisecond},
		func(ctx context.Context) (string, error) {
			calls.Add(1)
			return "", fmt.Errorf("imap down")
		})
	if !errors.Is(err, model.ErrDegraded) {
		t.Fatalf("expected degraded error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", calls.Load())
	}
}

func TestAIClientGenerateBullets(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"[\"Delivered results\",\"Improved reliability\"]"}}]}`)
	}))
	t.Cleanup(srv.Close)

	client := NewAIClient(AIConfig{APIBase: srv.URL, APIKey: "test-key"}, srv.Client())
	bullets, err := client.GenerateBullets(context.Background(), model.JobApplication{Title: "SWE", Company: "Acme"}, model.CandidateProfile{})
	if err != nil {
		t.Fatalf("GenerateBullets error: %v", err)
	}
	if len(bullets) != 2 || bullets[0] != "Delivered results" {
		t.Fatalf("unexpected bullets %v", bullets)
	}
}

func TestAIClientMissingKey(t *testing.T) {
	t.Parallel()

	client := NewAIClient(AIConfig{}, nil)
	if _, err := client.SuggestSkills(context.Background(), model.JobApplication{}, model.CandidateProfile{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
