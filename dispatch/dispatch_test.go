package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/leadgrab/leadgrab/config"
)

// fakeGitHub emulates the slice of the contents and actions APIs the
// dispatcher touches, with real SHA-conditional counter writes.
type fakeGitHub struct {
	mu         sync.Mutex
	counter    []byte // nil means the file does not exist
	sha        string
	inProgress int
	dispatched []string

	// failPuts makes the next N counter writes lose the race.
	failPuts int

	// failDispatch makes the workflow dispatch endpoint error out.
	failDispatch bool
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /repos/acme/leads/actions/workflows/scrape.yml/dispatches",
		func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Ref    string            `json:"ref"`
				Inputs map[string]string `json:"inputs"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("bad dispatch body: %v", err)
			}
			if body.Ref != "main" {
				t.Errorf("dispatch ref = %q, want main", body.Ref)
			}
			if f.failDispatch {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			f.mu.Lock()
			f.dispatched = append(f.dispatched, body.Inputs["query"])
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		})

	mux.HandleFunc("GET /repos/acme/leads/actions/workflows/scrape.yml/runs",
		func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("status"); got != "in_progress" {
				t.Errorf("runs status filter = %q, want in_progress", got)
			}
			f.mu.Lock()
			n := f.inProgress
			f.mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{"total_count": n})
		})

	mux.HandleFunc("GET /repos/acme/leads/contents/data/run_counter.json",
		func(w http.ResponseWriter, r *http.Request) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.counter == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]string{
				"content": base64.StdEncoding.EncodeToString(f.counter),
				"sha":     f.sha,
			})
		})

	mux.HandleFunc("PUT /repos/acme/leads/contents/data/run_counter.json",
		func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Content string `json:"content"`
				SHA     string `json:"sha"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("bad put body: %v", err)
			}
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.failPuts > 0 {
				f.failPuts--
				w.WriteHeader(http.StatusConflict)
				return
			}
			if body.SHA != f.sha {
				w.WriteHeader(http.StatusConflict)
				return
			}
			raw, err := base64.StdEncoding.DecodeString(body.Content)
			if err != nil {
				t.Errorf("put content not base64: %v", err)
			}
			created := f.counter == nil
			f.counter = raw
			f.sha = fmt.Sprintf("sha-%d", len(f.dispatched)+len(raw))
			if created {
				w.WriteHeader(http.StatusCreated)
				return
			}
			w.WriteHeader(http.StatusOK)
		})

	return mux
}

func (f *fakeGitHub) setCounter(t *testing.T, c Counter) {
	t.Helper()
	raw, err := json.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	f.counter = raw
	f.sha = "sha-seeded"
	f.mu.Unlock()
}

func (f *fakeGitHub) getCounter(t *testing.T) Counter {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var c Counter
	if err := json.Unmarshal(f.counter, &c); err != nil {
		t.Fatalf("stored counter unparsable: %v", err)
	}
	return c
}

func newTestGuard(t *testing.T, f *fakeGitHub) *Guard {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	client := NewClient(config.GitHubConfig{
		Token:   "test-token",
		Owner:   "acme",
		Repo:    "leads",
		BaseURL: srv.URL,
	})
	g := NewGuard(client, "scrape.yml", "data/run_counter.json", 2)
	g.now = func() time.Time {
		return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	}
	return g
}

func TestDispatchCreatesCounterOnFirstRun(t *testing.T) {
	f := &fakeGitHub{}
	g := newTestGuard(t, f)

	runs, err := g.Dispatch(context.Background(), "plumber paris")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}
	if len(f.dispatched) != 1 || f.dispatched[0] != "plumber paris" {
		t.Errorf("dispatched = %v", f.dispatched)
	}

	c := f.getCounter(t)
	if c.Count != 1 || c.Date != "2026-03-14" {
		t.Errorf("stored counter = %+v", c)
	}
}

func TestDispatchIncrementsExistingCounter(t *testing.T) {
	f := &fakeGitHub{}
	f.setCounter(t, Counter{Count: 1, Date: "2026-03-14"})
	g := newTestGuard(t, f)

	runs, err := g.Dispatch(context.Background(), "roofer lyon")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if runs != 2 {
		t.Errorf("runs = %d, want 2", runs)
	}
}

func TestDispatchDeniedAtDailyLimit(t *testing.T) {
	f := &fakeGitHub{}
	f.setCounter(t, Counter{Count: 2, Date: "2026-03-14"}) // limit is 2
	g := newTestGuard(t, f)

	_, err := g.Dispatch(context.Background(), "plumber paris")
	if !errors.Is(err, ErrDailyLimit) {
		t.Fatalf("err = %v, want ErrDailyLimit", err)
	}
	if len(f.dispatched) != 0 {
		t.Errorf("workflow dispatched despite limit: %v", f.dispatched)
	}
}

func TestDispatchResetsCounterOnNewDay(t *testing.T) {
	f := &fakeGitHub{}
	f.setCounter(t, Counter{Count: 2, Date: "2026-03-13"}) // yesterday, at limit
	g := newTestGuard(t, f)

	runs, err := g.Dispatch(context.Background(), "plumber paris")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if runs != 1 {
		t.Errorf("runs = %d, want 1 after rollover", runs)
	}
	c := f.getCounter(t)
	if c.Date != "2026-03-14" {
		t.Errorf("counter date = %q, want 2026-03-14", c.Date)
	}
}

func TestDispatchDeniedWhileRunInProgress(t *testing.T) {
	f := &fakeGitHub{inProgress: 1}
	g := newTestGuard(t, f)

	_, err := g.Dispatch(context.Background(), "plumber paris")
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err = %v, want ErrRunInProgress", err)
	}
	if len(f.dispatched) != 0 {
		t.Errorf("workflow dispatched despite in-progress run: %v", f.dispatched)
	}
}

func TestDispatchReleasesSlotWhenWorkflowFails(t *testing.T) {
	f := &fakeGitHub{failDispatch: true}
	f.setCounter(t, Counter{Count: 1, Date: "2026-03-14"})
	g := newTestGuard(t, f)

	_, err := g.Dispatch(context.Background(), "plumber paris")
	if err == nil {
		t.Fatal("expected error when the dispatch endpoint fails")
	}
	if errors.Is(err, ErrDailyLimit) || errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err = %v, want a plain upstream failure", err)
	}

	// The slot consumed by TryAcquire is handed back.
	c := f.getCounter(t)
	if c.Count != 1 {
		t.Errorf("stored count = %d, want 1 after release", c.Count)
	}

	// The full quota is still available for the next attempt.
	f.failDispatch = false
	runs, err := g.Dispatch(context.Background(), "plumber paris")
	if err != nil {
		t.Fatalf("Dispatch after release: %v", err)
	}
	if runs != 2 {
		t.Errorf("runs = %d, want 2", runs)
	}
}

func TestTryAcquireRetriesLostRace(t *testing.T) {
	f := &fakeGitHub{failPuts: 2}
	f.setCounter(t, Counter{Count: 0, Date: "2026-03-14"})
	g := newTestGuard(t, f)

	runs, err := g.TryAcquire(context.Background())
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if runs != 1 {
		t.Errorf("runs = %d, want 1", runs)
	}
}

func TestTryAcquireGivesUpAfterRepeatedConflicts(t *testing.T) {
	f := &fakeGitHub{failPuts: casAttempts}
	f.setCounter(t, Counter{Count: 0, Date: "2026-03-14"})
	g := newTestGuard(t, f)

	_, err := g.TryAcquire(context.Background())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want wrapped ErrConflict", err)
	}
}

func TestGetCounterMissingFile(t *testing.T) {
	f := &fakeGitHub{}
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	client := NewClient(config.GitHubConfig{Owner: "acme", Repo: "leads", BaseURL: srv.URL})
	counter, sha, err := client.GetCounter(context.Background(), "data/run_counter.json")
	if err != nil {
		t.Fatalf("GetCounter: %v", err)
	}
	if counter.Count != 0 || counter.Date != "" || sha != "" {
		t.Errorf("got counter=%+v sha=%q, want zero values", counter, sha)
	}
}

func TestGetCounterDecodesWrappedBase64(t *testing.T) {
	// The contents API line-wraps base64; the client has to tolerate it.
	raw, _ := json.Marshal(Counter{Count: 3, Date: "2026-03-14"})
	encoded := base64.StdEncoding.EncodeToString(raw)
	wrapped := encoded[:8] + "\n" + encoded[8:]

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"content": wrapped, "sha": "abc123"})
	}))
	t.Cleanup(srv.Close)

	client := NewClient(config.GitHubConfig{
		Token: "test-token", Owner: "acme", Repo: "leads", BaseURL: srv.URL,
	})
	counter, sha, err := client.GetCounter(context.Background(), "data/run_counter.json")
	if err != nil {
		t.Fatalf("GetCounter: %v", err)
	}
	if counter.Count != 3 || counter.Date != "2026-03-14" || sha != "abc123" {
		t.Errorf("counter=%+v sha=%q", counter, sha)
	}
}

func TestDispatchWorkflowRejectsUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(config.GitHubConfig{Owner: "acme", Repo: "leads", BaseURL: srv.URL})
	err := client.DispatchWorkflow(context.Background(), "scrape.yml", "q")
	if err == nil {
		t.Fatal("expected error on HTTP 403")
	}
}
