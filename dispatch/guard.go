package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Guard failures surfaced to the API layer.
var (
	ErrRunInProgress = errors.New("dispatch: a scrape run is already in progress")
	ErrDailyLimit    = errors.New("dispatch: daily run limit reached")
)

// casAttempts bounds the compare-and-swap retry loop on the counter file.
const casAttempts = 3

// Guard serializes workflow dispatches: at most one run in flight and at
// most MaxRunsPerDay dispatches per UTC calendar day. The daily count is
// kept in the remote counter file, never in process memory, so concurrent
// or restarted instances all see the same state.
type Guard struct {
	client        *Client
	workflowFile  string
	counterPath   string
	maxRunsPerDay int

	// now is swappable for tests.
	now func() time.Time
}

// NewGuard creates a Guard over a Client.
func NewGuard(client *Client, workflowFile, counterPath string, maxRunsPerDay int) *Guard {
	return &Guard{
		client:        client,
		workflowFile:  workflowFile,
		counterPath:   counterPath,
		maxRunsPerDay: maxRunsPerDay,
		now:           time.Now,
	}
}

// TryAcquire consumes one run slot for today and returns the new count.
// It fails with ErrRunInProgress or ErrDailyLimit when a guard denies the
// dispatch, and retries lost counter races a bounded number of times.
func (g *Guard) TryAcquire(ctx context.Context) (int, error) {
	inProgress, err := g.client.InProgressRuns(ctx, g.workflowFile)
	if err != nil {
		return 0, err
	}
	if inProgress > 0 {
		return 0, ErrRunInProgress
	}

	today := g.now().UTC().Format("2006-01-02")

	for attempt := 1; attempt <= casAttempts; attempt++ {
		counter, sha, err := g.client.GetCounter(ctx, g.counterPath)
		if err != nil {
			return 0, err
		}
		if counter.Date != today {
			counter = Counter{Count: 0, Date: today}
		}
		if counter.Count >= g.maxRunsPerDay {
			return 0, ErrDailyLimit
		}

		counter.Count++
		err = g.client.PutCounter(ctx, g.counterPath, counter, sha)
		if err == nil {
			return counter.Count, nil
		}
		if !errors.Is(err, ErrConflict) {
			return 0, err
		}
		slog.Warn("counter update lost a race, retrying", "attempt", attempt)
	}
	return 0, fmt.Errorf("dispatch: counter contention: %w", ErrConflict)
}

// Dispatch acquires a run slot and fires the workflow. Returns the number
// of runs used today including this one. When the workflow dispatch itself
// fails, the acquired slot is handed back so a transient API error does not
// burn daily quota.
func (g *Guard) Dispatch(ctx context.Context, query string) (int, error) {
	runs, err := g.TryAcquire(ctx)
	if err != nil {
		return 0, err
	}
	if err := g.client.DispatchWorkflow(ctx, g.workflowFile, query); err != nil {
		g.release(ctx)
		return 0, err
	}
	slog.Info("workflow dispatched", "query", query, "runsToday", runs)
	return runs, nil
}

// release hands an acquired slot back by decrementing today's count.
// Best-effort: a lost race or API failure leaves the slot consumed, which
// only errs on the safe side of the daily cap.
func (g *Guard) release(ctx context.Context) {
	today := g.now().UTC().Format("2006-01-02")

	counter, sha, err := g.client.GetCounter(ctx, g.counterPath)
	if err != nil || counter.Date != today || counter.Count <= 0 {
		return
	}
	counter.Count--
	if err := g.client.PutCounter(ctx, g.counterPath, counter, sha); err != nil {
		slog.Warn("failed to release run slot", "error", err)
	}
}
