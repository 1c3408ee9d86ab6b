package poller

import (
	"context"
	"time"

	"promoreel/internal/domain"
)

// Summary tallies clip outcomes after a wait.
type Summary struct {
	Results   []ClipResult
	Succeeded int
	Failed    int
	Pending   int
	Attempts  int
	TimedOut  bool
}

func summarize(results []ClipResult) Summary {
	s := Summary{Results: results}
	for _, r := range results {
		switch {
		case r.Status == domain.ClipStatusSucceeded:
			s.Succeeded++
		case r.Status.IsTerminal():
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s
}

// Waiter reconciles clips repeatedly until none are pending or the attempt
// budget runs out.
type Waiter struct {
	reconciler *Reconciler
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewWaiter(r *Reconciler) *Waiter {
	return &Waiter{reconciler: r, sleep: sleepContext}
}

// Wait sleeps interval between attempts but not before the first one.
func (w *Waiter) Wait(ctx context.Context, clipIDs []string, interval time.Duration, maxAttempts int) (Summary, error) {
	maxAttempts = max(1, maxAttempts)
	var last Summary
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := w.sleep(ctx, interval); err != nil {
				return last, err
			}
		}
		results, err := w.reconciler.Reconcile(ctx, clipIDs)
		if err != nil {
			return last, err
		}
		last = summarize(results)
		last.Attempts = attempt + 1
		if last.Pending == 0 {
			return last, nil
		}
	}
	last.TimedOut = true
	return last, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
