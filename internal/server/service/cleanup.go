package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CleanupResult reports one reaping pass over expired transfers.
type CleanupResult struct {
	Processed int      `json:"processed"`
	Deleted   int      `json:"deleted"`
	Errors    []string `json:"errors"`
}

// Cleanup reaps transfers past their expiry (or already marked EXPIRED).
// Storage deletion is best-effort and a bad row never blocks the rest of the
// batch; every failure is recorded as a string in the result. Re-running
// after a partial failure only reprocesses rows still present.
func (s *TransferService) Cleanup(ctx context.Context) (*CleanupResult, error) {
	expired, err := s.repo.GetExpiredTransfers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find expired transfers: %w", err)
	}

	result := &CleanupResult{Errors: []string{}}
	for _, transfer := range expired {
		result.Processed++

		files, err := s.repo.ListFiles(ctx, transfer.ID)
		if err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("transfer %s: list files: %v", transfer.ID, err))
			continue
		}

		for _, f := range files {
			if err := s.store.Delete(ctx, f.StorageKey); err != nil {
				// Recorded but not fatal: the row delete still proceeds so
				// the transfer stops being re-processed on the next run.
				result.Errors = append(result.Errors,
					fmt.Sprintf("transfer %s: delete object %s: %v", transfer.ID, f.StorageKey, err))
			}
		}

		if err := s.repo.DeleteTransfer(ctx, transfer.ID); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("transfer %s: delete row: %v", transfer.ID, err))
			continue
		}
		result.Deleted++
	}

	slog.Info("cleanup pass complete",
		"processed", result.Processed,
		"deleted", result.Deleted,
		"errors", len(result.Errors),
	)
	return result, nil
}

// CleanupRunner periodically runs Cleanup in the background, in addition to
// the cron-triggered HTTP endpoint.
type CleanupRunner struct {
	svc      *TransferService
	interval time.Duration
	done     chan struct{}
}

// NewCleanupRunner creates a runner with the given interval.
func NewCleanupRunner(svc *TransferService, interval time.Duration) *CleanupRunner {
	return &CleanupRunner{
		svc:      svc,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the cleanup loop in a background goroutine.
func (r *CleanupRunner) Start(ctx context.Context) {
	slog.Info("cleanup runner started", "interval", r.interval)

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		// Run once immediately on start
		r.run(ctx)

		for {
			select {
			case <-ticker.C:
				r.run(ctx)
			case <-ctx.Done():
				slog.Info("cleanup runner stopping")
				close(r.done)
				return
			}
		}
	}()
}

// Wait blocks until the runner has fully stopped.
func (r *CleanupRunner) Wait() {
	<-r.done
}

func (r *CleanupRunner) run(ctx context.Context) {
	if _, err := r.svc.Cleanup(ctx); err != nil {
		slog.Error("cleanup pass failed", "error", err)
	}
}
