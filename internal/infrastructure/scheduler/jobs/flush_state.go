package jobs

import (
	"context"
	"fmt"
	"log/slog"
)

// ══════════════════════════════════════════════════════════════════════════════
// FLUSH DIRTY GROUPS JOB
// ══════════════════════════════════════════════════════════════════════════════

// Flusher retries persistence of groups whose last save failed.
type Flusher interface {
	FlushDirty(ctx context.Context) (int, error)
	DirtyCount() int
}

// FlushStateJob periodically retries failed group saves.
type FlushStateJob struct {
	flusher Flusher
	logger  *slog.Logger
}

// NewFlushStateJob creates a new flush job.
func NewFlushStateJob(flusher Flusher, logger *slog.Logger) *FlushStateJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlushStateJob{
		flusher: flusher,
		logger:  logger.With("job", "flush_dirty_groups"),
	}
}

// Name returns the job name.
func (j *FlushStateJob) Name() string {
	return "flush_dirty_groups"
}

// Description returns a human-readable description.
func (j *FlushStateJob) Description() string {
	return "Retries saving groups whose previous save failed"
}

// Run flushes dirty groups. Nothing to do is the common case.
func (j *FlushStateJob) Run(ctx context.Context) error {
	if j.flusher.DirtyCount() == 0 {
		return nil
	}

	saved, err := j.flusher.FlushDirty(ctx)
	if err != nil {
		return fmt.Errorf("flush dirty groups: %w", err)
	}
	j.logger.Info("dirty groups flushed", "saved", saved)
	return nil
}
