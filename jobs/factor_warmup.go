package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/ductline/ductline/internal/jobs"
)

// FactorWarmer reloads the reference table cache.
type FactorWarmer interface {
	Warm(ctx context.Context) (int, error)
}

// FactorWarmupJob handles TaskFactorWarmup.
type FactorWarmupJob struct {
	Factors FactorWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle refreshes the cached reference table.
func (j *FactorWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Factors == nil {
		return errors.New("factor warmup: handler not configured")
	}
	tracker := j.Metrics.Track(TaskFactorWarmup)
	n, err := j.Factors.Warm(ctx)
	if err = tracker.End(err); err != nil {
		return err
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("factor table warmed", slog.Int("points", n))
	return nil
}
