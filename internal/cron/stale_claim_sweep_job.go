package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/notifystore/pkg/logger"
	"github.com/angelmondragon/notifystore/pkg/metrics"
)

const staleClaimSweepJobName = "stale-claim-sweep"

// StaleClaimSweepJobParams configure the stale claim sweep.
type StaleClaimSweepJobParams struct {
	Logger   *logger.Logger
	Releaser staleClaimReleaser
	Metrics  *metrics.CronJobMetrics
}

type staleClaimReleaser interface {
	ReleaseStale(ctx context.Context, now time.Time) (int, error)
}

// NewStaleClaimSweepJob builds the job that fails claims abandoned by crashed
// workers so they become claimable again.
func NewStaleClaimSweepJob(params StaleClaimSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Releaser == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	return &staleClaimSweepJob{
		logg:    params.Logger,
		svc:     params.Releaser,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

type staleClaimSweepJob struct {
	logg    *logger.Logger
	svc     staleClaimReleaser
	metrics *metrics.CronJobMetrics
	now     func() time.Time
}

func (j *staleClaimSweepJob) Name() string { return staleClaimSweepJobName }

func (j *staleClaimSweepJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	released, err := j.svc.ReleaseStale(ctx, now)
	j.metrics.AddProcessed(staleClaimSweepJobName, released)
	if err != nil {
		return fmt.Errorf("stale claim sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"now":            now,
		"claims_expired": released,
	})
	j.logg.Info(logCtx, "stale claim sweep complete")
	return nil
}
