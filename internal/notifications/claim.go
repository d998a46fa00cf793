package notifications

import (
	"context"
	"slices"
	"time"

	"github.com/angelmondragon/notifystore/pkg/db/models"
	"github.com/angelmondragon/notifystore/pkg/enums"
	pkgerrors "github.com/angelmondragon/notifystore/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	claimRefillRounds  = 3
	staleSweepBatch    = 200
	claimExpiredReason = "claim expired"
)

// ClaimDue claims up to limit due notifications for workerToken. Each row is
// won with its own version-guarded update, so concurrent callers receive
// disjoint sets; rows lost to another worker are skipped and the batch is
// refilled from the next candidates. Stale in-progress claims are taken over
// and recorded as expired attempts. On a storage failure the rows already won
// are returned alongside the error.
func (s *service) ClaimDue(ctx context.Context, limit int, workerToken string, now time.Time) ([]models.Notification, error) {
	if limit <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "limit must be positive")
	}
	if workerToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "worker token required")
	}
	if now.IsZero() {
		now = s.now()
	} else {
		now = normalizeTime(now)
	}

	ctx = s.logg.WithWorkerToken(ctx, workerToken)
	query := claimQuery{
		Now:         now,
		StaleBefore: normalizeTime(now.Add(-s.policy.StaleAfter)),
		MaxAttempts: s.policy.MaxAttempts,
	}

	var (
		claimed []models.Notification
		lost    int
		expired int
		seen    []uuid.UUID
	)
	for round := 0; round < claimRefillRounds && len(claimed) < limit; round++ {
		query.Limit = limit - len(claimed)
		query.Exclude = seen

		candidates, err := s.repo.ClaimCandidates(ctx, query)
		if err != nil {
			return s.finishClaim(ctx, claimed, lost, expired, s.storageError(ctx, err, "select claim candidates"))
		}
		if len(candidates) == 0 {
			break
		}

		lostThisRound := 0
		for i := range candidates {
			candidate := candidates[i]
			from := candidate.Status
			seen = append(seen, candidate.ID)

			won, wasStale, err := s.claimOne(ctx, &candidate, workerToken, now)
			if err != nil {
				return s.finishClaim(ctx, claimed, lost, expired, s.storageError(ctx, err, "claim notification"))
			}
			if !won {
				lostThisRound++
				continue
			}
			if wasStale {
				expired++
			}
			s.metrics.IncTransition(string(from), string(candidate.Status))
			claimed = append(claimed, candidate)
		}
		lost += lostThisRound
		if lostThisRound == 0 {
			break
		}
	}

	return s.finishClaim(ctx, claimed, lost, expired, nil)
}

// claimOne moves candidate to in_progress if its version is unchanged. On
// success candidate is updated in place to the stored state.
func (s *service) claimOne(ctx context.Context, candidate *models.Notification, workerToken string, now time.Time) (bool, bool, error) {
	stale := candidate.Status == enums.NotificationStatusInProgress
	if !stale {
		if _, err := checkTransition(candidate.Status, OpClaim); err != nil {
			return false, false, nil
		}
	}

	touched := latest(now, candidate.UpdatedAt)
	updates := map[string]any{
		"status":      enums.NotificationStatusInProgress,
		"claim_token": workerToken,
		"claimed_at":  now,
		"attempts":    candidate.Attempts + 1,
		"version":     candidate.Version + 1,
		"updated_at":  touched,
	}

	won := false
	err := s.unitOfWork(ctx, func(_ *gorm.DB, repo Repository) error {
		ok, err := repo.CompareAndSwap(ctx, candidate.ID, candidate.Version, updates)
		if err != nil || !ok {
			return err
		}
		if stale && candidate.ClaimToken != nil {
			if err := repo.InsertAttempt(ctx, attemptFor(candidate, enums.DeliveryOutcomeExpired, claimExpiredReason, touched)); err != nil {
				return err
			}
		}
		won = true
		return nil
	})
	if err != nil || !won {
		return false, false, err
	}

	token := workerToken
	claimedAt := now
	candidate.Status = enums.NotificationStatusInProgress
	candidate.ClaimToken = &token
	candidate.ClaimedAt = &claimedAt
	candidate.Attempts++
	candidate.Version++
	candidate.UpdatedAt = touched
	return true, stale, nil
}

func (s *service) finishClaim(ctx context.Context, claimed []models.Notification, lost, expired int, err error) ([]models.Notification, error) {
	slices.SortStableFunc(claimed, compareDue)

	s.metrics.AddClaimed(len(claimed))
	s.metrics.AddClaimLost(lost)
	s.metrics.AddExpired(expired)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"claimed": len(claimed),
		"lost":    lost,
		"expired": expired,
	})
	if err != nil {
		s.logg.Error(logCtx, "claim batch interrupted", err)
		return claimed, err
	}
	if len(claimed) > 0 || lost > 0 {
		s.logg.Info(logCtx, "claimed due notifications")
	}
	return claimed, nil
}

// ReleaseStale fails every in-progress claim older than the staleness window
// and records an expired attempt for each. It returns how many claims it
// released. Rows already exhausted by the retry cap are only released here.
func (s *service) ReleaseStale(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = s.now()
	} else {
		now = normalizeTime(now)
	}
	staleBefore := normalizeTime(now.Add(-s.policy.StaleAfter))

	released := 0
	for {
		rows, err := s.repo.StaleClaims(ctx, staleBefore, staleSweepBatch)
		if err != nil {
			return released, s.storageError(ctx, err, "select stale claims")
		}

		releasedThisBatch := 0
		for i := range rows {
			ok, err := s.expireOne(ctx, &rows[i], now)
			if err != nil {
				s.metrics.AddExpired(released)
				return released, s.storageError(ctx, err, "release stale claim")
			}
			if ok {
				releasedThisBatch++
			}
		}
		released += releasedThisBatch
		if len(rows) < staleSweepBatch || releasedThisBatch == 0 {
			break
		}
	}

	s.metrics.AddExpired(released)
	if released > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"released":     released,
			"stale_before": staleBefore,
		})
		s.logg.Warn(logCtx, "released stale claims")
	}
	return released, nil
}

func (s *service) expireOne(ctx context.Context, row *models.Notification, now time.Time) (bool, error) {
	next, err := checkTransition(row.Status, OpExpire)
	if err != nil {
		return false, nil
	}

	touched := latest(now, row.UpdatedAt)
	updates := map[string]any{
		"status":         next,
		"failure_reason": claimExpiredReason,
		"claim_token":    nil,
		"claimed_at":     nil,
		"version":        row.Version + 1,
		"updated_at":     touched,
	}

	released := false
	err = s.unitOfWork(ctx, func(_ *gorm.DB, repo Repository) error {
		ok, err := repo.CompareAndSwap(ctx, row.ID, row.Version, updates)
		if err != nil || !ok {
			return err
		}
		if row.ClaimToken != nil {
			if err := repo.InsertAttempt(ctx, attemptFor(row, enums.DeliveryOutcomeExpired, claimExpiredReason, touched)); err != nil {
				return err
			}
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if released {
		s.metrics.IncTransition(string(row.Status), string(next))
	}
	return released, nil
}

func compareDue(a, b models.Notification) int {
	if c := a.ScheduledFor.Compare(b.ScheduledFor); c != 0 {
		return c
	}
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return slices.Compare(a.ID[:], b.ID[:])
}
