package notifications

import (
	"context"
	"time"

	"github.com/angelmondragon/notifystore/internal/repo"
	"github.com/angelmondragon/notifystore/pkg/db/models"
	"github.com/angelmondragon/notifystore/pkg/enums"
	"github.com/angelmondragon/notifystore/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository exposes persistence helpers for notifications. Transition rules
// live in the service; the repository only reads rows and applies
// version-guarded writes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, notification *models.Notification) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	FindLiveByIdempotencyKey(ctx context.Context, key string) (*models.Notification, error)
	Page(ctx context.Context, filter Filter, after *pagination.Cursor, limit int) ([]models.Notification, error)
	CompareAndSwap(ctx context.Context, id uuid.UUID, version int64, updates map[string]any) (bool, error)
	ClaimCandidates(ctx context.Context, query claimQuery) ([]models.Notification, error)
	StaleClaims(ctx context.Context, staleBefore time.Time, limit int) ([]models.Notification, error)
	InsertAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error
	ListAttempts(ctx context.Context, notificationID uuid.UUID) ([]models.DeliveryAttempt, error)
}

type repositoryImpl struct {
	repo.Base
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{Base: repo.NewBase(db)}
}

// claimQuery selects rows a worker may take: due pending/failed rows under
// the attempt cap plus in-progress rows whose claim went stale.
type claimQuery struct {
	Now         time.Time
	StaleBefore time.Time
	MaxAttempts int
	Limit       int
	Exclude     []uuid.UUID
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{Base: r.Bind(tx)}
}

func (r *repositoryImpl) Insert(ctx context.Context, notification *models.Notification) error {
	return r.DB(ctx).Create(notification).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	var notification models.Notification
	if err := r.DB(ctx).Where("id = ?", id).Take(&notification).Error; err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *repositoryImpl) FindLiveByIdempotencyKey(ctx context.Context, key string) (*models.Notification, error) {
	var notification models.Notification
	err := r.DB(ctx).
		Where("idempotency_key = ? AND status <> ?", key, enums.NotificationStatusCancelled).
		Take(&notification).Error
	if err != nil {
		return nil, err
	}
	return &notification, nil
}

func (r *repositoryImpl) Page(ctx context.Context, filter Filter, after *pagination.Cursor, limit int) ([]models.Notification, error) {
	query := applyFilter(r.DB(ctx).Model(&models.Notification{}), filter)
	if after != nil {
		query = afterCursor(query, after)
	}

	var notifications []models.Notification
	if err := query.Order(dueOrder).Limit(limit).Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repositoryImpl) CompareAndSwap(ctx context.Context, id uuid.UUID, version int64, updates map[string]any) (bool, error) {
	result := r.DB(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repositoryImpl) ClaimCandidates(ctx context.Context, query claimQuery) ([]models.Notification, error) {
	q := r.DB(ctx).
		Model(&models.Notification{}).
		Where("scheduled_for <= ? AND attempts < ?", query.Now, query.MaxAttempts).
		Where("(status IN ? OR (status = ? AND claimed_at <= ?))",
			[]enums.NotificationStatus{enums.NotificationStatusPending, enums.NotificationStatusFailed},
			enums.NotificationStatusInProgress,
			query.StaleBefore,
		)
	if len(query.Exclude) > 0 {
		q = q.Where("id NOT IN ?", query.Exclude)
	}

	var notifications []models.Notification
	if err := q.Order(dueOrder).Limit(query.Limit).Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repositoryImpl) StaleClaims(ctx context.Context, staleBefore time.Time, limit int) ([]models.Notification, error) {
	var notifications []models.Notification
	err := r.DB(ctx).
		Where("status = ? AND claimed_at <= ?", enums.NotificationStatusInProgress, staleBefore).
		Order("claimed_at ASC, id ASC").
		Limit(limit).
		Find(&notifications).Error
	if err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *repositoryImpl) InsertAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	return r.DB(ctx).Create(attempt).Error
}

func (r *repositoryImpl) ListAttempts(ctx context.Context, notificationID uuid.UUID) ([]models.DeliveryAttempt, error) {
	var attempts []models.DeliveryAttempt
	err := r.DB(ctx).
		Where("notification_id = ?", notificationID).
		Order("attempt_number ASC").
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}
