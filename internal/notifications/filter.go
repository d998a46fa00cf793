package notifications

import (
	"fmt"
	"time"

	"github.com/angelmondragon/notifystore/pkg/enums"
	pkgerrors "github.com/angelmondragon/notifystore/pkg/errors"
	"github.com/angelmondragon/notifystore/pkg/pagination"
	"gorm.io/gorm"
)

const (
	dueOrder = "scheduled_for ASC, created_at ASC, id ASC"

	defaultFilterPageSize = 100
)

// Filter narrows a notification query. Zero values match everything.
type Filter struct {
	Statuses       []enums.NotificationStatus
	Types          []enums.NotificationType
	RecipientRef   string
	DueAtOrBefore  *time.Time
	ScheduledAfter *time.Time
	// PageSize bounds how many rows Filter loads per round trip.
	PageSize int
}

func (f Filter) validate() error {
	for _, status := range f.Statuses {
		if !status.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status %q", status))
		}
	}
	for _, typ := range f.Types {
		if !typ.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid notification type %q", typ))
		}
	}
	if f.PageSize < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "page size must not be negative")
	}
	return nil
}

func (f Filter) pageSize() int {
	if f.PageSize <= 0 {
		return defaultFilterPageSize
	}
	return f.PageSize
}

// DueFilter matches pending rows whose schedule has arrived.
func DueFilter(now time.Time) Filter {
	due := normalizeTime(now)
	return Filter{
		Statuses:      []enums.NotificationStatus{enums.NotificationStatusPending},
		DueAtOrBefore: &due,
	}
}

// FutureFilter matches pending rows scheduled after now, optionally for one
// recipient.
func FutureFilter(recipientRef string, now time.Time) Filter {
	after := normalizeTime(now)
	return Filter{
		Statuses:       []enums.NotificationStatus{enums.NotificationStatusPending},
		RecipientRef:   recipientRef,
		ScheduledAfter: &after,
	}
}

// InAppUnreadFilter matches delivered in-app rows a recipient has not read.
func InAppUnreadFilter(recipientRef string) Filter {
	return Filter{
		Statuses:     []enums.NotificationStatus{enums.NotificationStatusSent},
		Types:        []enums.NotificationType{enums.NotificationTypeInApp},
		RecipientRef: recipientRef,
	}
}

func applyFilter(query *gorm.DB, filter Filter) *gorm.DB {
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if len(filter.Types) > 0 {
		query = query.Where("notification_type IN ?", filter.Types)
	}
	if filter.RecipientRef != "" {
		query = query.Where("recipient_ref = ?", filter.RecipientRef)
	}
	if filter.DueAtOrBefore != nil {
		query = query.Where("scheduled_for <= ?", normalizeTime(*filter.DueAtOrBefore))
	}
	if filter.ScheduledAfter != nil {
		query = query.Where("scheduled_for > ?", normalizeTime(*filter.ScheduledAfter))
	}
	return query
}

// afterCursor positions the query strictly after cursor in due order. The
// expanded form avoids row-value comparison, which sqlite only supports in
// recent versions.
func afterCursor(query *gorm.DB, cursor *pagination.Cursor) *gorm.DB {
	return query.Where(
		"(scheduled_for > ? OR (scheduled_for = ? AND (created_at > ? OR (created_at = ? AND id > ?))))",
		cursor.ScheduledFor, cursor.ScheduledFor,
		cursor.CreatedAt, cursor.CreatedAt,
		cursor.ID,
	)
}
