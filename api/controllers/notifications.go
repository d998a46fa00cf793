package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/notifystore/api/responses"
	"github.com/angelmondragon/notifystore/api/validators"
	"github.com/angelmondragon/notifystore/internal/notifications"
	"github.com/angelmondragon/notifystore/pkg/db/models"
	pkgerrors "github.com/angelmondragon/notifystore/pkg/errors"
	"github.com/angelmondragon/notifystore/pkg/logger"
	"github.com/angelmondragon/notifystore/pkg/pagination"
)

const maxCursorLength = 512

// NotificationsService is the subset of the notifications service exposed
// over the ops surface.
type NotificationsService interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	ListAttempts(ctx context.Context, id uuid.UUID) ([]models.DeliveryAttempt, error)
	ListPending(ctx context.Context, params pagination.Params) (*notifications.ListResult, error)
	ListInAppUnread(ctx context.Context, recipientRef string, params pagination.Params) (*notifications.ListResult, error)
	MarkRead(ctx context.Context, id uuid.UUID, at time.Time) (*models.Notification, error)
	Cancel(ctx context.Context, id uuid.UUID, at time.Time) (*models.Notification, error)
}

// GetNotification returns a single notification by id.
func GetNotification(svc NotificationsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := notificationIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		notification, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, notification)
	}
}

// ListNotificationAttempts returns the delivery attempt log of a notification.
func ListNotificationAttempts(svc NotificationsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := notificationIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		attempts, err := svc.ListAttempts(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": attempts})
	}
}

// ListDueNotifications pages through pending notifications that are due now.
func ListDueNotifications(svc NotificationsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListPending(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// ListUnreadInApp pages through delivered in-app notifications a recipient
// has not read yet.
func ListUnreadInApp(svc NotificationsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recipient := strings.TrimSpace(chi.URLParam(r, "recipientRef"))
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListInAppUnread(r.Context(), recipient, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// MarkNotificationRead records a read receipt.
func MarkNotificationRead(svc NotificationsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := notificationIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		notification, err := svc.MarkRead(r.Context(), id, time.Time{})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, notification)
	}
}

// CancelNotification cancels a pending or failed notification.
func CancelNotification(svc NotificationsService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := notificationIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		notification, err := svc.Cancel(r.Context(), id, time.Time{})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, notification)
	}
}

func notificationIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "notificationId"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid notification id").
			WithDetails(map[string]any{"field": "notificationId"})
	}
	return id, nil
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	cursor, err := validators.ParseQueryToken(r, "cursor", maxCursorLength)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: cursor}, nil
}
