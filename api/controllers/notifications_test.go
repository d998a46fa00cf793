package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/notifystore/internal/notifications"
	"github.com/angelmondragon/notifystore/pkg/db/models"
	"github.com/angelmondragon/notifystore/pkg/enums"
	pkgerrors "github.com/angelmondragon/notifystore/pkg/errors"
	"github.com/angelmondragon/notifystore/pkg/logger"
	"github.com/angelmondragon/notifystore/pkg/pagination"
)

type testNotificationsService struct {
	getFn         func(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	cancelFn      func(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	listPendingFn func(ctx context.Context, params pagination.Params) (*notifications.ListResult, error)
	unreadFn      func(ctx context.Context, recipient string, params pagination.Params) (*notifications.ListResult, error)
}

func (s *testNotificationsService) Get(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return &models.Notification{ID: id}, nil
}

func (s *testNotificationsService) ListAttempts(ctx context.Context, id uuid.UUID) ([]models.DeliveryAttempt, error) {
	return []models.DeliveryAttempt{{NotificationID: id, AttemptNumber: 1, Outcome: enums.DeliveryOutcomeSent}}, nil
}

func (s *testNotificationsService) ListPending(ctx context.Context, params pagination.Params) (*notifications.ListResult, error) {
	if s.listPendingFn != nil {
		return s.listPendingFn(ctx, params)
	}
	return &notifications.ListResult{}, nil
}

func (s *testNotificationsService) ListInAppUnread(ctx context.Context, recipient string, params pagination.Params) (*notifications.ListResult, error) {
	if s.unreadFn != nil {
		return s.unreadFn(ctx, recipient, params)
	}
	return &notifications.ListResult{}, nil
}

func (s *testNotificationsService) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) (*models.Notification, error) {
	return &models.Notification{ID: id, Status: enums.NotificationStatusRead}, nil
}

func (s *testNotificationsService) Cancel(ctx context.Context, id uuid.UUID, at time.Time) (*models.Notification, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, id)
	}
	return &models.Notification{ID: id, Status: enums.NotificationStatusCancelled}, nil
}

func withRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestGetNotificationSuccess(t *testing.T) {
	id := uuid.New()
	req := withRouteParam(httptest.NewRequest(http.MethodGet, "/notifications/"+id.String(), nil), "notificationId", id.String())
	resp := httptest.NewRecorder()

	GetNotification(&testNotificationsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			ID uuid.UUID `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.ID != id {
		t.Fatalf("unexpected id %s", envelope.Data.ID)
	}
}

func TestGetNotificationRejectsBadID(t *testing.T) {
	req := withRouteParam(httptest.NewRequest(http.MethodGet, "/notifications/nope", nil), "notificationId", "nope")
	resp := httptest.NewRecorder()

	GetNotification(&testNotificationsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetNotificationNotFound(t *testing.T) {
	id := uuid.New()
	svc := &testNotificationsService{
		getFn: func(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		},
	}
	req := withRouteParam(httptest.NewRequest(http.MethodGet, "/notifications/"+id.String(), nil), "notificationId", id.String())
	resp := httptest.NewRecorder()

	GetNotification(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestCancelNotificationInvalidTransition(t *testing.T) {
	id := uuid.New()
	svc := &testNotificationsService{
		cancelFn: func(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "cannot cancel a read notification")
		},
	}
	req := withRouteParam(httptest.NewRequest(http.MethodPost, "/notifications/"+id.String()+"/cancel", nil), "notificationId", id.String())
	resp := httptest.NewRecorder()

	CancelNotification(svc, testLogger())(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestListDueNotificationsPassesPaging(t *testing.T) {
	var got pagination.Params
	svc := &testNotificationsService{
		listPendingFn: func(ctx context.Context, params pagination.Params) (*notifications.ListResult, error) {
			got = params
			return &notifications.ListResult{Cursor: "next"}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/notifications/due?limit=10&cursor=abc", nil)
	resp := httptest.NewRecorder()

	ListDueNotifications(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if got.Limit != 10 || got.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/notifications/due?limit=1000", nil)
	resp = httptest.NewRecorder()
	ListDueNotifications(svc, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range limit, got %d", resp.Code)
	}
}

func TestListUnreadInAppUsesRecipient(t *testing.T) {
	var recipient string
	svc := &testNotificationsService{
		unreadFn: func(ctx context.Context, r string, params pagination.Params) (*notifications.ListResult, error) {
			recipient = r
			return &notifications.ListResult{}, nil
		},
	}
	req := withRouteParam(httptest.NewRequest(http.MethodGet, "/recipients/u1/unread", nil), "recipientRef", "u1")
	resp := httptest.NewRecorder()

	ListUnreadInApp(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if recipient != "u1" {
		t.Fatalf("unexpected recipient %q", recipient)
	}
}
