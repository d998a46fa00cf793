package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/notifystore/api/controllers"
	"github.com/angelmondragon/notifystore/internal/notifications"
	"github.com/angelmondragon/notifystore/pkg/config"
	"github.com/angelmondragon/notifystore/pkg/db"
	"github.com/angelmondragon/notifystore/pkg/logger"
	"github.com/angelmondragon/notifystore/pkg/metrics"
	"github.com/angelmondragon/notifystore/pkg/migrate"
)

func testConfig() *config.Config {
	return &config.Config{App: config.AppConfig{Env: config.AppEnvDev}}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
}

func newNotificationsService(t *testing.T, registry *prometheus.Registry) notifications.Service {
	t.Helper()
	ctx := context.Background()
	client, err := db.OpenSQLite(filepath.Join(t.TempDir(), "router.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.SQL()
	require.NoError(t, err)
	manager, err := migrate.NewManager(sqlDB, migrate.DialectSQLite)
	require.NoError(t, err)
	_, err = manager.ApplyPending(ctx)
	require.NoError(t, err)

	svc, err := notifications.NewService(ctx, notifications.ServiceParams{
		DB:      client.DB(),
		Schema:  manager,
		Logger:  testLogger(),
		Metrics: metrics.NewDispatchMetrics(registry),
	})
	require.NoError(t, err)
	return svc
}

func TestHealthRoutes(t *testing.T) {
	ready := map[string]controllers.Pinger{
		"database": controllers.PingFunc(func(context.Context) error { return nil }),
	}
	router := NewRouter(testConfig(), testLogger(), ready, nil, nil)

	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, resp.Code, path)
		assert.NotEmpty(t, resp.Header().Get("X-Request-Id"))
	}
}

func TestReadyFailsWhenDependencyDown(t *testing.T) {
	ready := map[string]controllers.Pinger{
		"redis": controllers.PingFunc(func(context.Context) error { return errors.New("connection refused") }),
	}
	router := NewRouter(testConfig(), testLogger(), ready, nil, nil)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestNotificationRoutesAndMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	svc := newNotificationsService(t, registry)
	ctx := context.Background()

	created, err := svc.Create(ctx, notifications.CreateInput{IdempotencyKey: "k1", RecipientRef: "u1"})
	require.NoError(t, err)
	id := created.Notification.ID.String()

	router := NewRouter(testConfig(), testLogger(), nil, registry, svc)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/notifications/"+id, nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"idempotency_key":"k1"`)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/notifications/due", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), id)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+id+"/cancel", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"cancelled"`)

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/notifications/"+id+"/read", nil))
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Contains(t, resp.Body.String(), "INVALID_TRANSITION")

	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, strings.Contains(resp.Body.String(), "notification_transitions_total"))
}
