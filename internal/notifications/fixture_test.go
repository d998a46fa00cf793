package notifications

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/notifystore/pkg/db"
	"github.com/angelmondragon/notifystore/pkg/db/models"
	"github.com/angelmondragon/notifystore/pkg/logger"
	"github.com/angelmondragon/notifystore/pkg/metrics"
	"github.com/angelmondragon/notifystore/pkg/migrate"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	client   *db.Client
	manager  *migrate.Manager
	svc      Service
	clock    *testClock
	registry *prometheus.Registry
}

func newFixture(t *testing.T, policy ClaimPolicy) *fixture {
	t.Helper()
	ctx := context.Background()

	client, err := db.OpenSQLite(filepath.Join(t.TempDir(), "notifications.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.SQL()
	require.NoError(t, err)
	manager, err := migrate.NewManager(sqlDB, migrate.DialectSQLite)
	require.NoError(t, err)
	_, err = manager.ApplyPending(ctx)
	require.NoError(t, err)

	clock := &testClock{now: baseTime}
	registry := prometheus.NewRegistry()
	svc, err := NewService(ctx, ServiceParams{
		DB:      client.DB(),
		Schema:  manager,
		Logger:  logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard}),
		Metrics: metrics.NewDispatchMetrics(registry),
		Policy:  policy,
		Clock:   clock.Now,
	})
	require.NoError(t, err)

	return &fixture{client: client, manager: manager, svc: svc, clock: clock, registry: registry}
}

func (f *fixture) create(t *testing.T, key string, scheduledFor time.Time) models.Notification {
	t.Helper()
	result, err := f.svc.Create(context.Background(), CreateInput{
		IdempotencyKey: key,
		RecipientRef:   "u1",
		Title:          "Hello",
		BodyTemplate:   "Hi {{ name }}",
		ContextPayload: []byte(`{"name":"Ada"}`),
		ScheduledFor:   scheduledFor,
	})
	require.NoError(t, err)
	require.True(t, result.Created)
	return result.Notification
}

func ids(rows []models.Notification) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ID.String())
	}
	return out
}
