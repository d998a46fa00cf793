package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/notifystore/pkg/enums"
	pkgerrors "github.com/angelmondragon/notifystore/pkg/errors"
)

func TestAsyncServiceMatchesBlockingResults(t *testing.T) {
	f := newFixture(t, ClaimPolicy{})
	async := NewAsyncService(f.svc)
	ctx := context.Background()

	created, err := async.Create(ctx, CreateInput{IdempotencyKey: "k1", RecipientRef: "u1", ScheduledFor: baseTime}).Await(ctx)
	require.NoError(t, err)
	require.True(t, created.Created)

	again, err := async.Create(ctx, CreateInput{IdempotencyKey: "k1", RecipientRef: "u1"}).Await(ctx)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, created.Notification.ID, again.Notification.ID)

	due, err := async.Filter(ctx, DueFilter(baseTime)).Await(ctx)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	claimed, err := async.ClaimDue(ctx, 1, "worker-1", baseTime).Await(ctx)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	sent, err := async.MarkSent(ctx, claimed[0].ID, "worker-1", time.Time{}).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, enums.NotificationStatusSent, sent.Status)

	blocking, err := async.Sync().Get(ctx, sent.ID)
	require.NoError(t, err)
	viaFuture, err := async.Get(ctx, sent.ID).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, blocking, viaFuture)

	_, err = async.Cancel(ctx, sent.ID, time.Time{}).Await(ctx)
	assert.Equal(t, pkgerrors.CodeInvalidTransition, pkgerrors.CodeOf(err))

	_, err = async.Get(ctx, uuid.New()).Await(ctx)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))

	released, err := async.ReleaseStale(ctx, baseTime).Await(ctx)
	require.NoError(t, err)
	assert.Zero(t, released)
}

func TestFutureAwaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	future := goFuture(func() (int, error) {
		<-block
		return 7, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := future.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(block)
	<-future.Done()
	value, err := future.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, value)
}

func TestFutureRecoversPanics(t *testing.T) {
	future := goFuture(func() (string, error) {
		panic("boom")
	})

	_, err := future.Await(context.Background())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInternal, pkgerrors.CodeOf(err))
}

func TestFuturePropagatesErrors(t *testing.T) {
	sentinel := errors.New("sentinel")
	_, err := goFuture(func() (int, error) { return 0, sentinel }).Await(context.Background())
	assert.ErrorIs(t, err, sentinel)
}
