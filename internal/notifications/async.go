package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/notifystore/pkg/db/models"
	pkgerrors "github.com/angelmondragon/notifystore/pkg/errors"
	"github.com/angelmondragon/notifystore/pkg/pagination"
	"github.com/google/uuid"
)

// Future is the pending result of an asynchronous call.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func goFuture[T any](fn func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("async call panicked: %v", r))
			}
		}()
		f.val, f.err = fn()
	}()
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the call finishes or ctx ends. Abandoning a future does
// not cancel the underlying call; cancel the context passed to the call.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AsyncService runs every Service call on its own goroutine and hands back a
// Future. Results and errors are identical to the blocking calls.
type AsyncService struct {
	svc Service
}

// NewAsyncService wraps svc.
func NewAsyncService(svc Service) *AsyncService {
	return &AsyncService{svc: svc}
}

// Sync returns the wrapped blocking service.
func (a *AsyncService) Sync() Service {
	return a.svc
}

func (a *AsyncService) Create(ctx context.Context, input CreateInput) *Future[*CreateResult] {
	return goFuture(func() (*CreateResult, error) { return a.svc.Create(ctx, input) })
}

func (a *AsyncService) Get(ctx context.Context, id uuid.UUID) *Future[*models.Notification] {
	return goFuture(func() (*models.Notification, error) { return a.svc.Get(ctx, id) })
}

// Filter drains the matching rows into a slice.
func (a *AsyncService) Filter(ctx context.Context, filter Filter) *Future[[]models.Notification] {
	return goFuture(func() ([]models.Notification, error) {
		var out []models.Notification
		for n, err := range a.svc.Filter(ctx, filter) {
			if err != nil {
				return out, err
			}
			out = append(out, n)
		}
		return out, nil
	})
}

func (a *AsyncService) List(ctx context.Context, filter Filter, params pagination.Params) *Future[*ListResult] {
	return goFuture(func() (*ListResult, error) { return a.svc.List(ctx, filter, params) })
}

func (a *AsyncService) MarkSent(ctx context.Context, id uuid.UUID, claimToken string, at time.Time) *Future[*models.Notification] {
	return goFuture(func() (*models.Notification, error) { return a.svc.MarkSent(ctx, id, claimToken, at) })
}

func (a *AsyncService) MarkFailed(ctx context.Context, id uuid.UUID, claimToken, reason string, at time.Time) *Future[*models.Notification] {
	return goFuture(func() (*models.Notification, error) { return a.svc.MarkFailed(ctx, id, claimToken, reason, at) })
}

func (a *AsyncService) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) *Future[*models.Notification] {
	return goFuture(func() (*models.Notification, error) { return a.svc.MarkRead(ctx, id, at) })
}

func (a *AsyncService) Cancel(ctx context.Context, id uuid.UUID, at time.Time) *Future[*models.Notification] {
	return goFuture(func() (*models.Notification, error) { return a.svc.Cancel(ctx, id, at) })
}

func (a *AsyncService) UpdatePending(ctx context.Context, id uuid.UUID, input UpdateInput) *Future[*models.Notification] {
	return goFuture(func() (*models.Notification, error) { return a.svc.UpdatePending(ctx, id, input) })
}

func (a *AsyncService) StoreContextUsed(ctx context.Context, id uuid.UUID, contextUsed json.RawMessage, adapter string) *Future[*models.Notification] {
	return goFuture(func() (*models.Notification, error) { return a.svc.StoreContextUsed(ctx, id, contextUsed, adapter) })
}

func (a *AsyncService) ListAttempts(ctx context.Context, id uuid.UUID) *Future[[]models.DeliveryAttempt] {
	return goFuture(func() ([]models.DeliveryAttempt, error) { return a.svc.ListAttempts(ctx, id) })
}

func (a *AsyncService) ClaimDue(ctx context.Context, limit int, workerToken string, now time.Time) *Future[[]models.Notification] {
	return goFuture(func() ([]models.Notification, error) { return a.svc.ClaimDue(ctx, limit, workerToken, now) })
}

func (a *AsyncService) ReleaseStale(ctx context.Context, now time.Time) *Future[int] {
	return goFuture(func() (int, error) { return a.svc.ReleaseStale(ctx, now) })
}
