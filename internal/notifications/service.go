package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/angelmondragon/notifystore/pkg/config"
	"github.com/angelmondragon/notifystore/pkg/db"
	"github.com/angelmondragon/notifystore/pkg/db/models"
	dbtypes "github.com/angelmondragon/notifystore/pkg/db/types"
	"github.com/angelmondragon/notifystore/pkg/enums"
	pkgerrors "github.com/angelmondragon/notifystore/pkg/errors"
	"github.com/angelmondragon/notifystore/pkg/logger"
	"github.com/angelmondragon/notifystore/pkg/metrics"
	"github.com/angelmondragon/notifystore/pkg/pagination"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequiredSchemaVersion is the oldest schema the service can operate on.
const RequiredSchemaVersion int64 = 20260301091500

const (
	idempotencyIndex = "ux_notifications_idempotency_key_live"
	casRetries       = 3
)

// SchemaVersioner reports the applied schema version.
type SchemaVersioner interface {
	CurrentVersion(ctx context.Context) (int64, error)
}

// ClaimPolicy configures claim staleness and the retry cap.
type ClaimPolicy struct {
	StaleAfter  time.Duration
	MaxAttempts int
}

// PolicyFromConfig maps dispatch configuration onto a ClaimPolicy.
func PolicyFromConfig(cfg config.DispatchConfig) ClaimPolicy {
	return ClaimPolicy{StaleAfter: cfg.ClaimStaleAfter, MaxAttempts: cfg.MaxAttempts}
}

func (p ClaimPolicy) withDefaults() ClaimPolicy {
	if p.StaleAfter <= 0 {
		p.StaleAfter = 60 * time.Second
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	return p
}

// Service is the blocking surface over notification storage and the
// dispatch state machine.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Create(ctx context.Context, input CreateInput) (*CreateResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	Filter(ctx context.Context, filter Filter) iter.Seq2[models.Notification, error]
	List(ctx context.Context, filter Filter, params pagination.Params) (*ListResult, error)
	ListPending(ctx context.Context, params pagination.Params) (*ListResult, error)
	ListFuture(ctx context.Context, recipientRef string, params pagination.Params) (*ListResult, error)
	ListInAppUnread(ctx context.Context, recipientRef string, params pagination.Params) (*ListResult, error)
	MarkSent(ctx context.Context, id uuid.UUID, claimToken string, at time.Time) (*models.Notification, error)
	MarkFailed(ctx context.Context, id uuid.UUID, claimToken, reason string, at time.Time) (*models.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, at time.Time) (*models.Notification, error)
	Cancel(ctx context.Context, id uuid.UUID, at time.Time) (*models.Notification, error)
	UpdatePending(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Notification, error)
	StoreContextUsed(ctx context.Context, id uuid.UUID, contextUsed json.RawMessage, adapter string) (*models.Notification, error)
	ListAttempts(ctx context.Context, id uuid.UUID) ([]models.DeliveryAttempt, error)
	ClaimDue(ctx context.Context, limit int, workerToken string, now time.Time) ([]models.Notification, error)
	ReleaseStale(ctx context.Context, now time.Time) (int, error)
}

// ServiceParams wires the service dependencies.
type ServiceParams struct {
	DB      *gorm.DB
	Repo    Repository
	Schema  SchemaVersioner
	Logger  *logger.Logger
	Metrics *metrics.DispatchMetrics
	Policy  ClaimPolicy
	Clock   func() time.Time
}

type service struct {
	db       *gorm.DB
	repo     Repository
	logg     *logger.Logger
	metrics  *metrics.DispatchMetrics
	policy   ClaimPolicy
	clock    func() time.Time
	validate *validator.Validate
}

// CreateInput describes a new notification. Only the idempotency key and the
// recipient are required.
type CreateInput struct {
	IdempotencyKey         string                 `validate:"required,max=255"`
	RecipientRef           string                 `validate:"required,max=255"`
	Type                   enums.NotificationType `validate:"omitempty,oneof=email sms push in_app"`
	Title                  string                 `validate:"max=255"`
	BodyTemplate           string
	SubjectTemplate        string
	PreheaderTemplate      string
	ContextName            string `validate:"max=255"`
	ContextPayload         json.RawMessage
	AdapterExtraParameters json.RawMessage
	ScheduledFor           time.Time
}

// CreateResult carries the stored row and whether this call inserted it.
type CreateResult struct {
	Notification models.Notification
	Created      bool
}

// UpdateInput edits a pending notification. Nil fields are left untouched.
type UpdateInput struct {
	Title                  *string `validate:"omitempty,max=255"`
	BodyTemplate           *string
	SubjectTemplate        *string
	PreheaderTemplate      *string
	ContextName            *string `validate:"omitempty,max=255"`
	ContextPayload         json.RawMessage
	AdapterExtraParameters json.RawMessage
	ScheduledFor           *time.Time
}

func (u UpdateInput) empty() bool {
	return u.Title == nil && u.BodyTemplate == nil && u.SubjectTemplate == nil &&
		u.PreheaderTemplate == nil && u.ContextName == nil && u.ContextPayload == nil &&
		u.AdapterExtraParameters == nil && u.ScheduledFor == nil
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Cursor string                `json:"cursor"`
}

// NewService wires notification dependencies and refuses to start against an
// outdated schema.
func NewService(ctx context.Context, params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "database required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	if params.Schema == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "schema versioner required")
	}
	if err := CheckSchema(ctx, params.Schema); err != nil {
		return nil, err
	}

	repo := params.Repo
	if repo == nil {
		repo = NewRepository(params.DB)
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		db:       params.DB,
		repo:     repo,
		logg:     params.Logger,
		metrics:  params.Metrics,
		policy:   params.Policy.withDefaults(),
		clock:    clock,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

// CheckSchema returns SCHEMA_OUTDATED unless the applied schema is at least
// RequiredSchemaVersion.
func CheckSchema(ctx context.Context, schema SchemaVersioner) error {
	current, err := schema.CurrentVersion(ctx)
	if err != nil {
		code := pkgerrors.CodeInternal
		if db.IsUnavailable(err) {
			code = pkgerrors.CodeStorageUnavailable
		}
		return pkgerrors.Wrap(code, err, "read schema version")
	}
	if current < RequiredSchemaVersion {
		return pkgerrors.New(pkgerrors.CodeSchemaOutdated, fmt.Sprintf("schema version %d is behind required %d", current, RequiredSchemaVersion)).
			WithDetails(map[string]any{"current": current, "required": RequiredSchemaVersion})
	}
	return nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	clone := *s
	clone.db = tx
	clone.repo = s.repo.WithTx(tx)
	return &clone
}

func (s *service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	if err := s.validateStruct(input); err != nil {
		return nil, err
	}
	if err := validateJSON("context_payload", input.ContextPayload); err != nil {
		return nil, err
	}
	if err := validateJSON("adapter_extra_parameters", input.AdapterExtraParameters); err != nil {
		return nil, err
	}

	now := s.now()
	scheduledFor := now
	if !input.ScheduledFor.IsZero() {
		scheduledFor = normalizeTime(input.ScheduledFor)
	}
	notificationType := input.Type
	if notificationType == "" {
		notificationType = enums.NotificationTypeEmail
	}

	candidate := &models.Notification{
		ID:                     uuid.New(),
		IdempotencyKey:         input.IdempotencyKey,
		RecipientRef:           input.RecipientRef,
		Type:                   notificationType,
		Title:                  input.Title,
		BodyTemplate:           input.BodyTemplate,
		SubjectTemplate:        input.SubjectTemplate,
		PreheaderTemplate:      input.PreheaderTemplate,
		ContextName:            input.ContextName,
		ContextPayload:         dbtypes.JSONBlob(input.ContextPayload).OrEmptyObject(),
		AdapterExtraParameters: optionalBlob(input.AdapterExtraParameters),
		Status:                 enums.NotificationStatusPending,
		ScheduledFor:           scheduledFor,
		Version:                1,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	result := &CreateResult{}
	err := s.unitOfWork(ctx, func(tx *gorm.DB, repo Repository) error {
		existing, err := repo.FindLiveByIdempotencyKey(ctx, input.IdempotencyKey)
		if err == nil {
			result.Notification = *existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// Savepoint so a lost insert race leaves the outer transaction usable.
		insertErr := tx.Transaction(func(sp *gorm.DB) error {
			return repo.WithTx(sp).Insert(ctx, candidate)
		})
		if insertErr == nil {
			result.Notification = *candidate
			result.Created = true
			return nil
		}
		if !db.IsUniqueViolation(insertErr, idempotencyIndex) {
			return insertErr
		}

		existing, err = repo.FindLiveByIdempotencyKey(ctx, input.IdempotencyKey)
		if err != nil {
			return err
		}
		result.Notification = *existing
		return nil
	})
	if err != nil {
		return nil, s.storageError(ctx, err, "create notification")
	}

	logCtx := s.logg.WithNotificationID(ctx, result.Notification.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"idempotency_key": input.IdempotencyKey,
		"created":         result.Created,
	})
	s.logg.Info(logCtx, "notification stored")
	return result, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	notification, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.storageError(ctx, err, "get notification")
	}
	return notification, nil
}

// Filter lazily walks matching rows in due order, loading one keyset page per
// round trip. Each range over the sequence queries current state again.
func (s *service) Filter(ctx context.Context, filter Filter) iter.Seq2[models.Notification, error] {
	return func(yield func(models.Notification, error) bool) {
		if err := filter.validate(); err != nil {
			yield(models.Notification{}, err)
			return
		}
		size := filter.pageSize()
		var after *pagination.Cursor
		for {
			page, err := s.repo.Page(ctx, filter, after, size)
			if err != nil {
				yield(models.Notification{}, s.storageError(ctx, err, "filter notifications"))
				return
			}
			for _, notification := range page {
				if !yield(notification, nil) {
					return
				}
			}
			if len(page) < size {
				return
			}
			after = cursorFor(page[len(page)-1])
		}
	}
}

func (s *service) List(ctx context.Context, filter Filter, params pagination.Params) (*ListResult, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.Page(ctx, filter, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, s.storageError(ctx, err, "list notifications")
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		next = pagination.EncodeCursor(*cursorFor(rows[limit-1]))
	}
	return &ListResult{Items: rows, Cursor: next}, nil
}

func (s *service) ListPending(ctx context.Context, params pagination.Params) (*ListResult, error) {
	return s.List(ctx, DueFilter(s.now()), params)
}

func (s *service) ListFuture(ctx context.Context, recipientRef string, params pagination.Params) (*ListResult, error) {
	return s.List(ctx, FutureFilter(recipientRef, s.now()), params)
}

func (s *service) ListInAppUnread(ctx context.Context, recipientRef string, params pagination.Params) (*ListResult, error) {
	if recipientRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient ref required")
	}
	return s.List(ctx, InAppUnreadFilter(recipientRef), params)
}

func (s *service) MarkSent(ctx context.Context, id uuid.UUID, claimToken string, at time.Time) (*models.Notification, error) {
	return s.mutate(ctx, id, mutation{
		op:         OpMarkSent,
		claimToken: claimToken,
		at:         at,
		outcome:    enums.DeliveryOutcomeSent,
		apply: func(_ *models.Notification, updates map[string]any, at time.Time) {
			clearClaim(updates)
			updates["sent_at"] = at
			updates["failure_reason"] = nil
		},
	})
}

func (s *service) MarkFailed(ctx context.Context, id uuid.UUID, claimToken, reason string, at time.Time) (*models.Notification, error) {
	notification, err := s.mutate(ctx, id, mutation{
		op:         OpMarkFailed,
		claimToken: claimToken,
		at:         at,
		outcome:    enums.DeliveryOutcomeFailed,
		reason:     reason,
		apply: func(_ *models.Notification, updates map[string]any, _ time.Time) {
			clearClaim(updates)
			updates["failure_reason"] = optionalString(reason)
		},
	})
	if err != nil {
		return nil, err
	}
	if notification.Attempts >= s.policy.MaxAttempts {
		logCtx := s.logg.WithNotificationID(ctx, notification.ID.String())
		logCtx = s.logg.WithField(logCtx, "attempts", notification.Attempts)
		s.logg.Warn(logCtx, "notification exhausted its retry budget")
	}
	return notification, nil
}

func (s *service) MarkRead(ctx context.Context, id uuid.UUID, at time.Time) (*models.Notification, error) {
	return s.mutate(ctx, id, mutation{
		op: OpMarkRead,
		at: at,
		apply: func(_ *models.Notification, updates map[string]any, at time.Time) {
			updates["read_at"] = at
		},
	})
}

func (s *service) Cancel(ctx context.Context, id uuid.UUID, at time.Time) (*models.Notification, error) {
	return s.mutate(ctx, id, mutation{op: OpCancel, at: at})
}

func (s *service) UpdatePending(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.Notification, error) {
	if err := s.validateStruct(input); err != nil {
		return nil, err
	}
	if input.empty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}
	if err := validateJSON("context_payload", input.ContextPayload); err != nil {
		return nil, err
	}
	if err := validateJSON("adapter_extra_parameters", input.AdapterExtraParameters); err != nil {
		return nil, err
	}

	return s.mutate(ctx, id, mutation{
		op: OpUpdate,
		apply: func(_ *models.Notification, updates map[string]any, _ time.Time) {
			setIfPresent(updates, "title", input.Title)
			setIfPresent(updates, "body_template", input.BodyTemplate)
			setIfPresent(updates, "subject_template", input.SubjectTemplate)
			setIfPresent(updates, "preheader_template", input.PreheaderTemplate)
			setIfPresent(updates, "context_name", input.ContextName)
			if input.ContextPayload != nil {
				updates["context_payload"] = dbtypes.JSONBlob(input.ContextPayload).OrEmptyObject()
			}
			if input.AdapterExtraParameters != nil {
				updates["adapter_extra_parameters"] = optionalBlob(input.AdapterExtraParameters)
			}
			if input.ScheduledFor != nil {
				updates["scheduled_for"] = normalizeTime(*input.ScheduledFor)
			}
		},
	})
}

func (s *service) StoreContextUsed(ctx context.Context, id uuid.UUID, contextUsed json.RawMessage, adapter string) (*models.Notification, error) {
	if err := validateJSON("context_used", contextUsed); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, mutation{
		apply: func(_ *models.Notification, updates map[string]any, _ time.Time) {
			updates["context_used"] = optionalBlob(contextUsed)
			updates["adapter_used"] = optionalString(adapter)
		},
	})
}

func (s *service) ListAttempts(ctx context.Context, id uuid.UUID) ([]models.DeliveryAttempt, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	attempts, err := s.repo.ListAttempts(ctx, id)
	if err != nil {
		return nil, s.storageError(ctx, err, "list delivery attempts")
	}
	return attempts, nil
}

// mutation describes one guarded write. An empty op edits the row without a
// status change.
type mutation struct {
	op         Operation
	claimToken string
	at         time.Time
	outcome    enums.DeliveryOutcome
	reason     string
	apply      func(current *models.Notification, updates map[string]any, at time.Time)
}

// mutate reads the row, checks the claim token and the state machine, then
// writes conditionally on the row version. A lost version race re-reads and
// re-validates against the newer state.
func (s *service) mutate(ctx context.Context, id uuid.UUID, m mutation) (*models.Notification, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	at := s.now()
	if !m.at.IsZero() {
		at = normalizeTime(m.at)
	}

	var (
		from    enums.NotificationStatus
		updated *models.Notification
	)
	err := s.unitOfWork(ctx, func(_ *gorm.DB, repo Repository) error {
		for range casRetries {
			current, err := repo.FindByID(ctx, id)
			if err != nil {
				return err
			}
			if m.claimToken != "" && !holdsClaim(current, m.claimToken) {
				return claimLostError(current, m.op)
			}

			next := current.Status
			if m.op != "" {
				if next, err = checkTransition(current.Status, m.op); err != nil {
					return err
				}
			}

			touched := latest(at, current.UpdatedAt)
			updates := map[string]any{
				"status":     next,
				"version":    current.Version + 1,
				"updated_at": touched,
			}
			if m.apply != nil {
				m.apply(current, updates, touched)
			}

			won, err := repo.CompareAndSwap(ctx, id, current.Version, updates)
			if err != nil {
				return err
			}
			if !won {
				continue
			}

			if m.outcome != "" && current.ClaimToken != nil {
				if err := repo.InsertAttempt(ctx, attemptFor(current, m.outcome, m.reason, touched)); err != nil {
					return err
				}
			}

			from = current.Status
			updated, err = repo.FindByID(ctx, id)
			return err
		}
		return pkgerrors.New(pkgerrors.CodeStorageUnavailable, "notification modified concurrently")
	})
	if err != nil {
		if code := pkgerrors.CodeOf(err); code == pkgerrors.CodeInvalidTransition || code == pkgerrors.CodeClaimLost {
			s.metrics.IncRejected(string(code))
		}
		return nil, s.storageError(ctx, err, fmt.Sprintf("%s notification", operationLabel(m.op)))
	}

	if m.op != "" {
		s.metrics.IncTransition(string(from), string(updated.Status))
		logCtx := s.logg.WithNotificationID(ctx, id.String())
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"operation": string(m.op),
			"from":      string(from),
			"to":        string(updated.Status),
		})
		s.logg.Info(logCtx, "notification transitioned")
	}
	return updated, nil
}

// unitOfWork runs fn in a transaction, or in a savepoint when the service is
// already bound to one.
func (s *service) unitOfWork(ctx context.Context, fn func(tx *gorm.DB, repo Repository) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx, s.repo.WithTx(tx))
	})
}

func (s *service) validateStruct(input any) error {
	if err := s.validate.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			details := make(map[string]string, len(fieldErrs))
			for _, fe := range fieldErrs {
				details[fe.Field()] = fe.Tag()
			}
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid input").WithDetails(details)
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid input")
	}
	return nil
}

// storageError maps raw storage failures onto the error taxonomy. Coded
// errors pass through untouched.
func (s *service) storageError(ctx context.Context, err error, action string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "notification not found")
	}

	code := pkgerrors.CodeInternal
	if db.IsUnavailable(err) {
		code = pkgerrors.CodeStorageUnavailable
	}
	wrapped := pkgerrors.Wrap(code, err, action)
	s.logg.ErrorFields(ctx, action+" failed", err, pkgerrors.Dump(wrapped).Fields())
	return wrapped
}

func (s *service) now() time.Time {
	return normalizeTime(s.clock())
}

func holdsClaim(n *models.Notification, token string) bool {
	return n.ClaimToken != nil && *n.ClaimToken == token
}

func claimLostError(n *models.Notification, op Operation) error {
	return pkgerrors.New(pkgerrors.CodeClaimLost, "claim token does not match the current claim").
		WithDetails(map[string]any{"status": string(n.Status), "operation": string(op)})
}

func clearClaim(updates map[string]any) {
	updates["claim_token"] = nil
	updates["claimed_at"] = nil
}

func attemptFor(n *models.Notification, outcome enums.DeliveryOutcome, reason string, at time.Time) *models.DeliveryAttempt {
	return &models.DeliveryAttempt{
		ID:             uuid.New(),
		NotificationID: n.ID,
		AttemptNumber:  n.Attempts,
		ClaimToken:     *n.ClaimToken,
		Outcome:        outcome,
		Error:          optionalString(reason),
		CreatedAt:      at,
	}
}

func cursorFor(n models.Notification) *pagination.Cursor {
	return &pagination.Cursor{
		ScheduledFor: normalizeTime(n.ScheduledFor),
		CreatedAt:    normalizeTime(n.CreatedAt),
		ID:           n.ID,
	}
}

func operationLabel(op Operation) string {
	if op == "" {
		return "update"
	}
	return string(op)
}

// normalizeTime stores every timestamp as UTC at the precision both backends
// keep.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return normalizeTime(b)
	}
	return a
}

func validateJSON(field string, raw json.RawMessage) error {
	if len(raw) == 0 || json.Valid(raw) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s must be valid JSON", field)).
		WithDetails(map[string]string{field: "json"})
}

func optionalBlob(raw json.RawMessage) dbtypes.JSONBlob {
	if len(raw) == 0 {
		return nil
	}
	return dbtypes.JSONBlob(raw)
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func setIfPresent(updates map[string]any, column string, value *string) {
	if value != nil {
		updates[column] = *value
	}
}
