package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/notifystore/pkg/db/types"
	"github.com/angelmondragon/notifystore/pkg/enums"
)

// Notification is a durable dispatch request. Rows are never deleted; they end
// in READ or CANCELLED.
type Notification struct {
	ID                     uuid.UUID                `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	IdempotencyKey         string                   `gorm:"column:idempotency_key;not null" json:"idempotency_key"`
	RecipientRef           string                   `gorm:"column:recipient_ref;not null" json:"recipient_ref"`
	Type                   enums.NotificationType   `gorm:"column:notification_type;not null" json:"notification_type"`
	Title                  string                   `gorm:"column:title;not null" json:"title"`
	BodyTemplate           string                   `gorm:"column:body_template;not null" json:"body_template"`
	SubjectTemplate        string                   `gorm:"column:subject_template;not null;default:''" json:"subject_template"`
	PreheaderTemplate      string                   `gorm:"column:preheader_template;not null;default:''" json:"preheader_template"`
	ContextName            string                   `gorm:"column:context_name;not null;default:''" json:"context_name"`
	ContextPayload         dbtypes.JSONBlob         `gorm:"column:context_payload;not null" json:"context_payload"`
	AdapterExtraParameters dbtypes.JSONBlob         `gorm:"column:adapter_extra_parameters" json:"adapter_extra_parameters"`
	ContextUsed            dbtypes.JSONBlob         `gorm:"column:context_used" json:"context_used"`
	AdapterUsed            *string                  `gorm:"column:adapter_used" json:"adapter_used"`
	Status                 enums.NotificationStatus `gorm:"column:status;not null" json:"status"`
	ScheduledFor           time.Time                `gorm:"column:scheduled_for;not null" json:"scheduled_for"`
	ClaimToken             *string                  `gorm:"column:claim_token" json:"claim_token"`
	ClaimedAt              *time.Time               `gorm:"column:claimed_at" json:"claimed_at"`
	Attempts               int                      `gorm:"column:attempts;not null;default:0" json:"attempts"`
	FailureReason          *string                  `gorm:"column:failure_reason" json:"failure_reason"`
	Version                int64                    `gorm:"column:version;not null;default:1" json:"version"`
	SentAt                 *time.Time               `gorm:"column:sent_at" json:"sent_at"`
	ReadAt                 *time.Time               `gorm:"column:read_at" json:"read_at"`
	CreatedAt              time.Time                `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt              time.Time                `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Notification) TableName() string { return "notifications" }

// HasLiveClaim reports whether the row is currently held by a worker.
func (n Notification) HasLiveClaim() bool {
	return n.Status == enums.NotificationStatusInProgress && n.ClaimToken != nil
}
