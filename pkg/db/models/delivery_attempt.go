package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/notifystore/pkg/enums"
)

// DeliveryAttempt records one resolved claim of a notification.
type DeliveryAttempt struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	NotificationID uuid.UUID             `gorm:"column:notification_id;type:uuid;not null" json:"notification_id"`
	AttemptNumber  int                   `gorm:"column:attempt_number;not null" json:"attempt_number"`
	ClaimToken     string                `gorm:"column:claim_token;not null" json:"claim_token"`
	Outcome        enums.DeliveryOutcome `gorm:"column:outcome;not null" json:"outcome"`
	Error          *string               `gorm:"column:error" json:"error"`
	CreatedAt      time.Time             `gorm:"column:created_at;not null" json:"created_at"`
}

func (DeliveryAttempt) TableName() string { return "notification_delivery_attempts" }
