package enums

import "fmt"

// NotificationStatus maps to the status column of the notifications table.
type NotificationStatus string

const (
	NotificationStatusPending    NotificationStatus = "pending"
	NotificationStatusInProgress NotificationStatus = "in_progress"
	NotificationStatusSent       NotificationStatus = "sent"
	NotificationStatusFailed     NotificationStatus = "failed"
	NotificationStatusRead       NotificationStatus = "read"
	NotificationStatusCancelled  NotificationStatus = "cancelled"
)

var validNotificationStatuses = []NotificationStatus{
	NotificationStatusPending,
	NotificationStatusInProgress,
	NotificationStatusSent,
	NotificationStatusFailed,
	NotificationStatusRead,
	NotificationStatusCancelled,
}

// NotificationStatuses returns every status in lifecycle order.
func NotificationStatuses() []NotificationStatus {
	out := make([]NotificationStatus, len(validNotificationStatuses))
	copy(out, validNotificationStatuses)
	return out
}

// IsValid checks whether the given status matches the canonical set.
func (s NotificationStatus) IsValid() bool {
	for _, candidate := range validNotificationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave the status.
func (s NotificationStatus) IsTerminal() bool {
	return s == NotificationStatusRead || s == NotificationStatusCancelled
}

// ParseNotificationStatus converts raw strings into NotificationStatus.
func ParseNotificationStatus(value string) (NotificationStatus, error) {
	for _, candidate := range validNotificationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification status %q", value)
}

// NotificationType identifies the delivery channel a notification is meant for.
type NotificationType string

const (
	NotificationTypeEmail NotificationType = "email"
	NotificationTypeSMS   NotificationType = "sms"
	NotificationTypePush  NotificationType = "push"
	NotificationTypeInApp NotificationType = "in_app"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeEmail,
	NotificationTypeSMS,
	NotificationTypePush,
	NotificationTypeInApp,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}

// DeliveryOutcome records how a single delivery attempt ended.
type DeliveryOutcome string

const (
	DeliveryOutcomeSent    DeliveryOutcome = "sent"
	DeliveryOutcomeFailed  DeliveryOutcome = "failed"
	DeliveryOutcomeExpired DeliveryOutcome = "expired"
)

// IsValid reports whether the outcome is known.
func (o DeliveryOutcome) IsValid() bool {
	switch o {
	case DeliveryOutcomeSent, DeliveryOutcomeFailed, DeliveryOutcomeExpired:
		return true
	}
	return false
}
