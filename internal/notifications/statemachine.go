package notifications

import (
	"fmt"

	"github.com/angelmondragon/notifystore/pkg/enums"
	pkgerrors "github.com/angelmondragon/notifystore/pkg/errors"
)

// Operation names a lifecycle event applied to a notification.
type Operation string

const (
	OpClaim      Operation = "claim"
	OpMarkSent   Operation = "mark_sent"
	OpMarkFailed Operation = "mark_failed"
	OpMarkRead   Operation = "mark_read"
	OpCancel     Operation = "cancel"
	OpExpire     Operation = "expire"
	OpUpdate     Operation = "update"
)

// Operations returns every lifecycle operation.
func Operations() []Operation {
	return []Operation{OpClaim, OpMarkSent, OpMarkFailed, OpMarkRead, OpCancel, OpExpire, OpUpdate}
}

// transitions lists every legal (status, operation) pair. OpUpdate edits a
// pending row in place.
var transitions = map[enums.NotificationStatus]map[Operation]enums.NotificationStatus{
	enums.NotificationStatusPending: {
		OpClaim:  enums.NotificationStatusInProgress,
		OpCancel: enums.NotificationStatusCancelled,
		OpUpdate: enums.NotificationStatusPending,
	},
	enums.NotificationStatusInProgress: {
		OpMarkSent:   enums.NotificationStatusSent,
		OpMarkFailed: enums.NotificationStatusFailed,
		OpExpire:     enums.NotificationStatusFailed,
	},
	enums.NotificationStatusFailed: {
		OpClaim:  enums.NotificationStatusInProgress,
		OpCancel: enums.NotificationStatusCancelled,
	},
	enums.NotificationStatusSent: {
		OpMarkRead: enums.NotificationStatusRead,
	},
}

// NextStatus returns the status reached by applying op to from.
func NextStatus(from enums.NotificationStatus, op Operation) (enums.NotificationStatus, bool) {
	next, ok := transitions[from][op]
	return next, ok
}

// checkTransition returns the target status or an INVALID_TRANSITION error.
func checkTransition(from enums.NotificationStatus, op Operation) (enums.NotificationStatus, error) {
	next, ok := NextStatus(from, op)
	if !ok {
		return "", pkgerrors.New(pkgerrors.CodeInvalidTransition, fmt.Sprintf("cannot %s a %s notification", op, from)).
			WithDetails(map[string]any{"from": string(from), "operation": string(op)})
	}
	return next, nil
}
