package notifications

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/notifystore/pkg/enums"
	pkgerrors "github.com/angelmondragon/notifystore/pkg/errors"
)

func TestTransitionMatrix(t *testing.T) {
	legal := map[enums.NotificationStatus]map[Operation]enums.NotificationStatus{
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

	for _, from := range enums.NotificationStatuses() {
		for _, op := range Operations() {
			want, ok := legal[from][op]
			next, err := checkTransition(from, op)
			if ok {
				require.NoErrorf(t, err, "%s from %s", op, from)
				assert.Equalf(t, want, next, "%s from %s", op, from)
				continue
			}
			require.Errorf(t, err, "%s from %s should be rejected", op, from)
			assert.Equal(t, pkgerrors.CodeInvalidTransition, pkgerrors.CodeOf(err))
			details, _ := pkgerrors.As(err).Details().(map[string]any)
			assert.Equal(t, string(from), details["from"])
			assert.Equal(t, string(op), details["operation"])
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, from := range enums.NotificationStatuses() {
		if !from.IsTerminal() {
			continue
		}
		for _, op := range Operations() {
			_, ok := NextStatus(from, op)
			assert.Falsef(t, ok, "%s must not leave %s", op, from)
		}
	}
}
