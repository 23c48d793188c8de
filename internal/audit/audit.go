package audit

import (
	"context"

	"github.com/gabrielkumagai/beezy-api/pkg/log"
)

// Audit actions for the chat core.
const (
	ActionStartChat   = "chat.start"
	ActionSendMessage = "chat.send_message"
	ActionListHistory = "chat.list_history"
	ActionJoinRoom    = "chat.join_room"
	ActionDisconnect  = "chat.disconnect"
	ActionForbidden   = "chat.forbidden"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogWithTarget emits an audit log naming the acted-on entity.
func LogWithTarget(ctx context.Context, action string, userID string, targetID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTargetID, targetID).
		Msg(msg)
}
