package audit

import (
	"context"

	"github.com/weiawesome/wes-io-community/pkg/log"
)

// Audit actions for chat-service.
const (
	ActionAuth           = "chat.auth"
	ActionAuthFailed     = "chat.auth_failed"
	ActionJoinCommunity  = "chat.join_community"
	ActionJoinDenied     = "chat.join_denied"
	ActionLeaveCommunity = "chat.leave_community"
	ActionSendMessage    = "chat.send_message"
	ActionEditMessage    = "chat.edit_message"
	ActionDeleteMessage  = "chat.delete_message"
	ActionAddReaction    = "chat.add_reaction"
	ActionRemoveReaction = "chat.remove_reaction"
	ActionUpload         = "chat.upload_attachment"
	ActionDisconnect     = "chat.disconnect"
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

// LogTarget emits an audit log naming the entity acted upon.
func LogTarget(ctx context.Context, action, userID, targetID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTargetID, targetID).
		Msg(msg)
}

// LogWithDetail emits an audit log with extra detail field.
func LogWithDetail(ctx context.Context, action string, userID string, detail string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldDetail, detail).
		Msg(msg)
}
