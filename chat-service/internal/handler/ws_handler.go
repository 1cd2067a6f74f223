package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/weiawesome/wes-io-community/chat-service/internal/config"
	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-community/chat-service/internal/hub"
	"github.com/weiawesome/wes-io-community/chat-service/internal/metrics"
	"github.com/weiawesome/wes-io-community/chat-service/internal/service"
	"github.com/weiawesome/wes-io-community/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	hub      *hub.Hub
	service  service.ChatService
	wsCfg    config.WebSocketConfig
	validate *validator.Validate
}

func NewWSHandler(h *hub.Hub, svc service.ChatService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:      h,
		service:  svc,
		wsCfg:    wsCfg,
		validate: validator.New(),
	}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.Ctx(r.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// The request context ends with the handler; keep only its logger.
	base := log.WithLogger(context.Background(), log.Ctx(r.Context()))
	client := hub.NewClient(base, uuid.New().String(), h.hub, conn, h.wsCfg)

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage, h.handleClose)
}

func (h *WSHandler) handleClose(client *hub.Client) {
	ctx := client.Context()
	if err := h.service.HandleDisconnect(ctx, client); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("disconnect cleanup failed")
	}
}

// decode unmarshals and validates one inbound frame.
func (h *WSHandler) decode(message []byte, v interface{}) error {
	if err := json.Unmarshal(message, v); err != nil {
		return err
	}
	return h.validate.Struct(v)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		metrics.InboundEvents.WithLabelValues("invalid", metrics.OutcomeRejected).Inc()
		return
	}

	if !client.Allow() {
		client.SendMessage(service.ToErrorMessage(service.ErrRateLimited))
		h.record(client.Context(), base.Type, service.ErrRateLimited)
		return
	}

	ctx := log.WithFields(client.Context(), log.FieldEventType, base.Type)
	err := h.dispatch(ctx, client, base.Type, message)
	h.record(ctx, base.Type, err)
}

func (h *WSHandler) dispatch(ctx context.Context, client *hub.Client, msgType string, message []byte) error {
	switch msgType {
	case domain.MsgTypeAuthenticate:
		var msg domain.AuthenticateMessage
		if err := h.decode(message, &msg); err != nil {
			return h.badRequest(client, "Invalid authenticate message", err)
		}
		return h.service.HandleAuth(ctx, client, &msg)

	case domain.MsgTypeJoinCommunity, domain.MsgTypeLeaveCommunity, domain.MsgTypeTypingStart, domain.MsgTypeTypingStop:
		var msg domain.CommunityMessage
		if err := h.decode(message, &msg); err != nil {
			return h.badRequest(client, "Invalid "+msgType+" message", err)
		}
		switch msgType {
		case domain.MsgTypeJoinCommunity:
			return h.service.HandleJoinCommunity(ctx, client, msg.CommunityID)
		case domain.MsgTypeLeaveCommunity:
			return h.service.HandleLeaveCommunity(ctx, client, msg.CommunityID)
		default:
			return h.service.HandleTyping(ctx, client, msg.CommunityID, msgType == domain.MsgTypeTypingStart)
		}

	case domain.MsgTypeSendMessage:
		var msg domain.SendMessageMessage
		if err := h.decode(message, &msg); err != nil {
			return h.badRequest(client, "Invalid send_message", err)
		}
		return h.service.HandleSendMessage(ctx, client, &msg)

	case domain.MsgTypeEditMessage:
		var msg domain.EditMessageMessage
		if err := h.decode(message, &msg); err != nil {
			return h.badRequest(client, "Invalid edit_message", err)
		}
		return h.service.HandleEditMessage(ctx, client, &msg)

	case domain.MsgTypeDeleteMessage:
		var msg domain.DeleteMessageMessage
		if err := h.decode(message, &msg); err != nil {
			return h.badRequest(client, "Invalid delete_message", err)
		}
		return h.service.HandleDeleteMessage(ctx, client, msg.MessageID)

	case domain.MsgTypeAddReaction, domain.MsgTypeRemoveReaction:
		var msg domain.ReactionMessage
		if err := h.decode(message, &msg); err != nil {
			return h.badRequest(client, "Invalid "+msgType+" message", err)
		}
		if msgType == domain.MsgTypeAddReaction {
			return h.service.HandleAddReaction(ctx, client, &msg)
		}
		return h.service.HandleRemoveReaction(ctx, client, &msg)

	case domain.MsgTypePing:
		return h.service.HandlePing(ctx, client)

	default:
		return h.badRequest(client, "Unknown message type", nil)
	}
}

var errBadFrame = errors.New("bad frame")

func (h *WSHandler) badRequest(client *hub.Client, msg string, cause error) error {
	client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, msg))
	if cause == nil {
		return errBadFrame
	}
	return errors.Join(errBadFrame, cause)
}

// record logs and counts the outcome of one inbound event. Rejections the
// client caused are logged at debug.
func (h *WSHandler) record(ctx context.Context, msgType string, err error) {
	label := msgType
	if !knownTypes[msgType] {
		label = "unknown"
	}
	if err == nil {
		metrics.InboundEvents.WithLabelValues(label, metrics.OutcomeOK).Inc()
		return
	}

	l := log.Ctx(ctx)
	switch service.ToErrorMessage(err).Code {
	case domain.ErrCodeStoreUnavailable, domain.ErrCodeInternalError:
		if !errors.Is(err, errBadFrame) {
			metrics.InboundEvents.WithLabelValues(label, metrics.OutcomeError).Inc()
			l.Error().Err(err).Msg("event failed")
			return
		}
	}
	metrics.InboundEvents.WithLabelValues(label, metrics.OutcomeRejected).Inc()
	l.Debug().Err(err).Msg("event rejected")
}

var knownTypes = map[string]bool{
	domain.MsgTypeAuthenticate:   true,
	domain.MsgTypeJoinCommunity:  true,
	domain.MsgTypeLeaveCommunity: true,
	domain.MsgTypeSendMessage:    true,
	domain.MsgTypeEditMessage:    true,
	domain.MsgTypeDeleteMessage:  true,
	domain.MsgTypeAddReaction:    true,
	domain.MsgTypeRemoveReaction: true,
	domain.MsgTypeTypingStart:    true,
	domain.MsgTypeTypingStop:     true,
	domain.MsgTypePing:           true,
}

func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/chat/ws", h.HandleWebSocket)
}
