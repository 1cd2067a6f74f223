package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-io-community/chat-service/internal/audit"
	"github.com/weiawesome/wes-io-community/chat-service/internal/cache"
	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-community/chat-service/internal/kafka"
	"github.com/weiawesome/wes-io-community/chat-service/internal/metrics"
	"github.com/weiawesome/wes-io-community/chat-service/internal/presence"
	"github.com/weiawesome/wes-io-community/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-community/pkg/log"
	"github.com/weiawesome/wes-io-community/pkg/storage"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
	MaxContentLength = 4000
	MaxEmojiBytes    = 32
)

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// MessageDeps wires the message ledger operations. Cache, Producer and
// Storage are optional.
type MessageDeps struct {
	Guard        *MembershipGuard
	Messages     repository.MessageRepository
	Reactions    repository.ReactionRepository
	Presence     *presence.Tracker
	Broadcaster  Broadcaster
	Cache        cache.LatestCache
	CacheTTL     time.Duration
	Producer     kafka.EventProducer
	Storage      storage.Storage
	MaxFileSize  int64
	URLExpiry    time.Duration
	StoreTimeout time.Duration
}

// MessageService implements the message and reaction ledgers on top of the
// store. Every mutation persists first, then invalidates the latest cache,
// then broadcasts the canonical record, then emits a stream event. A failed
// write never reaches the broadcast.
type MessageService struct {
	guard       *MembershipGuard
	messages    repository.MessageRepository
	reactions   repository.ReactionRepository
	presence    *presence.Tracker
	broadcaster Broadcaster
	cache       cache.LatestCache
	cacheTTL    time.Duration
	producer    kafka.EventProducer
	storage     storage.Storage
	maxFileSize int64
	urlExpiry   time.Duration
	timeout     time.Duration
	now         func() time.Time
	sf          singleflight.Group

	verMu    sync.Mutex
	versions map[string]uint64 // communityID -> invalidation count
}

func NewMessageService(deps MessageDeps) *MessageService {
	return &MessageService{
		guard:       deps.Guard,
		messages:    deps.Messages,
		reactions:   deps.Reactions,
		presence:    deps.Presence,
		broadcaster: deps.Broadcaster,
		cache:       deps.Cache,
		cacheTTL:    deps.CacheTTL,
		producer:    deps.Producer,
		storage:     deps.Storage,
		maxFileSize: deps.MaxFileSize,
		urlExpiry:   deps.URLExpiry,
		timeout:     deps.StoreTimeout,
		now:         time.Now,
		versions:    make(map[string]uint64),
	}
}

// ListPage returns one offset page of the community history, oldest first.
func (s *MessageService) ListPage(ctx context.Context, userID, communityID string, page, limit int) (*domain.MessagePage, error) {
	if err := s.guard.Require(ctx, communityID, userID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	limit = clampLimit(limit)

	sctx, cancel := bound(ctx, s.timeout)
	defer cancel()
	views, total, err := s.messages.ListPage(sctx, communityID, page, limit)
	if err != nil {
		return nil, transient(err)
	}
	s.resolveFiles(ctx, views)

	return &domain.MessagePage{
		Messages: views,
		Page:     page,
		Limit:    limit,
		Total:    total,
	}, nil
}

// ListLatest returns the newest messages of the community in chronological order.
func (s *MessageService) ListLatest(ctx context.Context, userID, communityID string, limit int) ([]domain.MessageView, error) {
	if err := s.guard.Require(ctx, communityID, userID); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	if s.cache == nil {
		return s.loadLatest(ctx, communityID, limit)
	}

	// Use singleflight to prevent duplicate requests for the same key.
	// The shared load outlives the caller that started it.
	key := fmt.Sprintf("%s:%d", communityID, limit)
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		lctx, cancel := bound(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.latestWithCache(lctx, communityID, limit)
	})
	if err != nil {
		return nil, err
	}

	views, ok := result.([]domain.MessageView)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return views, nil
}

func (s *MessageService) latestWithCache(ctx context.Context, communityID string, limit int) ([]domain.MessageView, error) {
	l := log.Ctx(ctx)

	cached, err := s.cache.Get(ctx, communityID, limit)
	if err == nil {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		// Log error but continue to fetch from DB
		l.Warn().Err(err).Msg("cache get error")
		metrics.CacheLookups.WithLabelValues("error").Inc()
	} else {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
	}

	ver := s.version(communityID)
	views, err := s.loadLatest(ctx, communityID, limit)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, communityID, limit, views, s.cacheTTL); err != nil {
		l.Warn().Err(err).Msg("cache set error")
		return views, nil
	}
	// A write invalidated while we were loading; our entry may predate it.
	if s.version(communityID) != ver {
		s.dropCache(ctx, communityID)
	}
	return views, nil
}

func (s *MessageService) version(communityID string) uint64 {
	s.verMu.Lock()
	defer s.verMu.Unlock()
	return s.versions[communityID]
}

func (s *MessageService) loadLatest(ctx context.Context, communityID string, limit int) ([]domain.MessageView, error) {
	sctx, cancel := bound(ctx, s.timeout)
	defer cancel()
	views, err := s.messages.ListLatest(sctx, communityID, limit)
	if err != nil {
		return nil, transient(err)
	}
	s.resolveFiles(ctx, views)
	return views, nil
}

// Send validates and appends a message, then broadcasts the denormalized
// record to the whole room including the sender.
func (s *MessageService) Send(ctx context.Context, userID string, in domain.SendMessageInput) (*domain.MessageView, error) {
	content, err := cleanContent(in.Content)
	if err != nil {
		return nil, err
	}

	kind := in.Kind
	if kind == "" {
		kind = domain.KindText
	}
	if !kind.Valid() {
		return nil, invalid("unknown message type")
	}
	if in.CommunityID == "" {
		return nil, invalid("communityId is required")
	}

	if err := s.guard.Require(ctx, in.CommunityID, userID); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:          uuid.New().String(),
		CommunityID: in.CommunityID,
		AuthorID:    userID,
		Content:     content,
		Kind:        kind,
		CreatedAt:   s.now(),
	}

	if kind == domain.KindFile {
		ref, err := s.checkFileRef(ctx, in.CommunityID, in.FileRef)
		if err != nil {
			return nil, err
		}
		msg.FileRef = &ref
	}

	if in.ReplyTo != "" {
		target, err := s.lookup(ctx, in.ReplyTo)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, invalid("reply target not found")
			}
			return nil, err
		}
		if target.CommunityID != in.CommunityID {
			return nil, invalid("reply target not found")
		}
		replyTo := target.ID
		msg.ReplyTo = &replyTo
	}

	sctx, cancel := bound(ctx, s.timeout)
	defer cancel()
	if err := s.messages.Create(sctx, msg); err != nil {
		return nil, transient(err)
	}

	view, err := s.view(ctx, msg.ID)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, msg.CommunityID)
	s.publish(ctx, msg.CommunityID, &domain.MessageEventMessage{Type: domain.MsgTypeNewMessage, MessageView: *view}, "")
	s.emit(ctx, domain.EventMessageCreated, msg.CommunityID, msg.ID, userID, view)
	audit.LogTarget(ctx, audit.ActionSendMessage, userID, msg.ID, "message sent")
	return view, nil
}

// Edit replaces the content of the author's own message.
func (s *MessageService) Edit(ctx context.Context, userID, messageID, content string) (*domain.MessageView, error) {
	content, err := cleanContent(content)
	if err != nil {
		return nil, err
	}

	msg, err := s.lookup(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID != userID {
		return nil, ErrNotOwner
	}

	sctx, cancel := bound(ctx, s.timeout)
	defer cancel()
	if err := s.messages.UpdateContent(sctx, msg.ID, userID, content, s.now()); err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrNotFound
		}
		return nil, transient(err)
	}

	view, err := s.view(ctx, msg.ID)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, msg.CommunityID)
	s.publish(ctx, msg.CommunityID, &domain.MessageEventMessage{Type: domain.MsgTypeMessageEdited, MessageView: *view}, "")
	s.emit(ctx, domain.EventMessageEdited, msg.CommunityID, msg.ID, userID, view)
	audit.LogTarget(ctx, audit.ActionEditMessage, userID, msg.ID, "message edited")
	return view, nil
}

// Delete hard-deletes the author's own message. The room to notify comes
// from the stored row, never from the caller.
func (s *MessageService) Delete(ctx context.Context, userID, messageID string) error {
	msg, err := s.lookup(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.AuthorID != userID {
		return ErrNotOwner
	}

	sctx, cancel := bound(ctx, s.timeout)
	defer cancel()
	if err := s.messages.Delete(sctx, msg.ID, userID); err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return ErrNotFound
		}
		return transient(err)
	}

	s.invalidate(ctx, msg.CommunityID)
	s.publish(ctx, msg.CommunityID, &domain.MessageDeletedMessage{
		Type:        domain.MsgTypeMessageDeleted,
		MessageID:   msg.ID,
		CommunityID: msg.CommunityID,
	}, "")
	s.emit(ctx, domain.EventMessageDeleted, msg.CommunityID, msg.ID, userID, nil)
	s.removeFile(ctx, msg)
	audit.LogTarget(ctx, audit.ActionDeleteMessage, userID, msg.ID, "message deleted")
	return nil
}

// AddReaction records the reaction if new and broadcasts the message's
// full reaction list either way.
func (s *MessageService) AddReaction(ctx context.Context, userID, messageID, emoji string) ([]domain.Reaction, error) {
	emoji, err := cleanEmoji(emoji)
	if err != nil {
		return nil, err
	}

	msg, err := s.lookup(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Require(ctx, msg.CommunityID, userID); err != nil {
		return nil, err
	}

	sctx, cancel := bound(ctx, s.timeout)
	defer cancel()
	created, err := s.reactions.Add(sctx, &domain.Reaction{
		MessageID: msg.ID,
		UserID:    userID,
		Emoji:     emoji,
		CreatedAt: s.now(),
	})
	if err != nil {
		return nil, transient(err)
	}

	reactions, err := s.reactionList(ctx, msg.ID)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, msg.CommunityID)
	s.publish(ctx, msg.CommunityID, &domain.ReactionsMessage{
		Type:        domain.MsgTypeReactionAdded,
		MessageID:   msg.ID,
		CommunityID: msg.CommunityID,
		Reactions:   reactions,
	}, "")
	if created {
		s.emit(ctx, domain.EventReactionAdded, msg.CommunityID, msg.ID, userID, map[string]string{"emoji": emoji})
		audit.LogWithDetail(ctx, audit.ActionAddReaction, userID, emoji, "reaction added")
	}
	return reactions, nil
}

// RemoveReaction deletes the caller's reaction if present and broadcasts
// the refreshed list. Only the caller's own triple can be removed, so no
// membership check is made.
func (s *MessageService) RemoveReaction(ctx context.Context, userID, messageID, emoji string) ([]domain.Reaction, error) {
	emoji, err := cleanEmoji(emoji)
	if err != nil {
		return nil, err
	}

	msg, err := s.lookup(ctx, messageID)
	if err != nil {
		return nil, err
	}

	sctx, cancel := bound(ctx, s.timeout)
	defer cancel()
	removed, err := s.reactions.Remove(sctx, msg.ID, userID, emoji)
	if err != nil {
		return nil, transient(err)
	}

	reactions, err := s.reactionList(ctx, msg.ID)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, msg.CommunityID)
	s.publish(ctx, msg.CommunityID, &domain.ReactionsMessage{
		Type:        domain.MsgTypeReactionRemoved,
		MessageID:   msg.ID,
		CommunityID: msg.CommunityID,
		Reactions:   reactions,
	}, "")
	if removed {
		s.emit(ctx, domain.EventReactionRemoved, msg.CommunityID, msg.ID, userID, map[string]string{"emoji": emoji})
		audit.LogWithDetail(ctx, audit.ActionRemoveReaction, userID, emoji, "reaction removed")
	}
	return reactions, nil
}

// OnlineUsers lists the members currently present in the community.
func (s *MessageService) OnlineUsers(ctx context.Context, userID, communityID string) ([]domain.OnlineUser, error) {
	if err := s.guard.Require(ctx, communityID, userID); err != nil {
		return nil, err
	}
	users, err := s.presence.Online(ctx, communityID)
	if err != nil {
		return nil, transient(err)
	}
	return users, nil
}

// AttachmentUpload is a file a member wants to reference from a file message.
type AttachmentUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadAttachment stores a file under the community's prefix and returns
// the reference to put in a file message.
func (s *MessageService) UploadAttachment(ctx context.Context, userID, communityID string, up AttachmentUpload) (*domain.Attachment, error) {
	if s.storage == nil {
		return nil, ErrStorageDisabled
	}
	if err := s.guard.Require(ctx, communityID, userID); err != nil {
		return nil, err
	}
	if up.Size <= 0 {
		return nil, invalid("empty file")
	}
	if s.maxFileSize > 0 && up.Size > s.maxFileSize {
		return nil, ErrTooLarge
	}

	ext := strings.ToLower(filepath.Ext(up.Filename))
	if !extPattern.MatchString(ext) {
		ext = ""
	}
	key := attachmentPrefix(communityID) + uuid.New().String() + ext

	if err := s.storage.Write(ctx, key, up.Body, up.Size, up.ContentType); err != nil {
		return nil, fmt.Errorf("failed to store attachment: %w", err)
	}

	att := &domain.Attachment{Key: key, ContentType: up.ContentType, Size: up.Size}
	if u, err := s.storage.GetURL(ctx, key, s.urlExpiry); err == nil {
		att.URL = u
	}
	audit.LogTarget(ctx, audit.ActionUpload, userID, key, "attachment uploaded")
	return att, nil
}

func attachmentPrefix(communityID string) string {
	return "communities/" + url.PathEscape(communityID) + "/"
}

// checkFileRef accepts any reference when storage is disabled; otherwise
// the key must be an uploaded object of this community.
func (s *MessageService) checkFileRef(ctx context.Context, communityID, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", invalid("fileUrl is required for file messages")
	}
	if s.storage == nil {
		return ref, nil
	}
	if !strings.HasPrefix(ref, attachmentPrefix(communityID)) {
		return "", invalid("attachment not found")
	}
	ok, err := s.storage.Exists(ctx, ref)
	if err != nil {
		return "", transient(err)
	}
	if !ok {
		return "", invalid("attachment not found")
	}
	return ref, nil
}

func (s *MessageService) removeFile(ctx context.Context, msg *domain.Message) {
	if s.storage == nil || msg.FileRef == nil {
		return
	}
	if err := s.storage.Delete(ctx, *msg.FileRef); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldMessageID, msg.ID).Msg("failed to delete attachment")
	}
}

func (s *MessageService) resolveFiles(ctx context.Context, views []domain.MessageView) {
	for i := range views {
		s.resolveFile(ctx, &views[i])
	}
}

func (s *MessageService) resolveFile(ctx context.Context, view *domain.MessageView) {
	if view.FileRef == "" {
		return
	}
	if s.storage == nil {
		view.FileURL = view.FileRef
		return
	}
	u, err := s.storage.GetURL(ctx, view.FileRef, s.urlExpiry)
	if err != nil {
		l := log.Ctx(ctx)
		l.Debug().Err(err).Str(log.FieldMessageID, view.ID).Msg("attachment url unavailable")
		return
	}
	view.FileURL = u
}

func (s *MessageService) lookup(ctx context.Context, messageID string) (*domain.Message, error) {
	if messageID == "" {
		return nil, ErrNotFound
	}
	sctx, cancel := bound(ctx, s.timeout)
	defer cancel()
	msg, err := s.messages.GetByID(sctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrNotFound
		}
		return nil, transient(err)
	}
	return msg, nil
}

func (s *MessageService) view(ctx context.Context, messageID string) (*domain.MessageView, error) {
	sctx, cancel := bound(ctx, s.timeout)
	defer cancel()
	view, err := s.messages.GetView(sctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrNotFound
		}
		return nil, transient(err)
	}
	s.resolveFile(ctx, view)
	return view, nil
}

func (s *MessageService) reactionList(ctx context.Context, messageID string) ([]domain.Reaction, error) {
	sctx, cancel := bound(ctx, s.timeout)
	defer cancel()
	reactions, err := s.reactions.ListByMessage(sctx, messageID)
	if err != nil {
		return nil, transient(err)
	}
	if reactions == nil {
		reactions = []domain.Reaction{}
	}
	return reactions, nil
}

// invalidate bumps the community version before dropping the cache, so a
// load that read older rows sees the bump after its own Set.
func (s *MessageService) invalidate(ctx context.Context, communityID string) {
	if s.cache == nil {
		return
	}
	s.verMu.Lock()
	s.versions[communityID]++
	s.verMu.Unlock()
	s.dropCache(ctx, communityID)
}

func (s *MessageService) dropCache(ctx context.Context, communityID string) {
	if err := s.cache.Invalidate(ctx, communityID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldCommunityID, communityID).Msg("cache invalidate error")
	}
}

func (s *MessageService) publish(ctx context.Context, communityID string, event interface{}, exclude string) {
	if err := s.broadcaster.Publish(ctx, communityID, event, exclude); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldCommunityID, communityID).Msg("failed to broadcast")
	}
}

func (s *MessageService) emit(ctx context.Context, eventType, communityID, messageID, actorID string, data interface{}) {
	if s.producer == nil {
		return
	}
	ev := &domain.ChatEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		CommunityID: communityID,
		MessageID:   messageID,
		ActorID:     actorID,
		Data:        data,
		OccurredAt:  s.now().UTC(),
	}
	if err := s.producer.ProduceEvent(ctx, ev); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldEventType, eventType).Msg("failed to produce chat event")
	}
}

func clampLimit(limit int) int {
	if limit < 1 {
		return DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

func cleanContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", invalid(fmt.Sprintf("content exceeds %d characters", MaxContentLength))
	}
	return content, nil
}

func cleanEmoji(emoji string) (string, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > MaxEmojiBytes {
		return "", invalid("emoji must be 1 to 32 bytes")
	}
	return emoji, nil
}
