package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-community/chat-service/internal/config"
	"github.com/weiawesome/wes-io-community/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-community/chat-service/internal/hub"
	"github.com/weiawesome/wes-io-community/chat-service/internal/presence"
	"github.com/weiawesome/wes-io-community/chat-service/internal/repository"
	"github.com/weiawesome/wes-io-community/chat-service/internal/service"
	"github.com/weiawesome/wes-io-community/pkg/database"
	"github.com/weiawesome/wes-io-community/pkg/jwt"
	"github.com/weiawesome/wes-io-community/pkg/middleware"
	"github.com/weiawesome/wes-io-community/pkg/storage"
)

type testServer struct {
	hub    *hub.Hub
	tokens *jwt.Manager
	router *gin.Engine
	mux    *http.ServeMux
}

func newTestServer(t *testing.T, store storage.Storage) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.New(&database.Config{Driver: "sqlite", FilePath: "file::memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db, domain.Models()...))
	t.Cleanup(func() { database.Close(db) })
	require.NoError(t, db.Create(&[]domain.UserModel{{ID: "alice", Name: "Alice"}, {ID: "bob", Name: "Bob"}, {ID: "carol", Name: "Carol"}}).Error)
	require.NoError(t, db.Create(&[]domain.MembershipModel{
		{CommunityID: "42", UserID: "alice", Role: string(domain.RoleMember)},
		{CommunityID: "42", UserID: "bob", Role: string(domain.RoleMember)},
	}).Error)

	ctx, cancel := context.WithCancel(context.Background())
	h := hub.NewHub()
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.Done()
	})

	tokens, err := jwt.NewManager(jwt.Config{Secret: "handler-secret"})
	require.NoError(t, err)

	guard := service.NewMembershipGuard(repository.NewGormMembershipRepository(db), time.Second)
	tracker := presence.NewTracker(repository.NewGormPresenceRepository(db), time.Second)
	messages := service.NewMessageService(service.MessageDeps{
		Guard:        guard,
		Messages:     repository.NewGormMessageRepository(db),
		Reactions:    repository.NewGormReactionRepository(db),
		Presence:     tracker,
		Broadcaster:  h,
		Storage:      store,
		MaxFileSize:  16,
		URLExpiry:    time.Minute,
		StoreTimeout: time.Second,
	})
	chat := service.NewChatService(tokens, h, h, guard, tracker, messages)

	router := gin.New()
	NewHandler(messages, middleware.NewAuthMiddleware(tokens), 16).RegisterRoutes(router)

	mux := http.NewServeMux()
	NewWSHandler(h, chat, config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 64 * 1024,
	}).RegisterRoutes(mux)

	return &testServer{hub: h, tokens: tokens, router: router, mux: mux}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := s.tokens.GenerateToken(userID, userID, time.Hour)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Pagination *struct {
		Page       int   `json:"page"`
		Limit      int   `json:"limit"`
		Total      int64 `json:"total"`
		TotalPages int   `json:"totalPages"`
	} `json:"pagination"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestHTTP_RequiresToken(t *testing.T) {
	s := newTestServer(t, nil)
	code, env := s.do(t, http.MethodGet, "/api/v1/communities/42/messages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)
}

func TestHTTP_MessageLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	code, env := s.do(t, http.MethodPost, "/api/v1/communities/42/messages", "alice", domain.SendMessageRequest{Content: "hello"})
	require.Equal(t, http.StatusCreated, code)
	var view domain.MessageView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "hello", view.Content)
	assert.Equal(t, domain.KindText, view.Kind)

	code, env = s.do(t, http.MethodPost, "/api/v1/communities/42/messages", "alice", domain.SendMessageRequest{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, domain.ErrCodeEmptyContent, env.Error.Code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/communities/42/messages", "carol", domain.SendMessageRequest{Content: "let me in"})
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(t, http.MethodPut, "/api/v1/messages/"+view.ID, "bob", domain.EditMessageRequest{Content: "mine now"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, domain.ErrCodeNotOwner, env.Error.Code)

	code, env = s.do(t, http.MethodPut, "/api/v1/messages/"+view.ID, "alice", domain.EditMessageRequest{Content: "hello again"})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.True(t, view.Edited)

	code, env = s.do(t, http.MethodPost, "/api/v1/messages/"+view.ID+"/reactions", "bob", domain.AddReactionRequest{Emoji: "🎉"})
	require.Equal(t, http.StatusCreated, code)
	var reactions []domain.Reaction
	require.NoError(t, json.Unmarshal(env.Data, &reactions))
	require.Len(t, reactions, 1)
	assert.Equal(t, "bob", reactions[0].UserID)

	code, env = s.do(t, http.MethodDelete, "/api/v1/messages/"+view.ID+"/reactions/"+url.PathEscape("🎉"), "bob", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &reactions))
	assert.Empty(t, reactions)

	code, env = s.do(t, http.MethodGet, "/api/v1/communities/42/messages?page=1&limit=10", "bob", nil)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, int64(1), env.Pagination.Total)
	assert.Equal(t, 1, env.Pagination.TotalPages)

	code, _ = s.do(t, http.MethodDelete, "/api/v1/messages/"+view.ID, "alice", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, http.MethodDelete, "/api/v1/messages/"+view.ID, "alice", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(t, http.MethodGet, "/api/v1/communities/42/messages/latest", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	var latest []domain.MessageView
	require.NoError(t, json.Unmarshal(env.Data, &latest))
	assert.Empty(t, latest)
}

func TestHTTP_OnlineRequiresMembership(t *testing.T) {
	s := newTestServer(t, nil)

	code, env := s.do(t, http.MethodGet, "/api/v1/communities/42/online", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(env.Data))

	code, _ = s.do(t, http.MethodGet, "/api/v1/communities/42/online", "carol", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func upload(t *testing.T, s *testServer, userID, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/communities/42/attachments", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHTTP_AttachmentsDisabled(t *testing.T) {
	s := newTestServer(t, nil)
	w := upload(t, s, "alice", "a.txt", []byte("abc"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHTTP_AttachmentUploadAndFileMessage(t *testing.T) {
	store, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir(), URLPrefix: "/files"})
	require.NoError(t, err)
	s := newTestServer(t, store)

	w := upload(t, s, "alice", "notes.TXT", []byte("abc"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var att domain.Attachment
	require.NoError(t, json.Unmarshal(env.Data, &att))
	assert.True(t, strings.HasPrefix(att.Key, "communities/42/"))
	assert.True(t, strings.HasSuffix(att.Key, ".txt"))
	assert.Equal(t, "/files/"+att.Key, att.URL)

	w = upload(t, s, "alice", "big.bin", bytes.Repeat([]byte("x"), 17))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = upload(t, s, "carol", "a.txt", []byte("abc"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	code, resp := s.do(t, http.MethodPost, "/api/v1/communities/42/messages", "alice", domain.SendMessageRequest{
		Content:     "see attached",
		MessageType: "file",
		FileURL:     att.Key,
	})
	require.Equal(t, http.StatusCreated, code)
	var view domain.MessageView
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	assert.Equal(t, att.Key, view.FileRef)
	assert.Equal(t, att.URL, view.FileURL)

	code, _ = s.do(t, http.MethodPost, "/api/v1/communities/42/messages", "alice", domain.SendMessageRequest{
		Content:     "forged",
		MessageType: "file",
		FileURL:     "communities/7/whatever.txt",
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func read(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) map[string]interface{} {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := read(t, conn)
		if msg["type"] == msgType {
			return msg
		}
	}
	t.Fatalf("no %s frame", msgType)
	return nil
}

func TestWebSocket_EndToEnd(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.mux)
	defer srv.Close()

	alice := dial(t, srv)
	bob := dial(t, srv)

	send(t, alice, map[string]string{"type": "join_community", "communityId": "42"})
	assert.Equal(t, domain.ErrCodeUnauthorized, read(t, alice)["code"])

	send(t, alice, map[string]string{"type": "authenticate", "userId": "alice", "token": s.token(t, "alice")})
	assert.Equal(t, domain.MsgTypeAuthenticated, read(t, alice)["type"])
	send(t, bob, map[string]string{"type": "authenticate", "userId": "bob", "token": s.token(t, "bob")})
	assert.Equal(t, domain.MsgTypeAuthenticated, read(t, bob)["type"])

	send(t, alice, map[string]string{"type": "join_community", "communityId": "42"})
	assert.Equal(t, domain.MsgTypeJoinedCommunity, read(t, alice)["type"])
	assert.Equal(t, domain.MsgTypeOnlineUsersUpdated, read(t, alice)["type"])

	send(t, bob, map[string]string{"type": "join_community", "communityId": "42"})
	assert.Equal(t, domain.MsgTypeJoinedCommunity, read(t, bob)["type"])
	assert.Equal(t, domain.MsgTypeOnlineUsersUpdated, read(t, bob)["type"])
	assert.Equal(t, "bob", readUntil(t, alice, domain.MsgTypeUserJoined)["userId"])

	send(t, bob, map[string]string{"type": "send_message", "communityId": "42", "content": "hi alice"})
	got := readUntil(t, alice, domain.MsgTypeNewMessage)
	assert.Equal(t, "hi alice", got["content"])
	assert.Equal(t, "hi alice", readUntil(t, bob, domain.MsgTypeNewMessage)["content"])

	send(t, alice, map[string]string{"type": "typing_start", "communityId": "42"})
	assert.Equal(t, "alice", readUntil(t, bob, domain.MsgTypeUserTyping)["userId"])

	send(t, alice, map[string]string{"type": "bogus"})
	assert.Equal(t, domain.ErrCodeBadRequest, readUntil(t, alice, domain.MsgTypeError)["code"])

	send(t, alice, map[string]string{"type": "ping"})
	readUntil(t, alice, domain.MsgTypePong)

	// Closing the socket leaves every room.
	require.NoError(t, bob.Close())
	left := readUntil(t, alice, domain.MsgTypeUserLeft)
	assert.Equal(t, "bob", left["userId"])
	require.Eventually(t, func() bool { return s.hub.RoomSize("42") == 1 }, 2*time.Second, 10*time.Millisecond)
}
