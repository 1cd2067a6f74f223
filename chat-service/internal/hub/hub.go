package hub

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/weiawesome/wes-io-community/chat-service/internal/metrics"
	"github.com/weiawesome/wes-io-community/pkg/log"
)

// Hub owns every live connection of this process. It is both the
// connection registry (connection and user lookups) and the local room
// broadcaster.
type Hub struct {
	clients    map[string]*Client            // connID -> client
	users      map[string]*Client            // userID -> most recently bound client
	bound      map[string]string             // connID -> userID it is bound as
	rooms      map[string]map[string]*Client // communityID -> connID -> client
	unregister chan *Client
	broadcast  chan *RoomMessage
	done       chan struct{}
	mu         sync.RWMutex
}

// RoomMessage is an encoded event bound for one room.
type RoomMessage struct {
	RoomID  string
	Type    string
	Message []byte
	Exclude string // Connection ID to exclude
}

// ClientRooms is a point-in-time view of one authenticated connection.
type ClientRooms struct {
	ConnectionID string
	UserID       string
	Rooms        []string
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		users:      make(map[string]*Client),
		bound:      make(map[string]string),
		rooms:      make(map[string]map[string]*Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *RoomMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run serializes removals and fan-out until ctx is cancelled, then closes
// every remaining client. A removal queued before a broadcast is applied
// before it.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) fanOut(msg *RoomMessage) {
	var slow []*Client

	h.mu.RLock()
	for connID, client := range h.rooms[msg.RoomID] {
		if connID == msg.Exclude {
			continue
		}
		if !client.trySend(msg.Message) {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	if msg.Type != "" {
		metrics.Broadcasts.WithLabelValues(msg.Type).Inc()
	}
	for _, client := range slow {
		l := log.L()
		l.Warn().Str(log.FieldConnectionID, client.ID).Str(log.FieldCommunityID, msg.RoomID).Msg("dropping slow client")
		metrics.DroppedClients.Inc()
		h.removeClient(client)
	}
}

// removeClient drops the client from every index and closes its send
// buffer, which makes the write pump close the transport.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; !ok {
		h.mu.Unlock()
		return
	}
	for roomID, members := range h.rooms {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.unbindLocked(client)
	delete(h.clients, client.ID)
	rooms := len(h.rooms)
	h.mu.Unlock()

	client.close()
	metrics.Connections.Dec()
	metrics.Rooms.Set(float64(rooms))
	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client unregistered")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.removeClient(c)
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Register adds the client synchronously so it can join rooms right away.
func (h *Hub) Register(client *Client) {
	select {
	case <-h.done:
		client.close()
		return
	default:
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	metrics.Connections.Inc()
	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client registered")
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BindUser makes client the live connection of userID and returns the
// connection it superseded, if any. The superseded connection stays open.
func (h *Hub) BindUser(client *Client, userID string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.bound[client.ID] != userID {
		h.unbindLocked(client)
	}
	prev := h.users[userID]
	h.users[userID] = client
	h.bound[client.ID] = userID
	if prev == client {
		return nil
	}
	return prev
}

// unbindLocked drops the user entry that still points at client. A newer
// connection of the same user keeps its binding.
func (h *Hub) unbindLocked(client *Client) {
	userID, ok := h.bound[client.ID]
	if !ok {
		return
	}
	delete(h.bound, client.ID)
	if h.users[userID] == client {
		delete(h.users, userID)
	}
}

// Connection returns the live connection bound to userID.
func (h *Hub) Connection(userID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.users[userID]
	return c, ok
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Join adds the connection to the room. It reports false for unknown
// connections.
func (h *Hub) Join(connID, roomID string) bool {
	h.mu.Lock()
	client, ok := h.clients[connID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][connID] = client
	rooms := len(h.rooms)
	h.mu.Unlock()

	metrics.Rooms.Set(float64(rooms))
	l := log.L()
	l.Debug().Str(log.FieldConnectionID, connID).Str(log.FieldCommunityID, roomID).Msg("client joined room")
	return true
}

// Leave removes the connection from the room and reports whether it was there.
func (h *Hub) Leave(connID, roomID string) bool {
	h.mu.Lock()
	members, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	_, ok = members[connID]
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, roomID)
	}
	rooms := len(h.rooms)
	h.mu.Unlock()

	metrics.Rooms.Set(float64(rooms))
	return ok
}

// Publish encodes event and fans it out to the room, skipping exclude.
func (h *Hub) Publish(ctx context.Context, roomID string, event interface{}, exclude string) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return h.PublishRaw(ctx, roomID, eventType(data), data, exclude)
}

// PublishRaw queues already-encoded bytes for the room.
func (h *Hub) PublishRaw(ctx context.Context, roomID, msgType string, data []byte, exclude string) error {
	select {
	case <-h.done:
		return context.Canceled
	default:
	}

	select {
	case h.broadcast <- &RoomMessage{RoomID: roomID, Type: msgType, Message: data, Exclude: exclude}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return context.Canceled
	}
}

// RoomSize returns the number of local connections in the room.
func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Snapshot lists every authenticated connection with the rooms it has
// joined on this process.
func (h *Hub) Snapshot() []ClientRooms {
	h.mu.RLock()
	byConn := make(map[string][]string)
	for roomID, members := range h.rooms {
		for connID := range members {
			byConn[connID] = append(byConn[connID], roomID)
		}
	}
	clients := make(map[string]*Client, len(byConn))
	for connID := range byConn {
		clients[connID] = h.clients[connID]
	}
	h.mu.RUnlock()

	out := make([]ClientRooms, 0, len(byConn))
	for connID, rooms := range byConn {
		client := clients[connID]
		if client == nil || !client.Session.IsAuthenticated() {
			continue
		}
		sort.Strings(rooms)
		out = append(out, ClientRooms{
			ConnectionID: connID,
			UserID:       client.Session.GetUserID(),
			Rooms:        rooms,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectionID < out[j].ConnectionID })
	return out
}

func eventType(data []byte) string {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return ""
	}
	return base.Type
}
