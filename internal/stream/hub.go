package stream

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Hub fans envelopes out to the live channels of a session. Exactly one
// client exists per (session, user); attaching the same identity twice
// replaces the previous channel. When redis is configured, broadcasts are
// bridged over pub/sub so every node reaches its local clients.
type Hub struct {
	redis   *redis.Client
	log     zerolog.Logger
	nodeID  string
	clients map[string]map[string]*Client
	mu      sync.RWMutex
}

type Client struct {
	SessionID string
	UserID    string
	Send      chan []byte

	closeOnce sync.Once
}

// Close closes the Send channel exactly once. Safe to call from both the
// hub and the channel handler.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

// bridgeMessage wraps a payload for the redis bridge so the receiving node
// can skip the originator's client and the origin node can skip its own echo.
type bridgeMessage struct {
	Node    string          `json:"node"`
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

func NewHub(redisClient *redis.Client, log zerolog.Logger) *Hub {
	h := &Hub{
		redis:   redisClient,
		log:     log,
		nodeID:  uuid.NewString(),
		clients: map[string]map[string]*Client{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

// Attach registers a channel for (sessionID, userID) and returns it. A
// previous channel for the same identity is closed and replaced.
func (h *Hub) Attach(sessionID, userID string) *Client {
	client := &Client{
		SessionID: sessionID,
		UserID:    userID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[string]*Client{}
	}
	prev := h.clients[sessionID][userID]
	h.clients[sessionID][userID] = client
	h.mu.Unlock()

	if prev != nil {
		prev.Close()
		h.log.Debug().Str("session_id", sessionID).Str("user_id", userID).
			Msg("replaced duplicate channel")
	}
	return client
}

// Detach removes the client unless it has already been replaced by a newer
// channel for the same identity.
func (h *Hub) Detach(client *Client) {
	h.mu.Lock()
	if sessionClients, ok := h.clients[client.SessionID]; ok {
		if sessionClients[client.UserID] == client {
			delete(sessionClients, client.UserID)
			if len(sessionClients) == 0 {
				delete(h.clients, client.SessionID)
			}
		}
	}
	h.mu.Unlock()
	client.Close()
}

// Has reports whether a current channel exists for (sessionID, userID).
func (h *Hub) Has(sessionID, userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[sessionID][userID] != nil
}

func (h *Hub) Broadcast(sessionID string, payload []byte) {
	h.BroadcastExcept(sessionID, "", payload)
}

// BroadcastExcept delivers payload to every channel in the session except
// excludeUserID. Delivery is non-blocking, at-most-once: slow clients lose
// samples, the next broadcast supersedes them.
func (h *Hub) BroadcastExcept(sessionID, excludeUserID string, payload []byte) {
	h.deliverLocal(sessionID, excludeUserID, payload)

	if h.redis != nil {
		msg, _ := json.Marshal(bridgeMessage{Node: h.nodeID, Exclude: excludeUserID, Payload: payload})
		if err := h.redis.Publish(context.Background(), redisChannel(sessionID), msg).Err(); err != nil {
			h.log.Warn().Err(err).Str("session_id", sessionID).Msg("redis publish failed")
		}
	}
}

// CloseUser closes and removes a single member's channel, if any.
func (h *Hub) CloseUser(sessionID, userID string) {
	h.mu.Lock()
	var client *Client
	if sessionClients, ok := h.clients[sessionID]; ok {
		client = sessionClients[userID]
		delete(sessionClients, userID)
		if len(sessionClients) == 0 {
			delete(h.clients, sessionID)
		}
	}
	h.mu.Unlock()

	if client != nil {
		client.Close()
	}
}

// CloseSession closes every channel in the session after an optional final
// payload, and drops the session from the hub.
func (h *Hub) CloseSession(sessionID string, finalPayload []byte) {
	h.mu.Lock()
	sessionClients := h.clients[sessionID]
	delete(h.clients, sessionID)
	h.mu.Unlock()

	for _, client := range sessionClients {
		if finalPayload != nil {
			select {
			case client.Send <- finalPayload:
			default:
			}
		}
		client.Close()
	}
}

func (h *Hub) deliverLocal(sessionID, excludeUserID string, payload []byte) {
	h.mu.RLock()
	sessionClients := h.clients[sessionID]
	targets := make([]*Client, 0, len(sessionClients))
	for userID, client := range sessionClients {
		if userID == excludeUserID {
			continue
		}
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "session:*:broadcast")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var bridged bridgeMessage
		if err := json.Unmarshal([]byte(msg.Payload), &bridged); err != nil {
			continue
		}
		if bridged.Node == h.nodeID {
			continue
		}
		h.deliverLocal(sessionIDFromChannel(msg.Channel), bridged.Exclude, bridged.Payload)
	}
}

func redisChannel(sessionID string) string {
	return "session:" + sessionID + ":broadcast"
}

func sessionIDFromChannel(ch string) string {
	// session:{id}:broadcast
	const prefix = "session:"
	const suffix = ":broadcast"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
