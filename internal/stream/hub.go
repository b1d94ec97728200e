package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans status snapshots out to the websocket clients of a user.
// With Redis attached, snapshots travel through pubsub so clients
// connected to any instance receive them; without it, delivery is
// local to this process.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	UserID string
	Send   chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(userID string) *Client {
	client := &Client{
		UserID: userID,
		Send:   make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = map[*Client]struct{}{}
	}
	h.clients[userID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if userClients, ok := h.clients[client.UserID]; ok {
		delete(userClients, client)
		if len(userClients) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	close(client.Send)
}

// Broadcast pushes one payload to every client of the user. When Redis
// is attached the payload goes through pubsub and comes back via
// subscribeRedis, so it is delivered exactly once per client; local
// delivery is the fallback when publishing fails.
func (h *Hub) Broadcast(userID string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), statusChannel(userID), payload).Err()
		if err == nil {
			return
		}
		log.Printf("stream: publish status for %s: %v", userID, err)
	}
	h.deliver(userID, payload)
}

// deliver sends under the read lock so Unregister cannot close a Send
// channel mid-send.
func (h *Hub) deliver(userID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "traffic:status:*")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.deliver(userIDFromChannel(msg.Channel), []byte(msg.Payload))
	}
}

func statusChannel(userID string) string {
	return "traffic:status:" + userID
}

func userIDFromChannel(ch string) string {
	// traffic:status:{user}
	const prefix = "traffic:status:"
	if len(ch) <= len(prefix) {
		return ""
	}
	return ch[len(prefix):]
}
