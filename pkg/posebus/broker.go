// Package posebus carries human hand pose samples from publishers to subscribers by topic.
//
// The Broker runs inside a fiber app. Publishers and subscribers connect over
// websockets with the topic and their node name as query parameters. Every sample
// published on a topic is forwarded to all current subscribers of that topic; nothing
// is buffered for subscribers that join later.
package posebus

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/brillian32/icub-arm-imitator/internal/log"
	"github.com/brillian32/icub-arm-imitator/pkg/pose"
)

// Broker routes paths.
const (
	PathSubscribe = "/ws/subscribe"
	PathPublish   = "/ws/publish"
	PathTopics    = "/api/topics"
)

// writeWait bounds a single forward to one subscriber.
const writeWait = time.Second

// peer is one connected publisher or subscriber.
type peer struct {
	ID        string
	Node      string
	Conn      *websocket.Conn
	Connected time.Time

	mu sync.Mutex
}

// send writes one frame to the peer.
func (p *peer) send(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.Conn.WriteMessage(websocket.TextMessage, data)
}

// topic holds the subscribers of one topic name.
type topic struct {
	subscribers map[string]*peer
	publishers  int
	seq         uint64
	published   uint64
}

// Broker fans published samples out to the subscribers of each topic.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]*topic

	received  atomic.Uint64
	delivered atomic.Uint64
	rejected  atomic.Uint64
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{topics: make(map[string]*topic)}
}

// RegisterRoutes registers the publish and subscribe websocket endpoints on app.
func (b *Broker) RegisterRoutes(app *fiber.App) {
	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get(PathSubscribe, requireTopic, websocket.New(b.handleSubscribe))
	app.Get(PathPublish, requireTopic, websocket.New(b.handlePublish))
}

// RegisterAPIRoutes registers the topic statistics endpoint.
func (b *Broker) RegisterAPIRoutes(app *fiber.App) {
	app.Get(PathTopics, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"topics": b.Topics(),
			"stats":  b.Stats(),
		})
	})
}

// requireTopic rejects the handshake when no topic is given.
func requireTopic(c *fiber.Ctx) error {
	if c.Query("topic") == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "topic is required"})
	}
	return c.Next()
}

func newPeer(c *websocket.Conn) *peer {
	return &peer{
		ID:        uuid.NewString(),
		Node:      c.Query("node"),
		Conn:      c,
		Connected: time.Now(),
	}
}

// topicLocked returns the named topic, creating it. b.mu must be held for writing.
func (b *Broker) topicLocked(name string) *topic {
	t, ok := b.topics[name]
	if !ok {
		t = &topic{subscribers: make(map[string]*peer)}
		b.topics[name] = t
	}
	return t
}

func (b *Broker) handleSubscribe(c *websocket.Conn) {
	name := c.Query("topic")
	p := newPeer(c)

	b.mu.Lock()
	b.topicLocked(name).subscribers[p.ID] = p
	b.mu.Unlock()
	log.Info("pose subscriber connected", "topic", name, "node", p.Node, "id", p.ID)

	defer func() {
		b.removeSubscriber(name, p.ID)
		log.Info("pose subscriber disconnected", "topic", name, "node", p.Node, "id", p.ID)
	}()

	// Subscribers never send samples; reading only detects the close
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func (b *Broker) removeSubscriber(name, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.topics[name]; ok {
		delete(t.subscribers, id)
	}
}

func (b *Broker) handlePublish(c *websocket.Conn) {
	name := c.Query("topic")
	p := newPeer(c)

	b.mu.Lock()
	b.topicLocked(name).publishers++
	b.mu.Unlock()
	log.Info("pose publisher connected", "topic", name, "node", p.Node, "id", p.ID)

	defer func() {
		b.mu.Lock()
		b.topics[name].publishers--
		b.mu.Unlock()
		log.Info("pose publisher disconnected", "topic", name, "node", p.Node, "id", p.ID)
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		var s pose.Sample
		if err := json.Unmarshal(data, &s); err != nil {
			b.rejected.Add(1)
			log.Debug("rejected pose sample", "topic", name, "node", p.Node, "error", err)
			continue
		}
		b.received.Add(1)
		b.forward(name, s)
	}
}

// forward stamps s with the topic sequence number and sends it to every subscriber.
// Subscribers whose write fails are dropped.
func (b *Broker) forward(name string, s pose.Sample) {
	b.mu.Lock()
	t := b.topicLocked(name)
	t.seq++
	t.published++
	s.Seq = t.seq
	subs := make([]*peer, 0, len(t.subscribers))
	for _, sub := range t.subscribers {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	if s.Stamp == 0 {
		s.Stamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(s)
	if err != nil {
		log.Warn("encode pose sample", "topic", name, "error", err)
		return
	}

	for _, sub := range subs {
		if err := sub.send(data); err != nil {
			log.Warn("dropping pose subscriber", "topic", name, "node", sub.Node, "error", err)
			b.removeSubscriber(name, sub.ID)
			sub.Conn.Close()
			continue
		}
		b.delivered.Add(1)
	}
}

// SubscriberCount returns the number of subscribers on a topic.
func (b *Broker) SubscriberCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if t, ok := b.topics[name]; ok {
		return len(t.subscribers)
	}
	return 0
}

// TopicInfo describes one topic.
type TopicInfo struct {
	Name        string `json:"name"`
	Subscribers int    `json:"subscribers"`
	Publishers  int    `json:"publishers"`
	Published   uint64 `json:"published"`
}

// Topics returns every known topic sorted by name.
func (b *Broker) Topics() []TopicInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()

	infos := make([]TopicInfo, 0, len(b.topics))
	for name, t := range b.topics {
		infos = append(infos, TopicInfo{
			Name:        name,
			Subscribers: len(t.subscribers),
			Publishers:  t.publishers,
			Published:   t.published,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Stats contains broker statistics
type Stats struct {
	Received  uint64 `json:"received"`
	Delivered uint64 `json:"delivered"`
	Rejected  uint64 `json:"rejected"`
}

// Stats returns broker statistics.
func (b *Broker) Stats() Stats {
	return Stats{
		Received:  b.received.Load(),
		Delivered: b.delivered.Load(),
		Rejected:  b.rejected.Load(),
	}
}
