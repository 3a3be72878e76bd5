package posebus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brillian32/icub-arm-imitator/internal/log"
	"github.com/brillian32/icub-arm-imitator/pkg/pose"
)

// ErrSubscriptionFailed is returned when a subscriber cannot attach to its topic.
var ErrSubscriptionFailed = errors.New("posebus: subscription failed")

// handshakeTimeout bounds the websocket upgrade.
const handshakeTimeout = 2 * time.Second

// endpoint builds the websocket URL of a broker route from an http(s) base URL.
func endpoint(baseURL, path, topic, node string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += path
	u.RawQuery = url.Values{"topic": {topic}, "node": {node}}.Encode()
	return u.String(), nil
}

func dial(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	return conn, err
}

// Subscriber receives the samples of one topic and keeps only the newest.
type Subscriber struct {
	baseURL string
	topic   string
	node    string

	conn *websocket.Conn

	mu      sync.Mutex
	latest  pose.Sample
	pending bool

	received    atomic.Uint64
	overwritten atomic.Uint64

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewSubscriber creates a subscriber for topic on the broker at baseURL.
// node identifies this process to the broker.
func NewSubscriber(baseURL, topic, node string) *Subscriber {
	return &Subscriber{
		baseURL: baseURL,
		topic:   topic,
		node:    node,
		done:    make(chan struct{}),
	}
}

// Topic returns the subscribed topic name.
func (s *Subscriber) Topic() string {
	return s.topic
}

// Subscribe attaches to the topic and starts receiving in the background.
func (s *Subscriber) Subscribe(ctx context.Context) error {
	if s.topic == "" {
		return fmt.Errorf("%w: empty topic", ErrSubscriptionFailed)
	}
	wsURL, err := endpoint(s.baseURL, PathSubscribe, s.topic, s.node)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSubscriptionFailed, s.topic, err)
	}
	conn, err := dial(ctx, wsURL)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSubscriptionFailed, s.topic, err)
	}
	s.conn = conn

	s.wg.Add(1)
	go s.readLoop()

	log.Info("subscribed to pose topic", "topic", s.topic, "node", s.node)
	return nil
}

// Read returns the newest sample received since the last Read.
// It never blocks; ok is false when nothing new arrived.
func (s *Subscriber) Read() (sample pose.Sample, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return pose.Sample{}, false
	}
	s.pending = false
	return s.latest, true
}

// Received returns how many samples arrived and how many were replaced before being read.
func (s *Subscriber) Received() (received, overwritten uint64) {
	return s.received.Load(), s.overwritten.Load()
}

// Close detaches from the broker. It is safe to call more than once.
func (s *Subscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn == nil {
			return
		}
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = s.conn.Close()
		s.wg.Wait()
		log.Info("unsubscribed from pose topic", "topic", s.topic)
	})
	return err
}

func (s *Subscriber) readLoop() {
	defer s.wg.Done()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				log.Warn("pose stream ended", "topic", s.topic, "error", err)
			}
			return
		}

		var sample pose.Sample
		if err := json.Unmarshal(data, &sample); err != nil {
			log.Debug("bad pose sample", "topic", s.topic, "error", err)
			continue
		}

		s.received.Add(1)
		s.mu.Lock()
		if s.pending {
			s.overwritten.Add(1)
		}
		s.latest = sample
		s.pending = true
		s.mu.Unlock()
	}
}

// Publisher sends samples to one topic.
type Publisher struct {
	topic string
	conn  *websocket.Conn

	mu     sync.Mutex
	closed bool
}

// Dial connects a publisher for topic to the broker at baseURL.
func Dial(ctx context.Context, baseURL, topic, node string) (*Publisher, error) {
	if topic == "" {
		return nil, errors.New("posebus: empty topic")
	}
	wsURL, err := endpoint(baseURL, PathPublish, topic, node)
	if err != nil {
		return nil, fmt.Errorf("posebus: publish to %s: %w", topic, err)
	}
	conn, err := dial(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("posebus: publish to %s: %w", topic, err)
	}
	log.Info("publishing pose topic", "topic", topic, "node", node)
	return &Publisher{topic: topic, conn: conn}, nil
}

// Publish sends one sample.
func (p *Publisher) Publish(s pose.Sample) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("posebus: publisher closed")
	}
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

// Close disconnects the publisher. It is safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return p.conn.Close()
}
