package posebus

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brillian32/icub-arm-imitator/pkg/pose"
)

const testTopic = "/icub/jointPose"

func newBrokerApp(b *Broker) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	b.RegisterRoutes(app)
	b.RegisterAPIRoutes(app)
	return app
}

// startBroker serves a broker on a loopback port and returns its base URL.
func startBroker(t *testing.T) (*Broker, string) {
	t.Helper()
	b := NewBroker()
	app := newBrokerApp(b)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	return b, "http://" + ln.Addr().String()
}

func subscribe(t *testing.T, b *Broker, base string) *Subscriber {
	t.Helper()
	sub := NewSubscriber(base, testTopic, "/test/sub")
	require.NoError(t, sub.Subscribe(context.Background()))
	t.Cleanup(func() { sub.Close() })

	require.Eventually(t, func() bool { return b.SubscriberCount(testTopic) >= 1 },
		time.Second, 5*time.Millisecond)
	return sub
}

func sample(x, y, z float64) pose.Sample {
	return pose.Sample{
		Position:    pose.Point{X: x, Y: y, Z: z},
		Orientation: pose.Quaternion{W: 1},
	}
}

func TestEndpoint(t *testing.T) {
	u, err := endpoint("http://localhost:10000/", PathSubscribe, "/icub/jointPose", "/node")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:10000/ws/subscribe?node=%2Fnode&topic=%2Ficub%2FjointPose", u)

	u, err = endpoint("https://sim.local", PathPublish, "t", "n")
	require.NoError(t, err)
	assert.Equal(t, "wss://sim.local/ws/publish?node=n&topic=t", u)

	_, err = endpoint("ftp://sim.local", PathPublish, "t", "n")
	assert.Error(t, err)
}

func TestReadWithoutSample(t *testing.T) {
	b, base := startBroker(t)
	sub := subscribe(t, b, base)

	_, ok := sub.Read()
	assert.False(t, ok)
}

func TestPublishReachesSubscriber(t *testing.T) {
	b, base := startBroker(t)
	sub := subscribe(t, b, base)

	pub, err := Dial(context.Background(), base, testTopic, "/test/pub")
	require.NoError(t, err)
	defer pub.Close()

	require.NoError(t, pub.Publish(sample(1, 2, 3)))

	var got pose.Sample
	require.Eventually(t, func() bool {
		var ok bool
		got, ok = sub.Read()
		return ok
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1.0, got.Position.X)
	assert.Equal(t, 2.0, got.Position.Y)
	assert.Equal(t, 3.0, got.Position.Z)
	assert.Equal(t, uint64(1), got.Seq)
	assert.NotZero(t, got.Stamp)

	// A sample is handed out once
	_, ok := sub.Read()
	assert.False(t, ok)
}

func TestSubscriberKeepsLatest(t *testing.T) {
	b, base := startBroker(t)
	sub := subscribe(t, b, base)

	pub, err := Dial(context.Background(), base, testTopic, "/test/pub")
	require.NoError(t, err)
	defer pub.Close()

	for i := 1; i <= 5; i++ {
		require.NoError(t, pub.Publish(sample(float64(i), 0, 0)))
	}

	require.Eventually(t, func() bool {
		received, _ := sub.Received()
		return received == 5
	}, time.Second, 5*time.Millisecond)

	got, ok := sub.Read()
	require.True(t, ok)
	assert.Equal(t, 5.0, got.Position.X)
	assert.Equal(t, uint64(5), got.Seq)
}

func TestTopicsAreIsolated(t *testing.T) {
	b, base := startBroker(t)
	sub := subscribe(t, b, base)

	pub, err := Dial(context.Background(), base, "/other", "/test/pub")
	require.NoError(t, err)
	defer pub.Close()
	require.NoError(t, pub.Publish(sample(1, 1, 1)))

	require.Eventually(t, func() bool { return b.Stats().Received == 1 },
		time.Second, 5*time.Millisecond)

	_, ok := sub.Read()
	assert.False(t, ok)
}

func TestBrokerRejectsMalformedSamples(t *testing.T) {
	b, base := startBroker(t)
	subscribe(t, b, base)

	pub, err := Dial(context.Background(), base, testTopic, "/test/pub")
	require.NoError(t, err)
	defer pub.Close()

	pub.mu.Lock()
	err = pub.conn.WriteMessage(websocket.TextMessage, []byte("not json"))
	pub.mu.Unlock()
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.Stats().Rejected == 1 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(0), b.Stats().Delivered)
}

func TestSubscribeFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	base := "http://" + ln.Addr().String()
	ln.Close()

	sub := NewSubscriber(base, testTopic, "/test/sub")
	err = sub.Subscribe(context.Background())
	assert.True(t, errors.Is(err, ErrSubscriptionFailed))
	assert.NoError(t, sub.Close())

	err = NewSubscriber(base, "", "/test/sub").Subscribe(context.Background())
	assert.True(t, errors.Is(err, ErrSubscriptionFailed))
}

func TestSubscriberCloseIsIdempotent(t *testing.T) {
	b, base := startBroker(t)
	sub := subscribe(t, b, base)

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())

	assert.Eventually(t, func() bool { return b.SubscriberCount(testTopic) == 0 },
		time.Second, 5*time.Millisecond)
}

func TestTopicsEndpoint(t *testing.T) {
	b := NewBroker()
	app := newBrokerApp(b)
	b.forward(testTopic, sample(0, 0, 0))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, PathTopics, nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Topics []TopicInfo `json:"topics"`
		Stats  Stats       `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Topics, 1)
	assert.Equal(t, testTopic, body.Topics[0].Name)
	assert.Equal(t, uint64(1), body.Topics[0].Published)
}

func TestHandshakeRequiresTopic(t *testing.T) {
	app := newBrokerApp(NewBroker())

	req := httptest.NewRequest(http.MethodGet, PathSubscribe, nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
