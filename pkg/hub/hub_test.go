package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-wayfinder/internal/log"
	"github.com/teslashibe/go-wayfinder/pkg/events"
)

type written struct {
	typ  int
	data []byte
}

// fakeConn blocks reads until closed and records writes.
type fakeConn struct {
	writes chan written
	block  chan struct{} // when non-nil, writes wait on it

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{writes: make(chan written, 64), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}

func (c *fakeConn) WriteMessage(typ int, data []byte) error {
	if c.block != nil {
		select {
		case <-c.block:
		case <-c.closed:
			return errors.New("closed")
		}
	}
	select {
	case c.writes <- written{typ, data}:
	case <-c.closed:
		return errors.New("closed")
	}
	return nil
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", log.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
	return h, cancel
}

func connect(t *testing.T, h *Hub, conn *fakeConn) {
	t.Helper()
	c, err := NewClient(h, conn)
	require.NoError(t, err)
	go c.Run()
}

func next(t *testing.T, conn *fakeConn) written {
	t.Helper()
	select {
	case w := <-conn.writes:
		return w
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for write")
		return written{}
	}
}

func TestHub_BroadcastFrameAndAlert(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	conn := newFakeConn()
	connect(t, h, conn)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	h.BroadcastFrame([]byte{0xff, 0xd8})
	w := next(t, conn)
	assert.Equal(t, websocket.BinaryMessage, w.typ)
	assert.Equal(t, []byte{0xff, 0xd8}, w.data)

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.BroadcastAlert(events.Alert{Label: "dog", Direction: "ahead", DistanceCM: 80, Timestamp: ts})
	w = next(t, conn)
	assert.Equal(t, websocket.TextMessage, w.typ)

	var env Envelope
	require.NoError(t, json.Unmarshal(w.data, &env))
	assert.Equal(t, "alert", env.Type)
	require.NotNil(t, env.Alert)
	assert.Equal(t, "dog", env.Alert.Label)
	assert.Equal(t, ts, env.Time)
}

func TestHub_NoViewersNoWork(t *testing.T) {
	h := New("idle", log.Discard())
	h.BroadcastFrame([]byte("x"))
	h.BroadcastAlert(events.Alert{})
	assert.Len(t, h.broadcast, 0)
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	conn := newFakeConn()
	connect(t, h, conn)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, time.Millisecond)
}

func TestHub_SlowViewerDropped(t *testing.T) {
	h, cancel := startHub(t)
	defer cancel()

	slow := newFakeConn()
	slow.block = make(chan struct{})
	fast := newFakeConn()
	connect(t, h, slow)
	connect(t, h, fast)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, time.Millisecond)

	// Fill the slow viewer's buffer and then some; the fast one drains.
	go func() {
		for range fast.writes {
		}
	}()
	for i := 0; i < sendBuffer*3; i++ {
		h.BroadcastFrame([]byte{byte(i)})
		time.Sleep(100 * time.Microsecond)
	}

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	slow.Close()
}

func TestHub_StopClosesClients(t *testing.T) {
	h, cancel := startHub(t)

	conn := newFakeConn()
	connect(t, h, conn)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	cancel()
	w := next(t, conn)
	assert.Equal(t, websocket.CloseMessage, w.typ)
	require.Eventually(t, func() bool { return !h.IsRunning() }, time.Second, time.Millisecond)

	_, err := NewClient(h, newFakeConn())
	assert.ErrorIs(t, err, ErrHubStopped)
}
