package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/violive/liveshow-go/internal/events"
)

// socketServer is an in-process socket endpoint that records inbound control
// frames and hands each accepted connection to the test for pushing frames or
// forcing drops.
type socketServer struct {
	srv    *httptest.Server
	frames chan controlFrame
	conns  chan *websocket.Conn
}

func newSocketServer(t *testing.T) *socketServer {
	t.Helper()
	s := &socketServer{
		frames: make(chan controlFrame, 16),
		conns:  make(chan *websocket.Conn, 4),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/socket/v1" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
		for {
			var frame controlFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			s.frames <- frame
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *socketServer) acceptConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for socket connection")
		return nil
	}
}

func (s *socketServer) recvFrame(t *testing.T) controlFrame {
	t.Helper()
	select {
	case frame := <-s.frames:
		return frame
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for control frame")
		return controlFrame{}
	}
}

func waitForStatus(t *testing.T, changes <-chan StatusChange, want Status) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case change := <-changes:
			if change.Status == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %q", want)
		}
	}
}

func TestConnectTransitionsAndSubscribe(t *testing.T) {
	srv := newSocketServer(t)
	c := NewClient(srv.srv.URL, nil)
	defer c.Disconnect()

	changes, cancel := c.StatusChanges()
	defer cancel()

	c.Connect()
	waitForStatus(t, changes, StatusConnecting)
	waitForStatus(t, changes, StatusConnected)
	srv.acceptConn(t)

	c.SubscribeToStream(5)
	frame := srv.recvFrame(t)
	if frame.Type != "subscribe" || frame.StreamID != 5 {
		t.Fatalf("frame = %+v, want subscribe 5", frame)
	}
	if frame.Timestamp == "" {
		t.Fatalf("control frame missing timestamp")
	}

	c.UnsubscribeFromStream(5)
	frame = srv.recvFrame(t)
	if frame.Type != "unsubscribe" || frame.StreamID != 5 {
		t.Fatalf("frame = %+v, want unsubscribe 5", frame)
	}
	if subs := c.Subscriptions(); len(subs) != 0 {
		t.Fatalf("subscription set = %v, want empty", subs)
	}
}

func TestReconnectRecoversSubscriptions(t *testing.T) {
	srv := newSocketServer(t)
	c := NewClient(srv.srv.URL, nil)
	defer c.Disconnect()

	c.SubscribeToStream(5)
	c.SubscribeToStream(9)
	c.Connect()

	collectSubscribed := func() map[int64]bool {
		got := make(map[int64]bool)
		for len(got) < 2 {
			frame := srv.recvFrame(t)
			if frame.Type != "subscribe" {
				t.Fatalf("unexpected frame %+v", frame)
			}
			got[frame.StreamID] = true
		}
		return got
	}

	first := srv.acceptConn(t)
	got := collectSubscribed()
	if !got[5] || !got[9] {
		t.Fatalf("initial subscribe set = %v, want {5, 9}", got)
	}

	// Kill the connection server-side; the client must reconnect and replay
	// the subscription set.
	_ = first.Close()
	srv.acceptConn(t)
	got = collectSubscribed()
	if !got[5] || !got[9] {
		t.Fatalf("resubscribe set = %v, want {5, 9}", got)
	}
}

func TestInboundEventFanOut(t *testing.T) {
	srv := newSocketServer(t)
	c := NewClient(srv.srv.URL, nil)
	defer c.Disconnect()

	evs, cancel := c.Events()
	defer cancel()

	c.Connect()
	conn := srv.acceptConn(t)

	raw := `{"type": "viewer_count_changed", "streamId": 3, "payload": {"count": 77}}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case ev := <-evs:
		if ev.Kind != events.KindViewerCountChanged || ev.StreamID != 3 {
			t.Fatalf("event = %+v", ev)
		}
		if ev.ViewerCount == nil || ev.ViewerCount.Count != 77 {
			t.Fatalf("viewer count payload = %+v", ev.ViewerCount)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
}

func TestPulseFrameFeedsHeartbeatStream(t *testing.T) {
	srv := newSocketServer(t)
	c := NewClient(srv.srv.URL, nil)
	defer c.Disconnect()

	pulses, cancel := c.Pulses()
	defer cancel()
	evs, cancelEvents := c.Events()
	defer cancelEvents()

	c.Connect()
	conn := srv.acceptConn(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type": "pulse"}`)); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case <-pulses:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for pulse")
	}
	select {
	case ev := <-evs:
		t.Fatalf("pulse leaked into event stream: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnectWithBadBaseURLFailsFast(t *testing.T) {
	c := NewClient("ftp://example.com", nil)
	c.Connect()
	status, reason := c.Status()
	if status != StatusError {
		t.Fatalf("status = %q, want %q", status, StatusError)
	}
	if reason == "" {
		t.Fatalf("error status must carry a reason")
	}
}

func TestDisconnectClosesListeners(t *testing.T) {
	srv := newSocketServer(t)
	c := NewClient(srv.srv.URL, nil)

	evs, _ := c.Events()
	c.Connect()
	srv.acceptConn(t)
	c.SubscribeToStream(5)
	c.Disconnect()

	select {
	case _, ok := <-evs:
		if ok {
			t.Fatalf("expected listener channel to be closed")
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for listener close")
	}
	if status, _ := c.Status(); status != StatusDisconnected {
		t.Fatalf("status = %q, want %q", status, StatusDisconnected)
	}
	// The subscription set survives a disconnect.
	if subs := c.Subscriptions(); len(subs) != 1 || subs[0] != 5 {
		t.Fatalf("subscription set = %v, want [5]", subs)
	}
}

func TestNextDelayCapped(t *testing.T) {
	d := reconnectBaseDelay
	for i := 0; i < 10; i++ {
		d = nextDelay(d)
	}
	if d != reconnectMaxDelay {
		t.Fatalf("delay = %v, want cap %v", d, reconnectMaxDelay)
	}
}
