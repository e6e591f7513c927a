// Package transport owns the single long-lived socket connection to the
// real-time backend. It tracks a subscription set per numeric stream id,
// re-publishes every inbound frame as a typed domain event, and recovers
// subscriptions across reconnects.
package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/violive/liveshow-go/internal/events"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second

	writeWait          = 10 * time.Second
	readLimit          = 65536
	listenerBuffer     = 64
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// controlFrame is the outbound subscribe/unsubscribe message.
type controlFrame struct {
	Type      string `json:"type"`
	StreamID  int64  `json:"stream_id"`
	Timestamp string `json:"timestamp"`
}

// peekFrame is the minimal inbound envelope used to spot heartbeat pulses
// before the domain decoder runs.
type peekFrame struct {
	Type  string `json:"type"`
	Event string `json:"event"`
}

// Client is the real-time transport client. All exported methods are safe for
// concurrent use. Network failures never propagate as errors to callers; they
// surface as status transitions on the status stream.
type Client struct {
	baseURL string
	logger  *zap.Logger
	decoder *events.Decoder
	dialer  *websocket.Dialer

	mu              sync.Mutex
	status          Status
	statusReason    string
	conn            *websocket.Conn
	send            chan controlFrame
	subs            map[int64]struct{}
	eventListeners  map[int]chan events.Event
	pulseListeners  map[int]chan struct{}
	statusListeners map[int]chan StatusChange
	nextListenerID  int
	generation      int
}

// NewClient creates a transport client for the configured socket base URL.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:         baseURL,
		logger:          logger,
		decoder:         events.NewDecoder(logger),
		dialer:          &websocket.Dialer{HandshakeTimeout: writeWait},
		status:          StatusDisconnected,
		subs:            make(map[int64]struct{}),
		eventListeners:  make(map[int]chan events.Event),
		pulseListeners:  make(map[int]chan struct{}),
		statusListeners: make(map[int]chan StatusChange),
	}
}

// Connect opens the socket. Idempotent: a call while already Connecting or
// Connected is a no-op. An unparsable base URL fails fast to Error status.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.status == StatusConnecting || c.status == StatusConnected {
		c.mu.Unlock()
		return
	}
	dialURL, err := deriveSocketURL(c.baseURL)
	if err != nil {
		c.setStatusLocked(StatusError, err.Error())
		c.mu.Unlock()
		c.logger.Warn("socket url derivation failed", zap.String("base", c.baseURL), zap.Error(err))
		return
	}
	c.generation++
	gen := c.generation
	c.setStatusLocked(StatusConnecting, "")
	c.mu.Unlock()

	go c.run(gen, dialURL)
}

// Disconnect closes the socket, clears all registered listeners and forces
// Disconnected. The subscription set is retained so a later Connect
// resubscribes.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.generation++
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	for id, ch := range c.eventListeners {
		close(ch)
		delete(c.eventListeners, id)
	}
	for id, ch := range c.pulseListeners {
		close(ch)
		delete(c.pulseListeners, id)
	}
	for id, ch := range c.statusListeners {
		close(ch)
		delete(c.statusListeners, id)
	}
	c.status = StatusDisconnected
	c.statusReason = ""
	c.mu.Unlock()
	c.logger.Info("transport disconnected")
}

// SubscribeToStream adds a stream id to the subscription set (idempotent) and
// emits a subscribe frame immediately when connected.
func (c *Client) SubscribeToStream(id int64) {
	c.mu.Lock()
	c.subs[id] = struct{}{}
	c.enqueueLocked("subscribe", id)
	c.mu.Unlock()
}

// UnsubscribeFromStream removes a stream id from the subscription set
// (idempotent) and emits an unsubscribe frame immediately when connected.
func (c *Client) UnsubscribeFromStream(id int64) {
	c.mu.Lock()
	delete(c.subs, id)
	c.enqueueLocked("unsubscribe", id)
	c.mu.Unlock()
}

// Subscriptions returns a snapshot of the subscribed stream ids.
func (c *Client) Subscriptions() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, 0, len(c.subs))
	for id := range c.subs {
		out = append(out, id)
	}
	return out
}

// Status returns the current connection status and, for Error, its reason.
func (c *Client) Status() (Status, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.statusReason
}

// Events registers a listener for decoded domain events. The returned cancel
// removes the listener. Slow listeners drop events rather than block dispatch.
func (c *Client) Events() (<-chan events.Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListenerID
	c.nextListenerID++
	ch := make(chan events.Event, listenerBuffer)
	c.eventListeners[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if l, ok := c.eventListeners[id]; ok {
			delete(c.eventListeners, id)
			close(l)
		}
	}
}

// Pulses registers a listener for heartbeat pulses: a liveness signal
// independent of the business-event stream, carrying no payload.
func (c *Client) Pulses() (<-chan struct{}, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListenerID
	c.nextListenerID++
	ch := make(chan struct{}, listenerBuffer)
	c.pulseListeners[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if l, ok := c.pulseListeners[id]; ok {
			delete(c.pulseListeners, id)
			close(l)
		}
	}
}

// StatusChanges registers a listener for connection status transitions.
func (c *Client) StatusChanges() (<-chan StatusChange, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextListenerID
	c.nextListenerID++
	ch := make(chan StatusChange, listenerBuffer)
	c.statusListeners[id] = ch
	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if l, ok := c.statusListeners[id]; ok {
			delete(c.statusListeners, id)
			close(l)
		}
	}
}

// run is the per-connect session loop: dial, pump, and reconnect without
// limit until the session is superseded by Disconnect or a newer Connect.
func (c *Client) run(gen int, dialURL string) {
	delay := reconnectBaseDelay
	for {
		if c.stale(gen) {
			return
		}
		conn, _, err := c.dialer.Dial(dialURL, nil)
		if err != nil {
			c.setStatus(gen, StatusError, err.Error())
			c.logger.Warn("socket dial failed", zap.String("url", dialURL), zap.Error(err))
			if !c.sleep(gen, delay) {
				return
			}
			delay = nextDelay(delay)
			c.setStatus(gen, StatusReconnecting, "")
			continue
		}
		delay = reconnectBaseDelay

		send := make(chan controlFrame, listenerBuffer)
		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.send = send
		c.setStatusLocked(StatusConnected, "")
		// Recover subscriptions lost across the reconnect.
		now := time.Now().UTC().Format(time.RFC3339)
		for id := range c.subs {
			send <- controlFrame{Type: "subscribe", StreamID: id, Timestamp: now}
		}
		c.mu.Unlock()
		c.logger.Info("socket connected", zap.String("url", dialURL))

		done := make(chan struct{})
		go c.writePump(conn, send, done)
		c.readLoop(conn)
		close(done)

		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			return
		}
		c.conn = nil
		c.send = nil
		c.setStatusLocked(StatusDisconnected, "")
		c.mu.Unlock()

		if !c.sleep(gen, reconnectBaseDelay) {
			return
		}
		c.setStatus(gen, StatusReconnecting, "")
	}
}

// readLoop decodes inbound frames and fans them out. It returns when the
// connection drops. A frame that fails decoding is dropped by the decoder and
// never blocks subsequent events.
func (c *Client) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(PongWait))
		c.publishPulse()
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(PongWait))

		var peek peekFrame
		if err := json.Unmarshal(raw, &peek); err == nil && (peek.Type == "pulse" || peek.Event == "pulse") {
			c.publishPulse()
			continue
		}

		ev, ok := c.decoder.Decode(raw)
		if !ok {
			continue
		}
		c.publishEvent(*ev)
	}
}

func (c *Client) writePump(conn *websocket.Conn, send <-chan controlFrame, done <-chan struct{}) {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-send:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (c *Client) publishEvent(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.eventListeners {
		select {
		case ch <- ev:
		default:
			// buffer full, skip
		}
	}
}

func (c *Client) publishPulse() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.pulseListeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// enqueueLocked sends a control frame when connected. Callers hold c.mu.
func (c *Client) enqueueLocked(kind string, id int64) {
	if c.status != StatusConnected || c.send == nil {
		return
	}
	frame := controlFrame{Type: kind, StreamID: id, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	select {
	case c.send <- frame:
	default:
		c.logger.Warn("control frame dropped, send buffer full", zap.String("type", kind), zap.Int64("stream_id", id))
	}
}

func (c *Client) setStatus(gen int, s Status, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	c.setStatusLocked(s, reason)
}

// setStatusLocked updates the status and notifies listeners. Callers hold c.mu.
func (c *Client) setStatusLocked(s Status, reason string) {
	if c.status == s && c.statusReason == reason {
		return
	}
	c.status = s
	c.statusReason = reason
	change := StatusChange{Status: s, Reason: reason}
	for _, ch := range c.statusListeners {
		select {
		case ch <- change:
		default:
		}
	}
}

func (c *Client) stale(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation != gen
}

// sleep waits for the reconnect delay, returning false if the session became
// stale meanwhile.
func (c *Client) sleep(gen int, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if c.stale(gen) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !c.stale(gen)
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > reconnectMaxDelay {
		return reconnectMaxDelay
	}
	return d
}
