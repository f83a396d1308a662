// Package bridge implements the duplex websocket transport between the
// client and the RepoRecon backend.
//
// The wire protocol carries two message kinds: binary messages are raw
// little-endian int16 mono PCM — one audio frame per message, no framing
// header — and text messages are UTF-8 JSON objects with a "type"
// discriminant. Outbound frames preserve submission order; inbound messages
// are dispatched in wire order to the registered handlers. There is no
// backpressure signal: Send drops silently when the channel is down, so
// callers check connection state instead of accumulating backlog.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/reporecon/internal/observe"
	"github.com/MrWong99/reporecon/pkg/audio"
)

// Event is a structured control message received from the backend, e.g. a
// tool invocation notice. The bridge passes it through unmodified: Kind is
// the "type" discriminant and Payload the full raw message for observers to
// interpret. Unrecognized kinds are delivered, not errors.
type Event struct {
	Kind    string
	Payload json.RawMessage
}

// eventEnvelope extracts only the discriminant from an inbound text message.
type eventEnvelope struct {
	Type string `json:"type"`
}

// endTurnMessage finalizes the current utterance on the backend.
type endTurnMessage struct {
	Type string `json:"type"`
}

// ── Options ──────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithSampleRate sets the sample rate stamped on inbound frames. Default is
// 24000, the canonical session rate.
func WithSampleRate(rate int) Option {
	return func(c *Client) { c.sampleRate = rate }
}

// WithMetrics sets the metrics instance used by the client. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// ── Client ───────────────────────────────────────────────────────────────────

// Client is one logical duplex channel to the backend. Handlers must be
// registered before Connect; inbound dispatch starts as soon as the socket
// opens. After Close (local or remote) the same Client may Connect again for
// a new session.
//
// Client is safe for concurrent use.
type Client struct {
	url        string
	sampleRate int
	metrics    *observe.Metrics

	frameHandler func(audio.Frame)
	eventHandler func(Event)
	closeHandler func(error)

	mu        sync.Mutex // guards conn, connected, and write ordering
	conn      *websocket.Conn
	connected bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates a Client for the given websocket URL. No network activity
// happens until Connect.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:        url,
		sampleRate: 24000,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// OnFrame registers the handler for inbound audio frames. Only one handler
// may be registered; it is invoked on the receive goroutine and must not
// block.
func (c *Client) OnFrame(h func(audio.Frame)) { c.frameHandler = h }

// OnEvent registers the handler for inbound control events. Invoked on the
// receive goroutine.
func (c *Client) OnEvent(h func(Event)) { c.eventHandler = h }

// OnClose registers the handler invoked exactly once when the channel ends
// for any reason other than a local Close. err is nil for a normal remote
// close and non-nil for a transport error — an errored channel is never left
// half-open.
func (c *Client) OnClose(h func(error)) { c.closeHandler = h }

// Connect establishes the channel. It returns once the socket is open and
// the receive loop is running, or a [*ConnectionError] if the handshake
// fails, times out, or is refused.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return &ConnectionError{URL: c.url, Err: err}
	}
	// One wire frame per audio frame; PCM at 24 kHz can exceed the library's
	// conservative default read limit.
	conn.SetReadLimit(1 << 20)

	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.ctx = runCtx
	c.cancel = cancel
	c.closeOnce = sync.Once{} // fresh close guard per session
	c.mu.Unlock()

	go c.receiveLoop(runCtx, conn)

	slog.Debug("bridge connected", "url", c.url)
	return nil
}

// Connected reports whether the channel is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Send enqueues one audio frame for transmission as a binary message. Frames
// never overtake each other: the write lock serializes them in submission
// order. Calling Send while not connected silently drops the frame.
func (c *Client) Send(f audio.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}
	if err := c.conn.Write(c.ctx, websocket.MessageBinary, f.Data); err != nil {
		// The receive loop observes the same failure and runs teardown.
		slog.Debug("bridge send failed", "err", err)
		return
	}
	c.metrics.RecordFrameSent(c.ctx, len(f.Data))
}

// SendEndTurn tells the backend to finalize the current utterance. The
// backend opens a turn on the first audio frame and closes it on this
// message.
func (c *Client) SendEndTurn() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return &ConnectionError{URL: c.url, Err: context.Canceled}
	}
	data, err := json.Marshal(endTurnMessage{Type: "end_turn"})
	if err != nil {
		return err
	}
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

// ── Inbound dispatch ─────────────────────────────────────────────────────────

// receiveLoop reads messages until the channel dies or Close is called, and
// fires the close handler with the channel's fate.
func (c *Client) receiveLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // local Close, no callback
			}
			c.teardown(closeError(c.url, err))
			return
		}

		switch typ {
		case websocket.MessageBinary:
			c.dispatchFrame(ctx, data)
		case websocket.MessageText:
			c.dispatchEvent(ctx, data)
		}
	}
}

// dispatchFrame validates a binary message as PCM and hands it to the frame
// handler. A malformed payload is logged and dropped — never fatal. ctx is
// the owning receive loop's context; the c.ctx field belongs to the current
// session and may already be a later connection's.
func (c *Client) dispatchFrame(ctx context.Context, data []byte) {
	if len(data) == 0 || len(data)%2 != 0 {
		err := &MalformedFrameError{Size: len(data)}
		slog.Warn("dropping malformed audio frame", "err", err)
		c.metrics.RecordMalformedFrame(ctx)
		return
	}
	c.metrics.RecordFrameReceived(ctx, len(data))
	if c.frameHandler != nil {
		c.frameHandler(audio.Frame{Data: data, SampleRate: c.sampleRate})
	}
}

// dispatchEvent parses the envelope of a text message and passes the event
// through. Non-JSON text and messages without a discriminant are ignored.
func (c *Client) dispatchEvent(ctx context.Context, data []byte) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		slog.Debug("ignoring unparseable control message", "bytes", len(data))
		return
	}
	c.metrics.RecordControlEvent(ctx, env.Type)
	if c.eventHandler != nil {
		c.eventHandler(Event{Kind: env.Type, Payload: json.RawMessage(data)})
	}
}

// closeError maps a read error to the close handler's contract: nil for a
// normal remote close, *ConnectionError otherwise.
func closeError(url string, err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return nil
	}
	return &ConnectionError{URL: url, Err: err}
}

// teardown marks the channel dead and fires the close handler once.
func (c *Client) teardown(reason error) {
	c.closeOnce.Do(func() {
		// Cancel first: an in-flight Send holds the write lock until its
		// write aborts.
		c.cancel()
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		c.conn.Close(websocket.StatusNormalClosure, "session ended")

		if reason == nil {
			slog.Debug("bridge closed by remote")
		} else {
			slog.Warn("bridge connection failed", "err", reason)
		}
		if c.closeHandler != nil {
			c.closeHandler(reason)
		}
	})
}

// Close terminates the channel from the local side. Idempotent; the close
// handler does not fire for local closes.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.closeOnce.Do(func() {
		c.cancel()
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "client stopping")
	})
	return nil
}
