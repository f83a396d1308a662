// Package session orchestrates the lifecycle of one bridge session: acquire
// the microphone, establish the transport, wire capture output to the wire
// and inbound audio to the playback scheduler, and tear everything down
// deterministically on stop or failure.
//
// The [Controller] owns every per-session resource — microphone, transport
// channel, playback queue — for its lifetime. Only one session may be active
// per controller; there is no automatic reconnection, a new session always
// begins from idle via an explicit Start.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/reporecon/internal/bridge"
	"github.com/MrWong99/reporecon/internal/observe"
	"github.com/MrWong99/reporecon/pkg/audio"
)

// Source delivers captured audio frames. Implemented by [capture.Microphone];
// tests substitute fakes.
type Source interface {
	// Start acquires the capture device and returns the frame channel.
	// The channel is closed by Stop.
	Start(ctx context.Context) (<-chan audio.Frame, error)

	// Stop releases the capture device. Idempotent.
	Stop() error
}

// Player consumes inbound frames for playback. Implemented by
// [playback.Scheduler].
type Player interface {
	// Enqueue appends one frame to the playback queue.
	Enqueue(f audio.Frame)

	// Reset discards queued playback and rewinds the clock cursor.
	Reset()
}

// Transport is the duplex channel to the backend. Implemented by
// [bridge.Client].
type Transport interface {
	Connect(ctx context.Context) error
	Connected() bool
	Send(f audio.Frame)
	SendEndTurn() error
	OnFrame(func(audio.Frame))
	OnEvent(func(bridge.Event))
	OnClose(func(error))
	Close() error
}

// Option is a functional option for configuring a [Controller].
type Option func(*Controller)

// WithMetrics sets the metrics instance used by the controller. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller drives the session state machine
// Idle → Connecting → Connected → (Idle | Error).
//
// Controller is safe for concurrent use. Status and event callbacks are
// invoked synchronously from whatever goroutine triggered the transition and
// must not block.
type Controller struct {
	transport Transport
	source    Source
	player    Player
	metrics   *observe.Metrics

	statusHandler func(Status)
	eventHandler  func(bridge.Event)

	mu        sync.Mutex
	status    Status
	lastErr   error
	sessionID string
	cancel    context.CancelFunc
	active    bool // counted in the ActiveSessions gauge
}

// New creates a Controller wiring the given transport, capture source, and
// player. The controller starts in [StatusIdle].
func New(t Transport, src Source, p Player, opts ...Option) *Controller {
	c := &Controller{
		transport: t,
		source:    src,
		player:    p,
		status:    StatusIdle,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}

	// Inbound wiring is fixed for the controller's lifetime; the handlers
	// check session state themselves.
	t.OnFrame(c.handleInboundFrame)
	t.OnEvent(c.handleInboundEvent)
	t.OnClose(c.handleRemoteClose)
	return c
}

// Status returns the current lifecycle state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err returns the error that moved the controller to [StatusError], or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// OnStatusChange registers cb to be invoked after every status transition.
// Only one callback may be registered; subsequent calls replace it.
// Register before Start.
func (c *Controller) OnStatusChange(cb func(Status)) { c.statusHandler = cb }

// OnEvent registers cb for control events passed through from the backend.
// Only one callback may be registered; subsequent calls replace it.
// Register before Start.
func (c *Controller) OnEvent(cb func(bridge.Event)) { c.eventHandler = cb }

// ── Start ────────────────────────────────────────────────────────────────────

// Start begins a session: transport connect and microphone acquisition run
// in parallel, and both must succeed before the controller reaches
// [StatusConnected]. Failure of either aborts to [StatusError] with all
// partially-acquired resources released.
//
// Start is idempotent while a session is starting or active. From
// [StatusError] it fails until Stop resets the controller.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.status {
	case StatusConnecting, StatusConnected:
		c.mu.Unlock()
		return nil
	case StatusError:
		err := c.lastErr
		c.mu.Unlock()
		return fmt.Errorf("session: controller in error state (call Stop to reset): %w", err)
	}
	c.sessionID = uuid.NewString()
	sessCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	id := c.sessionID
	c.setStatusLocked(StatusConnecting)
	c.mu.Unlock()
	c.notifyStatus(StatusConnecting)

	slog.Info("session starting", "session_id", id)

	// Transport connect and mic acquisition in parallel; either failure
	// cancels the other.
	var frames <-chan audio.Frame
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.transport.Connect(gctx)
	})
	g.Go(func() error {
		ch, err := c.source.Start(gctx)
		if err != nil {
			return err
		}
		frames = ch
		return nil
	})

	if err := g.Wait(); err != nil {
		// No half-acquired state survives a failed start.
		c.releaseResources()
		cancel()

		c.mu.Lock()
		if c.status != StatusConnecting {
			// Stop raced the start and already owns the final state; a
			// failure of the abandoned connect must not resurface as Error.
			c.mu.Unlock()
			return fmt.Errorf("session: start aborted by stop")
		}
		c.lastErr = err
		c.setStatusLocked(StatusError)
		c.mu.Unlock()
		c.notifyStatus(StatusError)

		c.metrics.RecordSessionStart(ctx, "error")
		slog.Error("session start failed", "session_id", id, "err", err)
		return fmt.Errorf("session: start: %w", err)
	}

	c.mu.Lock()
	if c.status != StatusConnecting {
		// Stop raced the start; give everything back.
		c.mu.Unlock()
		c.releaseResources()
		cancel()
		return fmt.Errorf("session: start aborted by stop")
	}
	c.active = true
	c.setStatusLocked(StatusConnected)
	c.mu.Unlock()
	c.notifyStatus(StatusConnected)

	go c.pump(sessCtx, frames)

	c.metrics.RecordSessionStart(ctx, "ok")
	c.metrics.ActiveSessions.Add(ctx, 1)
	slog.Info("session connected", "session_id", id)
	return nil
}

// pump forwards captured frames to the transport until the session ends.
// There is no backpressure signal, so it checks connection state instead of
// letting backlog accumulate.
func (c *Controller) pump(ctx context.Context, frames <-chan audio.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if c.transport.Connected() {
				c.transport.Send(f)
			}
		}
	}
}

// ── Stop and teardown ────────────────────────────────────────────────────────

// Stop ends the session and releases every per-session resource: microphone,
// transport channel, and queued playback. Already-scheduled audio in the
// output device may finish audibly but nothing behind it is re-triggered.
//
// Safe to call from any state, idempotent under repeated calls, and the only
// way back to [StatusIdle] from [StatusError].
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.status == StatusIdle {
		c.mu.Unlock()
		return
	}
	id := c.sessionID
	c.lastErr = nil
	c.setStatusLocked(StatusIdle)
	c.mu.Unlock()
	c.notifyStatus(StatusIdle)

	c.teardown()
	slog.Info("session stopped", "session_id", id)
}

// handleRemoteClose reacts to the transport ending on its own. A normal
// remote close is a normal end of session (Idle); a transport error moves
// the controller to Error. The teardown path is identical in both cases.
func (c *Controller) handleRemoteClose(err error) {
	c.mu.Lock()
	if c.status != StatusConnecting && c.status != StatusConnected {
		c.mu.Unlock()
		return
	}
	id := c.sessionID
	final := StatusIdle
	if err != nil {
		final = StatusError
		c.lastErr = err
	} else {
		c.lastErr = nil
	}
	c.setStatusLocked(final)
	c.mu.Unlock()
	c.notifyStatus(final)

	c.teardown()
	if err == nil {
		slog.Info("session ended by remote", "session_id", id)
	} else {
		slog.Error("session failed", "session_id", id, "err", err)
	}
}

// teardown cancels the pump and releases all session resources. Idempotent:
// every release below tolerates being called on already-released state.
func (c *Controller) teardown() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	wasActive := c.active
	c.active = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.releaseResources()
	if wasActive {
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	}
}

// releaseResources stops capture, closes the transport, and clears queued
// playback, in that order — upstream first so nothing refills what was just
// cleared.
func (c *Controller) releaseResources() {
	if err := c.source.Stop(); err != nil {
		slog.Warn("releasing microphone failed", "err", err)
	}
	if err := c.transport.Close(); err != nil {
		slog.Warn("closing transport failed", "err", err)
	}
	c.player.Reset()
}

// ── Inbound dispatch ─────────────────────────────────────────────────────────

func (c *Controller) handleInboundFrame(f audio.Frame) {
	c.mu.Lock()
	live := c.status == StatusConnected
	c.mu.Unlock()
	if !live {
		return // late frame after teardown began
	}
	c.player.Enqueue(f)
}

func (c *Controller) handleInboundEvent(evt bridge.Event) {
	slog.Debug("control event", "kind", evt.Kind)
	if c.eventHandler != nil {
		c.eventHandler(evt)
	}
}

// ── Turn handling ────────────────────────────────────────────────────────────

// EndTurn finalizes the current utterance on the backend. The backend opens
// a turn on the first audio frame after connect or after the previous end of
// turn.
func (c *Controller) EndTurn() error {
	if c.Status() != StatusConnected {
		return fmt.Errorf("session: no active session")
	}
	return c.transport.SendEndTurn()
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// setStatusLocked transitions the status. Must be called with c.mu held.
// The observer is notified via notifyStatus after the lock is released so
// transitions arrive in order and the callback cannot deadlock against the
// controller.
func (c *Controller) setStatusLocked(s Status) {
	c.status = s
}

func (c *Controller) notifyStatus(s Status) {
	if h := c.statusHandler; h != nil {
		h(s)
	}
}
