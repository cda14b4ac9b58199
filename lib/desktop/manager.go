// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package desktop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bureau-foundation/deskpilot/lib/action"
	"github.com/bureau-foundation/deskpilot/lib/clock"
	"github.com/bureau-foundation/deskpilot/lib/rfb"
	"github.com/bureau-foundation/deskpilot/lib/screenshot"
)

// Options holds the session timing and retention parameters. Zero
// fields take the DefaultOptions value, except LatestInterval, where
// zero disables refreshing the latest artifact on frame updates.
type Options struct {
	// ConnectTimeout bounds one dial and handshake.
	ConnectTimeout time.Duration

	// FirstFrameTimeout bounds the wait for the first frame after a
	// connect. Expiry does not fail the connect.
	FirstFrameTimeout time.Duration

	// FrameUpdateTimeout bounds the wait for each update request.
	FrameUpdateTimeout time.Duration

	// MaxUpdateRetries is the number of update requests sent before
	// RequestFrameUpdate gives up.
	MaxUpdateRetries int

	// ReconnectDelay separates connect attempts.
	ReconnectDelay time.Duration

	// MaxReconnectAttempts caps the connect attempts of one
	// connect loop.
	MaxReconnectAttempts int

	// DefaultWidth and DefaultHeight size the frame buffer when the
	// remote has not reported a geometry.
	DefaultWidth  int
	DefaultHeight int

	// HistoryLimit is the number of timestamped screenshots kept per
	// target.
	HistoryLimit int

	// JPEGQuality is the screenshot encoding quality.
	JPEGQuality int

	// LatestInterval is the minimum spacing between refreshes of the
	// latest artifact driven by incoming frame updates.
	LatestInterval time.Duration
}

// DefaultOptions returns the standard parameters.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:       10 * time.Second,
		FirstFrameTimeout:    10 * time.Second,
		FrameUpdateTimeout:   5 * time.Second,
		MaxUpdateRetries:     3,
		ReconnectDelay:       2 * time.Second,
		MaxReconnectAttempts: 5,
		DefaultWidth:         1280,
		DefaultHeight:        720,
		HistoryLimit:         100,
		JPEGQuality:          screenshot.DefaultQuality,
		LatestInterval:       time.Second,
	}
}

func (options Options) withDefaults() Options {
	defaults := DefaultOptions()
	if options.ConnectTimeout <= 0 {
		options.ConnectTimeout = defaults.ConnectTimeout
	}
	if options.FirstFrameTimeout <= 0 {
		options.FirstFrameTimeout = defaults.FirstFrameTimeout
	}
	if options.FrameUpdateTimeout <= 0 {
		options.FrameUpdateTimeout = defaults.FrameUpdateTimeout
	}
	if options.MaxUpdateRetries <= 0 {
		options.MaxUpdateRetries = defaults.MaxUpdateRetries
	}
	if options.ReconnectDelay <= 0 {
		options.ReconnectDelay = defaults.ReconnectDelay
	}
	if options.MaxReconnectAttempts <= 0 {
		options.MaxReconnectAttempts = defaults.MaxReconnectAttempts
	}
	if options.DefaultWidth <= 0 || options.DefaultHeight <= 0 {
		options.DefaultWidth, options.DefaultHeight = defaults.DefaultWidth, defaults.DefaultHeight
	}
	if options.HistoryLimit <= 0 {
		options.HistoryLimit = defaults.HistoryLimit
	}
	if options.JPEGQuality <= 0 || options.JPEGQuality > 100 {
		options.JPEGQuality = defaults.JPEGQuality
	}
	return options
}

// Resolver maps a target id to the endpoint serving it.
type Resolver func(id string) (rfb.Endpoint, error)

// StaticResolver serves every id from fallback unless overrides has an
// entry for it.
func StaticResolver(fallback rfb.Endpoint, overrides map[string]rfb.Endpoint) Resolver {
	return func(id string) (rfb.Endpoint, error) {
		if endpoint, ok := overrides[id]; ok {
			return endpoint, nil
		}
		if fallback.Host == "" {
			return rfb.Endpoint{}, fmt.Errorf("desktop: no endpoint configured for %q", id)
		}
		return fallback, nil
	}
}

// Config configures a Manager.
type Config struct {
	Dialer   rfb.Dialer
	Resolve  Resolver
	Store    *screenshot.Store
	Executor *action.Executor

	// Clock drives every timeout and delay. Nil uses the real clock.
	Clock  clock.Clock
	Logger *slog.Logger

	Options Options
}

// Manager is the registry of sessions.
type Manager struct {
	dialer   rfb.Dialer
	resolve  Resolver
	store    *screenshot.Store
	executor *action.Executor
	clock    clock.Clock
	logger   *slog.Logger
	options  Options

	// lifetime bounds background reconnects; CloseAll cancels it.
	lifetime context.Context
	shutdown context.CancelFunc
	workers  sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns a Manager. Dialer, Resolve, and Store are
// required.
func NewManager(config Config) (*Manager, error) {
	if config.Dialer == nil {
		return nil, errors.New("desktop: Dialer is required")
	}
	if config.Resolve == nil {
		return nil, errors.New("desktop: Resolve is required")
	}
	if config.Store == nil {
		return nil, errors.New("desktop: Store is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Executor == nil {
		config.Executor = action.NewExecutor(action.ExecutorConfig{Clock: config.Clock, Logger: config.Logger})
	}

	lifetime, shutdown := context.WithCancel(context.Background())
	return &Manager{
		dialer:   config.Dialer,
		resolve:  config.Resolve,
		store:    config.Store,
		executor: config.Executor,
		clock:    config.Clock,
		logger:   config.Logger,
		options:  config.Options.withDefaults(),
		lifetime: lifetime,
		shutdown: shutdown,
		sessions: make(map[string]*Session),
	}, nil
}

// Status returns the state of the session for id, or
// StatusDisconnected if there is none.
func (manager *Manager) Status(id string) Status {
	session := manager.lookup(id)
	if session == nil {
		return StatusDisconnected
	}
	return session.Status()
}

// Session returns the session for id, or nil.
func (manager *Manager) Session(id string) *Session { return manager.lookup(id) }

// IDs returns the ids of all sessions, sorted.
func (manager *Manager) IDs() []string {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	ids := make([]string, 0, len(manager.sessions))
	for id := range manager.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (manager *Manager) lookup(id string) *Session {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	return manager.sessions[id]
}

func (manager *Manager) sessionFor(id string) *Session {
	manager.mu.Lock()
	defer manager.mu.Unlock()
	session, ok := manager.sessions[id]
	if !ok {
		session = &Session{id: id, status: StatusDisconnected}
		manager.sessions[id] = session
	}
	return session
}

// EnsureConnection returns a connected session for id, connecting if
// needed. Repeated calls on a connected session return the same
// session and connection without dialing.
func (manager *Manager) EnsureConnection(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, errors.New("desktop: empty target id")
	}
	session := manager.sessionFor(id)

	session.connectMu.Lock()
	defer session.connectMu.Unlock()

	if session.Status() == StatusConnected {
		return session, nil
	}
	if err := manager.connectWithRetry(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// connectWithRetry runs the connect state machine until it succeeds or
// MaxReconnectAttempts attempts have failed. The caller holds
// session.connectMu. The attempt counter resets on success and when
// the loop gives up, so the next explicit call starts a fresh budget.
func (manager *Manager) connectWithRetry(ctx context.Context, session *Session) error {
	maxAttempts := manager.options.MaxReconnectAttempts
	var lastErr error
	for {
		if session.isClosed() {
			return ErrSessionClosed
		}

		err := manager.connect(ctx, session)
		if err == nil {
			session.mu.Lock()
			session.reconnectAttempts = 0
			session.mu.Unlock()
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			session.setStatus(StatusDisconnected)
			return fmt.Errorf("desktop: connecting %s: %w", session.id, ctxErr)
		}
		if errors.Is(err, ErrSessionClosed) {
			return err
		}
		lastErr = err

		session.mu.Lock()
		session.reconnectAttempts++
		attempts := session.reconnectAttempts
		session.mu.Unlock()

		manager.logger.Warn("remote desktop connect attempt failed",
			"target_id", session.id,
			"attempt", attempts,
			"max_attempts", maxAttempts,
			"error", err,
		)
		if attempts >= maxAttempts {
			break
		}
		if err := clock.SleepContext(ctx, manager.clock, manager.options.ReconnectDelay); err != nil {
			session.setStatus(StatusDisconnected)
			return fmt.Errorf("desktop: connecting %s: %w", session.id, err)
		}
	}

	session.mu.Lock()
	attempts := session.reconnectAttempts
	session.reconnectAttempts = 0
	session.status = StatusDisconnected
	session.mu.Unlock()
	return &ConnectionError{ID: session.id, Attempts: attempts, Err: lastErr}
}

// connect makes one attempt: tear down, dial, attach, await the first
// frame.
func (manager *Manager) connect(ctx context.Context, session *Session) error {
	manager.teardown(session)
	session.setStatus(StatusConnecting)

	endpoint, err := manager.resolve(session.id)
	if err != nil {
		session.setStatus(StatusError)
		return err
	}

	dialContext, cancel := context.WithTimeout(ctx, manager.options.ConnectTimeout)
	conn, err := manager.dialer.Dial(dialContext, endpoint)
	cancel()
	if err != nil {
		session.setStatus(StatusError)
		return err
	}

	if err := manager.attach(session, conn); err != nil {
		return err
	}
	manager.logger.Info("remote desktop connected",
		"target_id", session.id,
		"endpoint", endpoint.Address(),
	)

	if !manager.awaitFirstFrame(ctx, session, conn) {
		manager.logger.Info("no first frame before timeout; later captures will request one",
			"target_id", session.id,
			"timeout", manager.options.FirstFrameTimeout,
		)
	}
	return nil
}

// attach installs conn on the session, sizes the frame buffer, and
// starts the watcher that follows frame updates and disconnects.
func (manager *Manager) attach(session *Session, conn rfb.Conn) error {
	watch := conn.Subscribe(rfb.EventFrameUpdated, rfb.EventError, rfb.EventDisconnect)

	width, height := conn.Size()
	if width <= 0 || height <= 0 {
		width, height = manager.options.DefaultWidth, manager.options.DefaultHeight
	}

	session.mu.Lock()
	if session.closed {
		session.mu.Unlock()
		watch.Cancel()
		if err := conn.Close(); err != nil {
			manager.logger.Warn("closing connection of closed session", "target_id", session.id, "error", err)
		}
		return ErrSessionClosed
	}
	session.conn = conn
	session.watch = watch
	session.status = StatusConnected
	if session.frame == nil {
		session.frame = NewFrameBuffer(width, height)
	} else if session.frame.Width != width || session.frame.Height != height {
		session.frame = NewFrameBuffer(width, height)
	}
	session.mu.Unlock()

	manager.workers.Add(1)
	go func() {
		defer manager.workers.Done()
		manager.watch(session, conn, watch)
	}()
	return nil
}

// teardown closes the session's current connection, if any. Close
// errors are logged.
func (manager *Manager) teardown(session *Session) {
	conn, watch := session.detach()
	if watch != nil {
		watch.Cancel()
	}
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		manager.logger.Warn("closing previous connection", "target_id", session.id, "error", err)
	}
}

// watch follows one connection's notifications until its subscription
// is cancelled or the connection drops.
func (manager *Manager) watch(session *Session, conn rfb.Conn, watch *rfb.Subscription) {
	for event := range watch.C {
		switch event.Kind {
		case rfb.EventFrameUpdated:
			if manager.absorbFrame(session, conn) {
				manager.refreshLatest(session)
			}
		case rfb.EventError:
			manager.logger.Warn("remote desktop connection error", "target_id", session.id, "error", event.Err)
			session.mu.Lock()
			if session.conn == conn {
				session.status = StatusError
			}
			session.mu.Unlock()
		case rfb.EventDisconnect:
			manager.handleDisconnect(session, conn, event.Err)
			return
		}
	}
}

// handleDisconnect starts the bounded reconnect loop for an unexpected
// disconnect of the session's current connection.
func (manager *Manager) handleDisconnect(session *Session, conn rfb.Conn, cause error) {
	session.mu.Lock()
	current := session.conn == conn && !session.closed
	if current {
		session.status = StatusDisconnected
	}
	session.mu.Unlock()
	if !current {
		return
	}

	manager.logger.Warn("remote desktop disconnected; reconnecting",
		"target_id", session.id,
		"error", cause,
	)

	session.connectMu.Lock()
	defer session.connectMu.Unlock()
	if session.isClosed() || session.Status() == StatusConnected {
		return
	}
	if err := manager.connectWithRetry(manager.lifetime, session); err != nil {
		manager.logger.Error("remote desktop reconnect gave up",
			"target_id", session.id,
			"error", err,
		)
	}
}

// absorbFrame copies conn's frame into the session buffer if conn is
// still the session's connection.
func (manager *Manager) absorbFrame(session *Session, conn rfb.Conn) bool {
	frame := conn.Framebuffer()
	now := manager.clock.Now()

	session.mu.Lock()
	defer session.mu.Unlock()
	if session.conn != conn || session.frame == nil {
		return false
	}
	if session.frame.Update(frame) {
		manager.logger.Info("remote desktop geometry changed",
			"target_id", session.id,
			"width", frame.Width,
			"height", frame.Height,
		)
	}
	session.lastFrameUpdate = now
	return true
}

// refreshLatest rewrites the latest artifact from the frame buffer, at
// most once per LatestInterval.
func (manager *Manager) refreshLatest(session *Session) {
	interval := manager.options.LatestInterval
	if interval <= 0 {
		return
	}
	now := manager.clock.Now()

	session.mu.Lock()
	if session.frame == nil || now.Sub(session.lastLatestWrite) < interval {
		session.mu.Unlock()
		return
	}
	session.lastLatestWrite = now
	snapshot := session.frame.Snapshot()
	session.mu.Unlock()

	if _, err := manager.write(session.id, snapshot, now, false); err != nil {
		manager.logger.Warn("refreshing latest screenshot", "target_id", session.id, "error", err)
	}
}

// awaitFirstFrame requests a full frame and waits for it under
// FirstFrameTimeout.
func (manager *Manager) awaitFirstFrame(ctx context.Context, session *Session, conn rfb.Conn) bool {
	width, height := manager.geometry(session, conn)
	event, timedOut, err := manager.await(ctx, conn, manager.options.FirstFrameTimeout,
		func() error { return conn.RequestFramebufferUpdate(false, 0, 0, width, height) },
		rfb.EventFirstFrame, rfb.EventFrameUpdated, rfb.EventError,
	)
	if err != nil || timedOut || event.Kind == rfb.EventError {
		return false
	}
	manager.absorbFrame(session, conn)
	return true
}

// RequestFrameUpdate asks the remote for a full frame and waits until
// it has been copied into the session's frame buffer.
func (manager *Manager) RequestFrameUpdate(ctx context.Context, id string) error {
	session := manager.lookup(id)
	if session == nil {
		return ErrNotConnected
	}
	conn := session.Conn()
	if conn == nil {
		return ErrNotConnected
	}
	return manager.requestFrameUpdate(ctx, session, conn)
}

func (manager *Manager) requestFrameUpdate(ctx context.Context, session *Session, conn rfb.Conn) error {
	width, height := manager.geometry(session, conn)
	for attempt := 1; attempt <= manager.options.MaxUpdateRetries; attempt++ {
		event, timedOut, err := manager.await(ctx, conn, manager.options.FrameUpdateTimeout,
			func() error { return conn.RequestFramebufferUpdate(false, 0, 0, width, height) },
			rfb.EventFrameUpdated, rfb.EventError,
		)
		switch {
		case err != nil:
			return fmt.Errorf("desktop: frame update for %s: %w", session.id, err)
		case timedOut:
			manager.logger.Debug("frame update timed out",
				"target_id", session.id,
				"attempt", attempt,
				"max_attempts", manager.options.MaxUpdateRetries,
			)
		case event.Kind == rfb.EventError:
			return fmt.Errorf("desktop: frame update for %s: %w", session.id, event.Err)
		default:
			manager.absorbFrame(session, conn)
			return nil
		}
	}
	return fmt.Errorf("%w: %s after %d requests", ErrFrameUpdateTimeout, session.id, manager.options.MaxUpdateRetries)
}

// await subscribes to kinds, runs trigger, and waits for the first
// matching notification, the timeout, or ctx. The subscription and
// the timer are released on every path.
func (manager *Manager) await(ctx context.Context, conn rfb.Conn, timeout time.Duration, trigger func() error, kinds ...rfb.EventKind) (rfb.Event, bool, error) {
	subscription := conn.Subscribe(kinds...)
	defer subscription.Cancel()

	expired := make(chan struct{})
	timer := manager.clock.AfterFunc(timeout, func() { close(expired) })
	defer timer.Stop()

	if err := trigger(); err != nil {
		return rfb.Event{}, false, err
	}

	select {
	case event, ok := <-subscription.C:
		if !ok {
			return rfb.Event{}, false, ErrNotConnected
		}
		return event, false, nil
	case <-expired:
		return rfb.Event{}, true, nil
	case <-ctx.Done():
		return rfb.Event{}, false, ctx.Err()
	}
}

func (manager *Manager) geometry(session *Session, conn rfb.Conn) (int, int) {
	if width, height := conn.Size(); width > 0 && height > 0 {
		return width, height
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.frame != nil {
		return session.frame.Width, session.frame.Height
	}
	return manager.options.DefaultWidth, manager.options.DefaultHeight
}

// Screenshot captures the target's screen. With persistHistory it
// writes a timestamped artifact and applies retention; otherwise it
// refreshes the latest artifact. Any failure yields the placeholder.
// When the remote does not answer an update request, the last frame
// received is used if there is one.
func (manager *Manager) Screenshot(ctx context.Context, id string, persistHistory bool) screenshot.Descriptor {
	logger := manager.logger.With("target_id", id, "persist_history", persistHistory)

	session, err := manager.EnsureConnection(ctx, id)
	if err != nil {
		logger.Warn("screenshot unavailable; using placeholder", "stage", "connect", "error", err)
		return manager.store.Placeholder()
	}
	conn := session.Conn()
	if conn == nil {
		logger.Warn("screenshot unavailable; using placeholder", "stage", "connect", "error", ErrNotConnected)
		return manager.store.Placeholder()
	}

	if err := manager.requestFrameUpdate(ctx, session, conn); err != nil {
		if session.LastFrameUpdate().IsZero() {
			logger.Warn("screenshot unavailable; using placeholder", "stage", "frame_update", "error", err)
			return manager.store.Placeholder()
		}
		logger.Info("frame update failed; using cached frame", "error", err)
	}

	frame, ok := session.Frame()
	if !ok {
		logger.Warn("screenshot unavailable; using placeholder", "stage", "frame_buffer", "error", ErrSessionClosed)
		return manager.store.Placeholder()
	}

	now := manager.clock.Now()
	descriptor, err := manager.write(id, frame, now, persistHistory)
	if err != nil {
		logger.Warn("screenshot unavailable; using placeholder", "stage", "write", "error", err)
		return manager.store.Placeholder()
	}
	if !persistHistory {
		session.mu.Lock()
		session.lastLatestWrite = now
		session.mu.Unlock()
	}
	return descriptor
}

func (manager *Manager) write(id string, frame FrameBuffer, at time.Time, persistHistory bool) (screenshot.Descriptor, error) {
	data, err := screenshot.Encode(frame.Pixels, frame.Width, frame.Height, manager.options.JPEGQuality)
	if err != nil {
		return screenshot.Descriptor{}, err
	}
	if !persistHistory {
		return manager.store.WriteLatest(id, data, frame.Width, frame.Height, at)
	}

	descriptor, err := manager.store.WriteHistory(id, data, frame.Width, frame.Height, at)
	if err != nil {
		return screenshot.Descriptor{}, err
	}
	if _, err := manager.store.Cleanup(id, manager.options.HistoryLimit); err != nil {
		manager.logger.Warn("screenshot retention failed", "target_id", id, "error", err)
	}
	return descriptor, nil
}

// Execute connects if needed and performs request on the target's
// session.
func (manager *Manager) Execute(ctx context.Context, id string, request action.Request) (string, error) {
	session, err := manager.EnsureConnection(ctx, id)
	if err != nil {
		return "", err
	}
	return manager.executor.Execute(ctx, session, request)
}

// CloseSession tears down the session for id and forgets it. Every
// step runs even if an earlier one fails; failures are logged.
func (manager *Manager) CloseSession(id string) {
	manager.mu.Lock()
	session := manager.sessions[id]
	delete(manager.sessions, id)
	manager.mu.Unlock()

	if session == nil {
		return
	}
	manager.closeSession(session)
}

func (manager *Manager) closeSession(session *Session) {
	session.mu.Lock()
	session.closed = true
	conn, watch := session.conn, session.watch
	session.conn, session.watch, session.frame = nil, nil, nil
	session.status = StatusDisconnected
	session.reconnectAttempts = 0
	session.mu.Unlock()

	if watch != nil {
		watch.Cancel()
	}
	var closeErr error
	if conn != nil {
		closeErr = conn.Close()
	}

	if closeErr != nil {
		manager.logger.Warn("session closed with errors",
			"target_id", session.id,
			"had_connection", true,
			"close_error", closeErr,
		)
		return
	}
	manager.logger.Info("session closed",
		"target_id", session.id,
		"had_connection", conn != nil,
	)
}

// CloseAll closes every session, stops background reconnects, and
// waits for the per-connection watchers to exit.
func (manager *Manager) CloseAll() {
	manager.shutdown()

	manager.mu.Lock()
	sessions := make([]*Session, 0, len(manager.sessions))
	for id, session := range manager.sessions {
		sessions = append(sessions, session)
		delete(manager.sessions, id)
	}
	manager.mu.Unlock()

	for _, session := range sessions {
		manager.closeSession(session)
	}
	manager.workers.Wait()
}
