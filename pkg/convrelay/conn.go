package convrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/convrelay/pkg/audio/pcm"
)

// DefaultURL is the relay endpoint used when none is configured.
const DefaultURL = "ws://127.0.0.1:8000/ws/audio"

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
)

// ConnState is the state of the relay connection.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("ConnState(%d)", int(s))
}

// Direction tells a FrameTap which way a frame travelled.
type Direction int

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "out"
	}
	return "in"
}

// FrameTap observes every frame on the wire. It is called with the socket's
// read or write lock held and must not block.
type FrameTap interface {
	Frame(dir Direction, messageType int, data []byte)
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// URL is the relay endpoint. Defaults to DefaultURL.
	URL string

	// Header is sent with the websocket handshake.
	Header http.Header

	// HandshakeTimeout bounds a connection attempt. Defaults to 10s.
	HandshakeTimeout time.Duration

	// Observer receives status lines and cards.
	Observer Observer

	// Handler receives inbound frames in order, on the reader goroutine.
	Handler func(messageType int, data []byte)

	// OnClose is called after the server closes an open connection or the
	// connection fails.
	OnClose func(err error)

	// Tap, if set, sees every frame.
	Tap FrameTap
}

// Stats are transmission counters.
type Stats struct {
	AudioFrames  int64
	AudioBytes   int64
	AudioDropped int64
	Controls     int64
}

// attempt is one connection attempt. Every caller of EnsureConnected that
// arrives while it is in flight waits on done and gets the same err.
type attempt struct {
	done   chan struct{}
	err    error
	cancel context.CancelFunc

	// prev is an abandoned attempt that must finish before this one dials.
	prev *attempt

	// abandoned is set by Stop. Guarded by Manager.mu.
	abandoned bool
}

// socket is one open connection. Writes are serialized by writeMu.
type socket struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Manager owns the single relay connection and the queue of control
// messages waiting for it.
type Manager struct {
	url       string
	header    http.Header
	dialer    *websocket.Dialer
	netDialer *net.Dialer
	obs       Observer
	handler   func(int, []byte)
	onClose   func(error)
	tap       FrameTap
	timeout   time.Duration
	audioFmt  pcm.Format

	mu       sync.Mutex
	state    ConnState
	sock     *socket
	inflight *attempt
	draining *attempt
	pending  []Control
	audio    *AudioFormat

	audioFrames  atomic.Int64
	audioBytes   atomic.Int64
	audioDropped atomic.Int64
	controls     atomic.Int64
}

// NewManager creates an idle Manager.
func NewManager(cfg ManagerConfig) *Manager {
	url := cfg.URL
	if url == "" {
		url = DefaultURL
	}
	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	handler := cfg.Handler
	if handler == nil {
		handler = func(int, []byte) {}
	}
	obs := cfg.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	return &Manager{
		url:       url,
		header:    cfg.Header,
		dialer:    &websocket.Dialer{HandshakeTimeout: timeout, Proxy: http.ProxyFromEnvironment},
		netDialer: &net.Dialer{},
		obs:       obs,
		handler:   handler,
		onClose:   cfg.OnClose,
		tap:       cfg.Tap,
		timeout:   timeout,
		audioFmt:  pcm.F32Mono16K,
	}
}

// URL returns the endpoint.
func (m *Manager) URL() string { return m.url }

// State returns the current connection state.
func (m *Manager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PendingLen returns the number of queued control messages.
func (m *Manager) PendingLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Stats returns the transmission counters.
func (m *Manager) Stats() Stats {
	return Stats{
		AudioFrames:  m.audioFrames.Load(),
		AudioBytes:   m.audioBytes.Load(),
		AudioDropped: m.audioDropped.Load(),
		Controls:     m.controls.Load(),
	}
}

// SetAudio sets the audio declaration sent in client.started on the next
// handshake. A nil format declares no audio.
func (m *Manager) SetAudio(format *AudioFormat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audio = format
}

// EnsureConnected returns nil once the connection is open. It returns
// immediately when already open and otherwise joins the attempt in flight,
// starting one if there is none. ctx bounds the wait only; an attempt keeps
// going when a waiter gives up.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateOpen {
		m.mu.Unlock()
		return nil
	}
	a, start := m.attemptLocked()
	m.mu.Unlock()
	if start != nil {
		start()
	}

	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// attemptLocked returns the attempt in flight. When there is none it
// creates one and returns the function that launches it, to be called
// after m.mu is released.
func (m *Manager) attemptLocked() (*attempt, func()) {
	if a := m.inflight; a != nil {
		return a, nil
	}
	dialCtx, cancel := context.WithTimeout(context.Background(), m.timeout)
	a := &attempt{
		done:   make(chan struct{}),
		cancel: cancel,
		prev:   m.draining,
	}
	m.inflight = a
	m.state = StateConnecting
	return a, func() {
		m.obs.Status("Connecting...")
		m.obs.Event(NewCard(EventUIConnecting, Payload{"url": m.url}))
		go m.connect(dialCtx, a)
	}
}

// connect runs one attempt to completion.
func (m *Manager) connect(ctx context.Context, a *attempt) {
	defer a.cancel()
	if a.prev != nil {
		<-a.prev.done
	}

	// The websocket handshake does not watch ctx once TCP is up, so the dial
	// hook closes the conn when the attempt's ctx ends. The dialer's own ctx
	// is cancelled as DialContext returns and cannot be used for this.
	// release detaches the hook on success.
	var release func() bool
	dialer := *m.dialer
	dialer.NetDialContext = func(dctx context.Context, network, addr string) (net.Conn, error) {
		c, err := m.netDialer.DialContext(dctx, network, addr)
		if err != nil {
			return nil, err
		}
		release = context.AfterFunc(ctx, func() { c.Close() })
		return c, nil
	}

	conn, resp, err := dialer.DialContext(ctx, m.url, m.header)
	if release != nil && !release() && err == nil {
		conn.Close()
		conn, err = nil, ctx.Err()
	}
	if err != nil {
		cerr := &Error{Op: "dial", URL: m.url, Err: err}
		if resp != nil {
			cerr.StatusCode = resp.StatusCode
		}
		m.failed(a, cerr)
		return
	}

	m.mu.Lock()
	if m.draining == a {
		m.draining = nil
	}
	if a.abandoned {
		m.mu.Unlock()
		conn.Close()
		a.err = ErrStopped
		close(a.done)
		return
	}
	sock := &socket{conn: conn}
	// Hold the write lock across the flush so that sends racing with it
	// queue up behind the pending messages.
	sock.writeMu.Lock()
	m.sock = sock
	m.state = StateOpen
	m.inflight = nil
	hello := StartedMessage(m.audio)
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	slog.Info("convrelay: connected", "url", m.url)
	m.obs.Status("Connected")
	m.obs.Event(NewCard(EventUIConnected, Payload{"url": m.url}))

	go m.readLoop(sock)

	if err := m.writeControlLocked(sock, hello); err != nil {
		slog.Warn("convrelay: send client.started failed", "error", err)
	}
	var sent []Control
	for _, c := range pending {
		if err := m.writeControlLocked(sock, c); err != nil {
			slog.Warn("convrelay: flush failed", "event", c.Event, "error", err)
			continue
		}
		sent = append(sent, c)
	}
	sock.writeMu.Unlock()

	for _, c := range sent {
		m.confirm(c)
	}
	close(a.done)
}

// failed finishes an attempt whose dial failed.
func (m *Manager) failed(a *attempt, err error) {
	m.mu.Lock()
	if m.draining == a {
		m.draining = nil
	}
	abandoned := a.abandoned
	if !abandoned {
		m.inflight = nil
		m.state = StateClosed
	}
	m.mu.Unlock()

	if abandoned {
		a.err = ErrStopped
		close(a.done)
		return
	}

	slog.Warn("convrelay: connect failed", "url", m.url, "error", err)
	a.err = err
	m.obs.Status("Disconnected")
	m.obs.Event(LogCard(fmt.Sprintf("WebSocket connection failed: %v", err)))
	close(a.done)
}

// Send transmits c when the connection is open. Otherwise c is queued and a
// connection attempt is started in the background; the queue is flushed in
// order once the connection opens.
func (m *Manager) Send(c Control) error {
	m.mu.Lock()
	if m.state == StateOpen && m.sock != nil {
		sock := m.sock
		m.mu.Unlock()
		if err := m.writeControl(sock, c); err != nil {
			m.obs.Event(LogCard(fmt.Sprintf("Send %s failed: %v", c.Event, err)))
			return err
		}
		m.confirm(c)
		return nil
	}
	m.pending = append(m.pending, c)
	_, start := m.attemptLocked()
	m.mu.Unlock()
	if start != nil {
		start()
	}
	return nil
}

// SendIfOpen transmits c only when the connection is open.
func (m *Manager) SendIfOpen(c Control) error {
	m.mu.Lock()
	sock := m.sock
	open := m.state == StateOpen && sock != nil
	m.mu.Unlock()
	if !open {
		return ErrNotOpen
	}
	return m.writeControl(sock, c)
}

// Write transmits an audio chunk as one binary frame. Chunks written while
// the connection is not open are dropped with ErrNotOpen.
func (m *Manager) Write(chunk pcm.Chunk) error {
	if chunk.Format() != m.audioFmt {
		return fmt.Errorf("convrelay: audio chunk is %v, want %v", chunk.Format(), m.audioFmt)
	}
	if n := chunk.Len(); n%int64(m.audioFmt.FrameBytes()) != 0 {
		return fmt.Errorf("convrelay: audio chunk of %d bytes is not whole frames", n)
	}
	m.mu.Lock()
	sock := m.sock
	open := m.state == StateOpen && sock != nil
	m.mu.Unlock()
	if !open {
		m.audioDropped.Add(1)
		return ErrNotOpen
	}

	sock.writeMu.Lock()
	defer sock.writeMu.Unlock()
	var data []byte
	if dc, ok := chunk.(*pcm.DataChunk); ok {
		data = dc.Data
	} else {
		var buf bytes.Buffer
		if _, err := chunk.WriteTo(&buf); err != nil {
			return err
		}
		data = buf.Bytes()
	}
	if err := m.writeLocked(sock, websocket.BinaryMessage, data); err != nil {
		return &Error{Op: "write", URL: m.url, Err: err}
	}
	m.audioFrames.Add(1)
	m.audioBytes.Add(int64(len(data)))
	return nil
}

// Stop closes the connection and discards queued messages without sending
// them. An open connection gets a best-effort client.stopped first. A
// connection attempt in flight is aborted and its waiters get ErrStopped.
// Stop is idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	sock := m.sock
	m.sock = nil
	if a := m.inflight; a != nil {
		a.abandoned = true
		a.cancel()
		m.draining = a
		m.inflight = nil
	}
	m.state = StateIdle
	m.pending = nil
	m.mu.Unlock()

	if sock == nil {
		return
	}
	if err := m.writeControl(sock, StoppedMessage()); err != nil {
		slog.Debug("convrelay: send client.stopped failed", "error", err)
	}
	sock.close()
	m.obs.Status("Stopped")
	m.obs.Event(NewCard(EventUIDisconnected, Payload{"reason": "stopped"}))
}

func (m *Manager) readLoop(sock *socket) {
	for {
		mt, data, err := sock.conn.ReadMessage()
		if err != nil {
			m.closed(sock, err)
			return
		}

		if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			msgStr := string(data)
			if mt == websocket.BinaryMessage {
				msgStr = "<binary>"
			} else if len(msgStr) > 1000 {
				msgStr = msgStr[:1000] + "..."
			}
			slog.Debug("received message", "len", len(data), "content", msgStr)
		}
		if m.tap != nil {
			m.tap.Frame(Inbound, mt, data)
		}
		m.handler(mt, data)
	}
}

// closed handles the end of the reader. A socket already detached by Stop
// is ignored.
func (m *Manager) closed(sock *socket, err error) {
	m.mu.Lock()
	if m.sock != sock {
		m.mu.Unlock()
		return
	}
	m.sock = nil
	m.state = StateIdle
	m.mu.Unlock()

	sock.conn.Close()

	payload := Payload{}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		payload["code"] = ce.Code
		payload["reason"] = ce.Text
	} else {
		payload["reason"] = err.Error()
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		slog.Info("convrelay: closed by server", "url", m.url)
	} else {
		slog.Warn("convrelay: connection error", "url", m.url, "error", err)
		m.obs.Event(LogCard(fmt.Sprintf("WebSocket error: %v", err)))
	}
	m.obs.Status("Disconnected")
	m.obs.Event(NewCard(EventUIDisconnected, payload))
	if m.onClose != nil {
		m.onClose(err)
	}
}

func (m *Manager) writeControl(sock *socket, c Control) error {
	sock.writeMu.Lock()
	defer sock.writeMu.Unlock()
	return m.writeControlLocked(sock, c)
}

func (m *Manager) writeControlLocked(sock *socket, c Control) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("convrelay: marshal %s: %w", c.Event, err)
	}

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		str := string(data)
		if len(str) > 500 {
			str = str[:500] + "..."
		}
		slog.Debug("sending event", "content", str)
	}

	if err := m.writeLocked(sock, websocket.TextMessage, data); err != nil {
		return &Error{Op: "write", URL: m.url, Err: err}
	}
	m.controls.Add(1)
	return nil
}

func (m *Manager) writeLocked(sock *socket, mt int, data []byte) error {
	sock.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := sock.conn.WriteMessage(mt, data); err != nil {
		return err
	}
	if m.tap != nil {
		m.tap.Frame(Outbound, mt, data)
	}
	return nil
}

// confirm emits the local confirmation for a transmitted message.
func (m *Manager) confirm(c Control) {
	name := c.SentEvent()
	if name == "" {
		return
	}
	payload := Payload{"event": name, "text": c.Text}
	if c.Event == EventClientCustomMessage {
		m.obs.Console(payload)
	}
	m.obs.Event(NewCard(name, payload))
}

// close sends a normal closure and closes the socket.
func (s *socket) close() {
	s.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.writeMu.Unlock()
	s.conn.Close()
}
