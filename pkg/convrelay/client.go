package convrelay

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/convrelay/pkg/audio/resampler"
)

// Config configures a Client.
type Config struct {
	// URL is the relay endpoint. Defaults to DefaultURL.
	URL string

	// Header is sent with the websocket handshake.
	Header http.Header

	// Observer receives everything the client shows. Defaults to
	// NopObserver.
	Observer Observer

	// BlockSize is the number of source frames per audio block.
	// Defaults to DefaultBlockSize.
	BlockSize int

	// Resampler selects the resampler. Defaults to resampler.ModeBox.
	Resampler resampler.Mode

	// AllowInsecure permits audio capture over a plain ws:// endpoint on a
	// non-loopback host.
	AllowInsecure bool

	// Keepalive is the ping interval while connected. Zero disables it.
	Keepalive time.Duration

	// HandshakeTimeout bounds each connection attempt.
	HandshakeTimeout time.Duration

	// Tap, if set, sees every frame.
	Tap FrameTap

	// SessionID names this client locally. Defaults to a random UUID.
	SessionID string
}

// DeviceOpener opens the capture device for a session.
type DeviceOpener func() (Device, error)

// Client is a conversation relay client: one connection, an optional
// audio capture session and the assistant transcript.
type Client struct {
	cfg       Config
	obs       Observer
	router    *Router
	conn      *Manager
	sessionID string

	mu        sync.Mutex
	audio     *AudioSession
	keepalive chan struct{}
}

// NewClient creates an idle client. Nothing is connected until Start or a
// send.
func NewClient(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	obs := newLockedObserver(cfg.Observer)
	c := &Client{
		cfg:       cfg,
		obs:       obs,
		router:    NewRouter(obs),
		sessionID: cfg.SessionID,
	}
	c.conn = NewManager(ManagerConfig{
		URL:              cfg.URL,
		Header:           cfg.Header,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Observer:         obs,
		Handler:          c.router.HandleFrame,
		OnClose:          func(error) { c.stopAudio() },
		Tap:              cfg.Tap,
	})
	return c
}

// SessionID is the local id of this client, used to name recordings.
func (c *Client) SessionID() string { return c.sessionID }

// Router returns the inbound router.
func (c *Client) Router() *Router { return c.router }

// Conn returns the connection manager.
func (c *Client) Conn() *Manager { return c.conn }

// Start connects and, when open is non-nil, streams audio from the device
// it returns. Audio over an insecure endpoint fails with ErrInsecureContext
// before the device or the socket is touched. A device that cannot be
// opened is reported and the session continues without audio.
//
// ctx bounds the wait for the connection only.
func (c *Client) Start(ctx context.Context, open DeviceOpener) error {
	if open != nil && !c.cfg.AllowInsecure && !IsSecureEndpoint(c.cfg.URL) {
		c.obs.Event(LogCard(ErrInsecureContext.Error()))
		return ErrInsecureContext
	}

	c.stopAudio()

	var dev Device
	var rs resampler.Resampler
	if open != nil {
		d, err := open()
		if err != nil {
			slog.Warn("convrelay: open audio device", "error", err)
			c.obs.Event(LogCard(DeviceErrorMessage(err)))
		} else {
			r, err := resampler.New(c.cfg.Resampler, d.SampleRate(), resampler.TargetRate)
			if err != nil {
				d.Close()
				c.obs.Event(LogCard(fmt.Sprintf("Resampler unavailable (%v); continuing without audio.", err)))
			} else {
				dev, rs = d, r
			}
		}
	}

	var decl *AudioFormat
	if dev != nil {
		decl = WireAudioFormat()
	}
	c.conn.SetAudio(decl)

	if c.conn.State() == StateOpen {
		// Re-declare the audio state on the live session.
		if err := c.conn.SendIfOpen(StartedMessage(decl)); err != nil {
			slog.Debug("convrelay: re-send client.started", "error", err)
		}
	} else if err := c.conn.EnsureConnected(ctx); err != nil {
		if dev != nil {
			dev.Close()
		}
		return err
	}

	if dev != nil {
		sess, err := StartAudio(dev, c.cfg.BlockSize, rs, c.conn)
		if err != nil {
			dev.Close()
			c.obs.Event(LogCard(fmt.Sprintf("Audio capture failed: %v", err)))
		} else {
			// An overlapping Start may have installed a session since
			// stopAudio ran; the newest one wins.
			c.mu.Lock()
			prev := c.audio
			c.audio = sess
			c.mu.Unlock()
			if prev != nil {
				prev.Stop()
			}
			c.obs.Event(LogCard(fmt.Sprintf("Microphone streaming (%d Hz -> %d Hz)", dev.SampleRate(), resampler.TargetRate)))
		}
	}

	c.startKeepalive()
	return nil
}

// Stop stops audio capture, then closes the connection and drops queued
// messages. Stop is idempotent.
func (c *Client) Stop() {
	c.stopKeepalive()
	c.stopAudio()
	c.conn.Stop()
}

// Close is Stop.
func (c *Client) Close() error {
	c.Stop()
	return nil
}

// SendText sends a client.text.message, connecting if needed.
func (c *Client) SendText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	return c.conn.Send(TextMessage(text))
}

// SendCustom sends a client.custom.message, connecting if needed.
func (c *Client) SendCustom(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	return c.conn.Send(CustomMessage(text))
}

// Reset asks the server to clear the conversation history.
func (c *Client) Reset() error {
	return c.conn.Send(Control{Event: EventClientReset})
}

// Ping sends a ping when connected.
func (c *Client) Ping() error {
	return c.conn.SendIfOpen(Control{Event: EventClientPing})
}

// Transcript returns the visible assistant transcript.
func (c *Client) Transcript() string {
	return c.router.Transcript()
}

// Audio returns the active capture session, or nil.
func (c *Client) Audio() *AudioSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audio
}

func (c *Client) stopAudio() {
	c.mu.Lock()
	sess := c.audio
	c.audio = nil
	c.mu.Unlock()
	if sess != nil {
		sess.Stop()
	}
}

func (c *Client) startKeepalive() {
	if c.cfg.Keepalive <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keepalive != nil {
		return
	}
	stop := make(chan struct{})
	c.keepalive = stop
	go func() {
		ticker := time.NewTicker(c.cfg.Keepalive)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := c.Ping(); err != nil {
					slog.Debug("convrelay: keepalive ping", "error", err)
				}
			}
		}
	}()
}

func (c *Client) stopKeepalive() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keepalive != nil {
		close(c.keepalive)
		c.keepalive = nil
	}
}

// IsSecureEndpoint reports whether audio may be captured for raw. That is
// the case for wss:// endpoints and for loopback hosts.
func IsSecureEndpoint(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "wss", "https":
		return true
	}
	host := u.Hostname()
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
