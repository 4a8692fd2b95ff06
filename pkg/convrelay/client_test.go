package convrelay

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestIsSecureEndpoint(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"wss://relay.example.com/ws/audio", true},
		{"ws://127.0.0.1:8000/ws/audio", true},
		{"ws://localhost:8000/ws/audio", true},
		{"ws://[::1]:8000/ws/audio", true},
		{"ws://127.0.0.2/ws", true},
		{"ws://relay.example.com/ws/audio", false},
		{"ws://192.168.1.10:8000/ws/audio", false},
		{"::bad", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := IsSecureEndpoint(tt.url); got != tt.want {
				t.Errorf("IsSecureEndpoint(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestClient_InsecureContext(t *testing.T) {
	c := NewClient(Config{URL: "ws://relay.example.com/ws/audio"})
	defer c.Stop()

	opened := false
	err := c.Start(context.Background(), func() (Device, error) {
		opened = true
		return newFakeDevice(48000), nil
	})
	if !errors.Is(err, ErrInsecureContext) {
		t.Fatalf("Start = %v, want ErrInsecureContext", err)
	}
	if opened {
		t.Error("device opened before the secure context check")
	}
	if got := c.Conn().State(); got != StateIdle {
		t.Errorf("State() = %v, want idle", got)
	}
}

func TestClient_AllowInsecure(t *testing.T) {
	c := NewClient(Config{URL: "ws://0.0.0.0:1/ws/audio", AllowInsecure: true})
	defer c.Stop()

	// The check passes; the dial itself fails.
	err := c.Start(context.Background(), func() (Device, error) {
		return nil, ErrNoDevice
	})
	if err == nil || errors.Is(err, ErrInsecureContext) {
		t.Errorf("Start = %v, want a dial error", err)
	}
}

func TestClient_DeviceFallback(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"no device", ErrNoDevice, "No microphone"},
		{"permission", ErrPermissionDenied, "permission denied"},
		{"other", errors.New("busy"), "busy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend(t, nil)
			obs := &fakeObserver{}
			c := NewClient(Config{URL: b.url, Observer: obs})
			defer c.Stop()

			err := c.Start(context.Background(), func() (Device, error) { return nil, tt.err })
			if err != nil {
				t.Fatalf("Start: %v", err)
			}
			waitFor(t, "client.started", func() bool { return len(b.eventNames()) == 1 })
			if got := b.event(0)["audio_enabled"]; got != false {
				t.Errorf("audio_enabled = %v, want false", got)
			}
			if c.Audio() != nil {
				t.Error("audio session started without a device")
			}

			found := false
			for _, card := range obs.cardsNamed(EventUILog) {
				if strings.Contains(card.Body.GetString("message"), tt.msg) {
					found = true
				}
			}
			if !found {
				t.Errorf("no diagnostic containing %q", tt.msg)
			}
		})
	}
}

func TestClient_StreamsAudio(t *testing.T) {
	b := newFakeBackend(t, nil)
	c := NewClient(Config{URL: b.url, BlockSize: 6})
	dev := newFakeDevice(48000)

	if err := c.Start(context.Background(), func() (Device, error) { return dev, nil }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "client.started", func() bool { return len(b.eventNames()) == 1 })
	if got := b.event(0)["audio_enabled"]; got != true {
		t.Errorf("audio_enabled = %v, want true", got)
	}

	dev.blocks <- []float32{1, 1, 1, 2, 2, 2}
	waitFor(t, "binary frame", func() bool { return len(b.binaryFrames()) == 1 })
	if got := len(b.binaryFrames()[0]); got != 8 {
		t.Errorf("frame bytes = %d, want 8", got)
	}

	c.Stop()
	c.Stop()
	if got := dev.closes.Load(); got != 1 {
		t.Errorf("device closed %d times, want 1", got)
	}
	waitFor(t, "client.stopped", func() bool { return len(b.eventNames()) == 2 })
	if got := b.eventNames()[1]; got != EventClientStopped {
		t.Errorf("last event = %q", got)
	}
}

func TestClient_RemoteCloseStopsAudio(t *testing.T) {
	b := newFakeBackend(t, nil)
	c := NewClient(Config{URL: b.url})
	defer c.Stop()
	dev := newFakeDevice(16000)

	if err := c.Start(context.Background(), func() (Device, error) { return dev, nil }); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sess := c.Audio()
	if sess == nil {
		t.Fatal("no audio session")
	}

	// Drop the connection from the client side of the wire.
	c.Conn().mu.Lock()
	sock := c.Conn().sock
	c.Conn().mu.Unlock()
	sock.conn.Close()

	select {
	case <-sess.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("audio not stopped after the connection closed")
	}
	waitFor(t, "idle", func() bool { return c.Conn().State() == StateIdle })
}

func TestClient_OverlappingStart(t *testing.T) {
	b := newFakeBackend(t, func(b *fakeBackend) {
		b.gate = make(chan struct{})
	})
	c := NewClient(Config{URL: b.url})
	defer c.Stop()

	devs := []*fakeDevice{newFakeDevice(16000), newFakeDevice(16000)}
	opened := make(chan struct{}, len(devs))
	errs := make(chan error, len(devs))
	for _, dev := range devs {
		go func() {
			errs <- c.Start(context.Background(), func() (Device, error) {
				opened <- struct{}{}
				return dev, nil
			})
		}()
	}
	for range devs {
		<-opened
	}
	b.release()
	for range devs {
		if err := <-errs; err != nil {
			t.Fatalf("Start: %v", err)
		}
	}

	var open int
	for _, dev := range devs {
		if dev.closes.Load() == 0 {
			open++
		}
	}
	if open != 1 {
		t.Errorf("%d devices left open, want 1", open)
	}
	if c.Audio() == nil {
		t.Fatal("no audio session")
	}

	c.Stop()
	for i, dev := range devs {
		if got := dev.closes.Load(); got != 1 {
			t.Errorf("device %d closed %d times, want 1", i, got)
		}
	}
}

func TestClient_Messages(t *testing.T) {
	b := newFakeBackend(t, nil)
	c := NewClient(Config{URL: b.url})
	defer c.Stop()

	if err := c.SendText("  "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("SendText(blank) = %v, want ErrEmptyMessage", err)
	}
	if err := c.SendCustom(""); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("SendCustom(empty) = %v, want ErrEmptyMessage", err)
	}
	if err := c.Ping(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Ping while idle = %v, want ErrNotOpen", err)
	}

	// Sends connect on demand.
	if err := c.SendText("hi"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := c.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	waitFor(t, "flush", func() bool { return len(b.eventNames()) == 3 })
	if err := c.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	waitFor(t, "ping", func() bool { return len(b.eventNames()) == 4 })

	want := []string{EventClientStarted, EventClientTextMessage, EventClientReset, EventClientPing}
	if got := b.eventNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("received %v, want %v", got, want)
	}
}

func TestClient_Keepalive(t *testing.T) {
	b := newFakeBackend(t, nil)
	c := NewClient(Config{URL: b.url, Keepalive: 10 * time.Millisecond})
	defer c.Stop()

	if err := c.Start(context.Background(), nil); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "keepalive ping", func() bool {
		for _, name := range b.eventNames() {
			if name == EventClientPing {
				return true
			}
		}
		return false
	})
}

func TestClient_SessionID(t *testing.T) {
	a, b := NewClient(Config{}), NewClient(Config{})
	if a.SessionID() == "" || a.SessionID() == b.SessionID() {
		t.Errorf("session ids %q and %q", a.SessionID(), b.SessionID())
	}
	if got := a.Conn().URL(); got != DefaultURL {
		t.Errorf("URL() = %q, want %q", got, DefaultURL)
	}
}
