package convrelay

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/convrelay/pkg/audio/pcm"
)

func TestManager_ConcurrentEnsureConnected(t *testing.T) {
	b := newFakeBackend(t, func(b *fakeBackend) {
		b.gate = make(chan struct{})
	})
	m := NewManager(ManagerConfig{URL: b.url})
	defer m.Stop()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.EnsureConnected(context.Background())
		}(i)
	}

	waitFor(t, "handshake request", func() bool { return b.requests.Load() == 1 })
	if got := m.State(); got != StateConnecting {
		t.Errorf("State() = %v, want connecting", got)
	}
	time.Sleep(20 * time.Millisecond)
	b.release()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("EnsureConnected #%d: %v", i, err)
		}
	}
	if got := b.requests.Load(); got != 1 {
		t.Errorf("handshakes = %d, want 1", got)
	}
	if got := m.State(); got != StateOpen {
		t.Errorf("State() = %v, want open", got)
	}

	// Already open: returns at once without a new handshake.
	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected: %v", err)
	}
	if got := b.requests.Load(); got != 1 {
		t.Errorf("handshakes = %d, want 1", got)
	}
}

func TestManager_QueuedFlush(t *testing.T) {
	b := newFakeBackend(t, func(b *fakeBackend) {
		b.gate = make(chan struct{})
	})
	obs := &fakeObserver{}
	m := NewManager(ManagerConfig{URL: b.url, Observer: obs})
	defer m.Stop()

	if err := m.Send(CustomMessage("first")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := m.Send(TextMessage("second")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := m.PendingLen(); got != 2 {
		t.Errorf("PendingLen() = %d, want 2", got)
	}

	b.release()
	waitFor(t, "flush", func() bool { return len(b.eventNames()) == 3 })

	want := []string{EventClientStarted, EventClientCustomMessage, EventClientTextMessage}
	if got := b.eventNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("received %v, want %v", got, want)
	}
	if got := b.event(1).GetString("text"); got != "first" {
		t.Errorf("first flushed text = %q", got)
	}
	if got := b.event(0)["audio"]; got != nil {
		t.Errorf("client.started audio = %v, want null", got)
	}
	if got := m.PendingLen(); got != 0 {
		t.Errorf("PendingLen() = %d after flush", got)
	}

	// A later send goes straight out; nothing is flushed twice.
	if err := m.Send(TextMessage("third")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "third", func() bool { return len(b.eventNames()) == 4 })
	want = append(want, EventClientTextMessage)
	if got := b.eventNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("received %v, want %v", got, want)
	}

	waitFor(t, "confirmations", func() bool {
		return len(obs.cardsNamed("client.custom.message.sent")) == 1 &&
			len(obs.cardsNamed("client.text.message.sent")) == 2
	})
	if obs.consoleLen() != 1 {
		t.Errorf("console entries = %d, want 1", obs.consoleLen())
	}
}

func TestManager_AudioDeclaration(t *testing.T) {
	b := newFakeBackend(t, nil)
	m := NewManager(ManagerConfig{URL: b.url})
	defer m.Stop()
	m.SetAudio(WireAudioFormat())

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected: %v", err)
	}
	waitFor(t, "client.started", func() bool { return len(b.eventNames()) == 1 })

	started := b.event(0)
	if started["audio_enabled"] != true {
		t.Errorf("audio_enabled = %v", started["audio_enabled"])
	}
	audio, ok := started["audio"].(map[string]any)
	if !ok {
		t.Fatalf("audio = %#v", started["audio"])
	}
	if audio["format"] != "f32le" || audio["sample_rate"] != float64(16000) || audio["channels"] != float64(1) {
		t.Errorf("audio = %v", audio)
	}
}

func TestManager_StopTwice(t *testing.T) {
	b := newFakeBackend(t, nil)
	m := NewManager(ManagerConfig{URL: b.url})

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected: %v", err)
	}
	m.Stop()
	m.Stop()

	if got := m.State(); got != StateIdle {
		t.Errorf("State() = %v, want idle", got)
	}
	waitFor(t, "client.stopped", func() bool { return len(b.eventNames()) == 2 })
	time.Sleep(20 * time.Millisecond)
	want := []string{EventClientStarted, EventClientStopped}
	if got := b.eventNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("received %v, want %v", got, want)
	}
}

func TestManager_StopDropsPending(t *testing.T) {
	b := newFakeBackend(t, func(b *fakeBackend) {
		b.gate = make(chan struct{})
	})
	m := NewManager(ManagerConfig{URL: b.url})

	done := make(chan error, 1)
	go func() { done <- m.EnsureConnected(context.Background()) }()
	waitFor(t, "handshake request", func() bool { return b.requests.Load() == 1 })
	m.Send(TextMessage("never"))

	m.Stop()
	if got := m.PendingLen(); got != 0 {
		t.Errorf("PendingLen() = %d after Stop", got)
	}
	b.release()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("EnsureConnected = %v, want ErrStopped", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("waiter not released by Stop")
	}
	if got := m.State(); got != StateIdle {
		t.Errorf("State() = %v, want idle", got)
	}
}

func TestManager_StopAbortsStalledHandshake(t *testing.T) {
	b := newFakeBackend(t, func(b *fakeBackend) {
		b.gate = make(chan struct{})
	})
	m := NewManager(ManagerConfig{URL: b.url, HandshakeTimeout: time.Minute})
	defer m.Stop()

	done := make(chan error, 1)
	go func() { done <- m.EnsureConnected(context.Background()) }()
	waitFor(t, "handshake request", func() bool { return b.requests.Load() == 1 })

	m.Stop()
	select {
	case err := <-done:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("EnsureConnected = %v, want ErrStopped", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("waiter still blocked on the unanswered handshake")
	}

	// A fresh attempt is not held up by the aborted one.
	b.release()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := m.EnsureConnected(ctx); err != nil {
		t.Fatalf("EnsureConnected after Stop: %v", err)
	}
	if got := b.requests.Load(); got != 2 {
		t.Errorf("handshakes = %d, want 2", got)
	}
}

func TestManager_FailureThenRetry(t *testing.T) {
	b := newFakeBackend(t, func(b *fakeBackend) {
		b.rejectFirst = 2
	})
	obs := &fakeObserver{}
	m := NewManager(ManagerConfig{URL: b.url, Observer: obs})
	defer m.Stop()

	err := m.EnsureConnected(context.Background())
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("EnsureConnected = %v, want *Error", err)
	}
	if cerr.Op != "dial" || cerr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("error = %+v", cerr)
	}
	if got := m.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}

	// A send starts a fresh attempt; when that fails too the message stays
	// queued and nothing retries on its own.
	if err := m.Send(TextMessage("queued")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "second failure", func() bool {
		return b.requests.Load() == 2 && m.State() == StateClosed
	})
	if got := m.PendingLen(); got != 1 {
		t.Errorf("PendingLen() = %d, want 1", got)
	}
	time.Sleep(20 * time.Millisecond)
	if got := b.requests.Load(); got != 2 {
		t.Errorf("handshakes = %d, want 2", got)
	}
	if n := len(obs.cardsNamed(EventUILog)); n != 2 {
		t.Errorf("diagnostics = %d, want 2", n)
	}

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	waitFor(t, "flush", func() bool { return len(b.eventNames()) == 2 })
	want := []string{EventClientStarted, EventClientTextMessage}
	if got := b.eventNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("received %v, want %v", got, want)
	}
}

func TestManager_WaiterContext(t *testing.T) {
	b := newFakeBackend(t, func(b *fakeBackend) {
		b.gate = make(chan struct{})
	})
	m := NewManager(ManagerConfig{URL: b.url})
	defer m.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.EnsureConnected(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("EnsureConnected = %v, want deadline exceeded", err)
	}

	// The handshake carries on without the waiter.
	b.release()
	waitFor(t, "open", func() bool { return m.State() == StateOpen })
	if got := b.requests.Load(); got != 1 {
		t.Errorf("handshakes = %d, want 1", got)
	}
}

func TestManager_RemoteClose(t *testing.T) {
	b := newFakeBackend(t, func(b *fakeBackend) {
		b.onStarted = func(conn *websocket.Conn) {
			conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"session.started","conversation_id":"c"}`))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		}
	})
	obs := &fakeObserver{}
	closed := make(chan error, 1)
	var frames []string
	var mu sync.Mutex
	m := NewManager(ManagerConfig{
		URL:      b.url,
		Observer: obs,
		Handler: func(mt int, data []byte) {
			mu.Lock()
			frames = append(frames, string(data))
			mu.Unlock()
		},
		OnClose: func(err error) { closed <- err },
	})

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected: %v", err)
	}
	select {
	case err := <-closed:
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Errorf("close error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("OnClose not called")
	}

	if got := m.State(); got != StateIdle {
		t.Errorf("State() = %v, want idle", got)
	}
	mu.Lock()
	if len(frames) != 1 {
		t.Errorf("handled frames = %d, want 1", len(frames))
	}
	mu.Unlock()
	cards := obs.cardsNamed(EventUIDisconnected)
	if len(cards) != 1 || cards[0].Body["reason"] != "bye" {
		t.Errorf("disconnected cards = %+v", cards)
	}

	// The stop frame is skipped once the server has closed.
	m.Stop()
	time.Sleep(20 * time.Millisecond)
	for _, name := range b.eventNames() {
		if name == EventClientStopped {
			t.Error("client.stopped sent after remote close")
		}
	}
}

func TestManager_Write(t *testing.T) {
	b := newFakeBackend(t, nil)
	m := NewManager(ManagerConfig{URL: b.url})
	defer m.Stop()

	chunk := pcm.F32Mono16K.Float32Chunk([]float32{0.5, -0.5, 0.25})
	if err := m.Write(chunk); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Write before open = %v, want ErrNotOpen", err)
	}
	if got := m.Stats().AudioDropped; got != 1 {
		t.Errorf("AudioDropped = %d, want 1", got)
	}

	if err := m.EnsureConnected(context.Background()); err != nil {
		t.Fatalf("EnsureConnected: %v", err)
	}
	if err := m.Write(chunk); err != nil {
		t.Fatalf("Write: %v", err)
	}
	waitFor(t, "binary frame", func() bool { return len(b.binaryFrames()) == 1 })
	got, err := pcm.DecodeFloat32(b.binaryFrames()[0])
	if err != nil {
		t.Fatalf("DecodeFloat32: %v", err)
	}
	if !reflect.DeepEqual(got, []float32{0.5, -0.5, 0.25}) {
		t.Errorf("samples = %v", got)
	}

	if err := m.Write(pcm.L16Mono16K.DataChunk([]byte{0, 0})); err == nil {
		t.Error("Write accepted s16le chunk")
	}
	if err := m.Write(pcm.F32Mono16K.DataChunk([]byte{0, 0, 0})); err == nil {
		t.Error("Write accepted a partial frame")
	}
	if got := len(b.binaryFrames()); got != 1 {
		t.Errorf("binary frames = %d, want 1", got)
	}
}

func TestConnState_String(t *testing.T) {
	tests := map[ConnState]string{
		StateIdle:       "idle",
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateClosed:     "closed",
		ConnState(9):    "ConnState(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}
