package convrelay

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeBackend is a relay backend that records what clients send.
type fakeBackend struct {
	url string

	// requests counts handshake requests, including rejected ones.
	requests atomic.Int32

	// rejectFirst fails that many handshakes with 503.
	rejectFirst int32

	// gate, when non-nil, holds handshakes until it is closed.
	gate     chan struct{}
	gateOnce sync.Once

	// onStarted, when set, runs after client.started arrives.
	onStarted func(conn *websocket.Conn)

	mu     sync.Mutex
	events []Payload
	binary [][]byte
}

func newFakeBackend(t *testing.T, configure func(b *fakeBackend)) *fakeBackend {
	t.Helper()
	b := &fakeBackend{}
	if configure != nil {
		configure(b)
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := b.requests.Add(1)
		if b.gate != nil {
			<-b.gate
		}
		if n <= b.rejectFirst {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				b.mu.Lock()
				b.binary = append(b.binary, data)
				b.mu.Unlock()
				continue
			}
			var p Payload
			if err := json.Unmarshal(data, &p); err != nil {
				continue
			}
			b.mu.Lock()
			b.events = append(b.events, p)
			b.mu.Unlock()
			if p.GetString("event") == EventClientStarted && b.onStarted != nil {
				b.onStarted(conn)
			}
		}
	}))
	t.Cleanup(func() {
		b.release()
		server.Close()
	})

	b.url = "ws" + strings.TrimPrefix(server.URL, "http")
	return b
}

func (b *fakeBackend) release() {
	if b.gate != nil {
		b.gateOnce.Do(func() { close(b.gate) })
	}
}

// eventNames returns the received event tags in order.
func (b *fakeBackend) eventNames() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, len(b.events))
	for i, p := range b.events {
		names[i] = p.GetString("event")
	}
	return names
}

func (b *fakeBackend) event(i int) Payload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events[i]
}

func (b *fakeBackend) binaryFrames() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.binary...)
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
