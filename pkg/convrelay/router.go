package convrelay

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Router decodes inbound frames and dispatches them to the transcript and
// the observer. Frames must be handed over in arrival order.
type Router struct {
	obs Observer

	mu             sync.Mutex
	transcript     Transcript
	conversationID string
}

// NewRouter returns a Router reporting to obs. A nil obs discards output.
func NewRouter(obs Observer) *Router {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Router{obs: obs}
}

// HandleFrame routes a frame by its websocket message type.
func (r *Router) HandleFrame(messageType int, data []byte) {
	switch messageType {
	case websocket.TextMessage:
		r.HandleText(data)
	case websocket.BinaryMessage:
		r.HandleBinary(data)
	}
}

// HandleBinary reports an opaque binary frame by its length.
func (r *Router) HandleBinary(data []byte) {
	r.obs.Event(NewCard(EventServerBinary, Payload{"bytes": len(data)}))
}

// HandleText decodes a text frame and dispatches it. Text that is not a
// JSON object is reported as a raw diagnostic line.
func (r *Router) HandleText(data []byte) {
	ev, err := DecodeServerEvent(data)
	if err != nil {
		slog.Debug("convrelay: undecodable frame", "error", err)
		r.obs.Event(LogCard(fmt.Sprintf("raw: %s", data)))
		return
	}
	r.Dispatch(ev)
}

// Dispatch applies a decoded event.
func (r *Router) Dispatch(ev ServerEvent) {
	switch e := ev.(type) {
	case SessionStarted:
		r.mu.Lock()
		r.conversationID = e.ConversationID
		r.mu.Unlock()
		r.obs.Status(fmt.Sprintf("Connected (conversation_id=%s)", e.ConversationID))
		r.obs.Event(NewCard(e.EventName(), e.Payload()))

	case AssistantResponse:
		r.updateTranscript(func(t *Transcript) bool {
			t.AppendResponse(e.Text)
			return true
		})

	case MessageStarted:
		r.updateTranscript(func(t *Transcript) bool {
			t.Started(e.MessageID)
			return true
		})

	case MessageDelta:
		r.updateTranscript(func(t *Transcript) bool {
			return t.Delta(e.MessageID, e.Delta)
		})

	case MessageCompleted:
		r.updateTranscript(func(t *Transcript) bool {
			return t.Finish(e.MessageID)
		})

	case MessageCancelled:
		r.updateTranscript(func(t *Transcript) bool {
			return t.Finish(e.MessageID)
		})

	case ServerCustomMessage:
		r.obs.Console(e.Payload())
		r.obs.Event(NewCard(e.EventName(), e.Payload()))

	default:
		r.obs.Event(NewCard(ev.EventName(), ev.Payload()))
	}
}

func (r *Router) updateTranscript(apply func(*Transcript) bool) {
	r.mu.Lock()
	applied := apply(&r.transcript)
	text := r.transcript.Text()
	r.mu.Unlock()

	if !applied {
		slog.Debug("convrelay: stale stream event ignored")
		return
	}
	r.obs.Transcript(text)
}

// Transcript returns the visible transcript.
func (r *Router) Transcript() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcript.Text()
}

// ActiveMessage returns the id of the streamed reply in flight, if any.
func (r *Router) ActiveMessage() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transcript.Active()
}

// ConversationID returns the id from the last session.started.
func (r *Router) ConversationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conversationID
}
