package convrelay

import (
	"sync"
	"time"
)

// Card is one entry on the generic event surface.
type Card struct {
	// Event is the wire tag or a local ui.* name.
	Event string

	// Seq and ConversationID are shown as metadata. Seq is "" when the
	// server did not stamp one.
	Seq            string
	ConversationID string

	// Body is the payload without the event, seq and conversation_id keys.
	Body Payload

	// Payload is the complete decoded object.
	Payload Payload

	Time time.Time
}

// metaKeys are stripped from card bodies.
var metaKeys = []string{"event", "seq", "conversation_id"}

// NewCard builds a card for the given event name and payload.
func NewCard(event string, payload Payload) Card {
	body := make(Payload, len(payload))
	for k, v := range payload {
		body[k] = v
	}
	for _, k := range metaKeys {
		delete(body, k)
	}
	return Card{
		Event:          event,
		Seq:            payload.GetString("seq"),
		ConversationID: payload.GetString("conversation_id"),
		Body:           body,
		Payload:        payload,
		Time:           time.Now(),
	}
}

// LogCard builds a ui.log diagnostic card.
func LogCard(message string) Card {
	return NewCard(EventUILog, Payload{"message": message})
}

// Observer receives everything the client has to show. A Client serializes
// its calls, so implementations need no locking of their own.
type Observer interface {
	// Status replaces the one-line connection status.
	Status(line string)

	// Event appends a card to the generic event surface.
	Event(card Card)

	// Console receives server and client custom messages.
	Console(payload Payload)

	// Transcript is called with the full visible transcript after every
	// change.
	Transcript(text string)
}

// NopObserver discards everything.
type NopObserver struct{}

func (NopObserver) Status(string)     {}
func (NopObserver) Event(Card)        {}
func (NopObserver) Console(Payload)   {}
func (NopObserver) Transcript(string) {}

// lockedObserver serializes calls to an Observer.
type lockedObserver struct {
	mu  sync.Mutex
	obs Observer
}

func newLockedObserver(obs Observer) *lockedObserver {
	if obs == nil {
		obs = NopObserver{}
	}
	if l, ok := obs.(*lockedObserver); ok {
		return l
	}
	return &lockedObserver{obs: obs}
}

func (l *lockedObserver) Status(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.obs.Status(line)
}

func (l *lockedObserver) Event(card Card) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.obs.Event(card)
}

func (l *lockedObserver) Console(payload Payload) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.obs.Console(payload)
}

func (l *lockedObserver) Transcript(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.obs.Transcript(text)
}
