package convrelay

import (
	"encoding/json"
	"fmt"

	"github.com/haivivi/convrelay/pkg/audio/pcm"
)

// Client event names (sent from client to server).
const (
	EventClientStarted       = "client.started"
	EventClientStopped       = "client.stopped"
	EventClientTextMessage   = "client.text.message"
	EventClientCustomMessage = "client.custom.message"
	EventClientReset         = "client.conversation.reset"
	EventClientPing          = "ping"
)

// Server event names (sent from server to client).
const (
	EventSessionStarted    = "session.started"
	EventAssistantResponse = "assistant.response"
	EventMessageStarted    = "assistant.message.started"
	EventMessageDelta      = "assistant.message.delta"
	EventMessageCompleted  = "assistant.message.completed"
	EventMessageCancelled  = "assistant.message.cancelled"
	EventServerCustom      = "server.custom.message"
	EventServerBinary      = "server.binary"
	EventServerAck         = "ack"
	EventServerError       = "error"
	EventServerPong        = "pong"
	EventAudioReady        = "session.audio.ready"
	EventAudioUnavailable  = "session.audio.unavailable"
	EventUserAudioReceived = "user.audio.received"
	EventConversationReset = "conversation.reset"
)

// Local events shown on the observer surface. They never cross the wire.
const (
	EventUILog          = "ui.log"
	EventUIConnecting   = "ui.ws.connecting"
	EventUIConnected    = "ui.ws.connected"
	EventUIDisconnected = "ui.ws.disconnected"
)

// AudioFormat is the audio declaration carried by client.started.
type AudioFormat struct {
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// WireAudioFormat is the declaration for the outbound frame format.
func WireAudioFormat() *AudioFormat {
	f := pcm.F32Mono16K
	return &AudioFormat{
		Format:     string(f.Encoding),
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
	}
}

// Control is an outbound control message.
type Control struct {
	// Event is the client event name.
	Event string

	// Text is the payload of text and custom messages.
	Text string

	// AudioEnabled and Audio are only used by client.started.
	AudioEnabled bool
	Audio        *AudioFormat
}

// StartedMessage returns a client.started control declaring audio, or no
// audio when format is nil.
func StartedMessage(format *AudioFormat) Control {
	return Control{Event: EventClientStarted, AudioEnabled: format != nil, Audio: format}
}

// StoppedMessage returns a client.stopped control.
func StoppedMessage() Control {
	return Control{Event: EventClientStopped}
}

// TextMessage returns a client.text.message control.
func TextMessage(text string) Control {
	return Control{Event: EventClientTextMessage, Text: text}
}

// CustomMessage returns a client.custom.message control.
func CustomMessage(text string) Control {
	return Control{Event: EventClientCustomMessage, Text: text}
}

// MarshalJSON encodes the control in its wire shape.
func (c Control) MarshalJSON() ([]byte, error) {
	event := map[string]interface{}{
		"event": c.Event,
	}
	switch c.Event {
	case EventClientStarted:
		event["audio_enabled"] = c.AudioEnabled
		if c.Audio != nil {
			event["audio"] = c.Audio
		} else {
			event["audio"] = nil
		}
	case EventClientTextMessage, EventClientCustomMessage:
		event["text"] = c.Text
	}
	return json.Marshal(event)
}

// SentEvent is the confirmation event name emitted after the control is
// transmitted, or "" when no confirmation is shown.
func (c Control) SentEvent() string {
	switch c.Event {
	case EventClientTextMessage, EventClientCustomMessage:
		return c.Event + ".sent"
	}
	return ""
}

// Payload is a decoded JSON object as received from the server.
type Payload map[string]any

// GetString returns the payload field as a string, or "" when absent or null.
// Non-string scalars are formatted.
func (p Payload) GetString(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ServerEvent is a decoded inbound event. The set of implementations is
// closed; unrecognized tags decode to UnknownEvent.
type ServerEvent interface {
	// EventName returns the wire tag.
	EventName() string

	// Payload returns the complete decoded object.
	Payload() Payload
}

type base struct{ payload Payload }

func (b base) Payload() Payload { return b.payload }

// SessionStarted acknowledges the session and names the conversation.
type SessionStarted struct {
	base
	ConversationID string
}

func (SessionStarted) EventName() string { return EventSessionStarted }

// AssistantResponse is a one-shot full-text reply.
type AssistantResponse struct {
	base
	Text string
}

func (AssistantResponse) EventName() string { return EventAssistantResponse }

// MessageStarted begins a streamed reply.
type MessageStarted struct {
	base
	MessageID string
}

func (MessageStarted) EventName() string { return EventMessageStarted }

// MessageDelta appends text to a streamed reply.
type MessageDelta struct {
	base
	MessageID string
	Delta     string
}

func (MessageDelta) EventName() string { return EventMessageDelta }

// MessageCompleted terminates a streamed reply.
type MessageCompleted struct {
	base
	MessageID string
}

func (MessageCompleted) EventName() string { return EventMessageCompleted }

// MessageCancelled terminates a streamed reply that was cancelled.
type MessageCancelled struct {
	base
	MessageID string
}

func (MessageCancelled) EventName() string { return EventMessageCancelled }

// ServerCustomMessage is a diagnostic message for the console.
type ServerCustomMessage struct {
	base
	Text string
}

func (ServerCustomMessage) EventName() string { return EventServerCustom }

// UnknownEvent is any other tag, including a missing one.
type UnknownEvent struct {
	base
	Event string
}

func (e UnknownEvent) EventName() string { return e.Event }

// DecodeServerEvent decodes a text frame. It fails only when the frame is
// not a JSON object; a missing or unrecognized tag yields UnknownEvent.
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode server event: %w", err)
	}
	if payload == nil {
		return nil, fmt.Errorf("decode server event: not a JSON object")
	}

	b := base{payload: payload}
	switch tag := payload.GetString("event"); tag {
	case EventSessionStarted:
		return SessionStarted{base: b, ConversationID: payload.GetString("conversation_id")}, nil
	case EventAssistantResponse:
		text := payload.GetString("text")
		if text == "" {
			// Show something rather than an empty line.
			text = string(data)
		}
		return AssistantResponse{base: b, Text: text}, nil
	case EventMessageStarted:
		return MessageStarted{base: b, MessageID: payload.GetString("message_id")}, nil
	case EventMessageDelta:
		return MessageDelta{base: b, MessageID: payload.GetString("message_id"), Delta: payload.GetString("delta")}, nil
	case EventMessageCompleted:
		return MessageCompleted{base: b, MessageID: payload.GetString("message_id")}, nil
	case EventMessageCancelled:
		return MessageCancelled{base: b, MessageID: payload.GetString("message_id")}, nil
	case EventServerCustom:
		return ServerCustomMessage{base: b, Text: payload.GetString("text")}, nil
	default:
		return UnknownEvent{base: b, Event: tag}, nil
	}
}
