package convrelay

import "strings"

// assistantStream is the in-flight streamed reply.
type assistantStream struct {
	id     string
	prefix string
	buffer strings.Builder
}

// Transcript is the assistant transcript together with the streaming-message
// state machine that builds it.
//
// The machine is Idle when no stream is active and Streaming otherwise. A
// message identifier of "" is the null identifier: it never makes an event
// stale. Transcript is not safe for concurrent use; the Router serializes
// access.
type Transcript struct {
	committed string
	stream    *assistantStream

	// late holds one-shot replies that arrived while streaming. They are
	// committed after the stream.
	late string
}

// Started begins a stream with the given id. An active stream is replaced
// and its buffered text discarded.
func (t *Transcript) Started(id string) {
	t.committed += t.late
	t.late = ""
	t.stream = &assistantStream{
		id:     id,
		prefix: withSeparator(t.committed),
	}
}

// Delta appends text to the active stream and reports whether it was
// applied. A delta whose non-null id differs from the active id is stale and
// ignored. With no active stream, the delta starts one under its own id.
func (t *Transcript) Delta(id, text string) bool {
	if t.stream == nil {
		t.Started(id)
	}
	if t.stale(id) {
		return false
	}
	if t.stream.id == "" {
		t.stream.id = id
	}
	t.stream.buffer.WriteString(text)
	return true
}

// Finish terminates the active stream, committing its text, and reports
// whether it was applied. Completion and cancellation are identical here.
// A terminator whose non-null id differs from the active id is ignored.
func (t *Transcript) Finish(id string) bool {
	if t.stale(id) {
		return false
	}
	if t.stream == nil {
		t.committed = withSeparator(t.committed)
		return true
	}
	t.committed = withSeparator(t.stream.prefix+t.stream.buffer.String()) + t.late
	t.late = ""
	t.stream = nil
	return true
}

// AppendResponse appends a one-shot reply verbatim, followed by a newline.
// It never touches the active stream.
func (t *Transcript) AppendResponse(text string) {
	if t.stream != nil {
		t.late += text + "\n"
		return
	}
	t.committed += text + "\n"
}

// Text returns the visible transcript: the committed text, or prefix +
// buffer while a stream is active. One-shot replies held during a stream
// become visible when it ends.
func (t *Transcript) Text() string {
	if t.stream == nil {
		return t.committed
	}
	return t.stream.prefix + t.stream.buffer.String()
}

// Committed returns the transcript without the in-flight stream.
func (t *Transcript) Committed() string {
	return t.committed + t.late
}

// Active returns the active message id and whether a stream is active.
func (t *Transcript) Active() (string, bool) {
	if t.stream == nil {
		return "", false
	}
	return t.stream.id, true
}

// Buffer returns the text accumulated by the active stream.
func (t *Transcript) Buffer() string {
	if t.stream == nil {
		return ""
	}
	return t.stream.buffer.String()
}

func (t *Transcript) stale(id string) bool {
	return id != "" && t.stream != nil && t.stream.id != "" && id != t.stream.id
}

// withSeparator terminates non-empty text with a newline.
func withSeparator(s string) string {
	if s != "" && !strings.HasSuffix(s, "\n") {
		return s + "\n"
	}
	return s
}
