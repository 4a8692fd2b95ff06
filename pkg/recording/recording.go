// Package recording stores the frames of a relay session in a msgpack log
// and reads them back.
//
// A log is a plain sequence of msgpack-encoded Record values. Files are
// named after the client session id with the Ext extension.
package recording

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/convrelay/pkg/convrelay"
)

// Ext is the file extension of session logs.
const Ext = ".msgpack"

// Frame kinds.
const (
	KindText   = "text"
	KindBinary = "binary"
)

// Record is one frame in a session log.
type Record struct {
	// Time is the Unix time in nanoseconds when the frame was seen.
	Time int64 `msgpack:"t"`

	// Dir is "in" for frames from the server and "out" for frames to it.
	Dir string `msgpack:"dir"`

	// Kind is KindText or KindBinary.
	Kind string `msgpack:"kind"`

	// Data is the frame payload.
	Data []byte `msgpack:"data"`
}

// Inbound reports whether the frame came from the server.
func (r Record) Inbound() bool { return r.Dir == convrelay.Inbound.String() }

// MessageType returns the websocket message type of the frame.
func (r Record) MessageType() int {
	if r.Kind == KindBinary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

// Timestamp returns Time as a time.Time.
func (r Record) Timestamp() time.Time { return time.Unix(0, r.Time) }

// Recorder appends frames to a session log. It implements
// convrelay.FrameTap.
type Recorder struct {
	mu     sync.Mutex
	closer io.Closer
	bw     *bufio.Writer
	enc    *msgpack.Encoder
	err    error
	count  int

	// SkipAudio records outbound binary frames without their payload.
	SkipAudio bool
}

var _ convrelay.FrameTap = (*Recorder)(nil)

// NewRecorder writes a log to w.
func NewRecorder(w io.Writer) *Recorder {
	bw := bufio.NewWriter(w)
	r := &Recorder{bw: bw, enc: msgpack.NewEncoder(bw)}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// Create creates dir if needed and starts the log for sessionID in it.
func Create(dir, sessionID string) (*Recorder, string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", fmt.Errorf("recording: create dir: %w", err)
	}
	path := filepath.Join(dir, sessionID+Ext)
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("recording: %w", err)
	}
	return NewRecorder(f), path, nil
}

// Frame implements convrelay.FrameTap. The first write error is kept and
// returned by Close; later frames are ignored.
func (r *Recorder) Frame(dir convrelay.Direction, messageType int, data []byte) {
	rec := Record{
		Time: time.Now().UnixNano(),
		Dir:  dir.String(),
		Kind: KindText,
		Data: data,
	}
	if messageType == websocket.BinaryMessage {
		rec.Kind = KindBinary
		if r.SkipAudio && dir == convrelay.Outbound {
			rec.Data = nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if err := r.enc.Encode(&rec); err != nil {
		r.err = err
		return
	}
	r.count++
}

// Count returns the number of frames recorded.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close flushes the log and closes the underlying writer if it is an
// io.Closer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.err
	if ferr := r.bw.Flush(); err == nil {
		err = ferr
	}
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
		r.closer = nil
	}
	if r.err == nil {
		r.err = errors.New("recording: recorder closed")
	}
	return err
}

// Reader reads a session log.
type Reader struct {
	dec    *msgpack.Decoder
	closer io.Closer
}

// NewReader reads a log from rd.
func NewReader(rd io.Reader) *Reader {
	r := &Reader{dec: msgpack.NewDecoder(bufio.NewReader(rd))}
	if c, ok := rd.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// Open opens the log at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("recording: %w", err)
	}
	return NewReader(f), nil
}

// Next returns the next record, or io.EOF at the end of the log.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("recording: decode: %w", err)
	}
	return rec, nil
}

// Close closes the underlying reader if it is an io.Closer.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Replay feeds the inbound frames of a log to handle in order and returns
// how many were fed.
func Replay(r *Reader, handle func(messageType int, data []byte)) (int, error) {
	n := 0
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if !rec.Inbound() {
			continue
		}
		handle(rec.MessageType(), rec.Data)
		n++
	}
}
