package commands

import (
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/haivivi/convrelay/pkg/cli"
	"github.com/haivivi/convrelay/pkg/convrelay"
	"github.com/haivivi/convrelay/pkg/recording"
)

// session is a client wired to the terminal and, optionally, a recorder.
type session struct {
	client     *convrelay.Client
	obs        *terminalObserver
	recorder   *recording.Recorder
	recordPath string
}

// openSession builds the client for s. wrap, when non-nil, decorates the
// terminal observer before it is handed to the client.
func openSession(s *settings, out io.Writer, wrap func(*terminalObserver) convrelay.Observer) (*session, error) {
	filter, err := newEventFilter(s.Filter)
	if err != nil {
		return nil, err
	}
	term := newTerminalObserver(out, filter)
	var obs convrelay.Observer = term
	if wrap != nil {
		obs = wrap(term)
	}

	sess := &session{obs: term}
	id := uuid.NewString()
	cfg := convrelay.Config{
		URL:              s.Endpoint,
		Header:           s.Header,
		Observer:         obs,
		BlockSize:        s.BlockSize,
		Resampler:        s.Resampler,
		AllowInsecure:    s.AllowInsecure,
		Keepalive:        s.Keepalive,
		HandshakeTimeout: s.Timeout,
		SessionID:        id,
	}
	if s.RecordDir != "" {
		rec, path, err := recording.Create(s.RecordDir, id)
		if err != nil {
			return nil, err
		}
		rec.SkipAudio = true
		sess.recorder, sess.recordPath = rec, path
		cfg.Tap = rec
	}
	sess.client = convrelay.NewClient(cfg)
	slog.Debug("session opened", "session_id", id, "endpoint", s.Endpoint)
	return sess, nil
}

// Close stops the client and finishes the recording.
func (s *session) Close() {
	s.client.Stop()
	if s.recorder == nil {
		return
	}
	n := s.recorder.Count()
	if err := s.recorder.Close(); err != nil {
		cli.PrintWarning("recording %s: %v", s.recordPath, err)
		return
	}
	cli.PrintInfo("Recorded %d frames to %s", n, s.recordPath)
}
