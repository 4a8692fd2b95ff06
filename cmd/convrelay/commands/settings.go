package commands

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/convrelay/pkg/audio/resampler"
	"github.com/haivivi/convrelay/pkg/cli"
	"github.com/haivivi/convrelay/pkg/convrelay"
)

const defaultConnectTimeout = 15 * time.Second

// defaultRecordDir as a record directory selects ~/.giztoy/convrelay/recordings.
const defaultRecordDir = "default"

// sessionFlags are the flags shared by the commands that open a session.
// Each one overrides the matching context value when set.
type sessionFlags struct {
	endpoint      string
	device        string
	blockSize     int
	resampler     string
	allowInsecure bool
	keepalive     time.Duration
	timeout       time.Duration
	record        string
	headers       []string
	filter        string
}

func (f *sessionFlags) register(cmd *cobra.Command, audio bool) {
	fs := cmd.Flags()
	fs.StringVar(&f.endpoint, "endpoint", "", "relay websocket URL (default "+convrelay.DefaultURL+")")
	fs.DurationVar(&f.keepalive, "keepalive", 0, "ping interval while connected (0 disables)")
	fs.DurationVar(&f.timeout, "timeout", 0, "handshake timeout")
	fs.StringVar(&f.record, "record", "", "record the session to a msgpack log in this directory")
	fs.Lookup("record").NoOptDefVal = defaultRecordDir
	fs.StringArrayVarP(&f.headers, "header", "H", nil, "extra handshake header (Key: value), repeatable")
	fs.StringVar(&f.filter, "filter", "", "jq expression; only events for which it is truthy are shown")
	if audio {
		fs.StringVar(&f.device, "device", "", "capture device index or name substring (default system input)")
		fs.IntVar(&f.blockSize, "block-size", 0, "source frames per audio block (default 4096)")
		fs.StringVar(&f.resampler, "resampler", "", "resampler: box or soxr (default box)")
		fs.BoolVar(&f.allowInsecure, "allow-insecure", false, "allow audio over ws:// to a non-loopback host")
	}
}

// settings is the resolved configuration of one session.
type settings struct {
	Endpoint      string
	Device        string
	BlockSize     int
	Resampler     resampler.Mode
	AllowInsecure bool
	Keepalive     time.Duration
	Timeout       time.Duration
	RecordDir     string
	Header        http.Header
	Filter        string
}

// resolveSettings merges the current context with the flags set on cmd.
func resolveSettings(cmd *cobra.Command, f *sessionFlags) (*settings, error) {
	ctx, err := getContext()
	if err != nil {
		return nil, err
	}
	return mergeSettings(ctx, f, cmd.Flags().Changed)
}

func mergeSettings(ctx *cli.Context, f *sessionFlags, changed func(string) bool) (*settings, error) {
	s := &settings{
		Endpoint:      ctx.Endpoint,
		Device:        ctx.AudioDevice,
		BlockSize:     ctx.BlockSize,
		AllowInsecure: ctx.AllowInsecure,
		Keepalive:     ctx.KeepaliveInterval(),
		Timeout:       ctx.HandshakeTimeout(),
		RecordDir:     ctx.RecordDir,
		Header:        ctx.Header(),
		Filter:        f.filter,
	}
	modeName := ctx.Resampler

	if changed("endpoint") {
		s.Endpoint = f.endpoint
	}
	if changed("device") {
		s.Device = f.device
	}
	if changed("block-size") {
		s.BlockSize = f.blockSize
	}
	if changed("resampler") {
		modeName = f.resampler
	}
	if changed("allow-insecure") {
		s.AllowInsecure = f.allowInsecure
	}
	if changed("keepalive") {
		s.Keepalive = f.keepalive
	}
	if changed("timeout") {
		s.Timeout = f.timeout
	}
	if changed("record") {
		s.RecordDir = f.record
	}
	if len(f.headers) > 0 {
		hc := &cli.Context{Headers: make(map[string]string, len(ctx.Headers))}
		for k, v := range ctx.Headers {
			hc.Headers[k] = v
		}
		for _, h := range f.headers {
			if err := hc.SetHeader(h); err != nil {
				return nil, err
			}
		}
		s.Header = hc.Header()
	}

	if s.Endpoint == "" {
		s.Endpoint = convrelay.DefaultURL
	}
	if s.RecordDir == defaultRecordDir {
		paths, err := cli.NewPaths(appName)
		if err != nil {
			return nil, err
		}
		s.RecordDir = paths.RecordingsDir()
	}
	if s.BlockSize < 0 {
		return nil, fmt.Errorf("invalid block size %d", s.BlockSize)
	}
	mode, err := resampler.ParseMode(modeName)
	if err != nil {
		return nil, err
	}
	s.Resampler = mode
	return s, nil
}

// connectTimeout bounds how long a command waits for the first connection.
func (s *settings) connectTimeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout + time.Second
	}
	return defaultConnectTimeout
}

// deviceIndex parses a numeric device spec. ok is false for names.
func deviceIndex(spec string) (index int, ok bool) {
	if spec == "" {
		return -1, true
	}
	n, err := strconv.Atoi(spec)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
