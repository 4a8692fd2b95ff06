// Package convrelay is a client for a conversation relay backend.
//
// A Client keeps one websocket connection to the relay, streams microphone
// audio to it as 16 kHz mono f32le binary frames and exchanges JSON events
// with it: session lifecycle, text chat, custom diagnostic messages and an
// assistant reply that is streamed incrementally.
//
// # Connection
//
// The Manager owns the connection. EnsureConnected is idempotent: callers
// arriving while a handshake is in flight wait for that handshake, so there
// is never more than one socket. Control messages sent while the connection
// is not open are queued and flushed in order right after the handshake.
//
//	c := convrelay.NewClient(convrelay.Config{URL: "ws://127.0.0.1:8000/ws/audio"})
//	defer c.Stop()
//	if err := c.Start(ctx, nil); err != nil {
//		return err
//	}
//	c.SendText("hello")
//
// # Inbound events
//
// The Router decodes text frames into ServerEvent values and feeds the
// assistant stream events to a Transcript. Everything else is shown on the
// Observer as a Card.
package convrelay
