// convrelay is a terminal client for a conversation relay backend.
//
// It streams microphone audio to the relay over a websocket, sends text and
// custom diagnostic messages, and shows the relay's events together with
// the assistant transcript as it streams in.
//
// Usage:
//
//	convrelay run                       # Interactive session with the microphone
//	convrelay run --no-audio            # Text only
//	convrelay send "hello"              # Send one message and print the reply
//	convrelay script steps.yaml         # Run a scripted session
//	convrelay replay <session>.msgpack  # Rebuild a recorded session
//	convrelay devices                   # List capture devices
//	convrelay config add-context local --endpoint ws://127.0.0.1:8000/ws/audio
//
// Configuration is stored in ~/.giztoy/convrelay/
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/convrelay/cmd/convrelay/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
