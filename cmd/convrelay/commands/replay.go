package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/haivivi/convrelay/pkg/cli"
	"github.com/haivivi/convrelay/pkg/convrelay"
	"github.com/haivivi/convrelay/pkg/recording"
)

var (
	replayFrame  string
	replayFilter string
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Replay a recorded session",
	Long: `Feed the inbound frames of a session recording through the event router
and print the events and the reconstructed transcript. The argument is a
log file or the session id of a log in ~/.giztoy/convrelay/recordings.

With --frame the result is drawn as a single frame of the given size
instead of a scrolling log.

Examples:
  convrelay replay 3f2b9c1e-7d4a-4c55-9a57-0c8e5d1f6a2b
  convrelay replay session.msgpack --filter 'select(.event == "error")'
  convrelay replay session.msgpack --frame 120x40`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayFrame, "frame", "", "render one frame of WIDTHxHEIGHT")
	replayCmd.Flags().StringVar(&replayFilter, "filter", "", "jq expression; only events for which it is truthy are shown")
}

// parseFrameSize parses "WIDTHxHEIGHT".
func parseFrameSize(s string) (width, height int, err error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if ok {
		width, err = strconv.Atoi(w)
		if err == nil {
			height, err = strconv.Atoi(h)
		}
	}
	if !ok || err != nil || width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid frame size %q, want WIDTHxHEIGHT", s)
	}
	return width, height, nil
}

// resolveRecording returns arg when it names a file, and otherwise the log
// of the session id arg in the default recordings directory.
func resolveRecording(arg string, paths *cli.Paths) string {
	if _, err := os.Stat(arg); err == nil || paths == nil {
		return arg
	}
	name := arg
	if filepath.Ext(name) != recording.Ext {
		name += recording.Ext
	}
	return paths.RecordingPath(name)
}

// replayFile routes the inbound frames of the recording at path into
// router and returns how many were replayed.
func replayFile(path string, router *convrelay.Router) (int, error) {
	r, err := recording.Open(path)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return recording.Replay(r, router.HandleFrame)
}

func runReplay(cmd *cobra.Command, args []string) error {
	var width, height int
	if replayFrame != "" {
		var err error
		if width, height, err = parseFrameSize(replayFrame); err != nil {
			return err
		}
	}
	filter, err := newEventFilter(replayFilter)
	if err != nil {
		return err
	}

	obs := newTerminalObserver(os.Stdout, filter)
	obs.quiet = replayFrame != ""
	router := convrelay.NewRouter(obs)

	paths, _ := cli.NewPaths(appName)
	path := resolveRecording(args[0], paths)
	n, err := replayFile(path, router)
	if err != nil {
		return err
	}

	if replayFrame == "" {
		fmt.Println()
		cli.PrintInfo("Replayed %d frames", n)
		return nil
	}

	frame := cli.Frame{
		Styles: obs.styles,
		Title:  "replay " + filepath.Base(path),
		Status: fmt.Sprintf("%d frames  conversation_id=%s", n, router.ConversationID()),
		Sections: []cli.Section{
			{Label: "Transcript", Content: func() []string {
				return strings.Split(strings.TrimRight(router.Transcript(), "\n"), "\n")
			}},
			{Label: "Events", Content: obs.History},
		},
		Help: "convrelay replay",
	}
	fmt.Println(frame.Render(width, height))
	return nil
}
