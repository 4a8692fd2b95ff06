package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haivivi/convrelay/pkg/cli"
	"github.com/haivivi/convrelay/pkg/convrelay"
)

var (
	runFlags   sessionFlags
	runNoAudio bool
)

const runLong = `Connect to the relay, stream microphone audio and chat from stdin.

Plain lines are sent as text messages. Lines starting with / are commands:

  /custom <text>   send a custom diagnostic message
  /reset           clear the conversation on the server
  /ping            send a ping (only when connected)
  /stop            stop audio and close the connection
  /start           start again (audio unless --no-audio)
  /stats           show connection counters
  /transcript      print the full transcript
  /help            show this help
  /quit            stop and exit

Examples:
  convrelay run
  convrelay run --no-audio --endpoint ws://127.0.0.1:8000/ws/audio
  convrelay -c staging run --device "USB" --resampler soxr`

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start an interactive session",
	Long:  runLong,
	RunE:  runRun,
}

func init() {
	runFlags.register(runCmd, true)
	runCmd.Flags().BoolVar(&runNoAudio, "no-audio", false, "connect without capturing audio")
}

type inputKind int

const (
	inputText inputKind = iota
	inputCustom
	inputReset
	inputPing
	inputStop
	inputStart
	inputStats
	inputTranscript
	inputHelp
	inputQuit
	inputEmpty
)

type input struct {
	kind inputKind
	text string
}

var slashCommands = map[string]inputKind{
	"/custom":     inputCustom,
	"/reset":      inputReset,
	"/ping":       inputPing,
	"/stop":       inputStop,
	"/start":      inputStart,
	"/stats":      inputStats,
	"/transcript": inputTranscript,
	"/help":       inputHelp,
	"/quit":       inputQuit,
	"/exit":       inputQuit,
}

// parseInput classifies one line typed in an interactive session.
func parseInput(line string) (input, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return input{kind: inputEmpty}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return input{kind: inputText, text: line}, nil
	}
	name, rest, _ := strings.Cut(line, " ")
	kind, ok := slashCommands[name]
	if !ok {
		return input{}, fmt.Errorf("unknown command %s (try /help)", name)
	}
	rest = strings.TrimSpace(rest)
	if kind == inputCustom && rest == "" {
		return input{}, errors.New("usage: /custom <text>")
	}
	return input{kind: kind, text: rest}, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	s, err := resolveSettings(cmd, &runFlags)
	if err != nil {
		return err
	}
	sess, err := openSession(s, os.Stdout, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var open convrelay.DeviceOpener
	if !runNoAudio {
		open = deviceOpener(s.Device, s.BlockSize)
	}
	start := func() {
		startCtx, cancel := context.WithTimeout(ctx, s.connectTimeout())
		defer cancel()
		if err := sess.client.Start(startCtx, open); err != nil {
			cli.PrintError("start: %v", err)
		}
	}
	start()

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			in, err := parseInput(line)
			if err != nil {
				cli.PrintWarning("%v", err)
				continue
			}
			if in.kind == inputQuit {
				return nil
			}
			if in.kind == inputStart {
				start()
				continue
			}
			if err := handleInput(sess, in); err != nil {
				cli.PrintError("%v", err)
			}
		}
	}
}

func handleInput(sess *session, in input) error {
	c := sess.client
	switch in.kind {
	case inputText:
		return c.SendText(in.text)
	case inputCustom:
		return c.SendCustom(in.text)
	case inputReset:
		return c.Reset()
	case inputPing:
		if err := c.Ping(); errors.Is(err, convrelay.ErrNotOpen) {
			return errors.New("not connected")
		} else if err != nil {
			return err
		}
	case inputStop:
		c.Stop()
	case inputStats:
		st := c.Conn().Stats()
		fmt.Printf("state=%s pending=%d controls=%d audio_frames=%d audio=%s dropped=%d\n",
			c.Conn().State(), c.Conn().PendingLen(), st.Controls, st.AudioFrames,
			cli.FormatBytes(st.AudioBytes), st.AudioDropped)
	case inputTranscript:
		fmt.Println(c.Transcript())
	case inputHelp:
		fmt.Println(runLong)
	}
	return nil
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out <- sc.Text()
	}
}
