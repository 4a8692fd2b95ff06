package commands

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/convrelay/pkg/cli"
	"github.com/haivivi/convrelay/pkg/convrelay"
)

var (
	sendFlags  sessionFlags
	sendCustom bool
	sendWait   time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send <text...>",
	Short: "Send one message and print the reply",
	Long: `Connect without audio, send one text message and wait for the assistant
to finish replying, then print the transcript and exit.

With --custom the message is sent as a custom diagnostic message instead,
and the command waits for the first server custom message.

Examples:
  convrelay send "hello there"
  convrelay send --custom --wait 5s "debug: dump state"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendFlags.register(sendCmd, false)
	sendCmd.Flags().BoolVar(&sendCustom, "custom", false, "send a client.custom.message")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 30*time.Second, "how long to wait for the reply")
}

// replyWaiter passes everything to the terminal and signals once a reply is
// complete: a transcript update with no stream in flight, or a server custom
// message when waiting for those.
type replyWaiter struct {
	*terminalObserver
	router  func() *convrelay.Router
	console bool

	once sync.Once
	done chan struct{}
}

func newReplyWaiter(term *terminalObserver, console bool) *replyWaiter {
	return &replyWaiter{terminalObserver: term, console: console, done: make(chan struct{})}
}

func (w *replyWaiter) Transcript(text string) {
	w.terminalObserver.Transcript(text)
	if w.console || w.router == nil {
		return
	}
	if _, streaming := w.router().ActiveMessage(); !streaming {
		w.finish()
	}
}

func (w *replyWaiter) Console(p convrelay.Payload) {
	w.terminalObserver.Console(p)
	if w.console && p.GetString("event") == convrelay.EventServerCustom {
		w.finish()
	}
}

func (w *replyWaiter) finish() {
	w.once.Do(func() { close(w.done) })
}

func runSend(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	s, err := resolveSettings(cmd, &sendFlags)
	if err != nil {
		return err
	}

	var waiter *replyWaiter
	sess, err := openSession(s, os.Stdout, func(term *terminalObserver) convrelay.Observer {
		waiter = newReplyWaiter(term, sendCustom)
		return waiter
	})
	if err != nil {
		return err
	}
	defer sess.Close()
	waiter.router = sess.client.Router

	ctx, cancel := context.WithTimeout(cmd.Context(), s.connectTimeout())
	defer cancel()
	if err := sess.client.Start(ctx, nil); err != nil {
		return err
	}

	if sendCustom {
		err = sess.client.SendCustom(text)
	} else {
		err = sess.client.SendText(text)
	}
	if err != nil {
		return err
	}

	select {
	case <-waiter.done:
	case <-time.After(sendWait):
		cli.PrintWarning("no complete reply after %s", cli.FormatDuration(sendWait))
	}
	fmt.Println()
	return nil
}
