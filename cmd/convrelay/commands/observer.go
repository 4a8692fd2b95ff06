package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/haivivi/convrelay/pkg/cli"
	"github.com/haivivi/convrelay/pkg/convrelay"
)

// maxHistory bounds the lines kept for the replay frame.
const maxHistory = 500

// terminalObserver renders a session on a terminal: a status line per
// change, one card per event, console lines and the transcript as it grows.
type terminalObserver struct {
	out    io.Writer
	styles cli.Styles
	width  int
	filter *eventFilter

	// quiet suppresses cards and console lines.
	quiet bool

	status  string
	printed string
	midline bool

	history []string
}

var _ convrelay.Observer = (*terminalObserver)(nil)

func newTerminalObserver(out io.Writer, filter *eventFilter) *terminalObserver {
	return &terminalObserver{
		out:    out,
		styles: cli.NewStyles(cli.DefaultTheme),
		width:  100,
		filter: filter,
	}
}

func (o *terminalObserver) Status(line string) {
	if line == o.status {
		return
	}
	o.status = line
	o.breakLine()
	fmt.Fprintln(o.out, o.styles.Help.Render("● "+line))
}

func (o *terminalObserver) Event(card convrelay.Card) {
	local := strings.HasPrefix(card.Event, "ui.")
	if !local && !o.filter.Match(card.Payload) {
		return
	}
	o.remember(card.Event + " " + compactJSON(card.Body))
	if o.quiet {
		return
	}
	o.breakLine()
	fmt.Fprintln(o.out, cardView(card).Render(o.styles, o.width))
}

func (o *terminalObserver) Console(p convrelay.Payload) {
	line := fmt.Sprintf("[%s] %s", p.GetString("event"), p.GetString("text"))
	o.remember(line)
	if o.quiet {
		return
	}
	o.breakLine()
	fmt.Fprintln(o.out, o.styles.Console.Render(line))
}

// Transcript prints what was appended since the last call, or the whole
// transcript again when it changed otherwise.
func (o *terminalObserver) Transcript(text string) {
	if o.quiet {
		o.printed = text
		return
	}
	if strings.HasPrefix(text, o.printed) {
		o.write(text[len(o.printed):])
	} else {
		o.breakLine()
		fmt.Fprintln(o.out, o.styles.Label.Render("── transcript ──"))
		o.write(text)
	}
	o.printed = text
}

func (o *terminalObserver) write(s string) {
	if s == "" {
		return
	}
	io.WriteString(o.out, s)
	o.midline = !strings.HasSuffix(s, "\n")
}

// breakLine ends a partially printed transcript line before other output.
func (o *terminalObserver) breakLine() {
	if o.midline {
		io.WriteString(o.out, "\n")
		o.midline = false
	}
}

func (o *terminalObserver) remember(line string) {
	o.history = append(o.history, line)
	if len(o.history) > maxHistory {
		o.history = o.history[len(o.history)-maxHistory:]
	}
}

// History returns a line per event and console entry, oldest first.
func (o *terminalObserver) History() []string {
	return o.history
}

// cardView lays out a card: ui.log cards show their message, everything
// else its body fields one per line.
func cardView(card convrelay.Card) cli.CardView {
	v := cli.CardView{Title: card.Event}
	if v.Title == "" {
		v.Title = "(no event)"
	}

	var meta []string
	if card.Seq != "" {
		meta = append(meta, "seq="+card.Seq)
	}
	if card.ConversationID != "" {
		meta = append(meta, "conversation_id="+card.ConversationID)
	}
	if !card.Time.IsZero() {
		meta = append(meta, card.Time.Format("15:04:05.000"))
	}
	v.Meta = strings.Join(meta, "  ")

	if card.Event == convrelay.EventUILog {
		v.Warn = true
		v.Body = []string{card.Body.GetString("message")}
		return v
	}

	keys := make([]string, 0, len(card.Body))
	for k := range card.Body {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v.Body = append(v.Body, k+": "+compactJSON(card.Body[k]))
	}
	return v
}

func compactJSON(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
