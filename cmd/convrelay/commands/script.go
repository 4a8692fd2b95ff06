package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/convrelay/pkg/cli"
	"github.com/haivivi/convrelay/pkg/convrelay"
)

var (
	scriptFlags  sessionFlags
	scriptLinger time.Duration
)

var scriptCmd = &cobra.Command{
	Use:   "script <file>",
	Short: "Run a scripted session",
	Long: `Run a list of steps against the relay without audio, then stop.

The script is YAML or JSON ("-" reads stdin). Each step sets exactly one
of text, custom, reset, ping or wait:

  steps:
    - text: "hello"
    - wait: 3s
    - custom: "debug: state"
    - reset: true
    - ping: true

Examples:
  convrelay script smoke.yaml
  cat smoke.yaml | convrelay script - --linger 5s`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	scriptFlags.register(scriptCmd, false)
	scriptCmd.Flags().DurationVar(&scriptLinger, "linger", 2*time.Second, "time to keep receiving after the last step")
}

// Script is a list of steps run in order.
type Script struct {
	Steps []Step `yaml:"steps" json:"steps"`
}

// Step is one scripted intent.
type Step struct {
	Text   string `yaml:"text,omitempty" json:"text,omitempty"`
	Custom string `yaml:"custom,omitempty" json:"custom,omitempty"`
	Reset  bool   `yaml:"reset,omitempty" json:"reset,omitempty"`
	Ping   bool   `yaml:"ping,omitempty" json:"ping,omitempty"`
	Wait   string `yaml:"wait,omitempty" json:"wait,omitempty"`
}

// Validate checks that every step sets exactly one action.
func (s *Script) Validate() error {
	if len(s.Steps) == 0 {
		return errors.New("script has no steps")
	}
	for i, st := range s.Steps {
		n := 0
		for _, set := range []bool{st.Text != "", st.Custom != "", st.Reset, st.Ping, st.Wait != ""} {
			if set {
				n++
			}
		}
		if n != 1 {
			return fmt.Errorf("step %d: exactly one of text, custom, reset, ping, wait must be set", i+1)
		}
		if st.Wait != "" {
			if _, err := time.ParseDuration(st.Wait); err != nil {
				return fmt.Errorf("step %d: invalid wait: %w", i+1, err)
			}
		}
	}
	return nil
}

// stepRunner is the part of the client a script drives.
type stepRunner interface {
	SendText(text string) error
	SendCustom(text string) error
	Reset() error
	Ping() error
}

// run executes the steps in order. Waits end early when ctx is done.
func (s *Script) run(ctx context.Context, c stepRunner) error {
	for i, st := range s.Steps {
		var err error
		switch {
		case st.Text != "":
			err = c.SendText(st.Text)
		case st.Custom != "":
			err = c.SendCustom(st.Custom)
		case st.Reset:
			err = c.Reset()
		case st.Ping:
			err = c.Ping()
		case st.Wait != "":
			d, _ := time.ParseDuration(st.Wait)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}
		if err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func runScript(cmd *cobra.Command, args []string) error {
	var script Script
	if err := cli.LoadRequest(args[0], &script); err != nil {
		return err
	}
	if err := script.Validate(); err != nil {
		return err
	}

	s, err := resolveSettings(cmd, &scriptFlags)
	if err != nil {
		return err
	}
	sess, err := openSession(s, os.Stdout, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx := cmd.Context()
	startCtx, cancel := context.WithTimeout(ctx, s.connectTimeout())
	defer cancel()
	if err := sess.client.Start(startCtx, nil); err != nil {
		return err
	}

	if err := script.run(ctx, sess.client); err != nil {
		if errors.Is(err, convrelay.ErrNotOpen) {
			return fmt.Errorf("%w (connection lost)", err)
		}
		return err
	}

	select {
	case <-ctx.Done():
	case <-time.After(scriptLinger):
	}
	fmt.Println()
	return nil
}
