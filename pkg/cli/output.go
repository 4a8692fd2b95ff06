package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
)

// OutputFormat names an output encoding.
type OutputFormat string

const (
	FormatYAML OutputFormat = "yaml"
	FormatJSON OutputFormat = "json"

	// FormatTable prints a Table as aligned columns. Results that are not
	// tables are printed as YAML.
	FormatTable OutputFormat = "table"
)

// Table is a result that can be shown as aligned columns.
type Table interface {
	Columns() []string
	Rows() [][]string
}

// OutputOptions configures Output.
type OutputOptions struct {
	Format OutputFormat

	// Indent is the JSON indentation, two spaces when empty.
	Indent string

	// Writer defaults to Stdout.
	Writer io.Writer
}

// Stdout and Stderr receive Output and the Print helpers.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

// Output encodes result in the requested format.
func Output(result any, opts OutputOptions) error {
	w := opts.Writer
	if w == nil {
		w = Stdout
	}
	switch opts.Format {
	case FormatYAML, "":
		return writeYAML(w, result)
	case FormatJSON:
		return writeJSON(w, result, opts.Indent)
	case FormatTable:
		if t, ok := result.(Table); ok {
			return writeTable(w, t)
		}
		return writeYAML(w, result)
	}
	return fmt.Errorf("unsupported output format %q (want yaml, json or table)", opts.Format)
}

func writeJSON(w io.Writer, result any, indent string) error {
	if indent == "" {
		indent = "  "
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", indent)
	return enc.Encode(result)
}

func writeYAML(w io.Writer, result any) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func writeTable(w io.Writer, t Table) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Columns(), "\t"))
	for _, row := range t.Rows() {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// PrintSuccess prints a line prefixed with a check mark.
func PrintSuccess(format string, args ...any) { printLine(Stdout, "✓ ", format, args) }

// PrintInfo prints an informational line.
func PrintInfo(format string, args ...any) { printLine(Stdout, "ℹ ", format, args) }

// PrintWarning prints a warning to Stderr.
func PrintWarning(format string, args ...any) { printLine(Stderr, "⚠ ", format, args) }

// PrintError prints an error to Stderr.
func PrintError(format string, args ...any) { printLine(Stderr, "Error: ", format, args) }

func printLine(w io.Writer, prefix, format string, args []any) {
	fmt.Fprintf(w, prefix+format+"\n", args...)
}
