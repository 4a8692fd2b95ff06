package commands

import (
	"fmt"

	"github.com/itchyny/gojq"

	"github.com/haivivi/convrelay/pkg/convrelay"
)

// eventFilter selects event cards with a jq expression evaluated against
// the full payload.
type eventFilter struct {
	src  string
	code *gojq.Code
}

func newEventFilter(expr string) (*eventFilter, error) {
	if expr == "" {
		return nil, nil
	}
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, err)
	}
	return &eventFilter{src: expr, code: code}, nil
}

// Match reports whether the first result of the expression is truthy. An
// evaluation error counts as no match.
func (f *eventFilter) Match(p convrelay.Payload) bool {
	if f == nil {
		return true
	}
	iter := f.code.Run(map[string]any(p))
	v, ok := iter.Next()
	if !ok {
		return false
	}
	if _, isErr := v.(error); isErr {
		return false
	}
	return v != nil && v != false
}
