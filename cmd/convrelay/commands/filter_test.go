package commands

import (
	"testing"

	"github.com/haivivi/convrelay/pkg/convrelay"
)

func TestEventFilter(t *testing.T) {
	payload := convrelay.Payload{"event": "error", "seq": float64(4), "message": "boom"}

	tests := []struct {
		expr string
		want bool
	}{
		{`.event == "error"`, true},
		{`.event == "ack"`, false},
		{`.seq > 3`, true},
		{`.missing`, false},
		{`.message`, true},
		{`select(.event == "ack")`, false},
		{`error("x")`, false},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := newEventFilter(tt.expr)
			if err != nil {
				t.Fatalf("newEventFilter: %v", err)
			}
			if got := f.Match(payload); got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventFilterEmpty(t *testing.T) {
	f, err := newEventFilter("")
	if err != nil {
		t.Fatalf("newEventFilter: %v", err)
	}
	if f != nil {
		t.Fatal("empty expression should give a nil filter")
	}
	if !f.Match(convrelay.Payload{"event": "ack"}) {
		t.Error("nil filter should match everything")
	}
}

func TestEventFilterInvalid(t *testing.T) {
	if _, err := newEventFilter(".event =="); err == nil {
		t.Error("expected parse error")
	}
}
