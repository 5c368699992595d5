package ids

import (
	"strings"
	"testing"
	"time"
)

func TestNewRequestIDMonotonic(t *testing.T) {
	prev := NewRequestID()
	for i := 0; i < 100; i++ {
		next := NewRequestID()
		if next <= prev {
			t.Fatalf("ids not increasing: %s then %s", prev, next)
		}
		prev = next
	}
	ts, ok := Time(prev)
	if !ok || time.Since(ts) > time.Minute {
		t.Fatalf("unexpected id time %v ok=%v", ts, ok)
	}
}

func TestRequestIDInbound(t *testing.T) {
	if got := RequestID("client-abc-123"); got != "client-abc-123" {
		t.Fatalf("expected inbound id kept, got %q", got)
	}
	for _, bad := range []string{"", "   ", "has space", "line\nbreak", strings.Repeat("x", 200)} {
		got := RequestID(bad)
		if _, ok := Time(got); !ok {
			t.Fatalf("inbound %q: expected generated id, got %q", bad, got)
		}
	}
}
