package model

import (
	"fmt"
	"testing"
)

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrNotFound, "not_found"},
		{ErrForbidden, "forbidden"},
		{ErrCapacity, "capacity"},
		{ErrMalformed, "malformed"},
		{ErrTimeout, "timeout"},
		{ErrUnsupported, "unsupported"},
		{ErrUpstreamUnavailable, "upstream_unavailable"},
		{fmt.Errorf("session abc: %w", ErrNotFound), "not_found"},
		{fmt.Errorf("plain failure"), "internal"},
	}
	for _, c := range cases {
		if got := ErrorCode(c.err); got != c.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := Truncate("a longer string", 8); got != "a lon..." {
		t.Errorf("got %q", got)
	}
	if got := Truncate("abc", 2); got != "ab" {
		t.Errorf("got %q", got)
	}
}
