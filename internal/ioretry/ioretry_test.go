package ioretry

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestIgnoringEINTRRetries(t *testing.T) {
	calls := 0
	v, err := IgnoringEINTR(func() (int, error) {
		calls++
		if calls < 3 {
			return 0, unix.EINTR
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("got %d, want 42", v)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestIgnoringEINTRPropagatesOtherErrors(t *testing.T) {
	_, err := IgnoringEINTR(func() (int, error) {
		return 0, unix.EBADF
	})
	if err != unix.EBADF {
		t.Errorf("expected EBADF to propagate unchanged, got %v", err)
	}
}
