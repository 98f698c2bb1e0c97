// Package ioretry provides a single helper for retrying a syscall wrapper
// that can fail with EINTR, the way every blocking call in this daemon's
// dispatcher needs to.
package ioretry

import "golang.org/x/sys/unix"

// IgnoringEINTR calls fn and retries it for as long as it returns EINTR.
// Adapted from fsnotify's internal.IgnoringEINTR, generalized with the same
// rationale noted there: even with SA_RESTART installed on every signal
// handler, blocking syscalls still surface spurious EINTR often enough that
// every caller needs this loop.
func IgnoringEINTR[T any](fn func() (T, error)) (T, error) {
	for {
		v, err := fn()
		if err != unix.EINTR {
			return v, err
		}
	}
}
