//go:build linux

package watch

import (
	"strings"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/watchrules/listener/internal/ioretry"
	"github.com/watchrules/listener/internal/rule"
)

// kernel is the thin wrapper around the three inotify syscalls the daemon
// needs. Grounded on fsnotify's backend_inotify.go, trimmed to exactly what
// the dispatcher requires: no channels, no recursion bookkeeping (that lives
// in Registry/installer), just init/add/remove/read.
//
// A self-pipe sits alongside the inotify fd so Run's poll(2) wait can be
// woken by Stop without relying on the read() ever returning on its own —
// the same idiom bobbydeveaux's InotifyWatcher uses for orderly shutdown.
type kernel struct {
	fd           int
	stopR, stopW int
}

// OpenKernel initializes the inotify instance and its shutdown pipe.
func OpenKernel() (*kernel, error) {
	fd, errno := unix.InotifyInit1(unix.IN_CLOEXEC)
	if fd == -1 {
		return nil, errors.Wrap(errno, "inotify_init1")
	}
	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "opening shutdown pipe")
	}
	return &kernel{fd: fd, stopR: pipe[0], stopW: pipe[1]}, nil
}

// Stop wakes a blocked Run so shutdown can proceed; safe to call once.
func (k *kernel) Stop() {
	unix.Write(k.stopW, []byte{0})
}

// wait blocks until the inotify fd is readable or Stop is called, returning
// true if the inotify fd is the one that's ready.
func (k *kernel) wait() (bool, error) {
	fds := []unix.PollFd{
		{Fd: int32(k.fd), Events: unix.POLLIN},
		{Fd: int32(k.stopR), Events: unix.POLLIN},
	}
	_, err := ioretry.IgnoringEINTR(func() (int, error) {
		return unix.Poll(fds, -1)
	})
	if err != nil {
		return false, errors.Wrap(err, "poll")
	}
	if fds[1].Revents&unix.POLLIN != 0 {
		return false, nil
	}
	return fds[0].Revents&unix.POLLIN != 0, nil
}

// addWatch registers (or widens, via IN_MASK_ADD) interest in path and
// returns the watch descriptor the kernel assigned.
func (k *kernel) addWatch(path string, mask rule.EventMask, maskAdd bool) (uint32, error) {
	m := uint32(mask)
	if maskAdd {
		m |= unix.IN_MASK_ADD
	}
	wd, err := unix.InotifyAddWatch(k.fd, path, m)
	if wd == -1 {
		return 0, errors.Wrapf(err, "inotify_add_watch %q", path)
	}
	return uint32(wd), nil
}

// RmWatch deregisters a descriptor. Used both by subtree rebuild and by
// shutdown.
func (k *kernel) RmWatch(wd uint32) error {
	if _, err := unix.InotifyRmWatch(k.fd, wd); err != nil {
		return errors.Wrapf(err, "inotify_rm_watch wd=%d", wd)
	}
	return nil
}

// Close releases the inotify fd and the shutdown pipe.
func (k *kernel) Close() error {
	unix.Close(k.stopR)
	unix.Close(k.stopW)
	return unix.Close(k.fd)
}

// record is one decoded inotify_event. Name is empty when the kernel didn't
// attach one (an event on the watched directory/file itself carries no
// name).
type record struct {
	Wd     uint32
	Mask   rule.EventMask
	Cookie uint32
	Name   string // empty when the event concerns the watched entry itself
}

// readBatch performs one blocking read on the inotify fd and decodes every
// inotify_event packed into the kernel's answer. The dispatcher goroutine
// calls this only after wait has reported k.fd readable, and nothing else
// touches k.fd for reading.
func (k *kernel) readBatch() ([]record, error) {
	var buf [unix.SizeofInotifyEvent * 4096]byte
	n, err := ioretry.IgnoringEINTR(func() (int, error) {
		return unix.Read(k.fd, buf[:])
	})
	if err != nil {
		return nil, errors.Wrap(err, "reading inotify fd")
	}
	if n < unix.SizeofInotifyEvent {
		return nil, errors.New("short read from inotify fd")
	}

	var (
		records []record
		offset  uint32
	)
	for offset <= uint32(n)-unix.SizeofInotifyEvent {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		nameLen := uint32(raw.Len)

		var name string
		if nameLen > 0 {
			nameBytes := (*[unix.PathMax]byte)(unsafe.Pointer(&buf[offset+unix.SizeofInotifyEvent]))[:nameLen:nameLen]
			name = strings.TrimRight(string(nameBytes), "\x00")
		}

		records = append(records, record{
			Wd:     uint32(raw.Wd),
			Mask:   rule.EventMask(raw.Mask),
			Cookie: raw.Cookie,
			Name:   name,
		})
		offset += unix.SizeofInotifyEvent + nameLen
	}
	return records, nil
}
