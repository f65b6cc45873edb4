//go:build linux || darwin || freebsd || netbsd || openbsd

package transport

import (
	"errors"

	"golang.org/x/sys/unix"
)

// lineState is the lock handle and the termios captured before configuring.
type lineState struct {
	fd    int
	saved *unix.Termios
}

func captureLine(path string) (*lineState, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, unix.EBUSY) {
			err = ErrBusy
		}
		return nil, &ConnectionError{Path: path, Op: "open", Err: err}
	}
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EWOULDBLOCK) {
			err = ErrBusy
		}
		return nil, &ConnectionError{Path: path, Op: "lock", Err: err}
	}
	saved, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		unix.Flock(fd, unix.LOCK_UN)
		unix.Close(fd)
		return nil, &ConnectionError{Path: path, Op: "snapshot", Err: err}
	}
	return &lineState{fd: fd, saved: saved}, nil
}

func (l *lineState) restore() error {
	if l == nil || l.saved == nil {
		return nil
	}
	return unix.IoctlSetTermios(l.fd, ioctlSetTermios, l.saved)
}

func (l *lineState) release() error {
	if l == nil || l.fd < 0 {
		return nil
	}
	unix.Flock(l.fd, unix.LOCK_UN)
	err := unix.Close(l.fd)
	l.fd = -1
	return err
}
