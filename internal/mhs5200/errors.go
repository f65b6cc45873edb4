package mhs5200

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by every accessor before Connect succeeds.
	ErrNotConnected = errors.New("mhs5200: not connected")
	// ErrAlreadyConnected is returned by Connect on a live driver.
	ErrAlreadyConnected = errors.New("mhs5200: already connected")
	// ErrTimeout means no frame was recognised before the deadline.
	ErrTimeout = errors.New("mhs5200: timed out waiting for response")
	// ErrProtocol matches every *ProtocolError.
	ErrProtocol = errors.New("mhs5200: protocol error")
	// ErrOutOfRange means a value does not fit its wire field. Nothing is sent.
	ErrOutOfRange = errors.New("mhs5200: value out of wire range")
)

// IOError wraps a failed read, write or drain on the port.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("mhs5200: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// ProtocolError reports a response that does not have the shape the
// command expects.
type ProtocolError struct {
	Command  string
	Response string
	Reason   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mhs5200: %s: unexpected response %q: %s", e.Command, e.Response, e.Reason)
}

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// UploadError reports the chunk at which an arbitrary waveform upload
// stopped. Chunks before Chunk were acknowledged and are already stored on
// the device.
type UploadError struct {
	Slot  int
	Chunk int
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("mhs5200: upload arbitrary slot %d: chunk %d/%d: %v", e.Slot, e.Chunk, arbitraryChunks, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

func outOfRange(what string, v any) error {
	return fmt.Errorf("%w: %s %v", ErrOutOfRange, what, v)
}
