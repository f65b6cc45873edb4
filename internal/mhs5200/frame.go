package mhs5200

import (
	"bytes"
	"fmt"
	"io"
	"time"
)

// frameBufferSize caps how much is accumulated while waiting for a frame.
const frameBufferSize = 128

// Frame is the content of one response: the text between ':' and CRLF, or
// "ok" for a bare acknowledgement.
type Frame string

// FrameOK is the content of the generator's acknowledgement.
const FrameOK Frame = "ok"

// IsOK reports whether f is an acknowledgement.
func (f Frame) IsOK() bool { return f == FrameOK }

var (
	crlf   = []byte("\r\n")
	okTerm = []byte("ok\r\n")
)

// ReadFrame reads from r until a complete frame is in the buffer, the
// deadline passes, or the buffer fills. Each read may deliver any number of
// bytes; the whole buffer is rescanned after every read that delivered some.
// Zero-byte reads are retried until the deadline. A partial frame is never
// returned.
func ReadFrame(r io.Reader, timeout time.Duration, tracer Tracer) (Frame, error) {
	if tracer == nil {
		tracer = nopTracer{}
	}
	buf := make([]byte, 0, frameBufferSize)
	deadline := time.Now().Add(timeout)

	for {
		n, err := r.Read(buf[len(buf):cap(buf)])
		if n > 0 {
			tracer.Trace(Rx, buf[len(buf):len(buf)+n])
			buf = buf[:len(buf)+n]
			if f, ok := scanFrame(buf); ok {
				return f, nil
			}
		}
		if err != nil {
			return "", &IOError{Op: "read", Err: err}
		}
		if len(buf) == cap(buf) {
			return "", fmt.Errorf("%w: buffer full after %d bytes", ErrTimeout, len(buf))
		}
		if !time.Now().Before(deadline) {
			return "", fmt.Errorf("%w after %v (%d bytes buffered)", ErrTimeout, timeout, len(buf))
		}
	}
}

// scanFrame looks for ":<content>\r\n" first, then for "ok\r\n" anywhere.
func scanFrame(buf []byte) (Frame, bool) {
	if i := bytes.IndexByte(buf, ':'); i >= 0 {
		rest := buf[i+1:]
		if j := bytes.Index(rest, crlf); j > 0 {
			return Frame(rest[:j]), true
		}
	}
	if bytes.Contains(buf, okTerm) {
		return FrameOK, true
	}
	return "", false
}
