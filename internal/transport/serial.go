// Package transport owns the serial line to the signal generator.
//
// A Conn holds the port exclusively for its lifetime and puts the line back
// the way it found it when closed.
package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const (
	// BaudRate is the only rate the MHS-5200 firmware listens on.
	BaudRate = 57600
	// ReadTimeout bounds a single Read call. Frame deadlines are built on top.
	ReadTimeout = 100 * time.Millisecond
)

var (
	// ErrBusy is returned when another process holds the device.
	ErrBusy = errors.New("transport: device busy")
	// ErrClosed is returned by I/O on a closed Conn.
	ErrClosed = errors.New("transport: connection closed")
)

// ConnectionError describes a failure to open, lock or configure the line.
type ConnectionError struct {
	Path string
	Op   string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Conn is an open, exclusively held serial connection.
type Conn struct {
	path string
	log  logrus.FieldLogger

	mu     sync.Mutex
	port   serial.Port
	line   *lineState
	closed bool
}

// Option configures Open.
type Option func(*Conn)

// WithLogger sets the logger used for open/close events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Conn) {
		if l != nil {
			c.log = l
		}
	}
}

// Open acquires path exclusively, snapshots its line settings and switches
// it to raw 8N1 at BaudRate. On error nothing is left open.
func Open(path string, opts ...Option) (*Conn, error) {
	c := &Conn{
		path: path,
		log:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("component", "transport")

	line, err := captureLine(path)
	if err != nil {
		return nil, err
	}

	mode := &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		line.release()
		var perr *serial.PortError
		if errors.As(err, &perr) && perr.Code() == serial.PortBusy {
			err = ErrBusy
		}
		return nil, &ConnectionError{Path: path, Op: "open", Err: err}
	}
	if err := port.SetReadTimeout(ReadTimeout); err != nil {
		port.Close()
		line.restore()
		line.release()
		return nil, &ConnectionError{Path: path, Op: "configure", Err: err}
	}

	c.port = port
	c.line = line
	c.log.Infof("opened %s at %d baud", path, BaudRate)
	return c, nil
}

// Path returns the device path the Conn was opened on.
func (c *Conn) Path() string { return c.path }

func (c *Conn) current() (serial.Port, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.port, nil
}

func (c *Conn) Read(p []byte) (int, error) {
	port, err := c.current()
	if err != nil {
		return 0, err
	}
	return port.Read(p)
}

func (c *Conn) Write(p []byte) (int, error) {
	port, err := c.current()
	if err != nil {
		return 0, err
	}
	return port.Write(p)
}

// Drain blocks until everything written has left the UART.
func (c *Conn) Drain() error {
	port, err := c.current()
	if err != nil {
		return err
	}
	return port.Drain()
}

// ResetInputBuffer discards bytes received but not yet read.
func (c *Conn) ResetInputBuffer() error {
	port, err := c.current()
	if err != nil {
		return err
	}
	return port.ResetInputBuffer()
}

// Close restores the original line settings, then closes the port and
// releases the lock. Restoration is attempted even if earlier I/O failed.
// Calling Close again is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	if err := c.line.restore(); err != nil {
		c.log.Warnf("restore line settings on %s: %v", c.path, err)
		keep(&ConnectionError{Path: c.path, Op: "restore", Err: err})
	}
	keep(c.port.Close())
	keep(c.line.release())
	c.log.Infof("closed %s", c.path)
	return first
}
