// Package mhs5200 drives an MHS-5200 signal generator over its serial
// command protocol.
//
// Every exchange is a single request followed by a single response frame.
// The protocol is half duplex, so a Driver serialises all operations; it is
// safe to share between goroutines.
package mhs5200

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shaunagostinho/mhs5200/internal/transport"
)

// DefaultTimeout is how long an exchange waits for its response frame.
const DefaultTimeout = time.Second

// Port is the byte stream to the generator. If it also implements
// Drain() error or ResetInputBuffer() error those are used around each
// command.
type Port interface {
	io.ReadWriteCloser
}

// Dialer opens the Port for a device path.
type Dialer func(path string) (Port, error)

type drainer interface {
	Drain() error
}

type inputResetter interface {
	ResetInputBuffer() error
}

// UploadProgress is called after each acknowledged arbitrary waveform chunk.
type UploadProgress func(slot, chunk, total int)

// Driver talks to one generator.
type Driver struct {
	dial     Dialer
	timeout  time.Duration
	tracer   Tracer
	log      logrus.FieldLogger
	progress UploadProgress

	mu   sync.Mutex
	port Port
	path string
}

// Option configures a Driver.
type Option func(*Driver)

// WithDialer replaces the serial transport, e.g. with a simulator.
func WithDialer(dial Dialer) Option {
	return func(d *Driver) { d.dial = dial }
}

// WithTimeout sets the per-exchange response deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Driver) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithTracer installs a sink for raw wire traffic.
func WithTracer(t Tracer) Option {
	return func(d *Driver) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

// WithUploadProgress sets a callback for arbitrary waveform uploads.
func WithUploadProgress(p UploadProgress) Option {
	return func(d *Driver) { d.progress = p }
}

// New creates a disconnected Driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		timeout: DefaultTimeout,
		tracer:  nopTracer{},
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.dial == nil {
		log := d.log
		d.dial = func(path string) (Port, error) {
			c, err := transport.Open(path, transport.WithLogger(log))
			if err != nil {
				return nil, err
			}
			return c, nil
		}
	}
	d.log = d.log.WithField("component", "driver")
	return d
}

// Connect opens path. A driver holds at most one connection.
func (d *Driver) Connect(path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port != nil {
		return ErrAlreadyConnected
	}
	port, err := d.dial(path)
	if err != nil {
		return err
	}
	d.port = port
	d.path = path
	d.log.Infof("connected to %s", path)
	return nil
}

// Disconnect closes the connection. It is safe to call more than once.
func (d *Driver) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	d.log.Infof("disconnected from %s", d.path)
	return err
}

// IsConnected reports whether Connect succeeded and Disconnect was not called.
func (d *Driver) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port != nil
}

// Path returns the device path of the current or last connection.
func (d *Driver) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

// send writes cmd verbatim. d.mu must be held.
func (d *Driver) send(cmd string) error {
	if d.port == nil {
		return ErrNotConnected
	}
	if r, ok := d.port.(inputResetter); ok {
		if err := r.ResetInputBuffer(); err != nil {
			d.log.Debugf("reset input buffer: %v", err)
		}
	}
	d.tracer.Trace(Tx, []byte(cmd))
	if _, err := io.WriteString(d.port, cmd); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	if dr, ok := d.port.(drainer); ok {
		if err := dr.Drain(); err != nil {
			return &IOError{Op: "drain", Err: err}
		}
	}
	return nil
}

// exchange sends cmd and waits for one frame. d.mu must be held.
func (d *Driver) exchange(cmd string) (Frame, error) {
	if err := d.send(cmd); err != nil {
		return "", err
	}
	f, err := ReadFrame(d.port, d.timeout, d.tracer)
	if err != nil {
		d.log.Debugf("%s: %v", strings.TrimSpace(cmd), err)
		return "", err
	}
	return f, nil
}

// command runs a write exchange, which succeeds only on "ok".
func (d *Driver) command(cmd string) error {
	f, err := d.exchange(cmd)
	if err != nil {
		return err
	}
	if !f.IsOK() {
		return protocolError(cmd, f, "expected ok")
	}
	return nil
}

func (d *Driver) locked(fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn()
}

// RawCommand writes cmd to the generator without any processing. Success
// means the bytes were written, not that the generator accepted them.
func (d *Driver) RawCommand(cmd string) error {
	return d.locked(func() error { return d.send(cmd) })
}

// RawResponse waits up to timeout for the next frame.
func (d *Driver) RawResponse(timeout time.Duration) (Frame, error) {
	var f Frame
	err := d.locked(func() error {
		if d.port == nil {
			return ErrNotConnected
		}
		var err error
		f, err = ReadFrame(d.port, timeout, d.tracer)
		return err
	})
	return f, err
}

// Exchange sends cmd verbatim and returns the frame it provokes.
func (d *Driver) Exchange(cmd string) (Frame, error) {
	var f Frame
	err := d.locked(func() error {
		var err error
		f, err = d.exchange(cmd)
		return err
	})
	return f, err
}
