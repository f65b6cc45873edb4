package transport

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

type closeCounter struct {
	serial.Port
	closes int
}

func (p *closeCounter) Close() error {
	p.closes++
	return nil
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestOpen_MissingDevice(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "ttyUSB9"), WithLogger(quietLogger()))
	require.Error(t, err)

	var cerr *ConnectionError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "open", cerr.Op)
}

func TestOpen_NotATerminal(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("termios snapshot only checked on linux")
	}
	path := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := Open(path, WithLogger(quietLogger()))
	require.Error(t, err)

	var cerr *ConnectionError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "snapshot", cerr.Op)
}

func TestConnectionError(t *testing.T) {
	err := &ConnectionError{Path: "/dev/ttyUSB0", Op: "lock", Err: ErrBusy}
	assert.Equal(t, "transport: lock /dev/ttyUSB0: transport: device busy", err.Error())
	assert.ErrorIs(t, err, ErrBusy)
}

func TestClose_Idempotent(t *testing.T) {
	port := &closeCounter{}
	c := &Conn{path: "/dev/fake", log: quietLogger(), port: port}

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, port.closes)

	_, err := c.Write([]byte(":r1f\n"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Read(make([]byte, 8))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Drain(), ErrClosed)
}
