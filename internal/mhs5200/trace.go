package mhs5200

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Direction tells a Tracer which way bytes travelled.
type Direction int

const (
	Tx Direction = iota // host to generator
	Rx                  // generator to host
)

func (d Direction) String() string {
	if d == Tx {
		return "tx"
	}
	return "rx"
}

// Tracer observes raw wire traffic. Rx is reported per read call, so one
// frame may arrive in several pieces. Implementations must not retain data.
type Tracer interface {
	Trace(dir Direction, data []byte)
}

// TracerFunc adapts a function to Tracer.
type TracerFunc func(dir Direction, data []byte)

func (f TracerFunc) Trace(dir Direction, data []byte) { f(dir, data) }

type nopTracer struct{}

func (nopTracer) Trace(Direction, []byte) {}

type multiTracer []Tracer

func (m multiTracer) Trace(dir Direction, data []byte) {
	for _, t := range m {
		t.Trace(dir, data)
	}
}

// MultiTracer fans traffic out to every non-nil tracer.
func MultiTracer(tracers ...Tracer) Tracer {
	var m multiTracer
	for _, t := range tracers {
		if t != nil {
			m = append(m, t)
		}
	}
	switch len(m) {
	case 0:
		return nopTracer{}
	case 1:
		return m[0]
	}
	return m
}

// LogTracer writes a dump of every transfer at debug level.
type LogTracer struct {
	Log logrus.FieldLogger
}

func (t LogTracer) Trace(dir Direction, data []byte) {
	t.Log.Debugf("%s %d: %s", dir, len(data), Dump(data))
}

// Dump renders printable runs verbatim and everything else as 0x%02x,
// e.g. "ok\r\n" becomes "ok 0x0d 0x0a".
func Dump(data []byte) string {
	var b strings.Builder
	lastPrint := true
	for _, c := range data {
		if c >= 0x20 && c <= 0x7e {
			if !lastPrint {
				b.WriteByte(' ')
			}
			b.WriteByte(c)
			lastPrint = true
			continue
		}
		fmt.Fprintf(&b, " 0x%02x", c)
		lastPrint = false
	}
	return strings.TrimPrefix(b.String(), " ")
}
