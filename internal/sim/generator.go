// Package sim is an in-memory MHS-5200 that answers the serial command set.
// It backs the tests and the -demo mode of the command-line tool.
package sim

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	arbitrarySlots   = 16
	arbitrarySamples = 1024
	chunkSamples     = 64
	settingsSlots    = 10
)

type channelState struct {
	cents      int64 // frequency in 0.01 Hz
	duty       int   // tenths of a percent
	wave       int   // wire code as written
	attenuated bool
	amplitude  int // raw magnitude in the scale chosen by attenuated
	offset     int // biased, 0..240
	phase      int
	inverted   bool
}

// Hook may replace the generator's reply to a command (without its
// trailing newline). Returning handled=false falls through to the normal
// reply; reply "" with handled=true makes the generator stay silent.
// It runs with the generator locked and must not call back into it.
type Hook func(cmd string) (reply string, handled bool)

// Generator implements an io.ReadWriteCloser that behaves like the device.
type Generator struct {
	mu       sync.Mutex
	pending  []byte // bytes written but not yet a full command line
	out      []byte // reply bytes waiting to be read
	closed   bool
	commands []string

	ch        [2]channelState
	active    int
	output    bool
	slots     [settingsSlots][2]channelState
	arbitrary [arbitrarySlots][arbitrarySamples]int

	// ReadChunk limits how many bytes one Read returns; 0 means no limit.
	ReadChunk int
	// LegacyWaveCodes reports arbitrary waves as 10..25 like old firmware.
	LegacyWaveCodes bool
	// Idle is how long Read waits when nothing is pending.
	Idle time.Duration
	// Hook intercepts commands before normal handling.
	Hook Hook
}

// New returns a generator in its power-on state: 1 kHz sine, 5 Vpp, 50 %
// duty on both channels, channel 1 active, output off.
func New() *Generator {
	g := &Generator{active: 1, Idle: time.Millisecond}
	for i := range g.ch {
		g.ch[i] = channelState{
			cents:     100000,
			duty:      500,
			amplitude: 500,
			offset:    120,
		}
	}
	return g
}

// Commands returns every command line received, newline stripped.
func (g *Generator) Commands() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.commands...)
}

// ArbitraryWave returns a copy of stored arbitrary slot n.
func (g *Generator) ArbitraryWave(n int) []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]int, arbitrarySamples)
	copy(out, g.arbitrary[n][:])
	return out
}

// SetHook installs h under the generator's lock.
func (g *Generator) SetHook(h Hook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Hook = h
}

// Inject queues raw bytes as if the device had sent them.
func (g *Generator) Inject(b []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.out = append(g.out, b...)
}

func (g *Generator) Read(p []byte) (int, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if len(g.out) == 0 {
		idle := g.Idle
		g.mu.Unlock()
		time.Sleep(idle)
		return 0, nil
	}
	n := len(p)
	if g.ReadChunk > 0 && n > g.ReadChunk {
		n = g.ReadChunk
	}
	n = copy(p[:n], g.out)
	g.out = g.out[n:]
	g.mu.Unlock()
	return n, nil
}

func (g *Generator) Write(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return 0, io.ErrClosedPipe
	}
	g.pending = append(g.pending, p...)
	for {
		i := bytes.IndexByte(g.pending, '\n')
		if i < 0 {
			break
		}
		line := string(g.pending[:i])
		g.pending = g.pending[i+1:]
		g.commands = append(g.commands, line)
		g.out = append(g.out, g.reply(line)...)
	}
	return len(p), nil
}

// Drain is a no-op; writes are processed synchronously.
func (g *Generator) Drain() error { return nil }

// ResetInputBuffer drops replies that were not read.
func (g *Generator) ResetInputBuffer() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.out = nil
	return nil
}

func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

const ok = "ok\r\n"

func (g *Generator) reply(cmd string) string {
	if g.Hook != nil {
		if r, handled := g.Hook(cmd); handled {
			return r
		}
	}
	if len(cmd) < 4 || cmd[0] != ':' {
		return ""
	}
	switch cmd[1] {
	case 'r':
		return g.read(cmd[2], cmd[3])
	case 's':
		if g.write(cmd[2], cmd[3], cmd[4:]) {
			return ok
		}
	case 'a':
		if g.upload(cmd[2:]) {
			return ok
		}
	}
	return ""
}

func (g *Generator) channel(addr byte) *channelState {
	switch addr {
	case '1':
		return &g.ch[0]
	case '2':
		return &g.ch[1]
	}
	return nil
}

func (g *Generator) read(addr, op byte) string {
	echo := ":r" + string(addr) + string(op)
	if op == 'b' {
		switch addr {
		case '1':
			return echo + boolDigit(g.output) + "\r\n"
		case '2':
			return echo + strconv.Itoa(g.active) + "\r\n"
		case 'a':
			return echo + boolDigit(g.ch[0].inverted) + "\r\n"
		case 'b':
			return echo + boolDigit(g.ch[1].inverted) + "\r\n"
		}
		return ""
	}
	c := g.channel(addr)
	if c == nil {
		return ""
	}
	var v string
	switch op {
	case 'f':
		v = fmt.Sprintf("%08d%02d", c.cents/100, c.cents%100)
	case 'd':
		v = fmt.Sprintf("%03d", c.duty)
	case 'w':
		code := c.wave
		if g.LegacyWaveCodes && code >= 32 && code < 32+arbitrarySlots {
			code -= 22
		}
		v = fmt.Sprintf("%02d", code)
	case 'o':
		v = fmt.Sprintf("%03d", c.offset)
	case 'p':
		v = fmt.Sprintf("%03d", c.phase)
	case 'y':
		// The device reports 0 while the attenuator is engaged.
		v = boolDigit(!c.attenuated)
	case 'a':
		v = fmt.Sprintf("%04d", c.amplitude)
	default:
		return ""
	}
	return echo + v + "\r\n"
}

func (g *Generator) write(addr, op byte, value string) bool {
	switch op {
	case 'u', 'v':
		slot := int(addr - '0')
		if slot < 0 || slot >= settingsSlots || value != "" {
			return false
		}
		if op == 'u' {
			g.slots[slot] = g.ch
		} else {
			g.ch = g.slots[slot]
		}
		return true
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return false
	}
	if op == 'b' {
		switch addr {
		case '1':
			g.output = n != 0
		case '2':
			if n != 1 && n != 2 {
				return false
			}
			g.active = n
		case 'a':
			g.ch[0].inverted = n != 0
		case 'b':
			g.ch[1].inverted = n != 0
		default:
			return false
		}
		return true
	}

	c := g.channel(addr)
	if c == nil {
		return false
	}
	switch op {
	case 'f':
		if len(value) != 10 {
			return false
		}
		c.cents = int64(n)
	case 'd':
		c.duty = n
	case 'w':
		c.wave = n
	case 'o':
		c.offset = n
	case 'p':
		c.phase = n
	case 'y':
		c.attenuated = n == 0
	case 'a':
		c.amplitude = n
	default:
		return false
	}
	return true
}

// upload handles "<slot-hex><chunk-hex><v0>,...,<v63>".
func (g *Generator) upload(body string) bool {
	if len(body) < 3 {
		return false
	}
	slot, err1 := strconv.ParseUint(body[:1], 16, 8)
	chunk, err2 := strconv.ParseUint(body[1:2], 16, 8)
	if err1 != nil || err2 != nil {
		return false
	}
	fields := strings.Split(body[2:], ",")
	if len(fields) != chunkSamples {
		return false
	}
	vals := make([]int, chunkSamples)
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return false
		}
		vals[i] = v
	}
	copy(g.arbitrary[slot][int(chunk)*chunkSamples:], vals)
	return true
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
