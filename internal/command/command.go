// Package command turns command-line words into validated generator
// operations.
//
// A Command checks its arguments in Validate without touching the device.
// Chain validates every command before running the first, so a typo at the
// end of a chain never leaves the generator half configured.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shaunagostinho/mhs5200/internal/mhs5200"
)

var (
	// ErrUsage means the words do not form a known command.
	ErrUsage = errors.New("usage")
	// ErrInvalid means an argument is outside the generator's range.
	ErrInvalid = errors.New("invalid argument")
)

// Command is one generator operation.
type Command interface {
	// Validate checks the arguments. It must not perform device I/O.
	Validate() error
	// Run performs the operation and returns printable output, which is
	// empty for commands that only change settings.
	Run(d *mhs5200.Driver) (string, error)
}

// Usage lists the accepted command forms.
const Usage = `commands (a channel is 1 or 2; omit the value to read it):
  freq <ch> [hz]          frequency, 0.01 Hz to 25 MHz
  duty <ch> [pct]         duty cycle, 0.1 to 99.9 %
  wave <ch> [name]        sine, square, triangle, sawtooth, sawtooth-reverse, arbitrary0..15
  amp <ch> [volts]        amplitude, above 0.005 and below 20 Vpp
  offset <ch> [pct]       DC offset, -120 to 120 %
  phase <ch> [deg]        phase offset, 0 to 359
  invert <ch> [on|off]    output inversion
  active [ch]             channel shown on the display
  output [on|off]         output of the active channel
  status <ch>             every setting of a channel
  save <slot>             store settings in slot 0..9
  load <slot>             recall settings from slot 0..9
  upload <slot> <file>    program arbitrary slot 0..15 from a sample file
                          (over the websocket, send "samples" instead of a file)
  raw <text>              send text verbatim and print the reply`

// Parse builds one command from its words, e.g. ["freq", "1", "1000"].
func Parse(words []string) (Command, error) {
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrUsage)
	}
	name, args := strings.ToLower(words[0]), words[1:]

	switch name {
	case "freq", "frequency":
		return parseChannelValue(name, args, func(ch mhs5200.Channel, v string, set bool) (Command, error) {
			c := &Frequency{Channel: ch, Set: set}
			return c, parseFloat(v, set, &c.Hz)
		})
	case "duty":
		return parseChannelValue(name, args, func(ch mhs5200.Channel, v string, set bool) (Command, error) {
			c := &Duty{Channel: ch, Set: set}
			return c, parseFloat(v, set, &c.Percent)
		})
	case "wave":
		return parseChannelValue(name, args, func(ch mhs5200.Channel, v string, set bool) (Command, error) {
			c := &Wave{Channel: ch, Set: set}
			if set {
				w, err := mhs5200.ParseWaveType(v)
				if err != nil {
					return nil, fmt.Errorf("%w: %v", ErrUsage, err)
				}
				c.Wave = w
			}
			return c, nil
		})
	case "amp", "amplitude":
		return parseChannelValue(name, args, func(ch mhs5200.Channel, v string, set bool) (Command, error) {
			c := &Amplitude{Channel: ch, Set: set}
			return c, parseFloat(v, set, &c.Volts)
		})
	case "offset":
		return parseChannelValue(name, args, func(ch mhs5200.Channel, v string, set bool) (Command, error) {
			c := &Offset{Channel: ch, Set: set}
			return c, parseInt(v, set, &c.Percent)
		})
	case "phase":
		return parseChannelValue(name, args, func(ch mhs5200.Channel, v string, set bool) (Command, error) {
			c := &Phase{Channel: ch, Set: set}
			return c, parseInt(v, set, &c.Degrees)
		})
	case "invert":
		return parseChannelValue(name, args, func(ch mhs5200.Channel, v string, set bool) (Command, error) {
			c := &Invert{Channel: ch, Set: set}
			return c, parseBool(v, set, &c.On)
		})
	case "active":
		if len(args) > 1 {
			return nil, fmt.Errorf("%w: active [ch]", ErrUsage)
		}
		c := &Active{Set: len(args) == 1}
		if c.Set {
			ch, err := parseChannel(args[0])
			if err != nil {
				return nil, err
			}
			c.Channel = ch
		}
		return c, nil
	case "output":
		if len(args) > 1 {
			return nil, fmt.Errorf("%w: output [on|off]", ErrUsage)
		}
		c := &Output{Set: len(args) == 1}
		if c.Set {
			if err := parseBool(args[0], true, &c.On); err != nil {
				return nil, err
			}
		}
		return c, nil
	case "status":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: status <ch>", ErrUsage)
		}
		ch, err := parseChannel(args[0])
		if err != nil {
			return nil, err
		}
		return &Status{Channel: ch}, nil
	case "save", "load":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: %s <slot>", ErrUsage, name)
		}
		var slot int
		if err := parseInt(args[0], true, &slot); err != nil {
			return nil, err
		}
		if name == "save" {
			return &Save{Slot: slot}, nil
		}
		return &Load{Slot: slot}, nil
	case "upload":
		if len(args) < 1 || len(args) > 2 {
			return nil, fmt.Errorf("%w: upload <slot> [file]", ErrUsage)
		}
		c := &Upload{}
		if len(args) == 2 {
			c.Path = args[1]
		}
		if err := parseInt(args[0], true, &c.Slot); err != nil {
			return nil, err
		}
		return c, nil
	case "raw":
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: raw <text>", ErrUsage)
		}
		return &Raw{Text: strings.Join(args, " ")}, nil
	}
	return nil, fmt.Errorf("%w: unknown command %q", ErrUsage, words[0])
}

type channelBuilder func(ch mhs5200.Channel, value string, set bool) (Command, error)

// parseChannelValue handles the "<name> <ch> [value]" form.
func parseChannelValue(name string, args []string, build channelBuilder) (Command, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("%w: %s <ch> [value]", ErrUsage, name)
	}
	ch, err := parseChannel(args[0])
	if err != nil {
		return nil, err
	}
	value, set := "", len(args) == 2
	if set {
		value = args[1]
	}
	c, err := build(ch, value, set)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func parseChannel(s string) (mhs5200.Channel, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(s), "ch"))
	if err != nil {
		return 0, fmt.Errorf("%w: bad channel %q", ErrUsage, s)
	}
	return mhs5200.Channel(n), nil
}

func parseFloat(s string, set bool, dst *float64) error {
	if !set {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("%w: bad number %q", ErrUsage, s)
	}
	*dst = v
	return nil
}

func parseInt(s string, set bool, dst *int) error {
	if !set {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%w: bad integer %q", ErrUsage, s)
	}
	*dst = v
	return nil
}

func parseBool(s string, set bool, dst *bool) error {
	if !set {
		return nil
	}
	switch strings.ToLower(s) {
	case "on", "1", "true", "yes":
		*dst = true
	case "off", "0", "false", "no":
		*dst = false
	default:
		return fmt.Errorf("%w: expected on or off, got %q", ErrUsage, s)
	}
	return nil
}

// Chain is a sequence of commands run in order.
type Chain []Command

// ParseChain splits words on "," into commands. A comma may stand alone or
// end a word: "freq 1 1000, amp 1 2" and "freq 1 1000 , amp 1 2" are the
// same chain. A raw command takes every remaining word, commas included, so
// it must come last.
func ParseChain(words []string) (Chain, error) {
	var (
		chain Chain
		cur   []string
	)
	flush := func() error {
		if len(cur) == 0 {
			return nil
		}
		c, err := Parse(cur)
		if err != nil {
			return fmt.Errorf("command %d: %w", len(chain)+1, err)
		}
		chain = append(chain, c)
		cur = nil
		return nil
	}
	for i, w := range words {
		if len(cur) == 0 && strings.EqualFold(w, "raw") {
			cur = words[i:]
			break
		}
		parts := strings.Split(w, ",")
		for j, p := range parts {
			if j > 0 {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			if p != "" {
				cur = append(cur, p)
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: no command given", ErrUsage)
	}
	return chain, nil
}

// Validate checks every command and reports the first failure by position.
func (c Chain) Validate() error {
	for i, cmd := range c {
		if err := cmd.Validate(); err != nil {
			return fmt.Errorf("command %d: %w", i+1, err)
		}
	}
	return nil
}

// Run validates the whole chain, then runs it in order, stopping at the
// first failure. The outputs of the commands that ran are returned.
func (c Chain) Run(d *mhs5200.Driver) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	var out []string
	for i, cmd := range c {
		s, err := cmd.Run(d)
		if err != nil {
			return out, fmt.Errorf("command %d: %w", i+1, err)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
