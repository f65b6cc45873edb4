package mhs5200

import "fmt"

// WaveType is an output waveform.
type WaveType int

const (
	Unknown WaveType = iota - 1
	Sine
	Square
	Triangle
	Sawtooth
	SawtoothReverse
	Arbitrary0
	Arbitrary1
	Arbitrary2
	Arbitrary3
	Arbitrary4
	Arbitrary5
	Arbitrary6
	Arbitrary7
	Arbitrary8
	Arbitrary9
	Arbitrary10
	Arbitrary11
	Arbitrary12
	Arbitrary13
	Arbitrary14
	Arbitrary15
)

const (
	arbitraryCodeBase = 32 // Arbitrary0 as written and as read on current firmware
	legacyCodeBase    = 10 // Arbitrary0 as reported by older firmware
	arbitrarySlots    = 16
)

var (
	waveToCode   = map[WaveType]int{}
	waveFromCode = map[int]WaveType{}
	waveNames    = map[WaveType]string{
		Sine:            "sine",
		Square:          "square",
		Triangle:        "triangle",
		Sawtooth:        "sawtooth",
		SawtoothReverse: "sawtooth-reverse",
	}
)

func init() {
	for w := Sine; w <= SawtoothReverse; w++ {
		waveToCode[w] = int(w)
		waveFromCode[int(w)] = w
	}
	for i := 0; i < arbitrarySlots; i++ {
		w := Arbitrary0 + WaveType(i)
		waveToCode[w] = arbitraryCodeBase + i
		waveFromCode[arbitraryCodeBase+i] = w
		waveFromCode[legacyCodeBase+i] = w
		waveNames[w] = fmt.Sprintf("arbitrary%d", i)
	}
}

// WaveCode returns the code written to select w.
func WaveCode(w WaveType) (int, bool) {
	c, ok := waveToCode[w]
	return c, ok
}

// WaveFromCode maps a code read from the device, legacy arbitrary codes
// included, to a WaveType. Unrecognised codes give Unknown.
func WaveFromCode(code int) WaveType {
	if w, ok := waveFromCode[code]; ok {
		return w
	}
	return Unknown
}

// ArbitraryWave returns the WaveType that plays arbitrary slot n.
func ArbitraryWave(n int) (WaveType, bool) {
	if n < 0 || n >= arbitrarySlots {
		return Unknown, false
	}
	return Arbitrary0 + WaveType(n), true
}

// ParseWaveType accepts the names returned by String.
func ParseWaveType(s string) (WaveType, error) {
	for w, name := range waveNames {
		if name == s {
			return w, nil
		}
	}
	return Unknown, fmt.Errorf("unknown wave type %q", s)
}

func (w WaveType) String() string {
	if name, ok := waveNames[w]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets WaveType travel as its name in JSON and YAML.
func (w WaveType) MarshalText() ([]byte, error) { return []byte(w.String()), nil }

func (w *WaveType) UnmarshalText(b []byte) error {
	v, err := ParseWaveType(string(b))
	if err != nil {
		return err
	}
	*w = v
	return nil
}
