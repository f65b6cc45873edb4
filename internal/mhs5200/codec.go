package mhs5200

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Operation letters.
const (
	opFrequency   = 'f'
	opDuty        = 'd'
	opWave        = 'w'
	opOffset      = 'o'
	opPhase       = 'p'
	opAttenuation = 'y'
	opAmplitude   = 'a'
	opStatus      = 'b'
	opSave        = 'u'
	opLoad        = 'v'
)

const (
	// attenuationThreshold is the amplitude below which the output
	// attenuator is engaged and the finer x1000 scale is used.
	attenuationThreshold = 2.0
	attenuatedScale      = 1000.0
	normalScale          = 100.0
	offsetBias           = 120

	// truncEpsilon absorbs binary representation error on the scaled value
	// (1.999*1000 is 1998.9999999999998) before truncating to an integer
	// wire value.
	truncEpsilon = 1e-6
)

// The generator answers attenuation queries with 0 when the attenuator is on.
const (
	attenuationOn  = '0'
	attenuationOff = '1'
)

// Channel is an output channel, 1 or 2.
type Channel int

const (
	Channel1 Channel = 1
	Channel2 Channel = 2
)

func (c Channel) valid() bool { return c == Channel1 || c == Channel2 }

// addr is the channel digit used by every per-channel operation.
func (c Channel) addr() (string, error) {
	if !c.valid() {
		return "", outOfRange("channel", int(c))
	}
	return strconv.Itoa(int(c)), nil
}

// letterAddr is the 'a'/'b' form the inversion operation uses instead.
func (c Channel) letterAddr() (string, error) {
	switch c {
	case Channel1:
		return "a", nil
	case Channel2:
		return "b", nil
	}
	return "", outOfRange("channel", int(c))
}

func queryCmd(addr string, op byte) string {
	return ":r" + addr + string(op) + "\n"
}

func setCmd(addr string, op byte, value string) string {
	return ":s" + addr + string(op) + value + "\n"
}

// responsePrefix is the echo the generator puts in front of a read value.
func responsePrefix(addr string, op byte) string {
	return "r" + addr + string(op)
}

func truncScaled(v, scale float64) int64 {
	x := v * scale
	return int64(math.Floor(x + truncEpsilon))
}

func fitDigits(v int64, digits int) bool {
	return v >= 0 && v < int64(math.Pow10(digits))
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// encodeFrequency gives the 8-digit Hz and 2-digit hundredths field.
// Sub-hundredth digits are truncated.
func encodeFrequency(hz float64) (string, error) {
	if math.IsNaN(hz) || hz < 0 || hz >= 1e8 {
		return "", outOfRange("frequency", hz)
	}
	cents := truncScaled(hz, 100)
	if !fitDigits(cents, 10) {
		return "", outOfRange("frequency", hz)
	}
	return fmt.Sprintf("%08d%02d", cents/100, cents%100), nil
}

func encodeDuty(pct float64) (string, error) {
	if math.IsNaN(pct) || pct < 0 || pct >= 100 {
		return "", outOfRange("duty cycle", pct)
	}
	tenths := truncScaled(pct, 10)
	if !fitDigits(tenths, 3) {
		return "", outOfRange("duty cycle", pct)
	}
	return fmt.Sprintf("%03d", tenths), nil
}

// encodeAmplitude returns whether the attenuator must be engaged and the
// 4-digit magnitude in the matching scale.
func encodeAmplitude(volts float64) (bool, string, error) {
	if math.IsNaN(volts) || volts < 0 || volts >= 100 {
		return false, "", outOfRange("amplitude", volts)
	}
	attenuate := volts < attenuationThreshold
	scale := normalScale
	if attenuate {
		scale = attenuatedScale
	}
	m := truncScaled(volts, scale)
	if !fitDigits(m, 4) {
		return false, "", outOfRange("amplitude", volts)
	}
	return attenuate, fmt.Sprintf("%04d", m), nil
}

func encodeOffset(pct int) (string, error) {
	w := int64(pct + offsetBias)
	if !fitDigits(w, 3) {
		return "", outOfRange("offset", pct)
	}
	return fmt.Sprintf("%03d", w), nil
}

func encodePhase(deg int) (string, error) {
	if !fitDigits(int64(deg), 3) {
		return "", outOfRange("phase", deg)
	}
	return fmt.Sprintf("%03d", deg), nil
}

func encodeWave(w WaveType) (string, error) {
	code, ok := WaveCode(w)
	if !ok {
		return "", outOfRange("wave type", w)
	}
	return strconv.Itoa(code), nil
}

// parseValue strips the echoed prefix from a read response and returns the
// digits that follow, which must number between minDigits and maxDigits.
func parseValue(cmd string, f Frame, prefix string, minDigits, maxDigits int) (string, error) {
	content := string(f)
	if f.IsOK() {
		return "", protocolError(cmd, f, "acknowledgement where a value was expected")
	}
	if !strings.HasPrefix(content, prefix) {
		return "", protocolError(cmd, f, fmt.Sprintf("missing echo %q", prefix))
	}
	digits := content[len(prefix):]
	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", protocolError(cmd, f, fmt.Sprintf("want %d-%d digits, got %d", minDigits, maxDigits, len(digits)))
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return "", protocolError(cmd, f, "non-digit in value")
		}
	}
	return digits, nil
}

func parseInt(cmd string, f Frame, prefix string, minDigits, maxDigits int) (int, error) {
	digits, err := parseValue(cmd, f, prefix, minDigits, maxDigits)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(digits)
}

func decodeFrequency(cmd string, f Frame, prefix string) (float64, error) {
	digits, err := parseValue(cmd, f, prefix, 10, 10)
	if err != nil {
		return 0, err
	}
	hz, _ := strconv.Atoi(digits[:8])
	cents, _ := strconv.Atoi(digits[8:])
	return float64(hz) + float64(cents)/100, nil
}

func decodeAttenuation(cmd string, f Frame, prefix string) (bool, error) {
	digits, err := parseValue(cmd, f, prefix, 1, 1)
	if err != nil {
		return false, err
	}
	switch digits[0] {
	case attenuationOn:
		return true, nil
	case attenuationOff:
		return false, nil
	}
	return false, protocolError(cmd, f, "attenuation flag not 0 or 1")
}

func protocolError(cmd string, f Frame, reason string) error {
	return &ProtocolError{Command: strings.TrimSpace(cmd), Response: string(f), Reason: reason}
}
