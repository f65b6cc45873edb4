package command

import (
	"fmt"
	"math"
	"strings"

	"github.com/shaunagostinho/mhs5200/internal/mhs5200"
	"github.com/shaunagostinho/mhs5200/internal/wavefile"
)

const (
	minFrequency = 0.01
	maxFrequency = 25e6
	minDuty      = 0.1
	maxDuty      = 99.9
	minAmplitude = 0.005
	maxAmplitude = 20.0
	maxOffset    = 120
	maxPhase     = 359
	arbSlots     = 16
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func checkChannel(ch mhs5200.Channel) error {
	if ch != mhs5200.Channel1 && ch != mhs5200.Channel2 {
		return invalid("channel %d, want 1 or 2", ch)
	}
	return nil
}

func checkFloat(what string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return invalid("%s %g outside %g..%g", what, v, lo, hi)
	}
	return nil
}

func checkInt(what string, v, lo, hi int) error {
	if v < lo || v > hi {
		return invalid("%s %d outside %d..%d", what, v, lo, hi)
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// Frequency reads or sets a channel's frequency in Hz.
type Frequency struct {
	Channel mhs5200.Channel
	Hz      float64
	Set     bool
}

func (c *Frequency) Validate() error {
	if err := checkChannel(c.Channel); err != nil {
		return err
	}
	if !c.Set {
		return nil
	}
	return checkFloat("frequency", c.Hz, minFrequency, maxFrequency)
}

func (c *Frequency) Run(d *mhs5200.Driver) (string, error) {
	if c.Set {
		return "", d.SetFrequency(c.Channel, c.Hz)
	}
	hz, err := d.Frequency(c.Channel)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%.2f Hz", hz), nil
}

// Duty reads or sets a channel's duty cycle in percent.
type Duty struct {
	Channel mhs5200.Channel
	Percent float64
	Set     bool
}

func (c *Duty) Validate() error {
	if err := checkChannel(c.Channel); err != nil {
		return err
	}
	if !c.Set {
		return nil
	}
	return checkFloat("duty cycle", c.Percent, minDuty, maxDuty)
}

func (c *Duty) Run(d *mhs5200.Driver) (string, error) {
	if c.Set {
		return "", d.SetDutyCycle(c.Channel, c.Percent)
	}
	pct, err := d.DutyCycle(c.Channel)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%.1f %%", pct), nil
}

// Wave reads or selects a channel's waveform.
type Wave struct {
	Channel mhs5200.Channel
	Wave    mhs5200.WaveType
	Set     bool
}

func (c *Wave) Validate() error {
	if err := checkChannel(c.Channel); err != nil {
		return err
	}
	if c.Set {
		if _, ok := mhs5200.WaveCode(c.Wave); !ok {
			return invalid("wave %s", c.Wave)
		}
	}
	return nil
}

func (c *Wave) Run(d *mhs5200.Driver) (string, error) {
	if c.Set {
		return "", d.SetWaveType(c.Channel, c.Wave)
	}
	w, err := d.WaveType(c.Channel)
	if err != nil {
		return "", err
	}
	return w.String(), nil
}

// Amplitude reads or sets a channel's peak-to-peak amplitude in volts.
type Amplitude struct {
	Channel mhs5200.Channel
	Volts   float64
	Set     bool
}

func (c *Amplitude) Validate() error {
	if err := checkChannel(c.Channel); err != nil {
		return err
	}
	if !c.Set {
		return nil
	}
	// Both ends are rejected.
	if math.IsNaN(c.Volts) || c.Volts <= minAmplitude || c.Volts >= maxAmplitude {
		return invalid("amplitude %g outside %g..%g (exclusive)", c.Volts, minAmplitude, maxAmplitude)
	}
	return nil
}

func (c *Amplitude) Run(d *mhs5200.Driver) (string, error) {
	if c.Set {
		return "", d.SetAmplitude(c.Channel, c.Volts)
	}
	v, err := d.Amplitude(c.Channel)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%.3f Vpp", v), nil
}

// Offset reads or sets a channel's DC offset in percent.
type Offset struct {
	Channel mhs5200.Channel
	Percent int
	Set     bool
}

func (c *Offset) Validate() error {
	if err := checkChannel(c.Channel); err != nil {
		return err
	}
	if !c.Set {
		return nil
	}
	return checkInt("offset", c.Percent, -maxOffset, maxOffset)
}

func (c *Offset) Run(d *mhs5200.Driver) (string, error) {
	if c.Set {
		return "", d.SetOffset(c.Channel, c.Percent)
	}
	pct, err := d.Offset(c.Channel)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %%", pct), nil
}

// Phase reads or sets a channel's phase offset in degrees.
type Phase struct {
	Channel mhs5200.Channel
	Degrees int
	Set     bool
}

func (c *Phase) Validate() error {
	if err := checkChannel(c.Channel); err != nil {
		return err
	}
	if !c.Set {
		return nil
	}
	return checkInt("phase", c.Degrees, 0, maxPhase)
}

func (c *Phase) Run(d *mhs5200.Driver) (string, error) {
	if c.Set {
		return "", d.SetPhaseOffset(c.Channel, c.Degrees)
	}
	deg, err := d.PhaseOffset(c.Channel)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d deg", deg), nil
}

// Invert reads or sets a channel's output inversion.
type Invert struct {
	Channel mhs5200.Channel
	On      bool
	Set     bool
}

func (c *Invert) Validate() error { return checkChannel(c.Channel) }

func (c *Invert) Run(d *mhs5200.Driver) (string, error) {
	if c.Set {
		return "", d.SetInverted(c.Channel, c.On)
	}
	on, err := d.Inverted(c.Channel)
	if err != nil {
		return "", err
	}
	return onOff(on), nil
}

// Active reads or selects the displayed channel.
type Active struct {
	Channel mhs5200.Channel
	Set     bool
}

func (c *Active) Validate() error {
	if !c.Set {
		return nil
	}
	return checkChannel(c.Channel)
}

func (c *Active) Run(d *mhs5200.Driver) (string, error) {
	if c.Set {
		return "", d.SetActiveChannel(c.Channel)
	}
	ch, err := d.ActiveChannel()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("channel %d", ch), nil
}

// Output reads or switches the active channel's output.
type Output struct {
	On  bool
	Set bool
}

func (c *Output) Validate() error { return nil }

func (c *Output) Run(d *mhs5200.Driver) (string, error) {
	if c.Set {
		return "", d.SetOutputEnabled(c.On)
	}
	on, err := d.OutputEnabled()
	if err != nil {
		return "", err
	}
	return onOff(on), nil
}

// Status reads every setting of one channel.
type Status struct {
	Channel mhs5200.Channel
}

func (c *Status) Validate() error { return checkChannel(c.Channel) }

func (c *Status) Run(d *mhs5200.Driver) (string, error) {
	s, err := d.ChannelSettings(c.Channel)
	if err != nil {
		return "", err
	}
	return FormatSettings(s), nil
}

// FormatSettings renders a channel snapshot one setting per line.
func FormatSettings(s mhs5200.Settings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "channel %d\n", s.Channel)
	fmt.Fprintf(&b, "  frequency  %.2f Hz\n", s.Frequency)
	fmt.Fprintf(&b, "  wave       %s\n", s.Wave)
	fmt.Fprintf(&b, "  duty       %.1f %%\n", s.DutyCycle)
	fmt.Fprintf(&b, "  amplitude  %.3f Vpp (attenuator %s)\n", s.Amplitude, onOff(s.Attenuated))
	fmt.Fprintf(&b, "  offset     %d %%\n", s.Offset)
	fmt.Fprintf(&b, "  phase      %d deg\n", s.Phase)
	fmt.Fprintf(&b, "  inverted   %s", onOff(s.Inverted))
	return b.String()
}

// Save stores the current settings in a memory slot.
type Save struct {
	Slot int
}

func (c *Save) Validate() error {
	return checkInt("settings slot", c.Slot, 0, mhs5200.SettingsSlots-1)
}

func (c *Save) Run(d *mhs5200.Driver) (string, error) { return "", d.SaveSettings(c.Slot) }

// Load recalls a memory slot.
type Load struct {
	Slot int
}

func (c *Load) Validate() error {
	return checkInt("settings slot", c.Slot, 0, mhs5200.SettingsSlots-1)
}

func (c *Load) Run(d *mhs5200.Driver) (string, error) { return "", d.LoadSettings(c.Slot) }

// Upload programs an arbitrary waveform slot. Samples are read from Path
// during Validate unless they are already set.
type Upload struct {
	Slot    int
	Path    string
	Samples []int
}

func (c *Upload) Validate() error {
	if err := checkInt("arbitrary slot", c.Slot, 0, arbSlots-1); err != nil {
		return err
	}
	if c.Samples == nil && c.Path != "" {
		samples, err := wavefile.Load(c.Path)
		if err != nil {
			return invalid("%v", err)
		}
		c.Samples = samples
	}
	if len(c.Samples) != mhs5200.ArbitrarySamples {
		return invalid("%d samples, want %d", len(c.Samples), mhs5200.ArbitrarySamples)
	}
	return nil
}

func (c *Upload) Run(d *mhs5200.Driver) (string, error) {
	if err := d.UploadArbitrary(c.Slot, c.Samples); err != nil {
		return "", err
	}
	return fmt.Sprintf("arbitrary%d: %d samples uploaded", c.Slot, len(c.Samples)), nil
}

// Raw sends Text as typed, adding the newline terminator, and returns the
// frame it provokes.
type Raw struct {
	Text string
}

func (c *Raw) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return invalid("empty raw command")
	}
	return nil
}

func (c *Raw) Run(d *mhs5200.Driver) (string, error) {
	text := c.Text
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	f, err := d.Exchange(text)
	if err != nil {
		return "", err
	}
	return string(f), nil
}
