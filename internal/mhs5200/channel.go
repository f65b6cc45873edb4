package mhs5200

// Settings is a snapshot of one channel.
type Settings struct {
	Channel    Channel  `json:"channel" yaml:"channel"`
	Frequency  float64  `json:"frequency" yaml:"frequency"`   // Hz
	DutyCycle  float64  `json:"dutyCycle" yaml:"duty_cycle"`  // %
	Wave       WaveType `json:"wave" yaml:"wave"`
	Amplitude  float64  `json:"amplitude" yaml:"amplitude"`   // Vpp
	Attenuated bool     `json:"attenuated" yaml:"attenuated"`
	Offset     int      `json:"offset" yaml:"offset"`         // %
	Phase      int      `json:"phase" yaml:"phase"`           // degrees
	Inverted   bool     `json:"inverted" yaml:"inverted"`
}

// readInt runs a query for op on addr and parses its integer value.
// d.mu must be held.
func (d *Driver) readInt(addr string, op byte, minDigits, maxDigits int) (int, error) {
	cmd := queryCmd(addr, op)
	f, err := d.exchange(cmd)
	if err != nil {
		return 0, err
	}
	return parseInt(cmd, f, responsePrefix(addr, op), minDigits, maxDigits)
}

func (d *Driver) frequency(addr string) (float64, error) {
	cmd := queryCmd(addr, opFrequency)
	f, err := d.exchange(cmd)
	if err != nil {
		return 0, err
	}
	return decodeFrequency(cmd, f, responsePrefix(addr, opFrequency))
}

// Frequency returns the channel frequency in Hz with hundredth precision.
func (d *Driver) Frequency(ch Channel) (float64, error) {
	addr, err := ch.addr()
	if err != nil {
		return 0, err
	}
	var hz float64
	err = d.locked(func() error {
		hz, err = d.frequency(addr)
		return err
	})
	return hz, err
}

// SetFrequency sets the channel frequency. Digits below 0.01 Hz are
// truncated.
func (d *Driver) SetFrequency(ch Channel, hz float64) error {
	addr, err := ch.addr()
	if err != nil {
		return err
	}
	v, err := encodeFrequency(hz)
	if err != nil {
		return err
	}
	return d.locked(func() error { return d.command(setCmd(addr, opFrequency, v)) })
}

func (d *Driver) dutyCycle(addr string) (float64, error) {
	tenths, err := d.readInt(addr, opDuty, 1, 3)
	return float64(tenths) / 10, err
}

// DutyCycle returns the duty cycle in percent, one decimal.
func (d *Driver) DutyCycle(ch Channel) (float64, error) {
	addr, err := ch.addr()
	if err != nil {
		return 0, err
	}
	var pct float64
	err = d.locked(func() error {
		pct, err = d.dutyCycle(addr)
		return err
	})
	return pct, err
}

// SetDutyCycle sets the duty cycle in percent; tenths are kept.
func (d *Driver) SetDutyCycle(ch Channel, pct float64) error {
	addr, err := ch.addr()
	if err != nil {
		return err
	}
	v, err := encodeDuty(pct)
	if err != nil {
		return err
	}
	return d.locked(func() error { return d.command(setCmd(addr, opDuty, v)) })
}

func (d *Driver) waveType(addr string) (WaveType, error) {
	code, err := d.readInt(addr, opWave, 1, 2)
	if err != nil {
		return Unknown, err
	}
	return WaveFromCode(code), nil
}

// WaveType returns the channel waveform. Codes the table does not know
// give Unknown without an error.
func (d *Driver) WaveType(ch Channel) (WaveType, error) {
	addr, err := ch.addr()
	if err != nil {
		return Unknown, err
	}
	var w WaveType
	err = d.locked(func() error {
		w, err = d.waveType(addr)
		return err
	})
	return w, err
}

// SetWaveType selects the channel waveform.
func (d *Driver) SetWaveType(ch Channel, w WaveType) error {
	addr, err := ch.addr()
	if err != nil {
		return err
	}
	v, err := encodeWave(w)
	if err != nil {
		return err
	}
	return d.locked(func() error { return d.command(setCmd(addr, opWave, v)) })
}

func (d *Driver) offset(addr string) (int, error) {
	w, err := d.readInt(addr, opOffset, 1, 3)
	return w - offsetBias, err
}

// Offset returns the DC offset in percent, -120..120.
func (d *Driver) Offset(ch Channel) (int, error) {
	addr, err := ch.addr()
	if err != nil {
		return 0, err
	}
	var pct int
	err = d.locked(func() error {
		pct, err = d.offset(addr)
		return err
	})
	if err != nil {
		return 0, err
	}
	return pct, nil
}

// SetOffset sets the DC offset in percent.
func (d *Driver) SetOffset(ch Channel, pct int) error {
	addr, err := ch.addr()
	if err != nil {
		return err
	}
	v, err := encodeOffset(pct)
	if err != nil {
		return err
	}
	return d.locked(func() error { return d.command(setCmd(addr, opOffset, v)) })
}

// PhaseOffset returns the phase offset in degrees.
func (d *Driver) PhaseOffset(ch Channel) (int, error) {
	addr, err := ch.addr()
	if err != nil {
		return 0, err
	}
	var deg int
	err = d.locked(func() error {
		deg, err = d.readInt(addr, opPhase, 1, 3)
		return err
	})
	return deg, err
}

// SetPhaseOffset sets the phase offset in degrees.
func (d *Driver) SetPhaseOffset(ch Channel, deg int) error {
	addr, err := ch.addr()
	if err != nil {
		return err
	}
	v, err := encodePhase(deg)
	if err != nil {
		return err
	}
	return d.locked(func() error { return d.command(setCmd(addr, opPhase, v)) })
}

func (d *Driver) attenuated(addr string) (bool, error) {
	cmd := queryCmd(addr, opAttenuation)
	f, err := d.exchange(cmd)
	if err != nil {
		return false, err
	}
	return decodeAttenuation(cmd, f, responsePrefix(addr, opAttenuation))
}

// Attenuated reports whether the channel's output attenuator is engaged.
func (d *Driver) Attenuated(ch Channel) (bool, error) {
	addr, err := ch.addr()
	if err != nil {
		return false, err
	}
	var on bool
	err = d.locked(func() error {
		on, err = d.attenuated(addr)
		return err
	})
	return on, err
}

// amplitude reads the attenuator and then the magnitude; the scale of the
// second depends on the first.
func (d *Driver) amplitude(addr string) (float64, bool, error) {
	att, err := d.attenuated(addr)
	if err != nil {
		return 0, false, err
	}
	raw, err := d.readInt(addr, opAmplitude, 1, 4)
	if err != nil {
		return 0, false, err
	}
	if att {
		return float64(raw) / attenuatedScale, true, nil
	}
	return float64(raw) / normalScale, false, nil
}

// Amplitude returns the peak-to-peak amplitude in volts. Both underlying
// queries run under one lock and either failing fails the read.
func (d *Driver) Amplitude(ch Channel) (float64, error) {
	addr, err := ch.addr()
	if err != nil {
		return 0, err
	}
	var volts float64
	err = d.locked(func() error {
		volts, _, err = d.amplitude(addr)
		return err
	})
	if err != nil {
		return 0, err
	}
	return volts, nil
}

// SetAmplitude sets the peak-to-peak amplitude in volts. Below 2 V the
// attenuator is engaged first and millivolt resolution is used. If the
// attenuator write succeeds but the magnitude write fails, the attenuator
// stays switched.
func (d *Driver) SetAmplitude(ch Channel, volts float64) error {
	addr, err := ch.addr()
	if err != nil {
		return err
	}
	attenuate, v, err := encodeAmplitude(volts)
	if err != nil {
		return err
	}
	flag := string(attenuationOff)
	if attenuate {
		flag = string(attenuationOn)
	}
	return d.locked(func() error {
		if err := d.command(setCmd(addr, opAttenuation, flag)); err != nil {
			return err
		}
		return d.command(setCmd(addr, opAmplitude, v))
	})
}

func (d *Driver) inverted(ch Channel) (bool, error) {
	addr, err := ch.letterAddr()
	if err != nil {
		return false, err
	}
	v, err := d.readInt(addr, opStatus, 1, 1)
	return v != 0, err
}

// Inverted reports whether the channel output is inverted.
func (d *Driver) Inverted(ch Channel) (bool, error) {
	if !ch.valid() {
		return false, outOfRange("channel", int(ch))
	}
	var on bool
	err := d.locked(func() error {
		var err error
		on, err = d.inverted(ch)
		return err
	})
	if err != nil {
		return false, err
	}
	return on, nil
}

// SetInverted inverts or restores the channel output.
func (d *Driver) SetInverted(ch Channel, on bool) error {
	addr, err := ch.letterAddr()
	if err != nil {
		return err
	}
	return d.locked(func() error { return d.command(setCmd(addr, opStatus, boolDigit(on))) })
}

// Device-wide settings are addressed through the status operation with a
// fixed selector instead of a channel.
const (
	selectorOutput = "1"
	selectorActive = "2"
)

// ActiveChannel returns the channel shown on the generator's display.
func (d *Driver) ActiveChannel() (Channel, error) {
	var ch Channel
	err := d.locked(func() error {
		cmd := queryCmd(selectorActive, opStatus)
		f, err := d.exchange(cmd)
		if err != nil {
			return err
		}
		v, err := parseInt(cmd, f, responsePrefix(selectorActive, opStatus), 1, 1)
		if err != nil {
			return err
		}
		ch = Channel(v)
		if !ch.valid() {
			return protocolError(cmd, f, "channel not 1 or 2")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return ch, nil
}

// SetActiveChannel selects the channel shown on the generator's display.
func (d *Driver) SetActiveChannel(ch Channel) error {
	addr, err := ch.addr()
	if err != nil {
		return err
	}
	return d.locked(func() error { return d.command(setCmd(selectorActive, opStatus, addr)) })
}

// OutputEnabled reports whether the active channel's output is on.
func (d *Driver) OutputEnabled() (bool, error) {
	var on bool
	err := d.locked(func() error {
		v, err := d.readInt(selectorOutput, opStatus, 1, 1)
		on = v != 0
		return err
	})
	if err != nil {
		return false, err
	}
	return on, nil
}

// SetOutputEnabled turns the active channel's output on or off.
func (d *Driver) SetOutputEnabled(on bool) error {
	return d.locked(func() error { return d.command(setCmd(selectorOutput, opStatus, boolDigit(on))) })
}

// ChannelSettings reads every per-channel setting in one locked sequence.
func (d *Driver) ChannelSettings(ch Channel) (Settings, error) {
	addr, err := ch.addr()
	if err != nil {
		return Settings{}, err
	}
	s := Settings{Channel: ch}
	err = d.locked(func() error {
		var err error
		if s.Frequency, err = d.frequency(addr); err != nil {
			return err
		}
		if s.DutyCycle, err = d.dutyCycle(addr); err != nil {
			return err
		}
		if s.Wave, err = d.waveType(addr); err != nil {
			return err
		}
		if s.Amplitude, s.Attenuated, err = d.amplitude(addr); err != nil {
			return err
		}
		if s.Offset, err = d.offset(addr); err != nil {
			return err
		}
		if s.Phase, err = d.readInt(addr, opPhase, 1, 3); err != nil {
			return err
		}
		s.Inverted, err = d.inverted(ch)
		return err
	})
	if err != nil {
		return Settings{}, err
	}
	return s, nil
}
