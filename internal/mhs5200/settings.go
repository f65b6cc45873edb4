package mhs5200

import "strconv"

// SettingsSlots is the number of device memory slots for saved settings.
const SettingsSlots = 10

func slotAddr(slot int) (string, error) {
	if slot < 0 || slot >= SettingsSlots {
		return "", outOfRange("settings slot", slot)
	}
	return strconv.Itoa(slot), nil
}

// SaveSettings stores the current settings in memory slot 0..9. What is
// stored is up to the generator firmware.
func (d *Driver) SaveSettings(slot int) error {
	addr, err := slotAddr(slot)
	if err != nil {
		return err
	}
	return d.locked(func() error { return d.command(setCmd(addr, opSave, "")) })
}

// LoadSettings recalls memory slot 0..9.
func (d *Driver) LoadSettings(slot int) error {
	addr, err := slotAddr(slot)
	if err != nil {
		return err
	}
	return d.locked(func() error { return d.command(setCmd(addr, opLoad, "")) })
}
