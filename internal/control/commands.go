package control

import (
	"fmt"
	"strconv"

	"github.com/roman-kulish/eegstream/internal/errs"
)

// Board command vocabulary. The board answers each line with "OK: ..." or "ERR: ...".
const (
	CmdStartCount = "sys start_cnt"
	CmdStopCount  = "sys stop_cnt"
	CmdADCReset   = "sys adc_reset"
	CmdReboot     = "sys esp_reboot"

	KeepAlivePayload = "floof"

	// BeaconPayload is the single byte a board broadcasts while it has no peer
	BeaconPayload = "\n"

	AckPrefix   = "OK"
	ErrorPrefix = "ERR"
)

// DCCutoffFrequencies lists the high-pass corners the board supports
var DCCutoffFrequencies = []float64{0.5, 1, 2, 4, 8}

func onOff(name string, on bool) string {
	if on {
		return "sys " + name + "_on"
	}
	return "sys " + name + "_off"
}

// FiltersMaster toggles all on-board filtering
func FiltersMaster(on bool) string {
	return onOff("filters", on)
}

// EqualizerFilter toggles the on-board sinc compensation FIR
func EqualizerFilter(on bool) string {
	return onOff("filter_equalizer", on)
}

// DCFilter toggles the on-board DC-blocking high-pass
func DCFilter(on bool) string {
	return onOff("filter_dc", on)
}

// MainsFilter toggles the on-board 50/60 Hz notch
func MainsFilter(on bool) string {
	return onOff("filter_5060", on)
}

// HarmonicFilter toggles the on-board 100/120 Hz notch
func HarmonicFilter(on bool) string {
	return onOff("filter_100120", on)
}

// NetworkFrequency selects the mains frequency used by the board notches
func NetworkFrequency(hz int) (string, error) {
	if hz != 50 && hz != 60 {
		return "", errs.NewConfigError("mains frequency must be 50 or 60 Hz, got %d", hz)
	}
	return fmt.Sprintf("sys networkfreq %d", hz), nil
}

// DCCutoff selects the board high-pass corner frequency
func DCCutoff(hz float64) (string, error) {
	for _, f := range DCCutoffFrequencies {
		if f == hz {
			return "sys dccutofffreq " + strconv.FormatFloat(hz, 'f', -1, 64), nil
		}
	}
	return "", errs.NewConfigError("unsupported DC cutoff %g Hz", hz)
}

// DigitalGain sets the board digital gain, a power of two from 1 to 256
func DigitalGain(gain int) (string, error) {
	if gain < 1 || gain > 256 || gain&(gain-1) != 0 {
		return "", errs.NewConfigError("digital gain must be a power of two in [1, 256], got %d", gain)
	}
	return fmt.Sprintf("sys digitalgain %d", gain), nil
}
