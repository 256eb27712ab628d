package app

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/roman-kulish/eegstream/internal/control"
)

// BoardState is the command-controlled state of the simulated board
type BoardState struct {
	Streaming   bool
	Equalizer   bool
	DCBlock     bool
	Mains       bool
	Harmonic    bool
	DCCutoff    float64
	NetworkFreq int
	DigitalGain int
	ADCResets   int
}

// Board interprets text commands the way the firmware does. Every accepted
// command is answered with an OK line, rejected ones with an ERR line.
type Board struct {
	mu    sync.Mutex
	state BoardState
}

func NewBoard(streaming bool) *Board {
	return &Board{
		state: BoardState{
			Streaming:   streaming,
			DCCutoff:    0.5,
			NetworkFreq: 50,
			DigitalGain: 1,
		},
	}
}

// State returns a copy of the current state
func (b *Board) State() BoardState {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Streaming reports whether telemetry should be sent
func (b *Board) Streaming() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state.Streaming
}

// SetStreaming is used by the link watchdog when the host goes away
func (b *Board) SetStreaming(on bool) {
	b.mu.Lock()
	b.state.Streaming = on
	b.mu.Unlock()
}

// Execute runs one command line and returns the reply without the line terminator.
// An empty reply means the line carried no command.
func (b *Board) Execute(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}

	switch strings.ToLower(fields[0]) {
	case "sys":
		return b.sys(fields[1:])
	case "spi":
		return errorReply("spi - not available on the simulator")
	case "usr":
		return ok(strings.Join(fields, " "))
	default:
		return errorReply("got unknown family, expected (spi|sys|usr)")
	}
}

func (b *Board) sys(args []string) string {
	if len(args) == 0 {
		return errorReply("sys - missing command (see docs)")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cmd := strings.ToLower(args[0])
	switch cmd {
	case "adc_reset":
		b.state.ADCResets++
	case "start_cnt":
		b.state.Streaming = true
	case "stop_cnt":
		b.state.Streaming = false
	case "filter_equalizer_on", "filter_equalizer_off":
		b.state.Equalizer = strings.HasSuffix(cmd, "_on")
	case "filter_dc_on", "filter_dc_off":
		b.state.DCBlock = strings.HasSuffix(cmd, "_on")
	case "filter_5060_on", "filter_5060_off":
		b.state.Mains = strings.HasSuffix(cmd, "_on")
	case "filter_100120_on", "filter_100120_off":
		b.state.Harmonic = strings.HasSuffix(cmd, "_on")
	case "filters_on", "filters_off":
		on := strings.HasSuffix(cmd, "_on")
		b.state.Equalizer, b.state.DCBlock, b.state.Mains, b.state.Harmonic = on, on, on, on

	case "dccutofffreq":
		if len(args) < 2 {
			return errorReply("dccutofffreq - missing value (0.5,1,2,4,8)")
		}
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil || !slices.Contains(control.DCCutoffFrequencies, v) {
			return errorReply("dccutofffreq - value must be 0.5, 1, 2, 4, or 8")
		}
		b.state.DCCutoff = v
		return ok(fmt.Sprintf("dccutofffreq set to %.1f", v))

	case "networkfreq":
		if len(args) < 2 {
			return errorReply("networkfreq - missing value (50 or 60)")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || (v != 50 && v != 60) {
			return errorReply("networkfreq - value must be 50 or 60")
		}
		b.state.NetworkFreq = v
		return ok(fmt.Sprintf("networkfreq set to %d", v))

	case "digitalgain":
		if len(args) < 2 {
			return errorReply("digitalgain - missing value (1,2,...,256)")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 1 || v > 256 || v&(v-1) != 0 {
			return errorReply("digitalgain - must be 1,2,4,...256 (power of two)")
		}
		b.state.DigitalGain = v
		return ok(fmt.Sprintf("digitalgain set to %d", v))

	default:
		return errorReply(fmt.Sprintf("sys - got '%s', expected (adc_reset|start_cnt|stop_cnt|filter_equalizer_on|filter_equalizer_off|filter_dc_on|filter_dc_off|filter_5060_on|filter_5060_off|filter_100120_on|filter_100120_off|filters_on|filters_off|dccutofffreq|networkfreq|digitalgain)", args[0]))
	}

	return ok(cmd)
}

func ok(text string) string {
	return control.AckPrefix + ": " + text
}

func errorReply(text string) string {
	return control.ErrorPrefix + ": " + text
}

