package spectral

import "sync"

// MaxHold keeps a per-channel running maximum across successive spectra. Values it
// returns are copies, so later updates or a reset never alter earlier results.
type MaxHold struct {
	mu      sync.Mutex
	enabled bool
	held    map[int][]float64
}

func NewMaxHold() *MaxHold {
	return &MaxHold{held: make(map[int][]float64)}
}

// SetEnabled turns max-hold on or off. Turning it off discards held data.
func (m *MaxHold) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = enabled
	if !enabled {
		clear(m.held)
	}
}

func (m *MaxHold) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Reset discards held data for every channel
func (m *MaxHold) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.held)
}

// Update folds values into the channel maximum and returns a copy of it. It returns
// nil when max-hold is disabled. A change in bin count restarts the channel.
func (m *MaxHold) Update(channel int, values []float64) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return nil
	}

	held, ok := m.held[channel]
	if !ok || len(held) != len(values) {
		held = append([]float64(nil), values...)
		m.held[channel] = held
	} else {
		for i, v := range values {
			if v > held[i] {
				held[i] = v
			}
		}
	}

	return append([]float64(nil), held...)
}

// Get returns a copy of the channel maximum, or nil
func (m *MaxHold) Get(channel int) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if held, ok := m.held[channel]; ok {
		return append([]float64(nil), held...)
	}
	return nil
}
