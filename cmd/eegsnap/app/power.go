package app

import "math"

const (
	// Spectral density of microvolt-level EEG sits well below 0 dB V^2/Hz
	defaultMinPower = -160.0
	defaultMaxPower = -60.0

	// For 20 samples:
	// - 5% percentile  = 1 sample
	// - 95% percentile = 19th sample
	minimumSampleCount = 20

	minimumRange = 30 // dB
)

// PowerBounds represents the color scale limits
type PowerBounds struct {
	Min  float64 // dB
	Max  float64 // dB
	Mean float64 // dB
}

func defaultPowerBounds() PowerBounds {
	return PowerBounds{
		Min:  defaultMinPower,
		Max:  defaultMaxPower,
		Mean: (defaultMinPower + defaultMaxPower) / 2,
	}
}

// PowerHistogram counts power values in 1 dB bins
type PowerHistogram struct {
	bins       map[int]uint64
	totalCount uint64
	minBin     int
	maxBin     int
	sum        float64
}

// NewPowerHistogram creates an empty histogram
func NewPowerHistogram() *PowerHistogram {
	return &PowerHistogram{
		bins:   make(map[int]uint64),
		minBin: math.MaxInt32,
		maxBin: math.MinInt32,
	}
}

// Update adds a power reading. Non-finite values are ignored.
func (h *PowerHistogram) Update(power float64) {
	if math.IsNaN(power) || math.IsInf(power, 0) {
		return
	}

	bin := int(math.Floor(power))
	h.bins[bin]++
	h.totalCount++
	h.sum += power

	h.minBin = min(h.minBin, bin)
	h.maxBin = max(h.maxBin, bin)
}

// Count returns the number of readings
func (h *PowerHistogram) Count() uint64 {
	return h.totalCount
}

// PercentileBounds returns the 5th to 95th percentile range, widened to at least
// 30 dB and padded by 10%. Defaults are returned below 20 readings.
func (h *PowerHistogram) PercentileBounds() PowerBounds {
	if h.totalCount < minimumSampleCount {
		return defaultPowerBounds()
	}

	target := h.totalCount * 5 / 100

	var count uint64
	low := h.minBin
	for bin := h.minBin; bin <= h.maxBin; bin++ {
		count += h.bins[bin]
		if count >= target {
			low = bin
			break
		}
	}

	count = 0
	high := h.maxBin
	for bin := h.maxBin; bin >= h.minBin; bin-- {
		count += h.bins[bin]
		if count >= target {
			high = bin
			break
		}
	}

	if high-low < minimumRange {
		center := (high + low) / 2
		low = center - minimumRange/2
		high = center + minimumRange/2
	}

	margin := (high - low) / 10
	return PowerBounds{
		Min:  float64(low - margin),
		Max:  float64(high + margin),
		Mean: h.sum / float64(h.totalCount),
	}
}
