package app

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/roman-kulish/eegstream/internal/frame"
	"github.com/roman-kulish/eegstream/internal/recording"
)

// Source produces converter samples one frame at a time
type Source interface {
	SampleRate() int
	Next() [frame.ChannelCount]int32
}

// ToneSource synthesizes a sum of sines with white noise on every channel.
// Each channel is phase shifted so the channels are distinguishable.
type ToneSource struct {
	sampleRate int
	tones      []Tone
	noise      float64
	offset     float64
	n          uint64
	rng        *rand.Rand
}

// NewToneSource creates a synthetic source. The seed makes the noise reproducible.
func NewToneSource(sampleRate int, tones []Tone, noiseVolts, offsetVolts float64, seed uint64) *ToneSource {
	return &ToneSource{
		sampleRate: sampleRate,
		tones:      tones,
		noise:      noiseVolts,
		offset:     offsetVolts,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)),
	}
}

func (s *ToneSource) SampleRate() int {
	return s.sampleRate
}

func (s *ToneSource) Next() [frame.ChannelCount]int32 {
	var out [frame.ChannelCount]int32

	t := float64(s.n) / float64(s.sampleRate)
	for c := range out {
		phase := float64(c) * math.Pi / frame.ChannelCount
		v := s.offset
		for _, tone := range s.tones {
			v += tone.Volts * math.Sin(2*math.Pi*tone.Frequency*t+phase)
		}
		if s.noise > 0 {
			v += s.noise * s.rng.NormFloat64()
		}
		out[c] = frame.FromVolts(v)
	}
	s.n++

	return out
}

// RecordingSource replays a recording in a loop
type RecordingSource struct {
	rec *recording.Recording
	pos int
}

// NewRecordingSource wraps rec, which must hold at least one sample
func NewRecordingSource(rec *recording.Recording) (*RecordingSource, error) {
	if rec.Len() == 0 {
		return nil, fmt.Errorf("recording has no samples")
	}
	if rec.SampleRate <= 0 {
		return nil, fmt.Errorf("recording has invalid sample rate %d", rec.SampleRate)
	}
	return &RecordingSource{rec: rec}, nil
}

func (s *RecordingSource) SampleRate() int {
	return s.rec.SampleRate
}

func (s *RecordingSource) Next() [frame.ChannelCount]int32 {
	out := s.rec.Frame(s.pos)
	if s.pos++; s.pos == s.rec.Len() {
		s.pos = 0
	}
	return out
}

// newSource picks the configured signal
func newSource(config StreamConfig) (Source, error) {
	if config.InputFile == "" {
		return NewToneSource(config.SampleRate, config.Tones, config.NoiseVolts, config.OffsetVolts, 1), nil
	}

	rec, err := recording.ReadWAV(config.InputFile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", config.InputFile, err)
	}
	return NewRecordingSource(rec)
}
