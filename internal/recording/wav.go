package recording

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/roman-kulish/eegstream/internal/errs"
	"github.com/roman-kulish/eegstream/internal/frame"
)

// BitDepth of recordings written by this package, matching the converter
const BitDepth = frame.Bits

const pcmFormat = 1

// Recording is a multichannel capture in raw 24-bit converter counts
type Recording struct {
	SampleRate int
	Samples    [][]int32 // [channel][sample]
}

// ChannelCount returns the number of channels
func (r *Recording) ChannelCount() int {
	return len(r.Samples)
}

// Len returns the number of samples per channel
func (r *Recording) Len() int {
	if len(r.Samples) == 0 {
		return 0
	}
	return len(r.Samples[0])
}

// Frame returns sample i of every channel; channels beyond the recording are zero
func (r *Recording) Frame(i int) [frame.ChannelCount]int32 {
	var out [frame.ChannelCount]int32
	for ch := 0; ch < min(len(r.Samples), frame.ChannelCount); ch++ {
		out[ch] = r.Samples[ch][i]
	}
	return out
}

// Volts returns one channel converted to volts
func (r *Recording) Volts(ch int) []float64 {
	out := make([]float64, len(r.Samples[ch]))
	for i, v := range r.Samples[ch] {
		out[i] = frame.ToVolts(v)
	}
	return out
}

// ReadWAV loads a PCM WAV file. Samples of any bit depth are rescaled to 24 bits so
// full scale in the file is full scale on the converter.
func ReadWAV(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return DecodeWAV(f)
}

// DecodeWAV reads a PCM WAV stream
func DecodeWAV(r io.ReadSeeker) (*Recording, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, errs.NewFormatError("not a valid WAV file")
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("reading PCM data: %w", err)
	}

	channels := int(d.NumChans)
	depth := int(d.BitDepth)
	if channels <= 0 {
		return nil, errs.NewFormatError("WAV file has no channels")
	}
	if depth <= 0 || depth > 32 {
		return nil, errs.NewFormatError("unsupported bit depth %d", depth)
	}

	n := len(buf.Data) / channels
	rec := &Recording{
		SampleRate: int(d.SampleRate),
		Samples:    make([][]int32, channels),
	}
	for ch := range rec.Samples {
		rec.Samples[ch] = make([]int32, n)
	}

	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			rec.Samples[ch][i] = rescale(buf.Data[i*channels+ch], depth)
		}
	}
	return rec, nil
}

func rescale(v, depth int) int32 {
	switch {
	case depth < frame.Bits:
		return int32(v << (frame.Bits - depth))
	case depth > frame.Bits:
		return int32(v >> (depth - frame.Bits))
	default:
		return int32(v)
	}
}

// WriteWAV stores rec as a 24-bit PCM WAV file
func WriteWAV(path string, rec *Recording) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	return EncodeWAV(f, rec)
}

// EncodeWAV writes rec as 24-bit PCM
func EncodeWAV(w io.WriteSeeker, rec *Recording) error {
	channels := rec.ChannelCount()
	if channels == 0 {
		return errs.NewConfigError("recording has no channels")
	}
	if rec.SampleRate <= 0 {
		return errs.NewConfigError("sample rate must be positive, got %d", rec.SampleRate)
	}

	n := rec.Len()
	data := make([]int, n*channels)
	for i := 0; i < n; i++ {
		for ch := 0; ch < channels; ch++ {
			data[i*channels+ch] = int(frame.Clamp(rec.Samples[ch][i]))
		}
	}

	e := wav.NewEncoder(w, rec.SampleRate, BitDepth, channels, pcmFormat)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  rec.SampleRate,
		},
		Data:           data,
		SourceBitDepth: BitDepth,
	}
	if err := e.Write(buf); err != nil {
		return fmt.Errorf("writing PCM data: %w", err)
	}
	return e.Close()
}
