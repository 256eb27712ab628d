package frame

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/roman-kulish/eegstream/internal/errs"
)

const (
	ChannelCount  = 16
	BytesPerValue = 3
	FrameDataSize = ChannelCount * BytesPerValue // 48
	TimestampSize = 4
	FrameStride   = FrameDataSize + TimestampSize // 52
	BatterySize   = 4

	// Bits is the resolution of a single channel sample
	Bits = 24

	// FullScaleVolts is the reference voltage of the converter
	FullScaleVolts = 4.5

	// TimestampTick is the duration of one hardware timestamp tick
	TimestampTick = 8 * time.Microsecond

	MaxValue = 1<<(Bits-1) - 1
	MinValue = -(1 << (Bits - 1))
)

// Scale converts a raw sample to volts
const Scale = FullScaleVolts / (1 << (Bits - 1))

// Frame is one multi-channel sample with its hardware timestamp
type Frame struct {
	Channels  [ChannelCount]int32
	Timestamp uint32
}

// Packet is the decoded content of one telemetry datagram
type Packet struct {
	Frames       []Frame
	BatteryVolts float32
}

// DecodeFrame converts 48 bytes of big-endian 24-bit two's complement values into channel samples
func DecodeFrame(b []byte) ([ChannelCount]int32, error) {
	var out [ChannelCount]int32
	if len(b) != FrameDataSize {
		return out, errs.NewFormatError("frame must be %d bytes, got %d", FrameDataSize, len(b))
	}

	for c := 0; c < ChannelCount; c++ {
		o := c * BytesPerValue
		v := int32(b[o])<<16 | int32(b[o+1])<<8 | int32(b[o+2])
		if v&0x800000 != 0 {
			v -= 1 << Bits
		}
		out[c] = v
	}

	return out, nil
}

// FrameCount returns the number of whole frames carried by a datagram of n bytes
func FrameCount(n int) int {
	if n < FrameStride {
		return 0
	}
	return (n - BatterySize) / FrameStride
}

// DecodePacket decodes every whole frame in b. A trailing remainder shorter than a
// frame is ignored; the battery voltage is read right after the last whole frame.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < FrameStride {
		return Packet{}, errs.NewFormatError("packet too short: %d bytes", len(b))
	}

	n := FrameCount(len(b))
	p := Packet{Frames: make([]Frame, n)}
	for i := 0; i < n; i++ {
		o := i * FrameStride
		values, err := DecodeFrame(b[o : o+FrameDataSize])
		if err != nil {
			return Packet{}, err
		}
		p.Frames[i] = Frame{
			Channels:  values,
			Timestamp: binary.LittleEndian.Uint32(b[o+FrameDataSize : o+FrameStride]),
		}
	}

	if o := n * FrameStride; o+BatterySize <= len(b) {
		p.BatteryVolts = math.Float32frombits(binary.LittleEndian.Uint32(b[o : o+BatterySize]))
	}

	return p, nil
}

// EncodeFrame is the inverse of DecodeFrame. Values outside the 24-bit range are clamped.
func EncodeFrame(dst []byte, values [ChannelCount]int32) {
	_ = dst[FrameDataSize-1]
	for c, v := range values {
		v = Clamp(v)
		u := uint32(v) & 0xFFFFFF
		o := c * BytesPerValue
		dst[o] = byte(u >> 16)
		dst[o+1] = byte(u >> 8)
		dst[o+2] = byte(u)
	}
}

// EncodePacket serializes frames followed by the battery voltage
func EncodePacket(frames []Frame, batteryVolts float32) []byte {
	b := make([]byte, len(frames)*FrameStride+BatterySize)
	for i, f := range frames {
		o := i * FrameStride
		EncodeFrame(b[o:o+FrameDataSize], f.Channels)
		binary.LittleEndian.PutUint32(b[o+FrameDataSize:o+FrameStride], f.Timestamp)
	}
	binary.LittleEndian.PutUint32(b[len(frames)*FrameStride:], math.Float32bits(batteryVolts))
	return b
}

// Clamp limits v to the signed 24-bit range
func Clamp(v int32) int32 {
	if v > MaxValue {
		return MaxValue
	}
	if v < MinValue {
		return MinValue
	}
	return v
}

// ToVolts converts a raw sample to volts
func ToVolts(v int32) float64 {
	return float64(v) * Scale
}

// FromVolts converts volts to the nearest raw sample, clamped to 24 bits
func FromVolts(v float64) int32 {
	r := math.Round(v / Scale)
	if r > MaxValue {
		return MaxValue
	}
	if r < MinValue {
		return MinValue
	}
	return int32(r)
}
