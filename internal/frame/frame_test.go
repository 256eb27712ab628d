package frame

import (
	"errors"
	"math"
	"testing"

	"github.com/roman-kulish/eegstream/internal/errs"
)

func TestDecodeFrame_RoundTrip(t *testing.T) {
	// walk the full 24-bit range in strides that still hit every channel slot and both edges
	buf := make([]byte, FrameDataSize)
	for start := int32(MinValue); start <= MaxValue; start += 4099 {
		var values [ChannelCount]int32
		for c := range values {
			values[c] = Clamp(start + int32(c))
		}
		values[0] = MinValue
		values[ChannelCount-1] = MaxValue

		EncodeFrame(buf, values)
		got, err := DecodeFrame(buf)
		if err != nil {
			t.Fatalf("DecodeFrame: %v", err)
		}
		if got != values {
			t.Fatalf("round trip mismatch at %d: got %v, want %v", start, got, values)
		}
	}
}

func TestDecodeFrame_SignExtension(t *testing.T) {
	tests := []struct {
		name  string
		bytes [3]byte
		want  int32
	}{
		{"zero", [3]byte{0x00, 0x00, 0x00}, 0},
		{"one", [3]byte{0x00, 0x00, 0x01}, 1},
		{"max", [3]byte{0x7F, 0xFF, 0xFF}, 8388607},
		{"min", [3]byte{0x80, 0x00, 0x00}, -8388608},
		{"minus one", [3]byte{0xFF, 0xFF, 0xFF}, -1},
		{"big endian", [3]byte{0x01, 0x02, 0x03}, 0x010203},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, FrameDataSize)
			copy(buf[9:12], tt.bytes[:])

			got, err := DecodeFrame(buf)
			if err != nil {
				t.Fatalf("DecodeFrame: %v", err)
			}
			if got[3] != tt.want {
				t.Errorf("channel 3 = %d, want %d", got[3], tt.want)
			}
		})
	}
}

func TestDecodeFrame_WrongLength(t *testing.T) {
	for _, n := range []int{0, 47, 49, 52} {
		_, err := DecodeFrame(make([]byte, n))
		var fe *errs.FormatError
		if !errors.As(err, &fe) {
			t.Errorf("len %d: expected FormatError, got %v", n, err)
		}
	}
}

func TestDecodePacket_FrameCounts(t *testing.T) {
	for k := 0; k <= 28; k++ {
		frames := make([]Frame, k)
		for i := range frames {
			frames[i].Timestamp = uint32(1000 + i)
			frames[i].Channels[i%ChannelCount] = int32(-i - 1)
		}
		b := EncodePacket(frames, 3.7)

		if len(b) < FrameStride {
			_, err := DecodePacket(b)
			var fe *errs.FormatError
			if !errors.As(err, &fe) {
				t.Errorf("k=%d: expected FormatError for %d bytes, got %v", k, len(b), err)
			}
			continue
		}

		p, err := DecodePacket(b)
		if err != nil {
			t.Fatalf("k=%d: DecodePacket: %v", k, err)
		}
		if len(p.Frames) != k {
			t.Fatalf("k=%d: got %d frames", k, len(p.Frames))
		}
		if math.Abs(float64(p.BatteryVolts)-3.7) > 1e-6 {
			t.Errorf("k=%d: battery = %f", k, p.BatteryVolts)
		}
		for i, f := range p.Frames {
			if f.Timestamp != uint32(1000+i) {
				t.Errorf("k=%d frame %d: timestamp %d", k, i, f.Timestamp)
			}
			if f.Channels[i%ChannelCount] != int32(-i-1) {
				t.Errorf("k=%d frame %d: value %d", k, i, f.Channels[i%ChannelCount])
			}
		}
	}
}

func TestDecodePacket_MisalignedLengths(t *testing.T) {
	for n := FrameStride; n <= 4*FrameStride+BatterySize+FrameStride; n++ {
		p, err := DecodePacket(make([]byte, n))
		if err != nil {
			t.Fatalf("len %d: unexpected error %v", n, err)
		}
		if want := (n - BatterySize) / FrameStride; len(p.Frames) != want {
			t.Errorf("len %d: got %d frames, want %d", n, len(p.Frames), want)
		}
	}
}

func TestDecodePacket_TooShort(t *testing.T) {
	for _, n := range []int{0, 4, 51} {
		if _, err := DecodePacket(make([]byte, n)); err == nil {
			t.Errorf("len %d: expected error", n)
		}
	}
}

func TestVolts(t *testing.T) {
	if got := ToVolts(MaxValue); math.Abs(got-FullScaleVolts) > 1e-6 {
		t.Errorf("ToVolts(max) = %f", got)
	}
	if got := ToVolts(MinValue); got != -FullScaleVolts {
		t.Errorf("ToVolts(min) = %f", got)
	}
	if got := FromVolts(1e-3); math.Abs(ToVolts(got)-1e-3) > Scale {
		t.Errorf("FromVolts(1mV) = %d", got)
	}
	if got := FromVolts(10); got != MaxValue {
		t.Errorf("FromVolts(10) = %d", got)
	}
}
