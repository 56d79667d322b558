package malgo

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"
)

// bytesPerSample returns the sample width of format, or 0 when unsupported.
func bytesPerSample(format malgo.FormatType) int {
	switch format {
	case malgo.FormatU8:
		return 1
	case malgo.FormatS16:
		return 2
	case malgo.FormatS24:
		return 3
	case malgo.FormatS32, malgo.FormatF32:
		return 4
	default:
		return 0
	}
}

// formatName is used in log lines.
func formatName(format malgo.FormatType) string {
	switch format {
	case malgo.FormatU8:
		return "U8"
	case malgo.FormatS16:
		return "S16"
	case malgo.FormatS24:
		return "S24"
	case malgo.FormatS32:
		return "S32"
	case malgo.FormatF32:
		return "F32"
	default:
		return "unknown"
	}
}

// convertToS16 converts little-endian samples of format into 16-bit PCM,
// writing into out when it is large enough. Trailing partial samples are
// dropped.
func convertToS16(samples []byte, format malgo.FormatType, out []byte) ([]byte, error) {
	width := bytesPerSample(format)
	if width == 0 {
		return nil, fmt.Errorf("unsupported sample format %d", format)
	}

	count := len(samples) / width
	need := count * 2
	if cap(out) >= need {
		out = out[:need]
	} else {
		out = make([]byte, need)
	}

	if format == malgo.FormatS16 {
		copy(out, samples[:need])
		return out, nil
	}

	for i := range count {
		src := samples[i*width : (i+1)*width]
		var v int32
		switch format {
		case malgo.FormatU8:
			v = (int32(src[0]) - 128) << 8
		case malgo.FormatS24:
			v = int32(src[0]) | int32(src[1])<<8 | int32(src[2])<<16
			if v&0x800000 != 0 {
				v |= -0x1000000
			}
			v >>= 8
		case malgo.FormatS32:
			v = int32(binary.LittleEndian.Uint32(src)) >> 16
		case malgo.FormatF32:
			f := math.Float32frombits(binary.LittleEndian.Uint32(src)) * 32767
			v = int32(max(min(f, 32767), -32768))
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(clamp16(v)))
	}
	return out, nil
}

// mixS16 adds the 16-bit samples of src into dst, saturating at the
// sample range. Only the overlapping prefix is mixed.
func mixS16(dst, src []byte) {
	n := min(len(dst), len(src)) &^ 1
	for i := 0; i < n; i += 2 {
		a := int32(int16(binary.LittleEndian.Uint16(dst[i:])))
		b := int32(int16(binary.LittleEndian.Uint16(src[i:])))
		binary.LittleEndian.PutUint16(dst[i:], uint16(clamp16(a+b)))
	}
}

func clamp16(v int32) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
