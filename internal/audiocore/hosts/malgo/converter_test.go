package malgo

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gen2brain/malgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToS16(t *testing.T) {
	t.Parallel()

	f32 := func(vs ...float32) []byte {
		out := make([]byte, len(vs)*4)
		for i, v := range vs {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
		}
		return out
	}
	s32 := func(vs ...int32) []byte {
		out := make([]byte, len(vs)*4)
		for i, v := range vs {
			binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
		}
		return out
	}

	tests := []struct {
		name   string
		format malgo.FormatType
		in     []byte
		want   []int16
	}{
		{"s16 passthrough", malgo.FormatS16, pcm(1, -1, 32767), []int16{1, -1, 32767}},
		{"u8 midpoint is silence", malgo.FormatU8, []byte{128, 255, 0}, []int16{0, 127 << 8, -32768}},
		{"s24 keeps sign", malgo.FormatS24, []byte{0x00, 0x00, 0x80, 0xff, 0xff, 0x7f}, []int16{-32768, 32767}},
		{"s32 takes high half", malgo.FormatS32, s32(0x12340000, -0x10000), []int16{0x1234, -1}},
		{"f32 clamps", malgo.FormatF32, f32(0, 2, -2), []int16{0, 32767, -32768}},
		{"partial sample dropped", malgo.FormatS32, []byte{1, 2, 3}, []int16{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := convertToS16(tt.in, tt.format, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, samples(out))
		})
	}
}

func TestConvertToS16ReusesBuffer(t *testing.T) {
	t.Parallel()
	buf := make([]byte, 0, 16)
	out, err := convertToS16([]byte{128, 128}, malgo.FormatU8, buf)
	require.NoError(t, err)
	assert.Len(t, out, 4)
	assert.Equal(t, &buf[:1][0], &out[0])
}

func TestConvertToS16UnsupportedFormat(t *testing.T) {
	t.Parallel()
	_, err := convertToS16([]byte{1, 2}, malgo.FormatUnknown, nil)
	require.Error(t, err)
}

func TestMixS16Saturates(t *testing.T) {
	t.Parallel()
	dst := pcm(32000, -32000, 5)
	mixS16(dst, pcm(1000, -1000, 5, 9))
	assert.Equal(t, []int16{32767, -32768, 10}, samples(dst))
}

func TestDecodeID(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "hw:1,0", decodeID("68773a312c30000000"))
	assert.Equal(t, "0102", decodeID("0102"))
	assert.Equal(t, "zz", decodeID("zz"))
}
