package gvsp

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeFrame packs row-major pixel values into the GVSP wire layout,
// the inverse of decodeFrame.
func encodeFrame(t *testing.T, pix []uint16, format PixelFormat) []byte {
	t.Helper()
	switch format {
	case Mono8:
		buf := make([]byte, len(pix))
		for i, v := range pix {
			buf[i] = byte(v)
		}
		return buf
	case Mono10, Mono12, Mono16:
		buf := make([]byte, len(pix)*2)
		for i, v := range pix {
			buf[2*i] = byte(v)
			buf[2*i+1] = byte(v >> 8)
		}
		return buf
	case Mono10Packed:
		require.Zero(t, len(pix)%2)
		buf := make([]byte, len(pix)/2*3)
		for i := 0; i < len(pix); i += 2 {
			a, b := pix[i], pix[i+1]
			buf[i/2*3] = byte(a >> 2)
			buf[i/2*3+1] = byte(a&0x03) | byte(b&0x03)<<4
			buf[i/2*3+2] = byte(b >> 2)
		}
		return buf
	case Mono12Packed:
		require.Zero(t, len(pix)%2)
		buf := make([]byte, len(pix)/2*3)
		for i := 0; i < len(pix); i += 2 {
			a, b := pix[i], pix[i+1]
			buf[i/2*3] = byte(a >> 4)
			buf[i/2*3+1] = byte(a&0x0f) | byte(b&0x0f)<<4
			buf[i/2*3+2] = byte(b >> 4)
		}
		return buf
	default:
		t.Fatalf("no encoder for %s", format)
		return nil
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	formats := []PixelFormat{Mono8, Mono10, Mono10Packed, Mono12, Mono12Packed, Mono16}
	shapes := []struct{ rows, cols int }{
		{1, 2},
		{2, 4},
		{3, 8},
		{5, 224},
	}

	rng := rand.New(rand.NewSource(42))
	for _, format := range formats {
		for _, shape := range shapes {
			maxVal := 1<<format.BitDepth() - 1
			pix := make([]uint16, shape.rows*shape.cols)
			for i := range pix {
				pix[i] = uint16(rng.Intn(maxVal + 1))
			}
			// Pin the extremes so every bit position is exercised
			pix[0] = 0
			pix[1] = uint16(maxVal)

			buf := encodeFrame(t, pix, format)
			m, err := decodeFrame(buf, format, shape.rows, shape.cols)
			require.NoError(t, err, "%s %dx%d", format, shape.rows, shape.cols)
			require.Equal(t, shape.rows, m.Rows)
			require.Equal(t, shape.cols, m.Cols)
			require.Equal(t, format.BitDepth(), m.BitDepth)

			for r := 0; r < shape.rows; r++ {
				for c := 0; c < shape.cols; c++ {
					require.Equal(t, pix[r*shape.cols+c], m.At(r, c),
						"%s pixel (%d,%d)", format, r, c)
				}
			}
		}
	}
}

func TestDecodeMono10PackedLiteral(t *testing.T) {
	m, err := decodeFrame([]byte{0xAB, 0xCD, 0xEF}, Mono10Packed, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x2AD, 0x3BC}, m.Pix16)
	assert.Equal(t, 10, m.BitDepth)
}

func TestDecodeMono12PackedLiteral(t *testing.T) {
	m, err := decodeFrame([]byte{0xAB, 0xCD, 0xEF}, Mono12Packed, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0xABD, 0xEFC}, m.Pix16)
	assert.Equal(t, 12, m.BitDepth)
}

func TestDecodeMono12Literal(t *testing.T) {
	m, err := decodeFrame([]byte{0x21, 0x0A, 0x87, 0x0B}, Mono12, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x0A21, 0x0B87}, m.Pix16)
	assert.Equal(t, 12, m.BitDepth)
}

func TestDecodeMasksUnusedBits(t *testing.T) {
	// High bits beyond the format's depth must be ignored
	m, err := decodeFrame([]byte{0xFF, 0xFF}, Mono10, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x3FF), m.Pix16[0])

	m, err = decodeFrame([]byte{0xFF, 0xFF}, Mono12, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xFFF), m.Pix16[0])

	m, err = decodeFrame([]byte{0xFF, 0xFF}, Mono16, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xFFFF), m.Pix16[0])
}

func TestDecodeErrors(t *testing.T) {
	// Unsupported format
	_, err := decodeFrame(make([]byte, 64), PixelFormat(0x02180014), 2, 2)
	require.Error(t, err)

	// Reassembly buffer shorter than the image data
	_, err = decodeFrame(make([]byte, 3), Mono8, 2, 2)
	require.Error(t, err)
	_, err = decodeFrame(make([]byte, 7), Mono16, 2, 2)
	require.Error(t, err)
	_, err = decodeFrame(make([]byte, 5), Mono10Packed, 2, 2)
	require.Error(t, err)

	// Packed formats need an even pixel count
	_, err = decodeFrame(make([]byte, 64), Mono12Packed, 3, 3)
	require.Error(t, err)

	// Degenerate shapes
	_, err = decodeFrame(make([]byte, 64), Mono8, 0, 4)
	require.Error(t, err)
}

func TestPixelFormatNames(t *testing.T) {
	assert.Equal(t, "Mono10Packed", Mono10Packed.String())
	assert.Equal(t, "PixelFormat(0x02180014)", PixelFormat(0x02180014).String())
	assert.False(t, PixelFormat(0x02180014).Supported())
	assert.True(t, Mono16.Supported())
}
