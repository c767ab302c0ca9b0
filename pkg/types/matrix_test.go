package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatrixAt(t *testing.T) {
	m8 := &Matrix{Rows: 2, Cols: 3, BitDepth: 8, Pix8: []uint8{1, 2, 3, 4, 5, 6}}
	assert.Equal(t, uint16(1), m8.At(0, 0))
	assert.Equal(t, uint16(6), m8.At(1, 2))

	m12 := &Matrix{Rows: 1, Cols: 2, BitDepth: 12, Pix16: []uint16{0x0A21, 0x0B87}}
	assert.Equal(t, uint16(0x0B87), m12.At(0, 1))
}

func TestMatrixGray(t *testing.T) {
	m8 := &Matrix{Rows: 1, Cols: 2, BitDepth: 8, Pix8: []uint8{0x12, 0xFE}}
	assert.Equal(t, []uint8{0x12, 0xFE}, m8.Gray().Pix)

	// Deeper frames keep their most significant bits
	m12 := &Matrix{Rows: 1, Cols: 2, BitDepth: 12, Pix16: []uint16{0xABC, 0x00F}}
	assert.Equal(t, []uint8{0xAB, 0x00}, m12.Gray().Pix)

	m10 := &Matrix{Rows: 1, Cols: 1, BitDepth: 10, Pix16: []uint16{0x3FF}}
	assert.Equal(t, []uint8{0xFF}, m10.Gray().Pix)
}

func TestMatrixGray16(t *testing.T) {
	m16 := &Matrix{Rows: 1, Cols: 2, BitDepth: 16, Pix16: []uint16{0xABCD, 0x0001}}
	img := m16.Gray16()
	// image.Gray16 stores big-endian pixel bytes
	assert.Equal(t, []uint8{0xAB, 0xCD, 0x00, 0x01}, img.Pix)

	m8 := &Matrix{Rows: 1, Cols: 1, BitDepth: 8, Pix8: []uint8{0x7F}}
	assert.Equal(t, []uint8{0x00, 0x7F}, m8.Gray16().Pix)
}
