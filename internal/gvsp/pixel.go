package gvsp

import (
	"fmt"

	"github.com/avasok/spectral-camera/gvsp-receiver/pkg/types"
)

// PixelFormat is a GigE Vision pixel format code as carried in the leader.
type PixelFormat uint32

// Supported monochrome pixel formats.
const (
	Mono8        PixelFormat = 0x01080001
	Mono10       PixelFormat = 0x01100003
	Mono10Packed PixelFormat = 0x010C0004
	Mono12       PixelFormat = 0x01100005
	Mono12Packed PixelFormat = 0x010C0006
	Mono16       PixelFormat = 0x01100007
)

// BitDepth returns the significant bits per pixel, or 0 for an
// unsupported format.
func (f PixelFormat) BitDepth() int {
	switch f {
	case Mono8:
		return 8
	case Mono10, Mono10Packed:
		return 10
	case Mono12, Mono12Packed:
		return 12
	case Mono16:
		return 16
	default:
		return 0
	}
}

// Supported reports whether the receiver can decode the format.
func (f PixelFormat) Supported() bool {
	return f.BitDepth() != 0
}

// String returns the GenICam name of the format.
func (f PixelFormat) String() string {
	switch f {
	case Mono8:
		return "Mono8"
	case Mono10:
		return "Mono10"
	case Mono10Packed:
		return "Mono10Packed"
	case Mono12:
		return "Mono12"
	case Mono12Packed:
		return "Mono12Packed"
	case Mono16:
		return "Mono16"
	default:
		return fmt.Sprintf("PixelFormat(0x%08X)", uint32(f))
	}
}

// decodeFrame transforms a contiguous reassembly buffer into a pixel
// matrix of shape (rows, cols). The buffer may be longer than the image
// data (trailing padding); it must not be shorter.
func decodeFrame(buf []byte, format PixelFormat, rows, cols int) (*types.Matrix, error) {
	pixels := rows * cols
	if pixels <= 0 {
		return nil, fmt.Errorf("gvsp: invalid frame shape %dx%d", rows, cols)
	}

	switch format {
	case Mono8:
		if len(buf) < pixels {
			return nil, shortBufferError(format, pixels, len(buf))
		}
		return decodeMono8(buf, rows, cols), nil
	case Mono10, Mono12, Mono16:
		if len(buf) < pixels*2 {
			return nil, shortBufferError(format, pixels*2, len(buf))
		}
		return decodeMonoUnpacked(buf, rows, cols, format.unpackedMask(), format.BitDepth()), nil
	case Mono10Packed, Mono12Packed:
		if pixels%2 != 0 {
			return nil, fmt.Errorf("gvsp: %s requires an even pixel count, got %dx%d", format, rows, cols)
		}
		if len(buf) < pixels/2*3 {
			return nil, shortBufferError(format, pixels/2*3, len(buf))
		}
		if format == Mono10Packed {
			return decodeMono10Packed(buf, rows, cols), nil
		}
		return decodeMono12Packed(buf, rows, cols), nil
	default:
		return nil, fmt.Errorf("gvsp: pixel format %s is not supported", format)
	}
}

func shortBufferError(format PixelFormat, need, have int) error {
	return fmt.Errorf("gvsp: %s frame needs %d bytes, reassembly buffer holds %d", format, need, have)
}

// unpackedMask returns the mask applied to the high byte of an unpacked
// little-endian pixel pair.
func (f PixelFormat) unpackedMask() uint16 {
	switch f {
	case Mono10:
		return 0x03
	case Mono12:
		return 0x0f
	default:
		return 0xff
	}
}

// decodeMono8 copies the buffer directly, one byte per pixel.
func decodeMono8(buf []byte, rows, cols int) *types.Matrix {
	pix := make([]uint8, rows*cols)
	copy(pix, buf)
	return &types.Matrix{Rows: rows, Cols: cols, BitDepth: 8, Pix8: pix}
}

// decodeMonoUnpacked unpacks little-endian 2-byte pixels, masking the
// unused high bits of Mono10 and Mono12.
func decodeMonoUnpacked(buf []byte, rows, cols int, hiMask uint16, bitDepth int) *types.Matrix {
	pix := make([]uint16, rows*cols)
	for i := range pix {
		lo := uint16(buf[2*i])
		hi := uint16(buf[2*i+1]) & hiMask
		pix[i] = hi<<8 | lo
	}
	return &types.Matrix{Rows: rows, Cols: cols, BitDepth: bitDepth, Pix16: pix}
}

// decodeMono10Packed unpacks 3 bytes into 2 pixels. The middle byte
// carries the low 2 bits of pixel i in its low nibble and the low 2 bits
// of pixel i+1 in bits 4-5.
func decodeMono10Packed(buf []byte, rows, cols int) *types.Matrix {
	pix := make([]uint16, rows*cols)
	for i := 0; i < len(pix); i += 2 {
		b := buf[i/2*3:]
		pix[i] = uint16(b[0])<<2 | (uint16(b[1]) & 0x03)
		pix[i+1] = uint16(b[2])<<2 | (uint16(b[1])&0x30)>>4
	}
	return &types.Matrix{Rows: rows, Cols: cols, BitDepth: 10, Pix16: pix}
}

// decodeMono12Packed unpacks 3 bytes into 2 pixels. The middle byte
// carries the low nibble of pixel i and the high nibble holds the low
// bits of pixel i+1.
func decodeMono12Packed(buf []byte, rows, cols int) *types.Matrix {
	pix := make([]uint16, rows*cols)
	for i := 0; i < len(pix); i += 2 {
		b := buf[i/2*3:]
		pix[i] = uint16(b[0])<<4 | (uint16(b[1]) & 0x0f)
		pix[i+1] = uint16(b[2])<<4 | (uint16(b[1])&0xf0)>>4
	}
	return &types.Matrix{Rows: rows, Cols: cols, BitDepth: 12, Pix16: pix}
}
