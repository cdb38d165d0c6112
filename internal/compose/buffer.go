package compose

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"
)

// PixelFormat identifies a Wayland shm buffer pixel format. Only the two
// formats spec.md 4.5 requires are supported: 8-bit XRGB and the 10-bit
// packed format used for HDR/wide-gamut outputs.
type PixelFormat int

const (
	FormatXRGB8888 PixelFormat = iota
	FormatXRGB2101010
)

// BytesPerPixel reports the stride multiplier for this format.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatXRGB2101010:
		return 4
	default:
		return 4
	}
}

// ErrBufferTooLarge is returned when a buffer's byte size would overflow a
// 32-bit shm pool offset, matching the frame package's sentinel of the same
// name in spirit (kept distinct so compose does not import frame).
var ErrBufferTooLarge = errors.New("compose: buffer size overflow")

// BufferSize computes width*height*bytesPerPixel with explicit overflow
// checking, per spec.md 4.5: "buffer size calculations must reject overflow
// rather than silently wrap, since a wrapped size would under-allocate the
// shm pool and corrupt adjacent slots."
func BufferSize(width, height int, format PixelFormat) (int64, error) {
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: non-positive dimensions %dx%d", ErrBufferTooLarge, width, height)
	}
	bpp := int64(format.BytesPerPixel())
	w, h := int64(width), int64(height)

	rowBytes := w * bpp
	if bpp != 0 && rowBytes/bpp != w {
		return 0, fmt.Errorf("%w: row size overflow at width %d", ErrBufferTooLarge, width)
	}
	total := rowBytes * h
	if h != 0 && total/h != rowBytes {
		return 0, fmt.Errorf("%w: total size overflow at %dx%d", ErrBufferTooLarge, width, height)
	}
	if total > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d bytes exceeds shm pool addressing range", ErrBufferTooLarge, total)
	}
	return total, nil
}

// WriteInto packs img into dst (a pre-sized shm pool slot) in the given
// format. dst must be exactly the size BufferSize reports; callers (the
// Output Layer's slot pool) are responsible for sizing and for not handing
// out more than two outstanding slots per layer, per spec.md's concurrency
// model.
func WriteInto(dst []byte, img *image.RGBA, format PixelFormat) error {
	b := img.Bounds()
	size, err := BufferSize(b.Dx(), b.Dy(), format)
	if err != nil {
		return err
	}
	if int64(len(dst)) != size {
		return fmt.Errorf("%w: destination slot is %d bytes, need %d", ErrBufferTooLarge, len(dst), size)
	}

	switch format {
	case FormatXRGB2101010:
		writeXRGB2101010(dst, img)
	default:
		writeXRGB8888(dst, img)
	}
	return nil
}

func writeXRGB8888(dst []byte, img *image.RGBA) {
	b := img.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			dst[i+0] = byte(bl >> 8)
			dst[i+1] = byte(g >> 8)
			dst[i+2] = byte(r >> 8)
			dst[i+3] = 0xFF
			i += 4
		}
	}
}

// writeXRGB2101010 upconverts each 8-bit channel to 10 bits (by replicating
// the top bits into the low bits) and packs b:g:r:x as 10:10:10:2, little
// endian, matching DRM_FORMAT_XRGB2101010.
func writeXRGB2101010(dst []byte, img *image.RGBA) {
	b := img.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			r10 := to10Bit(uint8(r >> 8))
			g10 := to10Bit(uint8(g >> 8))
			b10 := to10Bit(uint8(bl >> 8))
			packed := (r10 << 20) | (g10 << 10) | b10
			binary.LittleEndian.PutUint32(dst[i:i+4], packed)
			i += 4
		}
	}
}

func to10Bit(v uint8) uint32 {
	v10 := uint32(v) << 2
	return v10 | (v10 >> 8)
}
