// Package export writes read back pixel buffers to image files.
package export

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// PixelFormat is the layout of a pixel buffer.
type PixelFormat int

const (
	// RGBA8 is 4 bytes per pixel in R, G, B, A order.
	RGBA8 PixelFormat = iota
)

func (f PixelFormat) String() string {
	if f == RGBA8 {
		return "RGBA8"
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// Sink consumes a pixel buffer.
type Sink interface {
	Export(pix []byte, width, height int, format PixelFormat) error
}

// Format is a file encoding.
type Format int

const (
	PNG Format = iota
	BMP
	TIFF
	RawLZ4
)

// RawExt is the file extension of the raw LZ4 encoding.
const RawExt = ".rgba.lz4"

var rawMagic = [4]byte{'R', 'G', 'B', 'A'}

func (f Format) String() string {
	switch f {
	case PNG:
		return "png"
	case BMP:
		return "bmp"
	case TIFF:
		return "tiff"
	case RawLZ4:
		return "rgba.lz4"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FormatFromPath infers the encoding from a file name.
func FormatFromPath(path string) (Format, error) {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, RawExt) {
		return RawLZ4, nil
	}
	switch ext := filepath.Ext(lower); ext {
	case ".png":
		return PNG, nil
	case ".bmp":
		return BMP, nil
	case ".tif", ".tiff":
		return TIFF, nil
	default:
		return 0, errors.Errorf("unsupported image extension %q", ext)
	}
}

// FileSink writes to a file, the encoding follows the file extension.
type FileSink struct {
	Path string
}

func (s FileSink) Export(pix []byte, width, height int, format PixelFormat) error {
	enc, err := FormatFromPath(s.Path)
	if err != nil {
		return err
	}
	f, err := os.Create(s.Path)
	if err != nil {
		return errors.Wrap(err, "create export file")
	}
	bw := bufio.NewWriter(f)
	if err := Encode(bw, enc, pix, width, height, format); err != nil {
		f.Close()
		return errors.Wrapf(err, "encode %s", s.Path)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errors.Wrapf(err, "write %s", s.Path)
	}
	return f.Close()
}

// WriterSink encodes to an io.Writer.
type WriterSink struct {
	W      io.Writer
	Format Format
}

func (s WriterSink) Export(pix []byte, width, height int, format PixelFormat) error {
	return Encode(s.W, s.Format, pix, width, height, format)
}

// Encode writes pix to w using enc.
func Encode(w io.Writer, enc Format, pix []byte, width, height int, format PixelFormat) error {
	im, err := toImage(pix, width, height, format)
	if err != nil {
		return err
	}
	switch enc {
	case PNG:
		return png.Encode(w, im)
	case BMP:
		return bmp.Encode(w, im)
	case TIFF:
		return tiff.Encode(w, im, nil)
	case RawLZ4:
		return writeRaw(w, im)
	default:
		return errors.Errorf("format %v not valid", enc)
	}
}

func toImage(pix []byte, width, height int, format PixelFormat) (*image.NRGBA, error) {
	if format != RGBA8 {
		return nil, errors.Errorf("pixel format %v not supported", format)
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid image size %dx%d", width, height)
	}
	if want := width * height * 4; len(pix) != want {
		return nil, errors.Errorf("pixel buffer holds %d bytes, %dx%d %v needs %d", len(pix), width, height, format, want)
	}
	return &image.NRGBA{Pix: pix, Stride: width * 4, Rect: image.Rect(0, 0, width, height)}, nil
}

// writeRaw writes the 12 byte header ("RGBA", little endian width and height) followed by an LZ4 frame of the
// pixels.
func writeRaw(w io.Writer, im *image.NRGBA) error {
	var header [12]byte
	copy(header[:4], rawMagic[:])
	binary.LittleEndian.PutUint32(header[4:8], uint32(im.Rect.Dx()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(im.Rect.Dy()))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	zw := lz4.NewWriter(w)
	if _, err := io.Copy(zw, bytes.NewReader(im.Pix)); err != nil {
		return err
	}
	return zw.Close()
}

// ReadRaw decodes the raw LZ4 encoding.
func ReadRaw(r io.Reader) (pix []byte, width, height int, err error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, 0, 0, errors.Wrap(err, "read header")
	}
	if !bytes.Equal(header[:4], rawMagic[:]) {
		return nil, 0, 0, errors.Errorf("bad magic %q", header[:4])
	}
	width = int(binary.LittleEndian.Uint32(header[4:8]))
	height = int(binary.LittleEndian.Uint32(header[8:12]))
	pix, err = io.ReadAll(lz4.NewReader(r))
	if err != nil {
		return nil, 0, 0, errors.Wrap(err, "decompress pixels")
	}
	if len(pix) != width*height*4 {
		return nil, 0, 0, errors.Errorf("decompressed %d bytes for a %dx%d image", len(pix), width, height)
	}
	return pix, width, height, nil
}
