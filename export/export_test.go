package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func pixels(w, h int) []byte {
	return bytes.Repeat([]byte{70, 63, 158, 255}, w*h)
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"out.png":            PNG,
		"OUT.PNG":            PNG,
		"a/b.bmp":            BMP,
		"x.tif":              TIFF,
		"x.tiff":             TIFF,
		"fill.rgba.lz4":      RawLZ4,
		"dir.png/x.RGBA.LZ4": RawLZ4,
	}
	for path, want := range tests {
		got, err := FormatFromPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	for _, bad := range []string{"out.jpg", "out", "out.lz4"} {
		_, err := FormatFromPath(bad)
		assert.Error(t, err, bad)
	}
}

func TestErrorsCarryStack(t *testing.T) {
	_, err := FormatFromPath("out.jpg")
	require.Error(t, err)
	assert.Contains(t, fmt.Sprintf("%+v", err), "export.FormatFromPath")

	_, _, _, err = ReadRaw(bytes.NewReader([]byte("XXXX\x00\x00\x00\x00\x00\x00\x00\x00")))
	require.Error(t, err)
	assert.Contains(t, fmt.Sprintf("%+v", err), "export.ReadRaw")
}

func TestFileSinkImageFormats(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"fill.png", "fill.bmp", "fill.tiff"} {
		path := filepath.Join(dir, name)
		require.NoError(t, FileSink{Path: path}.Export(pixels(4, 4), 4, 4, RGBA8))

		f, err := os.Open(path)
		require.NoError(t, err)
		var im image.Image
		switch filepath.Ext(name) {
		case ".bmp":
			im, err = bmp.Decode(f)
		case ".tiff":
			im, err = tiff.Decode(f)
		default:
			im, _, err = image.Decode(f)
		}
		f.Close()
		require.NoError(t, err, name)

		assert.Equal(t, image.Rect(0, 0, 4, 4), im.Bounds(), name)
		got := color.NRGBAModel.Convert(im.At(3, 3)).(color.NRGBA)
		assert.Equal(t, color.NRGBA{R: 70, G: 63, B: 158, A: 255}, got, name)
	}
}

func TestRawRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	pix := pixels(3, 2)
	pix[0] = 1
	require.NoError(t, WriterSink{W: &buf, Format: RawLZ4}.Export(pix, 3, 2, RGBA8))

	raw := buf.Bytes()
	assert.Equal(t, []byte("RGBA"), raw[:4])
	assert.Equal(t, []byte{3, 0, 0, 0, 2, 0, 0, 0}, raw[4:12])

	got, w, h, err := ReadRaw(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, 3, w)
	assert.Equal(t, 2, h)
	assert.Equal(t, pix, got)

	_, _, _, err = ReadRaw(bytes.NewReader([]byte("RGBX\x01\x00\x00\x00\x01\x00\x00\x00")))
	assert.Error(t, err)
}

func TestExportValidatesBuffer(t *testing.T) {
	var buf bytes.Buffer
	sink := WriterSink{W: &buf, Format: PNG}
	assert.Error(t, sink.Export(pixels(4, 4), 4, 5, RGBA8))
	assert.Error(t, sink.Export(pixels(4, 4), 0, 0, RGBA8))
	assert.Error(t, sink.Export(pixels(4, 4), 4, 4, PixelFormat(7)))
	assert.Error(t, FileSink{Path: filepath.Join(t.TempDir(), "x.gif")}.Export(pixels(1, 1), 1, 1, RGBA8))
	assert.Zero(t, buf.Len())
}
