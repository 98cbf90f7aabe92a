package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return writeFile(t, "tex.png", buf.Bytes())
}

func checker() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	img.Set(1, 0, color.NRGBA{G: 255, A: 255})
	img.Set(0, 1, color.NRGBA{B: 255, A: 255})
	img.Set(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	return img
}

func assertChecker(t *testing.T, got *image.RGBA) {
	t.Helper()
	require.Equal(t, image.Rect(0, 0, 2, 2), got.Bounds())
	assert.Equal(t, 8, got.Stride, "tightly packed RGBA8")
	assert.Equal(t, []byte{
		255, 0, 0, 255, 0, 255, 0, 255,
		0, 0, 255, 255, 255, 255, 255, 255,
	}, got.Pix)
}

func TestLoadTexture_PNG(t *testing.T) {
	img, err := LoadTexture(writePNG(t, checker()))
	require.NoError(t, err)
	assertChecker(t, img)
}

func TestLoadTexture_BMP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bmp.Encode(&buf, checker()))

	img, err := LoadTexture(writeFile(t, "tex.bmp", buf.Bytes()))
	require.NoError(t, err)
	assertChecker(t, img)
}

func TestLoadTexture_PPM(t *testing.T) {
	data := append([]byte("P6\n2 2\n255\n"),
		255, 0, 0, 0, 255, 0,
		0, 0, 255, 255, 255, 255,
	)

	img, err := LoadTexture(writeFile(t, "tex.ppm", data))
	require.NoError(t, err)
	assertChecker(t, img)
}

func TestLoadTexture_Errors(t *testing.T) {
	_, err := LoadTexture(filepath.Join(t.TempDir(), "nope.png"))
	assert.ErrorContains(t, err, "open texture")
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadTexture(writeFile(t, "junk.png", []byte("definitely not an image")))
	assert.ErrorContains(t, err, "decode texture")
}

func TestLoadTexture_MalformedPPM(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, errNotPPM},
		{"blank", []byte("\n\n\n\n"), errNotPPM},
		{"ascii", []byte("P3\n1 1\n255\n0 0 0\n"), errNotPPM},
		{"magic only", []byte("P6"), errPPMHeader},
		{"truncated header", []byte("P6\nxx"), errPPMHeader},
		{"missing maxval", []byte("P6\n2 2\n"), errPPMHeader},
		{"no raster separator", []byte("P6\n2 2\n255"), errPPMHeader},
		{"zero width", []byte("P6\n0 2\n255\n"), errPPMDimensions},
		{"huge maxval", []byte("P6\n1 1\n70000\n\x00\x00\x00"), errPPMDimensions},
		{"short raster", append([]byte("P6\n2 2\n255\n"), 1, 2, 3), errPPMTruncated},
		{"short wide raster", append([]byte("P6\n1 1\n65535\n"), 1, 2, 3), errPPMTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "bad.ppm", tt.data)

			done := make(chan error, 1)
			go func() {
				_, err := LoadTexture(path)
				done <- err
			}()
			select {
			case err := <-done:
				assert.ErrorContains(t, err, "decode texture")
				assert.ErrorIs(t, err, tt.want)
			case <-time.After(2 * time.Second):
				t.Fatal("LoadTexture did not return")
			}
		})
	}
}

func TestCheckPPM_Comments(t *testing.T) {
	data := append([]byte("P6 # made by hand\n# size\n1 1\n255\n"), 9, 8, 7)
	assert.NoError(t, checkPPM(data))
}

func TestDecodeImage_RecoversDecoderPanic(t *testing.T) {
	image.RegisterFormat("crashy", "CRASHY", func(io.Reader) (image.Image, error) {
		var pix []byte
		_ = pix[3]
		return nil, nil
	}, func(io.Reader) (image.Config, error) {
		return image.Config{}, nil
	})

	img, err := decodeImage([]byte("CRASHY data"), ".crashy")
	assert.Nil(t, img)
	assert.ErrorContains(t, err, "malformed image")
}

func TestToRGBA_OffsetBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(5, 5, 7, 7))
	src.Set(5, 5, color.RGBA{R: 10, A: 255})

	got := toRGBA(src)
	assert.Equal(t, image.Rect(0, 0, 2, 2), got.Bounds())
	assert.Equal(t, uint8(10), got.Pix[0])

	packed := image.NewRGBA(image.Rect(0, 0, 2, 2))
	assert.Same(t, packed, toRGBA(packed))
}
