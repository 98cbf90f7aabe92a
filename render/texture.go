package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lmittmann/ppm"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// LoadTexture decodes the image at path into tightly packed 8-bit RGBA.
func LoadTexture(path string) (*image.RGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open texture: %w", err)
	}

	img, err := decodeImage(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("decode texture: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode texture: image is empty")
	}
	return toRGBA(img), nil
}

func decodeImage(data []byte, ext string) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("malformed image: %v", r)
		}
	}()
	switch strings.ToLower(ext) {
	case ".ppm", ".pnm":
		if err := checkPPM(data); err != nil {
			return nil, err
		}
		return ppm.Decode(bytes.NewReader(data))
	}
	img, _, err = image.Decode(bytes.NewReader(data))
	return img, err
}

var (
	errNotPPM        = errors.New("ppm: not a binary (P6) pixmap")
	errPPMHeader     = errors.New("ppm: malformed header")
	errPPMTruncated  = errors.New("ppm: truncated pixel data")
	errPPMDimensions = errors.New("ppm: invalid dimensions")
)

// checkPPM requires a complete P6 header (magic, width, height and maxval,
// each preceded by whitespace or comments, the last followed by a single
// whitespace byte) and enough bytes for the raster it announces. The
// decoder must never see a short header.
func checkPPM(data []byte) error {
	if len(data) < 2 || data[0] != 'P' || data[1] != '6' {
		return errNotPPM
	}
	pos := 2
	var fields [3]int64
	for i := range fields {
		start := pos
		for pos < len(data) {
			if data[pos] == '#' {
				for pos < len(data) && data[pos] != '\n' {
					pos++
				}
				continue
			}
			if !isSpace(data[pos]) {
				break
			}
			pos++
		}
		if pos == start {
			return errPPMHeader
		}
		digits := pos
		for pos < len(data) && data[pos] >= '0' && data[pos] <= '9' {
			pos++
		}
		if pos == digits || pos-digits > 9 {
			return errPPMHeader
		}
		n, err := strconv.ParseInt(string(data[digits:pos]), 10, 64)
		if err != nil {
			return errPPMHeader
		}
		fields[i] = n
	}
	if pos >= len(data) || !isSpace(data[pos]) {
		return errPPMHeader
	}
	pos++

	width, height, maxval := fields[0], fields[1], fields[2]
	if width == 0 || height == 0 || maxval == 0 || maxval > 65535 {
		return errPPMDimensions
	}
	sample := int64(1)
	if maxval > 255 {
		sample = 2
	}
	if int64(len(data)-pos) < width*height*3*sample {
		return errPPMTruncated
	}
	return nil
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == 4*rgba.Rect.Dx() {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
