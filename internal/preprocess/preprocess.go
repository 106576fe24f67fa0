// Package preprocess turns arbitrary raster images into the normalized
// 1×1×28×28 tensors the classifiers consume.
//
// The pipeline is grayscale, bilinear resize to 28×28, scale to [0,1],
// then normalization with the MNIST training mean and standard deviation.
package preprocess

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/desertthunder/digits/internal/nn"
	"github.com/desertthunder/digits/internal/shared"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// Side is the width and height of a classifier input.
	Side = 28

	Mean = 0.1307
	Std  = 0.3081
)

// Decode decodes raster bytes in any registered format.
func Decode(b []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", shared.ErrDecodeImage, err)
	}
	return img, format, nil
}

// DecodeBase64 decodes a base64 payload, optionally prefixed with a data URL header
// such as "data:image/png;base64,". Whitespace inside the payload is ignored.
func DecodeBase64(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.Join(strings.Fields(s), "")

	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// browsers occasionally drop padding
		if raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); rawErr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("%w: invalid base64: %v", shared.ErrDecodeImage, err)
	}
	return b, nil
}

// FromBase64 decodes and preprocesses a base64-encoded image.
func FromBase64(s string) (*nn.Tensor, error) {
	b, err := DecodeBase64(s)
	if err != nil {
		return nil, err
	}
	img, _, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return Preprocess(img), nil
}

// FromFile reads, decodes and preprocesses the image at path.
func FromFile(path string) (*nn.Tensor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	img, _, err := Decode(b)
	if err != nil {
		return nil, err
	}
	return Preprocess(img), nil
}

// Preprocess converts img into a [1 1 28 28] tensor.
// Non-square images are stretched; an image already 28×28 is not resampled.
func Preprocess(img image.Image) *nn.Tensor {
	var src image.Image = Grayscale(img)
	if b := src.Bounds(); b.Dx() != Side || b.Dy() != Side {
		src = resize.Resize(Side, Side, src, resize.Bilinear)
	}

	x := nn.New(1, 1, Side, Side)
	b := src.Bounds()
	for y := range Side {
		for xx := range Side {
			v := grayAt(src, b.Min.X+xx, b.Min.Y+y)
			x.Data[y*Side+xx] = (float32(v)/255 - Mean) / Std
		}
	}
	return x
}

// Grayscale converts img to 8-bit luminance using ITU-R 601 weights on
// non-premultiplied channels. Alpha is dropped rather than composited.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			lum := (19595*uint32(c.R) + 38470*uint32(c.G) + 7471*uint32(c.B) + 1<<15) >> 16
			gray.Pix[(y-b.Min.Y)*gray.Stride+(x-b.Min.X)] = uint8(lum)
		}
	}
	return gray
}

func grayAt(img image.Image, x, y int) uint8 {
	if g, ok := img.(*image.Gray); ok {
		return g.GrayAt(x, y).Y
	}
	return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
}
