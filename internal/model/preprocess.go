package model

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// DefaultMaxPixels is the largest image, in pixels, accepted for decoding.
const DefaultMaxPixels = 89_478_485

// decodeImage decodes JPEG, PNG or GIF bytes and drops any alpha channel.
// The header is checked first so images over maxPixels are never allocated.
func decodeImage(data []byte, maxPixels int) (*image.RGBA, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrImageDecode)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > int64(maxPixels) {
		return nil, fmt.Errorf("%w: image of %dx%d exceeds the %d pixel limit", ErrImageDecode, cfg.Width, cfg.Height, maxPixels)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}
	return toRGB(img), nil
}

// toRGB copies img into an opaque RGBA image. Transparent pixels keep their
// colour values, the alpha channel is discarded.
func toRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.SetRGBA(x-b.Min.X, y-b.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return out
}

// toTensor resizes img to the model resolution and scales pixels to [0,1],
// laid out as the model expects with a leading batch dimension of one.
func toTensor(img image.Image, meta Metadata) *Input {
	size := uint(meta.ImageSize)
	resized := resize.Resize(size, size, img, resize.Lanczos3)

	bounds := resized.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			rgb := [3]float32{
				float32(r) / 65535.0,
				float32(g) / 65535.0,
				float32(b) / 65535.0,
			}

			pixel := y*width + x
			for c, v := range rgb {
				if meta.Layout == LayoutNCHW {
					data[c*plane+pixel] = v
				} else {
					data[pixel*3+c] = v
				}
			}
		}
	}

	shape := make([]int64, len(meta.InputShape))
	copy(shape, meta.InputShape)
	return &Input{Valid: true, Tensor: data, Shape: shape}
}
