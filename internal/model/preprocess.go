package model

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
)

// Preprocess resizes img to the model input size with bilinear filtering and
// scales every channel from [0,255] to [0,1], laid out per metadata.Layout.
func Preprocess(img image.Image, metadata Metadata) ([]float32, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: image is %dx%d", ErrInvalidDimension, b.Dx(), b.Dy())
	}

	height, width, channels := metadata.InputSize()
	resized := resize.Resize(uint(width), uint(height), img, resize.Bilinear)
	rb := resized.Bounds()

	plane := width * height
	inputData := make([]float32, channels*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			rgb := [3]float32{
				float32(r>>8) / 255.0,
				float32(g>>8) / 255.0,
				float32(b>>8) / 255.0,
			}

			pixelIndex := y*width + x
			for c, v := range rgb {
				if metadata.Layout == LayoutNCHW {
					inputData[c*plane+pixelIndex] = v
				} else {
					inputData[pixelIndex*channels+c] = v
				}
			}
		}
	}

	return inputData, nil
}
