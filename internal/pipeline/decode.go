package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var ErrUnsupportedMedia = errors.New("unsupported media type")

var supportedTypes = []string{
	"image/png", "image/jpeg", "image/gif", "image/bmp", "image/tiff", "image/webp",
}

// Decode sniffs the content type of data and decodes it into an image.
func Decode(data []byte) (image.Image, string, error) {
	mtype := mimetype.Detect(data)
	supported := false
	for _, t := range supportedTypes {
		if mtype.Is(t) {
			supported = true
			break
		}
	}
	if !supported {
		return nil, mtype.String(), fmt.Errorf("%w: %s", ErrUnsupportedMedia, mtype.String())
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, mtype.String(), fmt.Errorf("failed to decode %s image: %w", mtype.String(), err)
	}
	return img, format, nil
}
