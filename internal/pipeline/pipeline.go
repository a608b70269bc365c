package pipeline

import (
	"fmt"
	"image"

	"github.com/Brownie44l1/segmask-api/internal/mask"
	"github.com/Brownie44l1/segmask-api/internal/model"
)

const (
	ViewMask    = "mask"
	ViewOverlay = "overlay"
	ViewSide    = "side"
)

// Options controls how a segmentation is turned into an output image.
// Zero Width or Height means the source image size.
type Options struct {
	View     string
	Palette  string
	Resample mask.Resample
	Alpha    float64
	Width    int
	Height   int
}

type Result struct {
	Image   image.Image
	Classes mask.ClassMap
}

// ParseView accepts mask (or empty), overlay and side.
func ParseView(s string) (string, error) {
	switch s {
	case "", ViewMask:
		return ViewMask, nil
	case ViewOverlay, ViewSide:
		return s, nil
	}
	return "", fmt.Errorf("unknown view %q", s)
}

// Run segments img and renders the requested view.
func Run(seg *model.Segmenter, img image.Image, opts Options) (*Result, error) {
	if opts.Width < 0 || opts.Height < 0 {
		return nil, fmt.Errorf("%w: target %dx%d", mask.ErrInvalidDimension, opts.Width, opts.Height)
	}
	view, err := ParseView(opts.View)
	if err != nil {
		return nil, err
	}

	classes, err := Classes(seg, img)
	if err != nil {
		return nil, err
	}

	palette, err := mask.PaletteByName(opts.Palette, classes.Classes)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	width, height := opts.Width, opts.Height
	if width == 0 {
		width = b.Dx()
	}
	if height == 0 {
		height = b.Dy()
	}

	rendered, err := mask.RenderWith(classes, palette, width, height, opts.Resample)
	if err != nil {
		return nil, err
	}

	switch view {
	case ViewOverlay:
		rendered, err = mask.Overlay(img, rendered, opts.Alpha)
		if err != nil {
			return nil, err
		}
	case ViewSide:
		rendered = mask.SideBySide(img, rendered)
	}

	return &Result{Image: rendered, Classes: classes}, nil
}

// Classes segments img and returns only the class map.
func Classes(seg *model.Segmenter, img image.Image) (mask.ClassMap, error) {
	scores, err := seg.Segment(img)
	if err != nil {
		return mask.ClassMap{}, err
	}
	return mask.Classify(scores), nil
}
