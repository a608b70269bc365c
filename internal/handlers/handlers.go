package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/segmask-api/internal/config"
	"github.com/Brownie44l1/segmask-api/internal/logger"
	"github.com/Brownie44l1/segmask-api/internal/mask"
	"github.com/Brownie44l1/segmask-api/internal/model"
	"github.com/Brownie44l1/segmask-api/internal/pipeline"
	"github.com/Brownie44l1/segmask-api/internal/tensor"
)

const MB = 1 << 20

type Handler struct {
	segmenter *model.Segmenter
	render    config.RenderConfig
	maxUpload int64
}

func NewHandler(segmenter *model.Segmenter, render config.RenderConfig, maxUploadMB int) *Handler {
	return &Handler{
		segmenter: segmenter,
		render:    render,
		maxUpload: int64(maxUploadMB) * MB,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handler) Metadata(c *gin.Context) {
	c.JSON(http.StatusOK, h.segmenter.Metadata)
}

// PredictFromImage returns the rendered segmentation of the uploaded image as PNG.
func (h *Handler) PredictFromImage(c *gin.Context) {
	log, _ := logger.GetZapLogger(c.Request.Context())

	opts, err := h.parseOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	img, ok := h.readImage(c)
	if !ok {
		return
	}

	res, err := pipeline.Run(h.segmenter, img, opts)
	if err != nil {
		h.fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, res.Image); err != nil {
		log.Error("failed to encode mask", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode mask"})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// PredictClasses reports the share of the image covered by each detected class.
func (h *Handler) PredictClasses(c *gin.Context) {
	img, ok := h.readImage(c)
	if !ok {
		return
	}

	classes, err := pipeline.Classes(h.segmenter, img)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"width":   classes.Width,
		"height":  classes.Height,
		"classes": mask.Coverage(classes, h.segmenter.Classes()),
	})
}

// Predict classifies raw class scores posted as JSON. With format=png the
// mask is rendered instead of returned as class indices.
func (h *Handler) Predict(c *gin.Context) {
	log, _ := logger.GetZapLogger(c.Request.Context())

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	var req model.PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}

	if req.Height <= 0 || req.Width <= 0 || req.Classes <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf(
			"height, width and classes must be positive, got %dx%dx%d", req.Height, req.Width, req.Classes)})
		return
	}
	expectedSize := 1
	for _, dim := range []int{req.Height, req.Width, req.Classes} {
		if dim > len(req.Scores) {
			expectedSize = -1
			break
		}
		expectedSize *= dim
		if expectedSize > len(req.Scores) {
			break
		}
	}
	if expectedSize != len(req.Scores) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf(
			"Expected %dx%dx%d values, got %d", req.Height, req.Width, req.Classes, len(req.Scores))})
		return
	}

	scores, err := tensor.FromSlice(req.Height, req.Width, req.Classes, req.Scores)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	classes := mask.Classify(scores)

	if c.Query("format") != "png" {
		var labels []string
		if len(h.segmenter.Classes()) == req.Classes {
			labels = h.segmenter.Classes()
		}
		c.JSON(http.StatusOK, model.PredictionResponse{
			Width:   classes.Width,
			Height:  classes.Height,
			Mask:    classes.Pix,
			Classes: mask.Coverage(classes, labels),
		})
		return
	}

	opts, err := h.parseOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if opts.View != pipeline.ViewMask {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only the mask view is available without a source image"})
		return
	}
	width, height := opts.Width, opts.Height
	if width == 0 {
		width = classes.Width
	}
	if height == 0 {
		height = classes.Height
	}

	palette, err := mask.PaletteByName(opts.Palette, classes.Classes)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rendered, err := mask.RenderWith(classes, palette, width, height, opts.Resample)
	if err != nil {
		h.fail(c, err)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, rendered); err != nil {
		log.Error("failed to encode mask", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode mask"})
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

func (h *Handler) readImage(c *gin.Context) (image.Image, bool) {
	log, _ := logger.GetZapLogger(c.Request.Context())

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided. Use 'image' as the form field name"})
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read image"})
		return nil, false
	}
	log.Info("received file", zap.String("filename", header.Filename), zap.Int64("size", header.Size))

	img, format, err := pipeline.Decode(data)
	if err != nil {
		if errors.Is(err, pipeline.ErrUnsupportedMedia) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image format"})
		return nil, false
	}
	log.Debug("decoded image",
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))

	return img, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, mask.ErrInvalidDimension), errors.Is(err, model.ErrInvalidDimension):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		log, _ := logger.GetZapLogger(c.Request.Context())
		log.Error("segmentation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Segmentation failed"})
	}
}

func (h *Handler) parseOptions(c *gin.Context) (pipeline.Options, error) {
	opts := pipeline.Options{
		Palette: c.DefaultQuery("palette", h.render.Palette),
		Alpha:   h.render.OverlayAlpha,
	}

	view, err := pipeline.ParseView(c.Query("view"))
	if err != nil {
		return opts, err
	}
	opts.View = view

	if err := mask.CheckPaletteName(opts.Palette); err != nil {
		return opts, err
	}

	opts.Resample, err = mask.ParseResample(c.DefaultQuery("resample", h.render.Resample))
	if err != nil {
		return opts, err
	}

	for _, q := range []struct {
		name string
		dst  *int
	}{{"width", &opts.Width}, {"height", &opts.Height}} {
		v := c.Query(q.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return opts, fmt.Errorf("%s must be a positive integer", q.name)
		}
		*q.dst = n
	}

	if v := c.Query("alpha"); v != "" {
		a, err := strconv.ParseFloat(v, 64)
		if err != nil || a < 0 || a > 1 {
			return opts, fmt.Errorf("alpha must be a number in [0,1]")
		}
		opts.Alpha = a
	}

	return opts, nil
}
