package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/segmask-api/internal/config"
	"github.com/Brownie44l1/segmask-api/internal/handlers"
	"github.com/Brownie44l1/segmask-api/internal/model"
)

type stubEngine struct {
	err error
}

// Run marks the top row as class 1 and the bottom row as class 0.
func (e *stubEngine) Run(_, output []float32) error {
	if e.err != nil {
		return e.err
	}
	copy(output, []float32{0, 1, 0, 1, 1, 0, 1, 0})
	return nil
}

func (e *stubEngine) Close() error { return nil }

var renderDefaults = config.RenderConfig{Palette: "hue", Resample: "nearest", OverlayAlpha: 0.5}

func newRouter(t *testing.T, engine model.Engine, maxUploadMB int) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o600))

	meta := model.Metadata{
		InputName:   "input",
		OutputName:  "output",
		InputShape:  []int64{1, 4, 4, 3},
		OutputShape: []int64{1, 2, 2, 2},
		Layout:      model.LayoutNHWC,
		Classes:     []string{"background", "person"},
	}
	seg, err := model.NewSegmenter(path, meta, func([]byte, model.Metadata) (model.Engine, error) {
		return engine, nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { seg.Close() })

	return handlers.NewRouter(handlers.NewHandler(seg, renderDefaults, maxUploadMB), "")
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func upload(t *testing.T, target, field string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, "face.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodePNG(t *testing.T, w *httptest.ResponseRecorder) image.Image {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "image/png", w.Header().Get("Content-Type"))
	img, err := png.Decode(w.Body)
	require.NoError(t, err)
	return img
}

func TestHealth(t *testing.T) {
	r := newRouter(t, &stubEngine{}, 10)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestOptions(t *testing.T) {
	r := newRouter(t, &stubEngine{}, 10)

	w := serve(r, httptest.NewRequest(http.MethodOptions, "/predict/image", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "POST, GET, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
}

func TestMetadata(t *testing.T) {
	r := newRouter(t, &stubEngine{}, 10)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/metadata", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var meta model.Metadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	require.Equal(t, []string{"background", "person"}, meta.Classes)
	require.Equal(t, []int64{1, 2, 2, 2}, meta.OutputShape)
}

func TestPredictFromImage(t *testing.T) {
	r := newRouter(t, &stubEngine{}, 10)

	img := decodePNG(t, serve(r, upload(t, "/predict/image", "image", pngBytes(t, 9, 5))))
	require.Equal(t, image.Rect(0, 0, 9, 5), img.Bounds())

	img = decodePNG(t, serve(r, upload(t, "/predict/image?width=16&height=8&palette=pascal", "image", pngBytes(t, 9, 5))))
	require.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())
	red, _, _, _ := img.At(0, 0).RGBA()
	require.Equal(t, uint32(128), red>>8)
	red, _, _, _ = img.At(0, 7).RGBA()
	require.Equal(t, uint32(0), red>>8)

	img = decodePNG(t, serve(r, upload(t, "/predict/image?view=side", "image", pngBytes(t, 9, 5))))
	require.Equal(t, image.Rect(0, 0, 18, 5), img.Bounds())

	img = decodePNG(t, serve(r, upload(t, "/predict/image?view=overlay&alpha=0.3&resample=bilinear", "image", pngBytes(t, 9, 5))))
	require.Equal(t, image.Rect(0, 0, 9, 5), img.Bounds())

	img = decodePNG(t, serve(r, upload(t, "/predict/image?palette=random", "image", pngBytes(t, 9, 5))))
	require.Equal(t, image.Rect(0, 0, 9, 5), img.Bounds())
}

func TestPredictFromImage_BadRequests(t *testing.T) {
	r := newRouter(t, &stubEngine{}, 10)

	testCases := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"zero width", upload(t, "/predict/image?width=0", "image", pngBytes(t, 4, 4)), http.StatusBadRequest},
		{"negative height", upload(t, "/predict/image?height=-1", "image", pngBytes(t, 4, 4)), http.StatusBadRequest},
		{"bad view", upload(t, "/predict/image?view=stereo", "image", pngBytes(t, 4, 4)), http.StatusBadRequest},
		{"bad palette", upload(t, "/predict/image?palette=neon", "image", pngBytes(t, 4, 4)), http.StatusBadRequest},
		{"bad alpha", upload(t, "/predict/image?view=overlay&alpha=3", "image", pngBytes(t, 4, 4)), http.StatusBadRequest},
		{"overlay size mismatch", upload(t, "/predict/image?view=overlay&width=2", "image", pngBytes(t, 4, 4)), http.StatusBadRequest},
		{"wrong field", upload(t, "/predict/image", "file", pngBytes(t, 4, 4)), http.StatusBadRequest},
		{"not an image", upload(t, "/predict/image", "image", []byte("hello world")), http.StatusUnsupportedMediaType},
		{"corrupt png", upload(t, "/predict/image", "image", pngBytes(t, 4, 4)[:30]), http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(r, tc.req)
			require.Equal(t, tc.status, w.Code, w.Body.String())
		})
	}
}

func TestPredictFromImage_TooLarge(t *testing.T) {
	r := newRouter(t, &stubEngine{}, 1)

	w := serve(r, upload(t, "/predict/image", "image", make([]byte, 2<<20)))
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPredictFromImage_InferenceError(t *testing.T) {
	r := newRouter(t, &stubEngine{err: errors.New("engine crashed")}, 10)

	w := serve(r, upload(t, "/predict/image", "image", pngBytes(t, 4, 4)))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.JSONEq(t, `{"error":"Segmentation failed"}`, w.Body.String())
}

func TestPredictClasses(t *testing.T) {
	r := newRouter(t, &stubEngine{}, 10)

	w := serve(r, upload(t, "/predict/classes", "image", pngBytes(t, 6, 6)))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.JSONEq(t, `{
		"width": 2,
		"height": 2,
		"classes": [
			{"class": 0, "label": "background", "pixels": 2, "fraction": 0.5},
			{"class": 1, "label": "person", "pixels": 2, "fraction": 0.5}
		]
	}`, w.Body.String())
}

func scoresRequest(t *testing.T, target, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestPredict(t *testing.T) {
	r := newRouter(t, &stubEngine{}, 10)

	w := serve(r, scoresRequest(t, "/predict", `{
		"height": 1, "width": 2, "classes": 2,
		"scores": [0.1, 0.9, 0.8, 0.2]
	}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.JSONEq(t, `{
		"width": 2,
		"height": 1,
		"mask": [1, 0],
		"classes": [
			{"class": 0, "label": "background", "pixels": 1, "fraction": 0.5},
			{"class": 1, "label": "person", "pixels": 1, "fraction": 0.5}
		]
	}`, w.Body.String())

	// labels only apply when the class count matches the model
	w = serve(r, scoresRequest(t, "/predict", `{
		"height": 1, "width": 1, "classes": 3,
		"scores": [0, 0, 1]
	}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.JSONEq(t, `{
		"width": 1,
		"height": 1,
		"mask": [2],
		"classes": [{"class": 2, "label": "unknown", "pixels": 1, "fraction": 1}]
	}`, w.Body.String())
}

func TestPredict_PNG(t *testing.T) {
	r := newRouter(t, &stubEngine{}, 10)

	body := `{"height": 1, "width": 2, "classes": 2, "scores": [0.1, 0.9, 0.8, 0.2]}`
	img := decodePNG(t, serve(r, scoresRequest(t, "/predict?format=png&palette=pascal&width=4&height=2", body)))
	require.Equal(t, image.Rect(0, 0, 4, 2), img.Bounds())
	red, _, _, _ := img.At(0, 1).RGBA()
	require.Equal(t, uint32(128), red>>8)
	red, _, _, _ = img.At(3, 0).RGBA()
	require.Equal(t, uint32(0), red>>8)

	img = decodePNG(t, serve(r, scoresRequest(t, "/predict?format=png&palette=random", body)))
	require.Equal(t, image.Rect(0, 0, 2, 1), img.Bounds())
}

func TestPredict_BadRequests(t *testing.T) {
	r := newRouter(t, &stubEngine{}, 10)

	testCases := []struct {
		name   string
		target string
		body   string
	}{
		{"invalid json", "/predict", `{"height": 1,`},
		{"zero height", "/predict", `{"height": 0, "width": 1, "classes": 1, "scores": []}`},
		{"negative classes", "/predict", `{"height": 1, "width": 1, "classes": -2, "scores": [1, 2]}`},
		{"too few scores", "/predict", `{"height": 2, "width": 2, "classes": 2, "scores": [1, 2, 3]}`},
		{"too many scores", "/predict", `{"height": 1, "width": 1, "classes": 2, "scores": [1, 2, 3]}`},
		{"huge shape", "/predict", `{"height": 1000000, "width": 1000000, "classes": 1000000, "scores": [1]}`},
		{"overlay without image", "/predict?format=png&view=overlay", `{"height": 1, "width": 1, "classes": 1, "scores": [1]}`},
		{"bad palette", "/predict?format=png&palette=neon", `{"height": 1, "width": 1, "classes": 1, "scores": [1]}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(r, scoresRequest(t, tc.target, tc.body))
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}
