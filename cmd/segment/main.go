package main

import (
	"context"
	"fmt"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/urfave/cli.v1"

	"github.com/Brownie44l1/segmask-api/internal/config"
	"github.com/Brownie44l1/segmask-api/internal/engine"
	"github.com/Brownie44l1/segmask-api/internal/logger"
	"github.com/Brownie44l1/segmask-api/internal/mask"
	"github.com/Brownie44l1/segmask-api/internal/model"
	"github.com/Brownie44l1/segmask-api/internal/pipeline"
)

func main() {
	app := cli.NewApp()
	app.Name = "segment"
	app.Usage = "write a segmentation mask next to every input image"
	app.ArgsUsage = "image [image...]"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "configuration file"},
		cli.StringFlag{Name: "model, m", Usage: "model file, overrides model.path"},
		cli.StringFlag{Name: "out, o", Value: ".", Usage: "output directory"},
		cli.StringFlag{Name: "view", Value: pipeline.ViewMask, Usage: "mask, overlay or side"},
		cli.StringFlag{Name: "palette", Usage: "hue, pascal or random"},
		cli.StringFlag{Name: "resample", Usage: "nearest or bilinear"},
		cli.IntFlag{Name: "workers, w", Value: runtime.NumCPU(), Usage: "images processed at once"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.NewExitError("no input images", 2)
	}
	if err := config.Init(c.String("config")); err != nil {
		return err
	}

	cfg := config.Config
	if m := c.String("model"); m != "" {
		cfg.Model.Path = m
	}
	if p := c.String("palette"); p != "" {
		cfg.Render.Palette = p
	}
	if r := c.String("resample"); r != "" {
		cfg.Render.Resample = r
	}

	resample, err := mask.ParseResample(cfg.Render.Resample)
	if err != nil {
		return err
	}
	view, err := pipeline.ParseView(c.String("view"))
	if err != nil {
		return err
	}
	opts := pipeline.Options{
		View:     view,
		Palette:  cfg.Render.Palette,
		Resample: resample,
		Alpha:    cfg.Render.OverlayAlpha,
	}

	segmenter, err := engine.Open(cfg.Model)
	if err != nil {
		return err
	}
	defer segmenter.Close()

	if err := os.MkdirAll(c.String("out"), 0o755); err != nil {
		return err
	}
	return segmentFiles(context.Background(), segmenter, c.Args(), c.String("out"), opts, c.Int("workers"))
}

func segmentFiles(ctx context.Context, segmenter *model.Segmenter, paths []string, outDir string, opts pipeline.Options, workers int) error {
	log, _ := logger.GetZapLogger(ctx)

	outputs := make([]string, len(paths))
	seen := make(map[string]string, len(paths))
	for i, path := range paths {
		out := outputPath(path, outDir, opts.View)
		if prev, ok := seen[out]; ok {
			return fmt.Errorf("%s and %s would both be written to %s", prev, path, out)
		}
		seen[out] = path
		outputs[i] = out
	}

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, path := range paths {
		path, out := path, outputs[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := segmentFile(segmenter, path, out, opts); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			log.Info("wrote mask", zap.String("input", path), zap.String("output", out))
			return nil
		})
	}
	return g.Wait()
}

func outputPath(path, outDir, view string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(outDir, name+"_"+view+".png")
}

func segmentFile(segmenter *model.Segmenter, path, out string, opts pipeline.Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	img, _, err := pipeline.Decode(data)
	if err != nil {
		return err
	}

	res, err := pipeline.Run(segmenter, img, opts)
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := png.Encode(f, res.Image); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
