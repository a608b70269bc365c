package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
)

const envPrefix = "SEGMASK_"

// ServerConfig defines HTTP server configurations
type ServerConfig struct {
	Port        int    `koanf:"port"`
	Debug       bool   `koanf:"debug"`
	StaticDir   string `koanf:"staticdir"`
	MaxUploadMB int    `koanf:"maxuploadmb"`
}

// ModelConfig selects the model artifact and inference backend
type ModelConfig struct {
	Backend           string `koanf:"backend"`
	Path              string `koanf:"path"`
	MetadataPath      string `koanf:"metadatapath"`
	Threads           int    `koanf:"threads"`
	SharedLibraryPath string `koanf:"sharedlibrarypath"`
}

// RenderConfig holds mask rendering defaults
type RenderConfig struct {
	Palette      string  `koanf:"palette"`
	Resample     string  `koanf:"resample"`
	OverlayAlpha float64 `koanf:"overlayalpha"`
}

// AppConfig defines
type AppConfig struct {
	Server ServerConfig `koanf:"server"`
	Model  ModelConfig  `koanf:"model"`
	Render RenderConfig `koanf:"render"`
}

// Config - Global variable to export
var Config AppConfig

var defaults = map[string]any{
	"server.port":         8080,
	"server.debug":        false,
	"server.maxuploadmb":  10,
	"model.backend":       "tflite",
	"model.path":          "models/deeplabv3.tflite",
	"model.threads":       4,
	"render.palette":      "hue",
	"render.resample":     "nearest",
	"render.overlayalpha": 0.5,
}

// Init - Assign global config to decoded config struct. An empty filePath
// loads defaults and environment overrides only.
func Init(filePath string) error {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return err
	}

	if filePath != "" {
		if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			return fmt.Errorf("failed to load config file %s: %w", filePath, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(s string, v string) (string, any) {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
		return key, v
	}), nil); err != nil {
		return err
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return err
	}
	if err := ValidateConfig(&cfg); err != nil {
		return err
	}

	Config = cfg
	return nil
}

// ValidateConfig is for custom validation rules for the configuration
func ValidateConfig(cfg *AppConfig) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.maxuploadmb must be positive")
	}
	switch cfg.Model.Backend {
	case "tflite", "onnx":
	default:
		return fmt.Errorf("model.backend %q is not one of tflite, onnx", cfg.Model.Backend)
	}
	if cfg.Model.Path == "" {
		return fmt.Errorf("model.path is required")
	}
	if cfg.Model.Threads < 0 {
		return fmt.Errorf("model.threads must not be negative")
	}
	switch cfg.Render.Palette {
	case "hue", "pascal", "random":
	default:
		return fmt.Errorf("render.palette %q is not one of hue, pascal, random", cfg.Render.Palette)
	}
	switch cfg.Render.Resample {
	case "nearest", "bilinear":
	default:
		return fmt.Errorf("render.resample %q is not one of nearest, bilinear", cfg.Render.Resample)
	}
	if cfg.Render.OverlayAlpha < 0 || cfg.Render.OverlayAlpha > 1 {
		return fmt.Errorf("render.overlayalpha %v outside [0,1]", cfg.Render.OverlayAlpha)
	}
	return nil
}

var defaultConfigPath = "configs/config.yaml"

// ParseConfigFlag allows clients to specify the relative path to the file from
// which the configuration will be loaded.
func ParseConfigFlag() string {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	configPath := fs.String("file", defaultConfigPath, "configuration file")
	_ = fs.Parse(os.Args[1:])

	return *configPath
}
