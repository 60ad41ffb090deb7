/*
 * SPDX-License-Identifier: Unlicense
 *
 * This is free and unencumbered software released into the public domain.
 *
 * Anyone is free to copy, modify, publish, use, compile, sell, or distribute this
 * software, either in source code form or as a compiled binary, for any purpose,
 * commercial or non-commercial, and by any means.
 *
 * For more information, please refer to <http://unlicense.org/>
 */

package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"

	"github.com/mpromonet/gin-tflite-pose/pose"
)

// ServerConfig defines HTTP server configurations
type ServerConfig struct {
	Port           int    `koanf:"port"`
	Debug          bool   `koanf:"debug"`
	Static         string `koanf:"static"`
	MaxUploadBytes int64  `koanf:"maxuploadbytes"`
}

// ModelConfig selects and tunes the inference backend
type ModelConfig struct {
	Path        string `koanf:"path"`
	Threads     int    `koanf:"threads"`
	EdgeTPU     bool   `koanf:"edgetpu"`
	ONNXLibrary string `koanf:"onnxlibrary"`
	OutputShape []int  `koanf:"outputshape"`
}

// DetectionConfig mirrors pose.DetectionConfig
type DetectionConfig struct {
	InputSize     int     `koanf:"inputsize"`
	ConfThreshold float32 `koanf:"confthreshold"`
	IoUThreshold  float32 `koanf:"iouthreshold"`
}

// CameraConfig related to frame capture
type CameraConfig struct {
	Enabled bool   `koanf:"enabled"`
	Device  string `koanf:"device"`
}

// SchedulerConfig related to frame admission
type SchedulerConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

// ConsoleConfig related to the keypoint dump
type ConsoleConfig struct {
	KeypointThreshold float32 `koanf:"keypointthreshold"`
}

// TracingConfig related to span export
type TracingConfig struct {
	Enabled bool `koanf:"enabled"`
}

// AppConfig defines
type AppConfig struct {
	Server    ServerConfig    `koanf:"server"`
	Model     ModelConfig     `koanf:"model"`
	Detection DetectionConfig `koanf:"detection"`
	Camera    CameraConfig    `koanf:"camera"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Console   ConsoleConfig   `koanf:"console"`
	Tracing   TracingConfig   `koanf:"tracing"`
}

// Config - Global variable to export
var Config AppConfig

var defaults = map[string]any{
	"server.port":               8080,
	"server.debug":              false,
	"server.static":             "./static",
	"server.maxuploadbytes":     32 << 20,
	"model.path":                "models/yolov8n-pose_float32.tflite",
	"model.threads":             4,
	"model.edgetpu":             false,
	"model.outputshape":         []int{1, pose.NumChannels, pose.NumAnchors},
	"detection.inputsize":       640,
	"detection.confthreshold":   0.3,
	"detection.iouthreshold":    0.5,
	"camera.enabled":            true,
	"camera.device":             "0",
	"scheduler.timeout":         "0s",
	"console.keypointthreshold": 0.3,
	"tracing.enabled":           false,
}

// Init - Assign global config to decoded config struct
func Init(filePath string) error {
	cfg, err := Load(filePath)
	if err != nil {
		return err
	}
	Config = *cfg
	return nil
}

// Load reads defaults, then the YAML file if filePath is not empty, then
// CFG_ prefixed environment variables.
func Load(filePath string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	if filePath != "" {
		if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load %s", filePath)
		}
	}

	if err := k.Load(env.ProviderWithValue("CFG_", ".", func(s string, v string) (string, any) {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "CFG_")), "_", ".")
		if strings.Contains(v, ",") {
			return key, strings.Split(strings.TrimSpace(v), ",")
		}
		return key, v
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateConfig is for custom validation rules for the configuration
func ValidateConfig(cfg *AppConfig) error {
	if err := cfg.Detection.Pose().Validate(); err != nil {
		return errors.Wrap(err, "detection")
	}
	if len(cfg.Model.OutputShape) != 3 {
		return errors.Errorf("model.outputshape must have 3 dimensions, got %v", cfg.Model.OutputShape)
	}
	if cfg.Model.Path == "" {
		return errors.New("model.path is required")
	}
	if cfg.Server.MaxUploadBytes <= 0 {
		return errors.Errorf("server.maxuploadbytes must be positive, got %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.Scheduler.Timeout < 0 {
		return errors.Errorf("scheduler.timeout must not be negative, got %v", cfg.Scheduler.Timeout)
	}
	return nil
}

// Pose converts the section into decoder parameters.
func (c DetectionConfig) Pose() pose.DetectionConfig {
	return pose.DetectionConfig{
		InputSize:     c.InputSize,
		ConfThreshold: c.ConfThreshold,
		IoUThreshold:  c.IoUThreshold,
	}
}

var defaultConfigPath = "config/config.yaml"

// ParseConfigFlag allows clients to specify the relative path to the file from
// which the configuration will be loaded.
func ParseConfigFlag() string {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	configPath := fs.String("file", defaultConfigPath, "configuration file")
	_ = fs.Parse(os.Args[1:])

	return *configPath
}
