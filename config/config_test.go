package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func writeConfig(c *qt.C, content string) string {
	path := filepath.Join(c.TempDir(), "config.yaml")
	c.Assert(os.WriteFile(path, []byte(content), 0o600), qt.IsNil)
	return path
}

func TestLoad_Defaults(t *testing.T) {
	c := qt.New(t)

	cfg, err := Load("")
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Server.Port, qt.Equals, 8080)
	c.Assert(cfg.Detection.InputSize, qt.Equals, 640)
	c.Assert(cfg.Detection.ConfThreshold, qt.Equals, float32(0.3))
	c.Assert(cfg.Detection.IoUThreshold, qt.Equals, float32(0.5))
	c.Assert(cfg.Model.OutputShape, qt.DeepEquals, []int{1, 56, 8400})
	c.Assert(cfg.Camera.Device, qt.Equals, "0")
	c.Assert(cfg.Scheduler.Timeout, qt.Equals, time.Duration(0))
	c.Assert(cfg.Server.MaxUploadBytes, qt.Equals, int64(32<<20))
	c.Assert(cfg.Tracing.Enabled, qt.IsFalse)
}

func TestLoad_FileAndEnv(t *testing.T) {
	c := qt.New(t)

	path := writeConfig(c, `
model:
  path: models/pose.onnx
  outputshape: [1, 8400, 56]
detection:
  confthreshold: 0.25
scheduler:
  timeout: 2s
tracing:
  enabled: true
`)
	c.Setenv("CFG_DETECTION_IOUTHRESHOLD", "0.45")
	c.Setenv("CFG_CAMERA_DEVICE", "rtsp://camera/stream")

	cfg, err := Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Model.Path, qt.Equals, "models/pose.onnx")
	c.Assert(cfg.Model.OutputShape, qt.DeepEquals, []int{1, 8400, 56})
	c.Assert(cfg.Detection.ConfThreshold, qt.Equals, float32(0.25))
	c.Assert(cfg.Detection.IoUThreshold, qt.Equals, float32(0.45))
	c.Assert(cfg.Detection.InputSize, qt.Equals, 640)
	c.Assert(cfg.Camera.Device, qt.Equals, "rtsp://camera/stream")
	c.Assert(cfg.Scheduler.Timeout, qt.Equals, 2*time.Second)
	c.Assert(cfg.Tracing.Enabled, qt.IsTrue)

	p := cfg.Detection.Pose()
	c.Assert(p.ConfThreshold, qt.Equals, float32(0.25))
	c.Assert(p.InputSize, qt.Equals, 640)
}

func TestLoad_Invalid(t *testing.T) {
	c := qt.New(t)

	testCases := []struct {
		name    string
		content string
		want    string
	}{
		{name: "threshold out of range", content: "detection:\n  confthreshold: 1.5\n", want: `detection: confidence threshold .*`},
		{name: "zero input size", content: "detection:\n  inputsize: 0\n", want: `detection: input size .*`},
		{name: "bad output shape", content: "model:\n  outputshape: [56, 8400]\n", want: `model.outputshape .*`},
		{name: "zero upload cap", content: "server:\n  maxuploadbytes: 0\n", want: `server.maxuploadbytes .*`},
		{name: "negative timeout", content: "scheduler:\n  timeout: -1s\n", want: `scheduler.timeout .*`},
	}

	for _, tc := range testCases {
		c.Run(tc.name, func(c *qt.C) {
			_, err := Load(writeConfig(c, tc.content))
			c.Assert(err, qt.ErrorMatches, tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	c := qt.New(t)

	_, err := Load(filepath.Join(c.TempDir(), "missing.yaml"))
	c.Assert(err, qt.IsNotNil)
}

func TestInit(t *testing.T) {
	c := qt.New(t)
	c.Cleanup(func() { Config = AppConfig{} })

	c.Assert(Init(writeConfig(c, "server:\n  debug: true\n")), qt.IsNil)
	c.Assert(Config.Server.Debug, qt.IsTrue)
}
