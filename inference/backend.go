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

// Package inference provides the pose.Network backends: tflite (with an
// optional EdgeTPU delegate) and onnxruntime.
package inference

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mpromonet/gin-tflite-pose/config"
	"github.com/mpromonet/gin-tflite-pose/pose"
)

// ErrModelClosed is returned by Infer after Close.
var ErrModelClosed = errors.New("model closed")

// Model is a loaded network.
type Model interface {
	pose.Network
	io.Closer
}

// Open picks a backend from the model file extension.
func Open(cfg config.ModelConfig, inputSize int, logger *zap.Logger) (Model, error) {
	switch ext := strings.ToLower(filepath.Ext(cfg.Path)); ext {
	case ".tflite":
		m, err := NewTFLiteModel(cfg.Path, cfg.Threads, cfg.EdgeTPU, logger)
		if err != nil {
			return nil, err
		}
		if m.InputSize() != inputSize {
			logger.Warn("model input size differs from detection.inputsize",
				zap.Int("model", m.InputSize()), zap.Int("config", inputSize))
		}
		return m, nil
	case ".onnx":
		return NewONNXModel(cfg.Path, cfg.ONNXLibrary, inputSize, cfg.Threads, cfg.OutputShape, logger)
	default:
		return nil, errors.Errorf("unsupported model format %q", ext)
	}
}
