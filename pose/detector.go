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

// Package pose decodes YOLOv8-pose output tensors into person detections.
//
// The pipeline is layout normalization, candidate extraction with keypoint
// coordinate resolution, and greedy non-maximum suppression. Everything here
// is stateless; a Detector can be shared as long as its Network can.
package pose

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"
)

// Network runs the keypoint model on one image.
type Network interface {
	Infer(ctx context.Context, img image.Image) (Tensor, error)
}

// DetectionConfig holds the decoder parameters.
type DetectionConfig struct {
	InputSize     int
	ConfThreshold float32
	IoUThreshold  float32
}

// DefaultConfig returns a 640 input, 0.3 confidence and 0.5 IoU.
func DefaultConfig() DetectionConfig {
	return DetectionConfig{
		InputSize:     640,
		ConfThreshold: 0.3,
		IoUThreshold:  0.5,
	}
}

// Validate checks the ranges the decoder relies on.
func (c DetectionConfig) Validate() error {
	if c.InputSize <= 0 {
		return fmt.Errorf("input size must be positive, got %d", c.InputSize)
	}
	if c.ConfThreshold < 0 || c.ConfThreshold > 1 {
		return fmt.Errorf("confidence threshold %v out of [0,1]", c.ConfThreshold)
	}
	if c.IoUThreshold < 0 || c.IoUThreshold > 1 {
		return fmt.Errorf("iou threshold %v out of [0,1]", c.IoUThreshold)
	}
	return nil
}

// Detector couples a Network with the decoder.
type Detector struct {
	net    Network
	cfg    DetectionConfig
	logger *zap.Logger
}

// NewDetector returns a Detector. A nil logger disables diagnostics.
func NewDetector(net Network, cfg DetectionConfig, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{net: net, cfg: cfg, logger: logger}
}

// Config returns the decoder parameters.
func (d *Detector) Config() DetectionConfig {
	return d.cfg
}

// Detect runs the network on img and decodes its output. Network failures are
// returned as *InferenceError, layout mismatches as *UnsupportedShapeError.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]Person, error) {
	t, err := d.net.Infer(ctx, img)
	if err != nil {
		return nil, &InferenceError{Err: err}
	}
	return d.Decode(t)
}

// Decode turns a raw tensor into persons, highest score first.
func (d *Detector) Decode(t Tensor) ([]Person, error) {
	ct, err := Normalize(t)
	if err != nil {
		return nil, err
	}
	if ce := d.logger.Check(zap.DebugLevel, "output tensor"); ce != nil {
		ce.Write(zap.Ints("shape", t.Shape), zap.Int("anchors", ct.Anchors))
		d.logAnchors(ct)
	}
	return Suppress(Extract(ct, d.cfg), d.cfg.IoUThreshold), nil
}

func (d *Detector) logAnchors(ct Canonical) {
	for a := 0; a < min(5, ct.Anchors); a++ {
		d.logger.Debug("anchor",
			zap.Int("index", a),
			zap.Float32s("box", []float32{ct.At(chanCX, a), ct.At(chanCY, a), ct.At(chanW, a), ct.At(chanH, a)}),
			zap.Float32("score", ct.At(chanScore, a)),
			zap.Float32s("kpt0", []float32{ct.At(chanKpt, a), ct.At(chanKpt+1, a), ct.At(chanKpt+2, a)}),
		)
	}
}
