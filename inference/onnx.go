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

package inference

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/mpromonet/gin-tflite-pose/pose"
	"github.com/mpromonet/gin-tflite-pose/preprocess"
)

// Tensor names used by the ultralytics ONNX export.
const (
	onnxInputName  = "images"
	onnxOutputName = "output0"
)

// ONNXModel runs an ONNX pose model through onnxruntime.
type ONNXModel struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	shape   []int
	size    int
}

// NewONNXModel initializes onnxruntime from library (empty keeps the default
// search path) and creates a session whose output has the given shape.
func NewONNXModel(modelPath, library string, size, threads int, outputShape []int, logger *zap.Logger) (*ONNXModel, error) {
	if library != "" {
		ort.SetSharedLibraryPath(library)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, errors.Wrap(err, "initialize onnxruntime")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		ort.DestroyEnvironment()
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(threads); err != nil {
		ort.DestroyEnvironment()
		return nil, errors.Wrapf(err, "set intra-op threads to %d", threads)
	}

	dims := make([]int64, len(outputShape))
	for i, d := range outputShape {
		dims[i] = int64(d)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, errors.Wrap(err, "create input tensor")
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(dims...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, errors.Wrap(err, "create output tensor")
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{onnxInputName},
		[]string{onnxOutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, errors.Wrap(err, "create session")
	}

	logger.Info("model loaded",
		zap.String("path", modelPath),
		zap.Int("input_size", size),
		zap.Ints("output_shape", outputShape))

	return &ONNXModel{
		session: session,
		input:   inputTensor,
		output:  outputTensor,
		shape:   append([]int(nil), outputShape...),
		size:    size,
	}, nil
}

// Infer implements pose.Network.
func (m *ONNXModel) Infer(ctx context.Context, img image.Image) (pose.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return pose.Tensor{}, err
	}

	pixels, err := preprocess.NCHW(img, m.size)
	if err != nil {
		return pose.Tensor{}, errors.Wrap(err, "prepare input")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return pose.Tensor{}, ErrModelClosed
	}
	copy(m.input.GetData(), pixels)
	if err := m.session.Run(); err != nil {
		return pose.Tensor{}, errors.Wrap(err, "run session")
	}

	// The output tensor is reused by the next run.
	out := m.output.GetData()
	data := make([]float32, len(out))
	copy(data, out)
	return pose.Tensor{Shape: append([]int(nil), m.shape...), Data: data}, nil
}

// Close destroys the session, its tensors and the onnxruntime environment.
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	m.session.Destroy()
	m.input.Destroy()
	m.output.Destroy()
	m.session = nil
	return errors.Wrap(ort.DestroyEnvironment(), "destroy onnxruntime")
}
