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

	"github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates/edgetpu"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mpromonet/gin-tflite-pose/pose"
	"github.com/mpromonet/gin-tflite-pose/preprocess"
)

// TFLiteModel runs a tflite pose model, optionally on an EdgeTPU.
type TFLiteModel struct {
	mu     sync.Mutex
	model  *tflite.Model
	interp *tflite.Interpreter
	size   int
	logger *zap.Logger
}

// NewTFLiteModel loads modelPath and allocates its tensors.
func NewTFLiteModel(modelPath string, threads int, useEdgeTPU bool, logger *zap.Logger) (*TFLiteModel, error) {
	model := tflite.NewModelFromFile(modelPath)
	if model == nil {
		return nil, errors.Errorf("cannot load model %s", modelPath)
	}

	options := tflite.NewInterpreterOptions()
	defer options.Delete()

	options.SetNumThread(threads)

	if useEdgeTPU {
		devices, err := edgetpu.DeviceList()
		if err != nil {
			logger.Warn("could not get EdgeTPU devices", zap.Error(err))
		}
		if len(devices) == 0 {
			logger.Info("no EdgeTPU devices found")
		} else {
			options.AddDelegate(edgetpu.New(devices[0]))
		}
	}

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, errors.New("cannot create interpreter")
	}

	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, errors.Errorf("allocate tensors failed: %v", status)
	}

	input := interpreter.GetInputTensor(0)
	logger.Info("model loaded",
		zap.String("path", modelPath),
		zap.String("input", input.Name()),
		zap.Ints("input_shape", tensorShape(input)),
		zap.Ints("output_shape", tensorShape(interpreter.GetOutputTensor(0))))

	return &TFLiteModel{
		model:  model,
		interp: interpreter,
		size:   input.Dim(1),
		logger: logger,
	}, nil
}

// InputSize is the square input resolution declared by the model.
func (m *TFLiteModel) InputSize() int {
	return m.size
}

// Infer implements pose.Network.
func (m *TFLiteModel) Infer(ctx context.Context, img image.Image) (pose.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return pose.Tensor{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interp == nil {
		return pose.Tensor{}, ErrModelClosed
	}
	if err := m.fillInput(img); err != nil {
		return pose.Tensor{}, err
	}

	if status := m.interp.Invoke(); status != tflite.OK {
		return pose.Tensor{}, errors.Errorf("invoke failed: %v", status)
	}

	output := m.interp.GetOutputTensor(0)
	return pose.Tensor{Shape: tensorShape(output), Data: readOutput(output)}, nil
}

func (m *TFLiteModel) fillInput(img image.Image) error {
	input := m.interp.GetInputTensor(0)
	pixels, err := preprocess.NHWC(img, m.size)
	if err != nil {
		return errors.Wrap(err, "prepare input")
	}

	switch input.Type() {
	case tflite.Float32:
		dst := input.Float32s()
		if len(dst) != len(pixels) {
			return errors.Errorf("input tensor holds %d values, image gives %d", len(dst), len(pixels))
		}
		copy(dst, pixels)
	case tflite.UInt8:
		dst := input.UInt8s()
		if len(dst) != len(pixels) {
			return errors.Errorf("input tensor holds %d values, image gives %d", len(dst), len(pixels))
		}
		for i, v := range pixels {
			dst[i] = uint8(v*255 + 0.5)
		}
	default:
		return errors.Errorf("unsupported input type %v", input.Type())
	}
	return nil
}

// readOutput copies the output tensor; quantized outputs are dequantized
// with the tensor's own scale and zero point.
func readOutput(output *tflite.Tensor) []float32 {
	var loc []float32
	switch output.Type() {
	case tflite.UInt8:
		q := output.QuantizationParams()
		loc = pose.Dequantize(output.UInt8s(), float32(q.Scale), q.ZeroPoint)
	case tflite.Float32:
		f := output.Float32s()
		loc = make([]float32, len(f))
		copy(loc, f)
	}
	return loc
}

func tensorShape(tensor *tflite.Tensor) []int {
	shape := []int{}
	for idx := 0; idx < tensor.NumDims(); idx++ {
		shape = append(shape, tensor.Dim(idx))
	}
	return shape
}

// Close releases the interpreter and the model.
func (m *TFLiteModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.interp != nil {
		m.interp.Delete()
		m.interp = nil
	}
	if m.model != nil {
		m.model.Delete()
		m.model = nil
	}
	return nil
}
