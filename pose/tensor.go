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

package pose

const (
	// NumKeypoints is the number of COCO keypoints predicted per anchor.
	NumKeypoints = 17
	// NumChannels is 4 box fields, 1 score and 17 (x, y, conf) triples.
	NumChannels = 4 + 1 + NumKeypoints*3
	// NumAnchors is the anchor count of a 640x640 YOLOv8-pose head.
	NumAnchors = 8400
)

const (
	chanCX    = 0
	chanCY    = 1
	chanW     = 2
	chanH     = 3
	chanScore = 4
	chanKpt   = 5
)

// Tensor is a raw network output together with its declared shape,
// either (1, 56, A) or (1, A, 56). Data is never modified.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Canonical is a channel-major tensor: value (c, a) lives at Data[c*Anchors+a].
type Canonical struct {
	Anchors int
	Data    []float32
}

// At returns the value of channel c for anchor a.
func (t Canonical) At(c, a int) float32 {
	return t.Data[c*t.Anchors+a]
}

// Normalize converts a raw tensor into channel-major layout. A channel-major
// input is returned without copying; an anchor-major input is transposed.
func Normalize(t Tensor) (Canonical, error) {
	if len(t.Shape) != 3 || t.Shape[0] != 1 {
		return Canonical{}, newShapeError(t.Shape)
	}
	d1, d2 := t.Shape[1], t.Shape[2]
	if d1 <= 0 || d2 <= 0 || len(t.Data) != d1*d2 {
		return Canonical{}, newShapeError(t.Shape)
	}

	switch {
	case d1 == NumChannels:
		return Canonical{Anchors: d2, Data: t.Data}, nil
	case d2 == NumChannels:
		anchors := d1
		data := make([]float32, len(t.Data))
		for a := 0; a < anchors; a++ {
			row := t.Data[a*NumChannels : (a+1)*NumChannels]
			for c, v := range row {
				data[c*anchors+a] = v
			}
		}
		return Canonical{Anchors: anchors, Data: data}, nil
	}
	return Canonical{}, newShapeError(t.Shape)
}

// Dequantize maps quantized uint8 output values to real values with
// (q - zeroPoint) * scale. A zero scale means the tensor carries no
// quantization parameters and values are scaled to [0, 1].
func Dequantize(raw []uint8, scale float32, zeroPoint int) []float32 {
	out := make([]float32, len(raw))
	if scale == 0 {
		for i, v := range raw {
			out[i] = float32(v) / 255
		}
		return out
	}
	for i, v := range raw {
		out[i] = float32(int(v)-zeroPoint) * scale
	}
	return out
}
