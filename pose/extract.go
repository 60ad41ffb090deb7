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

// Keypoint is one landmark in normalized image coordinates. Conf is the raw
// network value and is not clamped.
type Keypoint struct {
	X    float32 `json:"x"`
	Y    float32 `json:"y"`
	Conf float32 `json:"conf"`
}

// Box is an axis-aligned box in normalized image coordinates. It may extend
// outside [0,1].
type Box struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`
}

// Area is the box area; degenerate boxes give zero or negative values.
func (b Box) Area() float32 {
	return (b.X2 - b.X1) * (b.Y2 - b.Y1)
}

// Candidate is an anchor that passed the confidence threshold.
type Candidate struct {
	Anchor    int
	Box       Box
	Score     float32
	Keypoints [NumKeypoints]Keypoint
}

// Person is a detection after suppression.
type Person struct {
	Keypoints [NumKeypoints]Keypoint `json:"keypoints"`
	Score     float32                `json:"score"`
	Box       Box                    `json:"box"`
}

func (c Candidate) person() Person {
	return Person{Keypoints: c.Keypoints, Score: c.Score, Box: c.Box}
}

// Extract scans anchors in index order and decodes every anchor whose score
// is strictly greater than cfg.ConfThreshold. NaN scores never pass.
func Extract(t Canonical, cfg DetectionConfig) []Candidate {
	var candidates []Candidate
	for a := 0; a < t.Anchors; a++ {
		score := t.At(chanScore, a)
		if !(score > cfg.ConfThreshold) {
			continue
		}

		cx := t.At(chanCX, a)
		cy := t.At(chanCY, a)
		w := t.At(chanW, a)
		h := t.At(chanH, a)

		c := Candidate{
			Anchor: a,
			Score:  score,
			Box:    Box{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2},
		}
		for k := 0; k < NumKeypoints; k++ {
			base := chanKpt + 3*k
			c.Keypoints[k] = Keypoint{
				X:    ResolveCoord(t.At(base, a), cfg.InputSize),
				Y:    ResolveCoord(t.At(base+1, a), cfg.InputSize),
				Conf: t.At(base+2, a),
			}
		}
		candidates = append(candidates, c)
	}
	return candidates
}

// ResolveCoord maps one raw keypoint coordinate to normalized space. Values
// strictly inside (0, 1) are taken as already normalized; anything else,
// including exactly 0, exactly 1 and negatives, is divided by inputSize as a
// pixel coordinate of the square network input.
func ResolveCoord(v float32, inputSize int) float32 {
	if v > 0 && v < 1 {
		return v
	}
	return v / float32(inputSize)
}
