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

import "fmt"

// UnsupportedShapeError reports a network output whose shape matches neither
// (1, 56, A) nor (1, A, 56). It means the model and the decoder disagree, so
// the frame is abandoned without retry.
type UnsupportedShapeError struct {
	Shape []int
}

func newShapeError(shape []int) *UnsupportedShapeError {
	return &UnsupportedShapeError{Shape: append([]int(nil), shape...)}
}

func (e *UnsupportedShapeError) Error() string {
	return fmt.Sprintf("unsupported output shape %v: want [1 %d N] or [1 N %d]", e.Shape, NumChannels, NumChannels)
}

// InferenceError wraps a failure of the network call for one frame.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference: %v", e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
