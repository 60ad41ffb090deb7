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

// Package preprocess turns images into float32 network inputs scaled to [0,1].
package preprocess

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// ErrEmptyImage is returned for images without pixels.
var ErrEmptyImage = errors.New("empty image")

func resize(img image.Image, size int) (*image.NRGBA, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	if size <= 0 {
		return nil, errors.Errorf("invalid input size %d", size)
	}
	return imaging.Resize(img, size, size, imaging.Linear), nil
}

// NHWC resizes img to size x size and returns interleaved RGB values.
func NHWC(img image.Image, size int) ([]float32, error) {
	resized, err := resize(img, size)
	if err != nil {
		return nil, err
	}
	out := make([]float32, size*size*3)
	for i, p := 0, 0; i < size*size; i, p = i+1, p+4 {
		out[3*i] = float32(resized.Pix[p]) / 255
		out[3*i+1] = float32(resized.Pix[p+1]) / 255
		out[3*i+2] = float32(resized.Pix[p+2]) / 255
	}
	return out, nil
}

// NCHW resizes img to size x size and returns planar R, G, B values.
func NCHW(img image.Image, size int) ([]float32, error) {
	resized, err := resize(img, size)
	if err != nil {
		return nil, err
	}
	channelSize := size * size
	out := make([]float32, channelSize*3)
	for i, p := 0, 0; i < channelSize; i, p = i+1, p+4 {
		out[i] = float32(resized.Pix[p]) / 255
		out[channelSize+i] = float32(resized.Pix[p+1]) / 255
		out[channelSize*2+i] = float32(resized.Pix[p+2]) / 255
	}
	return out, nil
}
