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

package main

import (
	"context"
	"image"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/mpromonet/gin-tflite-pose/scheduler"
)

// captureLoop reads frames from device and offers each one to the scheduler.
// Frames that arrive while a decode is in flight are dropped without being
// converted.
func captureLoop(ctx context.Context, device string, s *scheduler.Scheduler, logger *zap.Logger) error {
	webcam, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return errors.Wrapf(err, "open capture device %s", device)
	}
	defer webcam.Close()

	img := gocv.NewMat()
	defer img.Close()

	logger.Info("capture started", zap.String("device", device))

	idleDuration := 10 * time.Millisecond
	var dropped uint64
	for {
		select {
		case <-ctx.Done():
			logger.Info("capture stopped", zap.Uint64("dropped", dropped))
			return nil
		default:
		}

		if ok := webcam.Read(&img); !ok {
			return errors.Errorf("cannot read device %s", device)
		}
		if img.Empty() {
			time.Sleep(idleDuration)
			continue
		}

		if !s.OfferFunc(func() (image.Image, error) { return img.ToImage() }) {
			dropped++
			if ce := logger.Check(zap.DebugLevel, "frame dropped"); ce != nil {
				ce.Write(zap.Uint64("dropped", dropped))
			}
		}
	}
}

// decodeImage decodes an uploaded picture with OpenCV.
func decodeImage(buf []byte) (image.Image, error) {
	mat, err := gocv.IMDecode(buf, gocv.IMReadColor)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, errors.New("empty image")
	}
	return mat.ToImage()
}
