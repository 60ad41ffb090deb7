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

package server

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mpromonet/gin-tflite-pose/pose"
	"github.com/mpromonet/gin-tflite-pose/scheduler"
)

// Overlay holds the persons of the last successfully decoded frame. Failed
// and dropped frames leave it untouched.
type Overlay struct {
	mu      sync.RWMutex
	persons []pose.Person
	frame   uuid.UUID
	updated time.Time
}

// OverlaySnapshot is what GET /persons returns.
type OverlaySnapshot struct {
	Frame   string        `json:"frame,omitempty"`
	Updated time.Time     `json:"updated"`
	Persons []pose.Person `json:"persons"`
}

// Update replaces the overlay with a successful result.
func (o *Overlay) Update(res scheduler.Result) {
	if res.Err != nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.persons = res.Persons
	o.frame = res.Frame.ID
	o.updated = time.Now()
}

// Snapshot returns the current overlay.
func (o *Overlay) Snapshot() OverlaySnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	snap := OverlaySnapshot{Updated: o.updated, Persons: o.persons}
	if o.frame != uuid.Nil {
		snap.Frame = o.frame.String()
	}
	if snap.Persons == nil {
		snap.Persons = []pose.Person{}
	}
	return snap
}

type keypointLog struct {
	Name string  `json:"name"`
	X    float32 `json:"x"`
	Y    float32 `json:"y"`
	Conf float32 `json:"conf"`
}

// Sink updates the overlay and, at debug level, dumps every keypoint whose
// confidence exceeds threshold.
func (o *Overlay) Sink(logger *zap.Logger, threshold float32) scheduler.Sink {
	return func(res scheduler.Result) {
		o.Update(res)
		if res.Err != nil || len(res.Persons) == 0 {
			return
		}
		ce := logger.Check(zap.DebugLevel, "detected persons")
		if ce == nil {
			return
		}
		fields := []zap.Field{zap.String("frame", res.Frame.ID.String()), zap.Int("count", len(res.Persons))}
		for i, p := range res.Persons {
			var kps []keypointLog
			for k, kp := range p.Keypoints {
				if kp.Conf > threshold {
					kps = append(kps, keypointLog{Name: pose.KeypointNames[k], X: kp.X, Y: kp.Y, Conf: kp.Conf})
				}
			}
			fields = append(fields, zap.Any(personKey(i), kps))
		}
		ce.Write(fields...)
	}
}

func personKey(i int) string {
	return "person_" + strconv.Itoa(i)
}
