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

// Package server exposes the pose scheduler over HTTP.
package server

import (
	"context"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mpromonet/gin-tflite-pose/pose"
	"github.com/mpromonet/gin-tflite-pose/scheduler"
)

// Submitter is the part of the scheduler the routes use.
type Submitter interface {
	Submit(ctx context.Context, img image.Image) (scheduler.Result, error)
	Stats() scheduler.Stats
}

// ImageDecoder turns an uploaded body into an image.
type ImageDecoder func([]byte) (image.Image, error)

type runResponse struct {
	Frame     string        `json:"frame"`
	Persons   []pose.Person `json:"persons"`
	ElapsedMS float64       `json:"elapsed_ms"`
}

type skeletonResponse struct {
	Keypoints [pose.NumKeypoints]string `json:"keypoints"`
	Edges     []pose.Edge               `json:"edges"`
}

// DefaultMaxUploadBytes is the upload cap used when Options leaves it unset.
const DefaultMaxUploadBytes = 32 << 20

// Options tunes the router.
type Options struct {
	// StaticDir, when not empty, is served at /.
	StaticDir string
	// MaxUploadBytes caps the POST /runmodel body.
	MaxUploadBytes int64
}

// NewRouter builds the gin engine. view is expected to be fed by the
// scheduler sink.
func NewRouter(s Submitter, view *Overlay, decode ImageDecoder, opts Options, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	if opts.StaticDir != "" {
		r.Use(static.Serve("/", static.LocalFile(opts.StaticDir, false)))
	}

	limit := opts.MaxUploadBytes
	if limit <= 0 {
		limit = DefaultMaxUploadBytes
	}
	r.POST("/runmodel", runModel(s, decode, limit, logger))

	r.GET("/persons", func(c *gin.Context) {
		c.JSON(http.StatusOK, view.Snapshot())
	})

	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Stats())
	})

	r.GET("/skeleton", func(c *gin.Context) {
		c.JSON(http.StatusOK, skeletonResponse{Keypoints: pose.KeypointNames, Edges: pose.Skeleton})
	})

	return r
}

func runModel(s Submitter, decode ImageDecoder, limit int64, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": errors.Errorf("image larger than %d bytes", tooLarge.Limit).Error()})
			return
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		img, err := decode(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errors.Wrap(err, "decode image").Error()})
			return
		}

		res, err := s.Submit(c.Request.Context(), img)
		switch {
		case errors.Is(err, scheduler.ErrBusy):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
			return
		case err != nil:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}

		var shapeErr *pose.UnsupportedShapeError
		switch {
		case errors.As(res.Err, &shapeErr):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": res.Err.Error(), "frame": res.Frame.ID.String()})
			return
		case res.Err != nil:
			c.JSON(http.StatusBadGateway, gin.H{"error": res.Err.Error(), "frame": res.Frame.ID.String()})
			return
		}

		logger.Debug("frame decoded",
			zap.String("frame", res.Frame.ID.String()),
			zap.Int("persons", len(res.Persons)),
			zap.Duration("elapsed", res.Elapsed))

		persons := res.Persons
		if persons == nil {
			persons = []pose.Person{}
		}
		c.JSON(http.StatusOK, runResponse{
			Frame:     res.Frame.ID.String(),
			Persons:   persons,
			ElapsedMS: float64(res.Elapsed) / float64(time.Millisecond),
		})
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
