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

// Package scheduler admits camera frames into the pose detector one at a time.
//
// The scheduler is a single-slot gate with two states. While Idle a new frame
// is admitted and handed to the worker goroutine, which makes the scheduler
// Busy. While Busy every new frame is dropped; nothing is queued. When the
// decode finishes, successfully or not, the scheduler is Idle again.
//
// There is no cancellation of an in-flight decode. WithTimeout only sets a
// deadline on the context handed to the detector, so a network call that
// ignores its context keeps the scheduler Busy until it returns.
package scheduler

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	customlogger "github.com/mpromonet/gin-tflite-pose/logger"
	"github.com/mpromonet/gin-tflite-pose/pose"
)

const tracerName = "gin-tflite-pose.scheduler.tracer"

var tracer = otel.Tracer(tracerName)

var (
	// ErrBusy is returned by Submit while another frame is being decoded.
	ErrBusy = errors.New("scheduler busy")
	// ErrClosed is returned once Close has been called.
	ErrClosed = errors.New("scheduler closed")
)

// Detector decodes one image into persons.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]pose.Person, error)
}

// Frame is one admitted image.
type Frame struct {
	ID         uuid.UUID
	Image      image.Image
	AdmittedAt time.Time
}

// Result is the outcome of decoding one frame. Err is set when the frame was
// abandoned; Persons is then nil.
type Result struct {
	Frame   Frame
	Persons []pose.Person
	Err     error
	Elapsed time.Duration
}

// Sink receives every result on the worker goroutine.
type Sink func(Result)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTimeout sets a deadline on each decode. Zero means none.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		s.timeout = d
	}
}

// WithTracerProvider traces frames with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Scheduler) {
		s.tracer = tp.Tracer(tracerName)
	}
}

// WithLogger sets the logger used for per-frame diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

type job struct {
	frame Frame
	done  chan Result
}

// Scheduler is the single-slot admission gate in front of a Detector.
type Scheduler struct {
	det     Detector
	sink    Sink
	timeout time.Duration
	logger  *zap.Logger
	tracer  trace.Tracer

	busy atomic.Bool

	mu     sync.Mutex // guards closed and sends on jobs
	closed bool
	jobs   chan job
	wg     sync.WaitGroup

	offered   atomic.Uint64
	admitted  atomic.Uint64
	dropped   atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	lastNanos atomic.Int64
}

// New starts the worker goroutine. sink may be nil.
func New(det Detector, sink Sink, opts ...Option) *Scheduler {
	s := &Scheduler{
		det:    det,
		sink:   sink,
		logger: zap.NewNop(),
		tracer: tracer,
		jobs:   make(chan job, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.worker()
	return s
}

// Offer admits img if the scheduler is Idle and reports whether it did.
// It never blocks.
func (s *Scheduler) Offer(img image.Image) bool {
	return s.OfferFunc(func() (image.Image, error) { return img, nil })
}

// OfferFunc is Offer with lazy image acquisition: acquire runs on the caller's
// goroutine only after the frame has been admitted, so dropped frames cost
// nothing. An acquire error abandons the frame and frees the slot.
func (s *Scheduler) OfferFunc(acquire func() (image.Image, error)) bool {
	s.offered.Add(1)
	j, err := s.admit(acquire, nil)
	if err != nil {
		return false
	}
	return s.enqueue(j) == nil
}

// Submit admits img and waits for its result. It returns ErrBusy without
// waiting when another frame is in flight. If ctx ends first the decode keeps
// running and its result still reaches the sink.
func (s *Scheduler) Submit(ctx context.Context, img image.Image) (Result, error) {
	s.offered.Add(1)
	done := make(chan Result, 1)
	j, err := s.admit(func() (image.Image, error) { return img, nil }, done)
	if err != nil {
		return Result{}, err
	}
	if err := s.enqueue(j); err != nil {
		return Result{}, err
	}

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (s *Scheduler) admit(acquire func() (image.Image, error), done chan Result) (job, error) {
	if !s.busy.CompareAndSwap(false, true) {
		s.dropped.Add(1)
		return job{}, ErrBusy
	}

	img, err := acquire()
	if err != nil {
		s.admitted.Add(1)
		s.failed.Add(1)
		s.busy.Store(false)
		s.logger.Warn("frame acquisition failed", zap.Error(err))
		return job{}, errors.Wrap(err, "acquire frame")
	}

	return job{
		frame: Frame{ID: uuid.New(), Image: img, AdmittedAt: time.Now()},
		done:  done,
	}, nil
}

func (s *Scheduler) enqueue(j job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.dropped.Add(1)
		s.busy.Store(false)
		return ErrClosed
	}
	s.admitted.Add(1)
	// The slot was empty when busy was acquired, so this never blocks.
	s.jobs <- j
	return nil
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for j := range s.jobs {
		res := s.process(j.frame)

		// Idle before delivery: a consumer that reacts to the result can
		// immediately offer the next frame.
		s.busy.Store(false)

		if s.sink != nil {
			s.sink(res)
		}
		if j.done != nil {
			j.done <- res
		}
	}
}

func (s *Scheduler) process(frame Frame) (res Result) {
	ctx, span := s.tracer.Start(context.Background(), "DecodeFrame",
		trace.WithAttributes(attribute.String("frame.id", frame.ID.String())))
	defer span.End()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	logger := customlogger.WithSpan(s.logger, ctx)
	res.Frame = frame
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Persons = nil
			res.Err = &pose.InferenceError{Err: errors.Errorf("panic: %v", r)}
		}
		res.Elapsed = time.Since(start)
		s.lastNanos.Store(int64(res.Elapsed))
		s.record(span, logger, res)
	}()

	res.Persons, res.Err = s.det.Detect(ctx, frame.Image)
	return res
}

func (s *Scheduler) record(span trace.Span, logger *zap.Logger, res Result) {
	fields := []zap.Field{
		zap.String("frame", res.Frame.ID.String()),
		zap.Duration("elapsed", res.Elapsed),
	}
	if res.Err == nil {
		s.completed.Add(1)
		span.SetAttributes(attribute.Int("persons", len(res.Persons)))
		logger.Debug("frame decoded", append(fields, zap.Int("persons", len(res.Persons)))...)
		return
	}

	s.failed.Add(1)
	span.RecordError(res.Err)
	span.SetStatus(codes.Error, res.Err.Error())

	var shapeErr *pose.UnsupportedShapeError
	if errors.As(res.Err, &shapeErr) {
		logger.Error("unsupported output shape", append(fields, zap.Ints("shape", shapeErr.Shape))...)
		return
	}
	logger.Warn("frame abandoned", append(fields, zap.Error(res.Err))...)
}

// Busy reports whether a frame is in flight.
func (s *Scheduler) Busy() bool {
	return s.busy.Load()
}

// Close stops admitting frames and waits for the in-flight decode.
// It is safe to call more than once.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()
	s.wg.Wait()
}
