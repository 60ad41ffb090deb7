package logger

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestGetZapLogger(t *testing.T) {
	c := qt.New(t)

	l1, err := GetZapLogger(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(l1, qt.IsNotNil)

	l2, err := GetZapLogger(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(l2.Core(), qt.Equals, l1.Core())

	// Production mode keeps debug entries off stdout.
	c.Assert(l1.Core().Enabled(zap.DebugLevel), qt.IsFalse)
	c.Assert(l1.Core().Enabled(zap.WarnLevel), qt.IsTrue)
}

func TestWithSpanMirrorsEntries(t *testing.T) {
	c := qt.New(t)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "DecodeFrame")
	core, logs := observer.New(zap.InfoLevel)
	l := WithSpan(zap.New(core), ctx)

	l.Debug("filtered by level")
	l.Info("frame decoded")
	l.Error("unsupported output shape")
	span.End()

	c.Assert(logs.Len(), qt.Equals, 2)
	ended := recorder.Ended()
	c.Assert(ended, qt.HasLen, 1)
	events := ended[0].Events()
	c.Assert(events, qt.HasLen, 2)
	c.Assert(events[0].Name, qt.Equals, "log")
	c.Assert(ended[0].Status().Code, qt.Equals, codes.Error)
	c.Assert(ended[0].Status().Description, qt.Equals, "unsupported output shape")
}

func TestWithSpanWithoutSpan(t *testing.T) {
	c := qt.New(t)
	core, logs := observer.New(zap.InfoLevel)
	WithSpan(zap.New(core), context.Background()).Info("no span")
	c.Assert(logs.Len(), qt.Equals, 1)
}
