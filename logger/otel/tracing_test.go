package otel

import (
	"bytes"
	"context"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.opentelemetry.io/otel"
)

func TestSetupTracingExportsSpans(t *testing.T) {
	c := qt.New(t)
	var buf bytes.Buffer

	tp, err := SetupTracing("pose-test", &buf)
	c.Assert(err, qt.IsNil)

	_, span := otel.Tracer("test").Start(context.Background(), "DecodeFrame")
	c.Assert(span.IsRecording(), qt.IsTrue)
	span.End()

	c.Assert(tp.Shutdown(context.Background()), qt.IsNil)
	c.Assert(buf.String(), qt.Contains, `"Name":"DecodeFrame"`)
	c.Assert(buf.String(), qt.Contains, "pose-test")
}
