package server

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mpromonet/gin-tflite-pose/pose"
	"github.com/mpromonet/gin-tflite-pose/scheduler"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type detectorFunc func(ctx context.Context, img image.Image) ([]pose.Person, error)

func (f detectorFunc) Detect(ctx context.Context, img image.Image) ([]pose.Person, error) {
	return f(ctx, img)
}

func decodeStub(body []byte) (image.Image, error) {
	if string(body) == "garbage" {
		return nil, errors.New("not an image")
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func onePerson() []pose.Person {
	p := pose.Person{Score: 0.9, Box: pose.Box{X1: 1, Y1: 2, X2: 3, Y2: 4}}
	p.Keypoints[0] = pose.Keypoint{X: 0.5, Y: 0.25, Conf: 0.8}
	return []pose.Person{p}
}

type fixture struct {
	sched  *scheduler.Scheduler
	view   *Overlay
	router *gin.Engine
}

func newFixture(c *qt.C, det scheduler.Detector, opts Options) *fixture {
	view := &Overlay{}
	sched := scheduler.New(det, view.Sink(zap.NewNop(), 0.3))
	c.Cleanup(sched.Close)
	return &fixture{
		sched:  sched,
		view:   view,
		router: NewRouter(sched, view, decodeStub, opts, zap.NewNop()),
	}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	f.router.ServeHTTP(w, req)
	return w
}

func TestRunModelReturnsPersons(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, detectorFunc(func(context.Context, image.Image) ([]pose.Person, error) {
		return onePerson(), nil
	}), Options{})

	w := f.do(http.MethodPost, "/runmodel", "jpeg bytes")
	c.Assert(w.Code, qt.Equals, http.StatusOK)

	var got runResponse
	c.Assert(json.Unmarshal(w.Body.Bytes(), &got), qt.IsNil)
	c.Assert(got.Persons, qt.DeepEquals, onePerson())
	c.Assert(got.Frame, qt.Not(qt.Equals), "")

	w = f.do(http.MethodGet, "/persons", "")
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	var snap OverlaySnapshot
	c.Assert(json.Unmarshal(w.Body.Bytes(), &snap), qt.IsNil)
	c.Assert(snap.Frame, qt.Equals, got.Frame)
	c.Assert(snap.Persons, qt.DeepEquals, onePerson())
}

func TestRunModelNoPersonsIsEmptyArray(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, detectorFunc(func(context.Context, image.Image) ([]pose.Person, error) {
		return nil, nil
	}), Options{})

	w := f.do(http.MethodPost, "/runmodel", "jpeg bytes")
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	c.Assert(w.Body.String(), qt.Contains, `"persons":[]`)
}

func TestRunModelBadImage(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, detectorFunc(func(context.Context, image.Image) ([]pose.Person, error) {
		c.Error("detector must not run")
		return nil, nil
	}), Options{})

	w := f.do(http.MethodPost, "/runmodel", "garbage")
	c.Assert(w.Code, qt.Equals, http.StatusBadRequest)
	c.Assert(f.sched.Stats().Offered, qt.Equals, uint64(0))
}

func TestRunModelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{{
		name: "shape",
		err:  &pose.UnsupportedShapeError{Shape: []int{1, 57, 8400}},
		code: http.StatusUnprocessableEntity,
	}, {
		name: "inference",
		err:  &pose.InferenceError{Err: errors.New("invoke failed")},
		code: http.StatusBadGateway,
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := qt.New(t)
			fail := false
			f := newFixture(c, detectorFunc(func(context.Context, image.Image) ([]pose.Person, error) {
				if fail {
					return nil, test.err
				}
				return onePerson(), nil
			}), Options{})

			c.Assert(f.do(http.MethodPost, "/runmodel", "first").Code, qt.Equals, http.StatusOK)
			before := f.view.Snapshot()

			fail = true
			w := f.do(http.MethodPost, "/runmodel", "second")
			c.Assert(w.Code, qt.Equals, test.code)
			c.Assert(w.Body.String(), qt.Contains, test.err.Error())

			// The previous overlay survives a failed frame.
			c.Assert(f.view.Snapshot(), qt.DeepEquals, before)
		})
	}
}

func TestRunModelBusy(t *testing.T) {
	c := qt.New(t)
	release := make(chan struct{})
	started := make(chan struct{})
	f := newFixture(c, detectorFunc(func(context.Context, image.Image) ([]pose.Person, error) {
		close(started)
		<-release
		return nil, nil
	}), Options{})

	c.Assert(f.sched.Offer(image.NewRGBA(image.Rect(0, 0, 1, 1))), qt.IsTrue)
	<-started

	w := f.do(http.MethodPost, "/runmodel", "jpeg bytes")
	c.Assert(w.Code, qt.Equals, http.StatusTooManyRequests)
	close(release)
}

func TestRunModelClosed(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, detectorFunc(func(context.Context, image.Image) ([]pose.Person, error) {
		return nil, nil
	}), Options{})
	f.sched.Close()

	w := f.do(http.MethodPost, "/runmodel", "jpeg bytes")
	c.Assert(w.Code, qt.Equals, http.StatusServiceUnavailable)
}

func TestStats(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, detectorFunc(func(context.Context, image.Image) ([]pose.Person, error) {
		return nil, nil
	}), Options{})
	c.Assert(f.do(http.MethodPost, "/runmodel", "jpeg bytes").Code, qt.Equals, http.StatusOK)

	w := f.do(http.MethodGet, "/stats", "")
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	var got scheduler.Stats
	c.Assert(json.Unmarshal(w.Body.Bytes(), &got), qt.IsNil)
	c.Assert(got.Offered, qt.Equals, uint64(1))
	c.Assert(got.Admitted, qt.Equals, uint64(1))
	c.Assert(got.Completed, qt.Equals, uint64(1))
	c.Assert(got.Busy, qt.IsFalse)
}

func TestSkeleton(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, detectorFunc(func(context.Context, image.Image) ([]pose.Person, error) {
		return nil, nil
	}), Options{})

	w := f.do(http.MethodGet, "/skeleton", "")
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	var got skeletonResponse
	c.Assert(json.Unmarshal(w.Body.Bytes(), &got), qt.IsNil)
	c.Assert(got.Keypoints[0], qt.Equals, "nose")
	c.Assert(got.Edges, qt.HasLen, 18)
}

func TestPersonsBeforeAnyFrame(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, detectorFunc(func(context.Context, image.Image) ([]pose.Person, error) {
		return nil, nil
	}), Options{})

	w := f.do(http.MethodGet, "/persons", "")
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	c.Assert(w.Body.String(), qt.Contains, `"persons":[]`)
	c.Assert(w.Body.String(), qt.Not(qt.Contains), `"frame"`)
}

func TestStaticFiles(t *testing.T) {
	c := qt.New(t)
	dir := c.TempDir()
	c.Assert(os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>pose</html>"), 0o644), qt.IsNil)
	f := newFixture(c, detectorFunc(func(context.Context, image.Image) ([]pose.Person, error) {
		return nil, nil
	}), Options{StaticDir: dir})

	w := f.do(http.MethodGet, "/", "")
	c.Assert(w.Code, qt.Equals, http.StatusOK)
	c.Assert(w.Body.String(), qt.Contains, "pose")

	// API routes are not shadowed by the file server.
	c.Assert(f.do(http.MethodGet, "/skeleton", "").Code, qt.Equals, http.StatusOK)
}

func TestRunModelRejectsOversizedBody(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c, detectorFunc(func(context.Context, image.Image) ([]pose.Person, error) {
		return nil, nil
	}), Options{MaxUploadBytes: 8})

	w := f.do(http.MethodPost, "/runmodel", strings.Repeat("x", 16))
	c.Assert(w.Code, qt.Equals, http.StatusRequestEntityTooLarge)
	c.Assert(w.Body.String(), qt.Contains, "larger than 8 bytes")
	c.Assert(f.sched.Stats().Offered, qt.Equals, uint64(0))

	// A body at the cap still goes through.
	c.Assert(f.do(http.MethodPost, "/runmodel", strings.Repeat("x", 8)).Code, qt.Equals, http.StatusOK)
}
