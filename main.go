package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/mpromonet/gin-tflite-pose/config"
	"github.com/mpromonet/gin-tflite-pose/inference"
	customlogger "github.com/mpromonet/gin-tflite-pose/logger"
	customotel "github.com/mpromonet/gin-tflite-pose/logger/otel"
	"github.com/mpromonet/gin-tflite-pose/pose"
	"github.com/mpromonet/gin-tflite-pose/scheduler"
	"github.com/mpromonet/gin-tflite-pose/server"
)

func main() {
	if err := config.Init(config.ParseConfigFlag()); err != nil {
		log.Fatal(err.Error())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if config.Config.Tracing.Enabled {
		tp, err := customotel.SetupTracing("gin-tflite-pose", os.Stdout)
		if err != nil {
			log.Fatal(err.Error())
		}
		defer func() {
			_ = tp.Shutdown(context.Background())
		}()
	}

	ctx, span := otel.Tracer("main-tracer").Start(ctx, "main")
	defer span.End()

	logger, _ := customlogger.GetZapLogger(ctx)
	defer func() {
		// can't handle the error due to https://github.com/uber-go/zap/issues/880
		_ = logger.Sync()
	}()

	if err := run(ctx, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	cfg := config.Config

	model, err := inference.Open(cfg.Model, cfg.Detection.InputSize, logger)
	if err != nil {
		return errors.Wrap(err, "open model")
	}
	defer model.Close()

	detector := pose.NewDetector(model, cfg.Detection.Pose(), logger.Named("pose"))

	view := &server.Overlay{}
	sched := scheduler.New(detector, view.Sink(logger.Named("console"), cfg.Console.KeypointThreshold),
		scheduler.WithTimeout(cfg.Scheduler.Timeout),
		scheduler.WithLogger(logger.Named("scheduler")))
	defer sched.Close()

	if cfg.Camera.Enabled {
		go func() {
			if err := captureLoop(ctx, cfg.Camera.Device, sched, logger.Named("camera")); err != nil {
				logger.Error("camera capture stopped", zap.Error(err))
			}
		}()
	}

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(sched, view, decodeImage, server.Options{
			StaticDir:      cfg.Server.Static,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
		}, logger.Named("http")),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return srv.Shutdown(shutdownCtx)
}
