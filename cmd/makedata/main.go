// Command makedata writes the voxel sample file.
//
// With no flags it creates test.hdf5 holding the 16x16x16 int64 dataset
// "data" in 4x4x4 chunks, element i equal to i/16.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scigolib/h5voxel/internal/config"
	"github.com/scigolib/h5voxel/internal/publish"
	"github.com/scigolib/h5voxel/internal/sample"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.LoadWithUsage(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	runID := uuid.New()
	logger = logger.With(zap.Stringer("run_id", runID))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	res, err := sample.Generate(ctx, cfg.Plan, logger)
	if err != nil {
		logger.Error("generation failed", zap.String("kind", failureKind(err)), zap.Error(err))
		return 1
	}

	if cfg.Verify {
		if err := sample.Verify(cfg.Plan); err != nil {
			logger.Error("verification failed", zap.String("kind", "verify"), zap.Error(err))
			return 1
		}
		logger.Info("verified", zap.String("path", res.Path), zap.Uint64("elements", res.Elements))
	}

	if cfg.PublishURL != "" {
		if err := upload(ctx, cfg, res, runID, logger); err != nil {
			logger.Error("publish failed", zap.String("kind", "publish"), zap.Error(err))
			return 1
		}
	}
	return 0
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	return zc.Build()
}

func upload(ctx context.Context, cfg *config.Config, res *sample.Result, runID uuid.UUID, logger *zap.Logger) error {
	p, err := publish.Open(ctx, cfg.PublishURL, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	shape := make([]string, len(cfg.Plan.Shape))
	for i, d := range cfg.Plan.Shape {
		shape[i] = fmt.Sprint(d)
	}
	_, err = p.Upload(ctx, res.Path, publish.Metadata{
		RunID:   runID,
		Dataset: res.Dataset,
		Shape:   strings.Join(shape, ","),
		Dtype:   cfg.Plan.Datatype.String(),
	})
	return err
}

// failureKind names the failure class for the log line.
func failureKind(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, sample.ErrResourceCreation):
		return "resource"
	case errors.Is(err, sample.ErrAllocation):
		return "allocation"
	default:
		return "unknown"
	}
}
