// Package config parses the command line of the makedata binary.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/scigolib/h5voxel"
	"github.com/scigolib/h5voxel/internal/sample"
)

// Config holds the generation plan and how the run is carried out.
type Config struct {
	Plan sample.Plan

	Verify     bool
	PublishURL string // blob bucket URL, empty to skip publishing
	LogLevel   zapcore.Level
	Dev        bool // human-readable console logs
}

// Load parses args (without the program name). With no arguments it
// returns the default sample plan.
func Load(args []string) (*Config, error) {
	return load(args, io.Discard)
}

// LoadWithUsage is Load printing usage and flag errors to output.
func LoadWithUsage(args []string, output io.Writer) (*Config, error) {
	return load(args, output)
}

func load(args []string, output io.Writer) (*Config, error) {
	def := sample.DefaultPlan()
	fs := flag.NewFlagSet("makedata", flag.ContinueOnError)
	fs.SetOutput(output)

	out := fs.String("out", def.Path, "output file")
	dataset := fs.String("dataset", def.Dataset, "dataset name")
	shape := fs.String("shape", joinUints(def.Shape), "dataset shape, comma separated")
	chunks := fs.String("chunks", joinUints(def.Chunks), "chunk shape, comma separated")
	dtype := fs.String("dtype", def.Datatype.String(), "element type (int8..int64, uint8..uint64, float32, float64)")
	start := fs.Int64("start", def.Start, "first value of the sequence before division")
	divisor := fs.Int64("divisor", def.Divisor, "sequence divisor")
	shuffle := fs.Bool("shuffle", false, "enable the shuffle filter")
	deflate := fs.Int("deflate", sample.NoDeflate, "zlib level 0-9, -1 disables compression")
	fletcher := fs.Bool("fletcher32", false, "append fletcher32 checksums to chunks")
	spacing := fs.String("spacing", "", "voxel spacing stored as an attribute, comma separated")
	origin := fs.String("origin", "", "volume origin stored as an attribute, comma separated")
	workers := fs.Int("workers", 0, "chunk encoding workers, 0 for GOMAXPROCS")
	verify := fs.Bool("verify", false, "re-read the file and check every value")
	publish := fs.String("publish", "", "upload the file to this bucket URL (file:///dir, mem://)")
	level := fs.String("log-level", "info", "log level (debug, info, warn, error)")
	dev := fs.Bool("dev", false, "development logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg := &Config{
		Verify:     *verify,
		PublishURL: *publish,
		Dev:        *dev,
	}
	var err error
	if cfg.LogLevel, err = zapcore.ParseLevel(*level); err != nil {
		return nil, fmt.Errorf("-log-level: %w", err)
	}

	plan := sample.Plan{
		Path:       *out,
		Dataset:    *dataset,
		Start:      *start,
		Divisor:    *divisor,
		Shuffle:    *shuffle,
		Deflate:    *deflate,
		Fletcher32: *fletcher,
		Workers:    *workers,
	}
	var errs []error
	if plan.Shape, err = parseUints(*shape); err != nil {
		errs = append(errs, fmt.Errorf("-shape: %w", err))
	}
	if plan.Chunks, err = parseUints(*chunks); err != nil {
		errs = append(errs, fmt.Errorf("-chunks: %w", err))
	}
	if plan.Datatype, err = h5voxel.ParseDatatype(*dtype); err != nil {
		errs = append(errs, fmt.Errorf("-dtype: %w", err))
	}
	if plan.Spacing, err = parseFloats(*spacing); err != nil {
		errs = append(errs, fmt.Errorf("-spacing: %w", err))
	}
	if plan.Origin, err = parseFloats(*origin); err != nil {
		errs = append(errs, fmt.Errorf("-origin: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	cfg.Plan = plan
	return cfg, nil
}

func parseUints(s string) ([]uint64, error) {
	fields := strings.Split(s, ",")
	out := make([]uint64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseUint(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// parseFloats returns nil for an empty list.
func parseFloats(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func joinUints(v []uint64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatUint(x, 10)
	}
	return strings.Join(parts, ",")
}
