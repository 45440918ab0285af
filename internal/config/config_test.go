package config

import (
	"bytes"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/scigolib/h5voxel"
	"github.com/scigolib/h5voxel/internal/sample"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, sample.DefaultPlan(), cfg.Plan)
	assert.False(t, cfg.Verify)
	assert.Empty(t, cfg.PublishURL)
	assert.Equal(t, zapcore.InfoLevel, cfg.LogLevel)
}

func TestLoad_AllFlags(t *testing.T) {
	cfg, err := Load([]string{
		"-out", "/tmp/vox.h5",
		"-dataset", "volume",
		"-shape", "8, 16,32",
		"-chunks", "4,4,8",
		"-dtype", "uint16",
		"-start", "32",
		"-divisor", "4",
		"-shuffle",
		"-deflate", "5",
		"-fletcher32",
		"-spacing", "0.5,0.5,2",
		"-origin", "-1,0,1.5",
		"-workers", "3",
		"-verify",
		"-publish", "mem://",
		"-log-level", "debug",
		"-dev",
	})
	require.NoError(t, err)

	want := sample.Plan{
		Path:       "/tmp/vox.h5",
		Dataset:    "volume",
		Shape:      []uint64{8, 16, 32},
		Chunks:     []uint64{4, 4, 8},
		Datatype:   h5voxel.Uint16,
		Start:      32,
		Divisor:    4,
		Shuffle:    true,
		Deflate:    5,
		Fletcher32: true,
		Spacing:    []float64{0.5, 0.5, 2},
		Origin:     []float64{-1, 0, 1.5},
		Workers:    3,
	}
	assert.Equal(t, want, cfg.Plan)
	assert.True(t, cfg.Verify)
	assert.True(t, cfg.Dev)
	assert.Equal(t, "mem://", cfg.PublishURL)
	assert.Equal(t, zapcore.DebugLevel, cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-bogus"}},
		{"positional", []string{"extra"}},
		{"bad shape", []string{"-shape", "16,x,16"}},
		{"bad chunks", []string{"-chunks", "-4,4,4"}},
		{"bad dtype", []string{"-dtype", "complex128"}},
		{"bad spacing", []string{"-spacing", "1,a,1"}},
		{"bad level", []string{"-log-level", "loud"}},
		{"partial chunks", []string{"-chunks", "5,4,4"}},
		{"zero divisor", []string{"-divisor", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args)
			require.Error(t, err)
		})
	}

	_, err := Load([]string{"-chunks", "5,4,4"})
	require.ErrorIs(t, err, sample.ErrInvalidPlan)
}

func TestLoadWithUsage_Help(t *testing.T) {
	var buf bytes.Buffer
	_, err := LoadWithUsage([]string{"-h"}, &buf)
	require.ErrorIs(t, err, flag.ErrHelp)
	assert.Contains(t, buf.String(), "-shape")
	assert.Contains(t, buf.String(), "16,16,16")
}
