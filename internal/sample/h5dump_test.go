package sample

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isH5dumpAvailable checks if h5dump command is available.
func isH5dumpAvailable() bool {
	_, err := exec.LookPath("h5dump")
	return err == nil
}

// runH5dump runs h5dump command and returns output.
func runH5dump(filename string, args ...string) (string, error) {
	// h5dump under MSYS2 wants forward slashes.
	filename = filepath.ToSlash(filename)

	cmdArgs := make([]string, len(args)+1)
	copy(cmdArgs, args)
	cmdArgs[len(args)] = filename
	cmd := exec.Command("h5dump", cmdArgs...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("h5dump failed: %w\nOutput: %s", err, string(output))
	}
	return string(output), nil
}

func TestGenerate_H5dumpReadsDefaultFile(t *testing.T) {
	if !isH5dumpAvailable() {
		t.Skip("h5dump not available")
	}

	plan := tempPlan(t)
	_, err := Generate(context.Background(), plan, nil)
	require.NoError(t, err)

	out, err := runH5dump(plan.Path, "-p", "-d", "/data")
	require.NoError(t, err)

	assert.Contains(t, out, `DATASET "/data"`)
	assert.Contains(t, out, "H5T_STD_I64LE")
	assert.Contains(t, out, "( 16, 16, 16 )")
	assert.Contains(t, out, "CHUNKED ( 4, 4, 4 )")

	// Each row of 16 elements holds a single value.
	assert.Contains(t, out, "(0,0,0): 0, 0, 0, 0,")
	assert.Contains(t, out, "(0,1,0): 1, 1, 1, 1,")
	assert.Contains(t, out, "(7,3,0): 115, 115, 115,")
	assert.Contains(t, out, "(15,15,0): 255, 255, 255,")
}

func TestGenerate_H5dumpReadsFilteredFile(t *testing.T) {
	if !isH5dumpAvailable() {
		t.Skip("h5dump not available")
	}

	plan := tempPlan(t)
	plan.Shuffle = true
	plan.Deflate = 6
	plan.Fletcher32 = true
	_, err := Generate(context.Background(), plan, nil)
	require.NoError(t, err)

	out, err := runH5dump(plan.Path, "-p", "-d", "/data")
	require.NoError(t, err)

	assert.Contains(t, out, "CHUNKED ( 4, 4, 4 )")
	assert.Contains(t, out, "SHUFFLE")
	assert.Contains(t, out, "DEFLATE")
	assert.Contains(t, out, "FLETCHER32")
	assert.Contains(t, out, "(15,15,0): 255, 255, 255,")
}
