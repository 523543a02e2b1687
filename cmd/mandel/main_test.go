package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image/png"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/mandelgrid/internal/config"
	"github.com/dreamware/mandelgrid/internal/output"
	"github.com/dreamware/mandelgrid/internal/worker"
)

// TestMain lets the test binary stand in for mandel-node when the pipe and
// socket transports start it.
func TestMain(m *testing.M) {
	switch os.Getenv(worker.EnvMode) {
	case worker.ModeStdio:
		if _, err := worker.ServeStdio(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	case worker.ModeSocket:
		if _, err := worker.DialAndServe(context.Background(), os.Getenv(worker.EnvSocket)); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

// testEnv is a small render that finishes quickly on any transport.
func testEnv(t *testing.T, extra map[string]string) (map[string]string, func(string) string) {
	t.Helper()
	env := map[string]string{
		"MANDEL_WIDTH":      "16",
		"MANDEL_HEIGHT":     "12",
		"MANDEL_WORKERS":    "3",
		"MANDEL_OUTPUT":     filepath.Join(t.TempDir(), "mandel.dat"),
		"MANDEL_LOG_LEVEL":  "error",
		"MANDEL_WORKER_BIN": os.Args[0],
		"MANDEL_TIMEOUT":    "30s",
	}
	for k, v := range extra {
		env[k] = v
	}
	return env, func(k string) string { return env[k] }
}

func readOutput(t *testing.T, path string) []string {
	t.Helper()
	rc, err := output.OpenFile(path)
	require.NoError(t, err)
	defer rc.Close()

	var lines []string
	sc := bufio.NewScanner(rc)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

// TestRunShared verifies a complete render on the default transport.
func TestRunShared(t *testing.T) {
	env, getenv := testEnv(t, nil)
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"60"}, getenv, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())

	lines := readOutput(t, env["MANDEL_OUTPUT"])
	require.Len(t, lines, 16*12+12, "one line per pixel plus a blank line per row")
	for row := 0; row < 12; row++ {
		assert.Empty(t, lines[row*17+16], "row %d terminator", row)
		assert.Len(t, strings.Fields(lines[row*17]), 3)
	}

	assert.Contains(t, stdout.String(), "shared, 3 workers")
	assert.Contains(t, stdout.String(), "16 x 12 = 192 pixels, max 60 iterations")
}

// TestRunTransportsAgree verifies that every transport writes the same file.
func TestRunTransportsAgree(t *testing.T) {
	node := httptest.NewServer(worker.NewNode("n1", nil).Handler())
	defer node.Close()

	var want []byte
	for _, transport := range config.Transports {
		t.Run(transport, func(t *testing.T) {
			env, getenv := testEnv(t, map[string]string{
				"MANDEL_TRANSPORT": transport,
				"MANDEL_NODES":     node.URL,
			})
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), []string{"80", "-0.5", "0", "2.5", "4"}, getenv, &stdout, &stderr)
			require.Equal(t, exitOK, code, stderr.String())

			got, err := os.ReadFile(env["MANDEL_OUTPUT"])
			require.NoError(t, err)
			if want == nil {
				want = got
				return
			}
			assert.Equal(t, want, got)
		})
	}
}

// TestRunCompressedWithPreview verifies zstd output and a scaled preview.
func TestRunCompressedWithPreview(t *testing.T) {
	dir := t.TempDir()
	preview := filepath.Join(dir, "preview.png")
	env, getenv := testEnv(t, map[string]string{
		"MANDEL_OUTPUT":       filepath.Join(dir, "mandel.dat"+output.CompressedSuffix),
		"MANDEL_PREVIEW":      preview,
		"MANDEL_PREVIEW_SIZE": "8",
	})
	var stdout, stderr bytes.Buffer

	require.Equal(t, exitOK, run(context.Background(), []string{"40"}, getenv, &stdout, &stderr), stderr.String())
	assert.Len(t, readOutput(t, env["MANDEL_OUTPUT"]), 16*12+12)

	f, err := os.Open(preview)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 6, img.Bounds().Dy())
	assert.Contains(t, stdout.String(), "preview")
}

// TestRunDropRemainder verifies that dropped rows are reported.
func TestRunDropRemainder(t *testing.T) {
	_, getenv := testEnv(t, map[string]string{
		"MANDEL_WORKERS":   "5",
		"MANDEL_REMAINDER": "drop",
	})
	var stdout, stderr bytes.Buffer

	require.Equal(t, exitOK, run(context.Background(), []string{"30"}, getenv, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "dropped   2 rows")
}

// TestRunExitCodes verifies how failures map to exit codes.
func TestRunExitCodes(t *testing.T) {
	dead := httptest.NewServer(nil)
	deadURL := dead.URL
	dead.Close()

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		args []string
		env  map[string]string
		code int
	}{
		{name: "zero iterations", args: []string{"0"}, code: exitConfig},
		{name: "wrong argument count", args: []string{"10", "0"}, code: exitConfig},
		{name: "more workers than rows", args: []string{"10"}, env: map[string]string{"MANDEL_WORKERS": "13"}, code: exitConfig},
		{name: "unknown transport", env: map[string]string{"MANDEL_TRANSPORT": "carrier-pigeon"}, code: exitConfig},
		{name: "missing worker binary", env: map[string]string{
			"MANDEL_TRANSPORT":  config.TransportPipe,
			"MANDEL_WORKER_BIN": "definitely-not-a-mandel-node",
		}, code: exitConfig},
		{name: "no healthy node", env: map[string]string{
			"MANDEL_TRANSPORT": config.TransportRemote,
			"MANDEL_NODES":     deadURL,
		}, code: exitRun},
		{name: "unwritable output", env: map[string]string{
			"MANDEL_OUTPUT": filepath.Join(t.TempDir(), "missing", "mandel.dat"),
		}, code: exitRun},
		{name: "interrupted", ctx: cancelled, code: exitRun},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.ctx
			if ctx == nil {
				ctx = context.Background()
			}
			args := tt.args
			if args == nil {
				args = []string{"20"}
			}
			_, getenv := testEnv(t, tt.env)
			var stdout, stderr bytes.Buffer

			assert.Equal(t, tt.code, run(ctx, args, getenv, &stdout, &stderr), stderr.String())
			assert.Empty(t, stdout.String(), "no summary on failure")
		})
	}
}

// TestResolveWorkerBin verifies lookup by path and the not-found error.
func TestResolveWorkerBin(t *testing.T) {
	p, err := resolveWorkerBin(os.Args[0])
	require.NoError(t, err)
	assert.NotEmpty(t, p)

	_, err = resolveWorkerBin("definitely-not-a-mandel-node")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

// TestPrintSummary verifies the grouped number formatting of the summary.
func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, summary{
		RunID:     "run-1",
		Transport: config.TransportSocket,
		Width:     1000,
		Height:    1000,
		MaxIter:   5000,
		Workers:   4,
		Escaped:   712345,
		InSet:     287655,
		Elapsed:   1234567 * time.Microsecond,
		Output:    "mandel.dat",
	})

	out := buf.String()
	assert.Contains(t, out, "run run-1 (socket, 4 workers)")
	assert.Contains(t, out, "1,000 x 1,000 = 1,000,000 pixels, max 5,000 iterations")
	assert.Contains(t, out, "escaped   712,345")
	assert.Contains(t, out, "in set    287,655")
	assert.Contains(t, out, "elapsed   1.235s")
	assert.NotContains(t, out, "dropped")
	assert.NotContains(t, out, "preview")
}
