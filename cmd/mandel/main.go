// Command mandel renders a region of the Mandelbrot set.
//
// It partitions the grid by rows, computes the escape times on the
// configured transport, colors the result by histogram and writes one
// "re im color" line per pixel in gnuplot order, with a blank line after
// every row. An optional PNG preview can be written alongside.
//
// Usage:
//
//	mandel [maxIter [x y size [workers]]]
//
// x, y and size give the center and side of a square view; without them the
// view is [-2,2]x[-2,2]. Everything else is read from MANDEL_* environment
// variables or a YAML file named by MANDEL_CONFIG (see package config).
//
// The pipe and socket transports start mandel-node processes. The binary is
// looked up on PATH and then next to the mandel executable.
//
// Exit codes:
//   - 0: output written
//   - 1: invalid arguments or configuration
//   - 2: the run failed, was interrupted, or output could not be written
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dreamware/mandelgrid/internal/cluster"
	"github.com/dreamware/mandelgrid/internal/coloring"
	"github.com/dreamware/mandelgrid/internal/config"
	"github.com/dreamware/mandelgrid/internal/coordinator"
	"github.com/dreamware/mandelgrid/internal/logging"
	"github.com/dreamware/mandelgrid/internal/output"
)

const (
	exitOK     = 0
	exitConfig = 1
	exitRun    = 2
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	code := run(ctx, os.Args[1:], os.Getenv, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run is main without the process plumbing. It returns the exit code.
func run(ctx context.Context, args []string, getenv func(string) string, stdout, stderr io.Writer) int {
	// the logger and every worker process share stderr
	stderr = &lockedWriter{w: stderr}

	cfg, err := config.Load(args, getenv)
	if err != nil {
		fmt.Fprintln(stderr, "mandel:", err)
		if errors.Is(err, config.ErrUsage) {
			fmt.Fprintln(stderr, config.ErrUsage)
		}
		return exitConfig
	}

	log := logging.New(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: stderr,
	}).With("component", "mandel")

	log.Info("computing Mandelbrot set",
		"x_min", cfg.Bounds.XMin, "x_max", cfg.Bounds.XMax,
		"y_min", cfg.Bounds.YMin, "y_max", cfg.Bounds.YMax,
		"max_iter", cfg.MaxIter,
		"size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"workers", cfg.Workers,
		"transport", cfg.Transport)

	s, err := render(ctx, cfg, log, stderr)
	if err != nil {
		log.Error("render failed", "error", err)
		if errors.Is(err, config.ErrInvalidConfig) {
			return exitConfig
		}
		return exitRun
	}

	printSummary(stdout, s)
	return exitOK
}

// summary is what a finished render reports.
type summary struct {
	RunID     string
	Transport string
	Width     int
	Height    int
	MaxIter   int
	Workers   int
	Escaped   int
	InSet     int
	Uncovered int
	Elapsed   time.Duration
	Output    string
	Preview   string
}

// render runs the compute phase for cfg, colors the field and writes the
// output files.
func render(ctx context.Context, cfg config.Config, log logging.Logger, stderr io.Writer) (summary, error) {
	g, err := cfg.Grid()
	if err != nil {
		return summary{}, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	opts := coordinator.Options{
		Nodes:  cluster.NodesFromAddrs(cfg.Nodes),
		Health: coordinator.NewHealthMonitor(2*time.Second, log),
	}
	if cfg.Transport == config.TransportPipe || cfg.Transport == config.TransportSocket {
		bin, err := resolveWorkerBin(cfg.WorkerBin)
		if err != nil {
			return summary{}, err
		}
		log.Debug("worker binary", "path", bin)
		opts.Command = coordinator.WorkerCommand{
			Path:   bin,
			Env:    []string{"MANDEL_LOG_LEVEL=" + cfg.LogLevel, "MANDEL_LOG_FORMAT=" + cfg.LogFormat},
			Stderr: stderr,
		}
	}

	d, err := coordinator.NewDispatcher(cfg.Transport, opts)
	if err != nil {
		return summary{}, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	res, err := coordinator.New(d, log).Run(ctx, coordinator.Job{
		Grid:      g,
		MaxIter:   cfg.MaxIter,
		Workers:   cfg.Workers,
		Remainder: cfg.Remainder,
		ChunkSize: cfg.ChunkSize,
		Timeout:   cfg.Timeout,
	})
	if err != nil {
		return summary{}, err
	}

	hist, colors := coloring.Apply(res.Field, res.MaxIter)
	if err := output.WriteFile(cfg.Output, res.Constants, colors, g.Width); err != nil {
		return summary{}, err
	}
	log.Info("output written", "path", cfg.Output, "run_id", res.RunID)

	if cfg.Preview != "" {
		if err := writePreview(cfg.Preview, colors, g.Width, g.Height, cfg.PreviewSize); err != nil {
			return summary{}, err
		}
		log.Info("preview written", "path", cfg.Preview)
	}

	unwritten := len(res.Uncovered) * g.Width
	return summary{
		RunID:     res.RunID,
		Transport: res.Transport,
		Width:     g.Width,
		Height:    g.Height,
		MaxIter:   res.MaxIter,
		Workers:   len(res.Assignments),
		Escaped:   hist.Total(),
		InSet:     g.Pixels() - hist.Total() - unwritten,
		Uncovered: len(res.Uncovered),
		Elapsed:   res.Elapsed,
		Output:    cfg.Output,
		Preview:   cfg.Preview,
	}, nil
}

func writePreview(path string, colors []float64, width, height, size int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("preview: %w", cerr)
		}
	}()
	return output.WritePNG(f, colors, width, height, size)
}

// resolveWorkerBin finds the worker executable on PATH or, failing that,
// in the directory of the running binary.
func resolveWorkerBin(name string) (string, error) {
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	if self, err := os.Executable(); err == nil {
		p := filepath.Join(filepath.Dir(self), filepath.Base(name))
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: worker binary %q not found on PATH or next to mandel", config.ErrInvalidConfig, name)
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func printSummary(w io.Writer, s summary) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "run %s (%s, %d workers)\n", s.RunID, s.Transport, s.Workers)
	p.Fprintf(w, "  grid      %d x %d = %d pixels, max %d iterations\n", s.Width, s.Height, s.Width*s.Height, s.MaxIter)
	p.Fprintf(w, "  escaped   %d\n", s.Escaped)
	p.Fprintf(w, "  in set    %d\n", s.InSet)
	if s.Uncovered > 0 {
		p.Fprintf(w, "  dropped   %d rows\n", s.Uncovered)
	}
	p.Fprintf(w, "  elapsed   %s\n", s.Elapsed.Round(time.Millisecond).String())
	p.Fprintf(w, "  output    %s\n", s.Output)
	if s.Preview != "" {
		p.Fprintf(w, "  preview   %s\n", s.Preview)
	}
}
