// Package config assembles and validates the run configuration.
//
// Values are layered, later layers winning:
//
//  1. built-in defaults (5000 iterations, [-2,2]², 1000x1000, 4 workers)
//  2. an optional YAML file named by MANDEL_CONFIG
//  3. MANDEL_* environment variables
//  4. positional arguments: maxIter [x y size] [workers]
//
// The engine assumes a validated Config; Validate rejects anything the
// partitioner or the transports could not honour.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/mandelgrid/internal/grid"
	"github.com/dreamware/mandelgrid/internal/partition"
	"github.com/dreamware/mandelgrid/internal/transport"
)

// Transport names accepted in MANDEL_TRANSPORT.
const (
	TransportShared      = "shared"
	TransportParallelFor = "parallel-for"
	TransportPipe        = "pipe"
	TransportSocket      = "socket"
	TransportRemote      = "remote"
)

// Transports lists every accepted transport name.
var Transports = []string{TransportShared, TransportParallelFor, TransportPipe, TransportSocket, TransportRemote}

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("config: invalid configuration")
	// ErrUsage is returned for a positional argument list of the wrong shape.
	ErrUsage = errors.New("usage: mandel maxIter [x y size] [workers]")
)

// View is a square region given by its center and side length.
type View struct {
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
	Size float64 `yaml:"size"`
}

// Config is the complete run configuration.
type Config struct {
	MaxIter     int                       `yaml:"max_iter"`
	Width       int                       `yaml:"width"`
	Height      int                       `yaml:"height"`
	Bounds      grid.Bounds               `yaml:"bounds"`
	View        *View                     `yaml:"view"`
	Workers     int                       `yaml:"workers"`
	Transport   string                    `yaml:"transport"`
	ChunkSize   int                       `yaml:"chunk_size"`
	Remainder   partition.RemainderPolicy `yaml:"remainder"`
	Output      string                    `yaml:"output"`
	Preview     string                    `yaml:"preview"`
	PreviewSize int                       `yaml:"preview_size"`
	Timeout     time.Duration             `yaml:"timeout"`
	WorkerBin   string                    `yaml:"worker_bin"`
	Nodes       []string                  `yaml:"nodes"`
	LogLevel    string                    `yaml:"log_level"`
	LogFormat   string                    `yaml:"log_format"`
}

// Default returns the configuration of a run with no overrides.
func Default() Config {
	return Config{
		MaxIter:     5000,
		Width:       grid.DefaultWidth,
		Height:      grid.DefaultHeight,
		Bounds:      grid.DefaultBounds,
		Workers:     4,
		Transport:   TransportShared,
		ChunkSize:   transport.DefaultChunkSize,
		Remainder:   partition.RemainderLast,
		Output:      "mandel.dat",
		PreviewSize: 512,
		Timeout:     2 * time.Minute,
		WorkerBin:   "mandel-node",
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// Getenv looks up an environment variable; os.Getenv in production.
type Getenv func(string) string

// Load builds a Config from defaults, the YAML file named by MANDEL_CONFIG,
// the environment and the positional arguments, then validates it.
func Load(args []string, getenv Getenv) (Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()

	if path := getenv("MANDEL_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.applyArgs(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	return c.UnmarshalYAMLBytes(data)
}

// UnmarshalYAMLBytes overlays a YAML document onto c. Keys missing from the
// document keep their current values.
func (c *Config) UnmarshalYAMLBytes(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("%w: yaml: %v", ErrInvalidConfig, err)
	}
	if c.View != nil {
		c.Bounds = grid.CenteredBounds(c.View.X, c.View.Y, c.View.Size)
		c.View = nil
	}
	return nil
}

func (c *Config) applyEnv(getenv Getenv) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"MANDEL_MAX_ITER", &c.MaxIter},
		{"MANDEL_WIDTH", &c.Width},
		{"MANDEL_HEIGHT", &c.Height},
		{"MANDEL_WORKERS", &c.Workers},
		{"MANDEL_CHUNK_SIZE", &c.ChunkSize},
		{"MANDEL_PREVIEW_SIZE", &c.PreviewSize},
	}
	for _, e := range ints {
		v := getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, e.key, v)
		}
		*e.dst = n
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"MANDEL_TRANSPORT", &c.Transport},
		{"MANDEL_OUTPUT", &c.Output},
		{"MANDEL_PREVIEW", &c.Preview},
		{"MANDEL_WORKER_BIN", &c.WorkerBin},
		{"MANDEL_LOG_LEVEL", &c.LogLevel},
		{"MANDEL_LOG_FORMAT", &c.LogFormat},
	}
	for _, e := range strs {
		if v := getenv(e.key); v != "" {
			*e.dst = v
		}
	}

	if v := getenv("MANDEL_REMAINDER"); v != "" {
		p, err := partition.ParsePolicy(v)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		c.Remainder = p
	}
	if v := getenv("MANDEL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: MANDEL_TIMEOUT=%q: %v", ErrInvalidConfig, v, err)
		}
		c.Timeout = d
	}
	if v := getenv("MANDEL_NODES"); v != "" {
		c.Nodes = nil
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				c.Nodes = append(c.Nodes, n)
			}
		}
	}
	return nil
}

// applyArgs accepts the historical command line:
//
//	mandel
//	mandel maxIter
//	mandel maxIter x y size
//	mandel maxIter x y size workers
func (c *Config) applyArgs(args []string) error {
	switch len(args) {
	case 0:
		return nil
	case 1, 4, 5:
	default:
		return ErrUsage
	}

	maxIter, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w: maxIter %q", ErrUsage, args[0])
	}
	c.MaxIter = maxIter
	if len(args) == 1 {
		return nil
	}

	var xyz [3]float64
	for i := range xyz {
		if xyz[i], err = strconv.ParseFloat(args[i+1], 64); err != nil {
			return fmt.Errorf("%w: %q is not a number", ErrUsage, args[i+1])
		}
	}
	if xyz[2] <= 0 {
		return fmt.Errorf("%w: size must be positive", ErrInvalidConfig)
	}
	c.Bounds = grid.CenteredBounds(xyz[0], xyz[1], xyz[2])

	if len(args) == 5 {
		if c.Workers, err = strconv.Atoi(args[4]); err != nil {
			return fmt.Errorf("%w: workers %q", ErrUsage, args[4])
		}
	}
	return nil
}

// Validate checks every constraint the engine relies on.
func (c Config) Validate() error {
	var problems []string
	if c.MaxIter < 1 {
		problems = append(problems, fmt.Sprintf("max_iter %d < 1", c.MaxIter))
	}
	// escape times are stored as int32
	if c.MaxIter > math.MaxInt32 {
		problems = append(problems, fmt.Sprintf("max_iter %d exceeds %d", c.MaxIter, math.MaxInt32))
	}
	if c.Width < 1 || c.Height < 1 {
		problems = append(problems, fmt.Sprintf("grid %dx%d", c.Width, c.Height))
	}
	if c.Workers < 1 || c.Workers > c.Height {
		problems = append(problems, fmt.Sprintf("workers %d not in [1, %d]", c.Workers, c.Height))
	}
	if !c.Bounds.Valid() {
		problems = append(problems, fmt.Sprintf("bounds %+v", c.Bounds))
	}
	if c.ChunkSize < 1 {
		problems = append(problems, fmt.Sprintf("chunk_size %d < 1", c.ChunkSize))
	}
	if c.Remainder != partition.RemainderLast && c.Remainder != partition.RemainderDrop {
		problems = append(problems, fmt.Sprintf("remainder %q", c.Remainder))
	}
	if !knownTransport(c.Transport) {
		problems = append(problems, fmt.Sprintf("transport %q not one of %s", c.Transport, strings.Join(Transports, ", ")))
	}
	if c.Transport == TransportRemote && len(c.Nodes) == 0 {
		problems = append(problems, "remote transport needs MANDEL_NODES")
	}
	if c.Timeout < 0 {
		problems = append(problems, fmt.Sprintf("timeout %s", c.Timeout))
	}
	if c.Output == "" {
		problems = append(problems, "output path is empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func knownTransport(name string) bool {
	for _, t := range Transports {
		if t == name {
			return true
		}
	}
	return false
}

// Grid builds the grid described by the configuration.
func (c Config) Grid() (grid.Grid, error) {
	return grid.New(c.Bounds, c.Width, c.Height)
}
