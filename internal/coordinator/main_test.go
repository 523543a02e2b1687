package coordinator

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dreamware/mandelgrid/internal/cluster"
	"github.com/dreamware/mandelgrid/internal/grid"
	"github.com/dreamware/mandelgrid/internal/transport"
	"github.com/dreamware/mandelgrid/internal/worker"
)

// envBehaviour makes the re-executed test binary misbehave on purpose.
const envBehaviour = "MANDEL_TEST_BEHAVIOUR"

// TestMain lets the test binary double as a worker process: the pipe and
// socket dispatchers re-execute it with MANDEL_WORKER_MODE set.
func TestMain(m *testing.M) {
	if mode := os.Getenv(worker.EnvMode); mode != "" {
		os.Exit(helperWorker(mode))
	}
	os.Exit(m.Run())
}

func helperWorker(mode string) int {
	switch os.Getenv(envBehaviour) {
	case "crash":
		// a pipe worker takes its assignment before dying so the
		// orchestrator sees a short payload rather than a broken pipe
		if mode == worker.ModeStdio {
			io.ReadFull(os.Stdin, make([]byte, transport.HeaderSize))
		}
		return 3
	case "hang":
		time.Sleep(time.Hour)
		return 0
	case "garble":
		var rw io.ReadWriter = stdio{os.Stdin, os.Stdout}
		if mode == worker.ModeSocket {
			conn, err := net.Dial("unix", os.Getenv(worker.EnvSocket))
			if err != nil {
				return 1
			}
			defer conn.Close()
			rw = conn
		}
		io.ReadFull(rw, make([]byte, transport.HeaderSize))
		rw.Write([]byte(strings.Repeat("x", transport.HeaderSize)))
		return 0
	}

	var err error
	switch mode {
	case worker.ModeStdio:
		_, err = worker.ServeStdio(os.Stdin, os.Stdout)
	case worker.ModeSocket:
		_, err = worker.DialAndServe(context.Background(), os.Getenv(worker.EnvSocket))
	default:
		err = fmt.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "helper worker:", err)
		return 1
	}
	return 0
}

type stdio struct {
	io.Reader
	io.Writer
}

// helperCommand re-executes the test binary as a worker.
func helperCommand(behaviour string) WorkerCommand {
	cmd := WorkerCommand{Path: os.Args[0], Stderr: io.Discard}
	if behaviour != "" {
		cmd.Env = []string{envBehaviour + "=" + behaviour}
	}
	return cmd
}

// startNodes runs n in-process worker nodes and returns their NodeInfo.
func startNodes(t *testing.T, n int) []cluster.NodeInfo {
	t.Helper()
	var nodes []cluster.NodeInfo
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("node-%d", i+1)
		server := httptest.NewServer(worker.NewNode(id, nil).Handler())
		t.Cleanup(server.Close)
		nodes = append(nodes, cluster.NodeInfo{ID: id, Addr: server.URL})
	}
	return nodes
}

// dispatchers builds one dispatcher per transport.
func dispatchers(t *testing.T) map[string]Dispatcher {
	t.Helper()
	return map[string]Dispatcher{
		"shared":       &SharedDispatcher{},
		"parallel-for": &ParallelForDispatcher{},
		"pipe":         &PipeDispatcher{Command: helperCommand("")},
		"socket":       &SocketDispatcher{Command: helperCommand("")},
		"remote":       &RemoteDispatcher{Nodes: startNodes(t, 2)},
	}
}

func testGrid(t *testing.T, width, height int) grid.Grid {
	t.Helper()
	g, err := grid.New(grid.DefaultBounds, width, height)
	require.NoError(t, err)
	return g
}
