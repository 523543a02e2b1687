package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/mandelgrid/internal/cluster"
	"github.com/dreamware/mandelgrid/internal/grid"
	"github.com/dreamware/mandelgrid/internal/partition"
	"github.com/dreamware/mandelgrid/internal/transport"
	"github.com/dreamware/mandelgrid/internal/worker"
)

func env(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func assignment(t *testing.T) (grid.Grid, transport.Header) {
	t.Helper()
	g, err := grid.New(grid.DefaultBounds, 6, 4)
	require.NoError(t, err)
	return g, transport.NewAssignment(g, partition.Assignment{Start: 1, Length: 2}, 40, 16)
}

// TestGetenvDefault tests the getenvDefault utility function
func TestGetenvDefault(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		key      string
		def      string
		expected string
	}{
		{name: "variable set", env: map[string]string{"K": "v"}, key: "K", def: "d", expected: "v"},
		{name: "variable not set", env: nil, key: "K", def: "d", expected: "d"},
		{name: "empty variable returns default", env: map[string]string{"K": ""}, key: "K", def: "d", expected: "d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, getenvDefault(env(tt.env), tt.key, tt.def))
		})
	}
}

// TestRunStdio verifies that stdio mode answers one assignment on stdout.
func TestRunStdio(t *testing.T) {
	g, h := assignment(t)
	var in, out bytes.Buffer
	require.NoError(t, transport.SendAssignment(&in, h))

	err := run(context.Background(), env(map[string]string{worker.EnvMode: worker.ModeStdio}), &in, &out)
	require.NoError(t, err)

	rh, data, err := transport.ReceiveResult(&out)
	require.NoError(t, err)
	assert.Equal(t, transport.KindResult, rh.Kind)
	assert.Equal(t, h.Assignment, rh.Assignment)

	want, err := worker.ComputeAssignment(g, h.Assignment, h.MaxIter)
	require.NoError(t, err)
	assert.Equal(t, want, data)
}

// TestRunStdioMalformed verifies that a garbage assignment is an error.
func TestRunStdioMalformed(t *testing.T) {
	in := bytes.NewBufferString("this is not an assignment record, not even close to one....")
	var out bytes.Buffer

	err := run(context.Background(), env(map[string]string{worker.EnvMode: worker.ModeStdio}), in, &out)
	assert.Error(t, err)
	assert.Zero(t, out.Len(), "nothing written for a bad assignment")
}

// TestRunSocket verifies that socket mode dials in and serves one chunk.
func TestRunSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "mnode")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "w.sock")

	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer ln.Close()

	g, h := assignment(t)
	type reply struct {
		data grid.IterationField
		err  error
	}
	replies := make(chan reply, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			replies <- reply{err: err}
			return
		}
		defer conn.Close()
		if err := transport.SendAssignment(conn, h); err != nil {
			replies <- reply{err: err}
			return
		}
		_, data, err := transport.ReceiveResult(conn)
		replies <- reply{data: data, err: err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = run(ctx, env(map[string]string{
		worker.EnvMode:   worker.ModeSocket,
		worker.EnvSocket: path,
		worker.EnvID:     "w-test",
	}), nil, nil)
	require.NoError(t, err)

	r := <-replies
	require.NoError(t, r.err)
	want, _ := worker.ComputeAssignment(g, h.Assignment, h.MaxIter)
	assert.Equal(t, want, r.data)
}

// TestRunConfigErrors verifies the modes that cannot start.
func TestRunConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "socket without path", env: map[string]string{worker.EnvMode: worker.ModeSocket}},
		{name: "socket nobody listening", env: map[string]string{
			worker.EnvMode:   worker.ModeSocket,
			worker.EnvSocket: filepath.Join(os.TempDir(), "mandel-node-missing.sock"),
		}},
		{name: "unknown mode", env: map[string]string{worker.EnvMode: "carrier-pigeon"}},
		{name: "bad cache budget", env: map[string]string{
			worker.EnvMode:     worker.ModeHTTP,
			"NODE_LISTEN":      "127.0.0.1:0",
			"NODE_CACHE_BYTES": "lots",
		}},
		{name: "bad listen address", env: map[string]string{
			worker.EnvMode: worker.ModeHTTP,
			"NODE_LISTEN":  "not-an-address",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, run(context.Background(), env(tt.env), nil, nil))
		})
	}
}

// TestServeHTTP verifies that the node answers health checks and stops
// when its context is cancelled.
func TestServeHTTP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveHTTP(ctx, ln, worker.NewNode("n-http", nil))
	}()

	addr := "http://" + ln.Addr().String()
	require.Eventually(t, func() bool {
		return cluster.CheckHealth(context.Background(), addr) == nil
	}, 5*time.Second, 20*time.Millisecond)

	var info cluster.InfoResponse
	require.NoError(t, cluster.GetJSON(context.Background(), cluster.URL(addr, cluster.PathInfo), &info))
	assert.Equal(t, "n-http", info.ID)
	assert.Equal(t, transport.Version, info.Version)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("node did not stop")
	}
	assert.Error(t, cluster.CheckHealth(context.Background(), addr), "listener closed after shutdown")
}
