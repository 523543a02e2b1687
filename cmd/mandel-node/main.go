// Command mandel-node is the worker side of a Mandelbrot run.
//
// The same binary serves every out-of-process transport. MANDEL_WORKER_MODE
// selects how it talks to the orchestrator:
//
//	stdio   read one assignment record on stdin, write the result on stdout
//	socket  dial the Unix socket named by MANDEL_WORKER_SOCKET, serve one chunk
//	http    long-running node serving /health, /info and /compute (default)
//
// In stdio and socket mode the process exits after one exchange. Logging
// always goes to stderr because stdout may be the result channel.
//
// Optional environment:
//   - MANDEL_WORKER_ID: identifier used in logs (default: random)
//   - NODE_LISTEN: http mode listen address (default ":8081")
//   - NODE_CACHE_BYTES: http mode result cache budget, 0 disables (default 64 MiB)
//   - MANDEL_LOG_LEVEL, MANDEL_LOG_FORMAT: as for mandel
//
// Exit codes:
//   - 0: exchange served, or node stopped by signal
//   - 1: bad configuration, transport failure or malformed assignment
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/mandelgrid/internal/logging"
	"github.com/dreamware/mandelgrid/internal/storage"
	"github.com/dreamware/mandelgrid/internal/worker"
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

	if err := run(ctx, os.Getenv, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "mandel-node:", err)
		os.Exit(1)
	}
}

// run serves in the mode named by the environment until the exchange is
// done or, in http mode, until ctx is cancelled.
func run(ctx context.Context, getenv func(string) string, stdin io.Reader, stdout io.Writer) error {
	id := getenvDefault(getenv, worker.EnvID, "node-"+uuid.NewString()[:8])
	logger := logging.New(logging.Config{
		Level:  getenvDefault(getenv, "MANDEL_LOG_LEVEL", "info"),
		Format: getenvDefault(getenv, "MANDEL_LOG_FORMAT", "text"),
		Output: os.Stderr,
	}).With("component", "mandel-node", "worker", id)

	mode := getenvDefault(getenv, worker.EnvMode, worker.ModeHTTP)
	switch mode {
	case worker.ModeStdio:
		h, err := worker.ServeStdio(stdin, stdout)
		if err != nil {
			return err
		}
		logger.Debug("chunk served", "chunk", h.Assignment.String())
		return nil

	case worker.ModeSocket:
		path := getenv(worker.EnvSocket)
		if path == "" {
			return fmt.Errorf("missing env %s", worker.EnvSocket)
		}
		h, err := worker.DialAndServe(ctx, path)
		if err != nil {
			return err
		}
		logger.Debug("chunk served", "chunk", h.Assignment.String())
		return nil

	case worker.ModeHTTP:
		listen := getenvDefault(getenv, "NODE_LISTEN", ":8081")
		cacheBytes, err := strconv.Atoi(getenvDefault(getenv, "NODE_CACHE_BYTES", strconv.Itoa(storage.DefaultMaxBytes)))
		if err != nil {
			return fmt.Errorf("NODE_CACHE_BYTES: %w", err)
		}
		node := worker.NewNode(id, logger)
		if cacheBytes > 0 {
			node.WithStore(storage.NewMemoryStore(cacheBytes))
		}

		ln, err := net.Listen("tcp", listen)
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return serveHTTP(ctx, ln, node)

	default:
		return fmt.Errorf("unknown %s %q", worker.EnvMode, mode)
	}
}

// serveHTTP serves node on ln until ctx is cancelled, then shuts down
// gracefully with a five second grace period.
func serveHTTP(ctx context.Context, ln net.Listener, node *worker.Node) error {
	s := &http.Server{
		Handler:           node.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Printf("node[%s] listening on %s", node.ID, ln.Addr())
		errs <- s.Serve(ln)
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdown); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	log.Printf("node[%s] stopped after %d chunks", node.ID, node.Served())
	return nil
}

func getenvDefault(getenv func(string) string, k, def string) string {
	if v := getenv(k); v != "" {
		return v
	}
	return def
}
