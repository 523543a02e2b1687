package worker

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/dreamware/mandelgrid/internal/transport"
)

// Worker process modes, selected through EnvMode.
const (
	ModeStdio  = "stdio"
	ModeSocket = "socket"
	ModeHTTP   = "http"
)

// Environment handed to a spawned worker process.
const (
	EnvMode   = "MANDEL_WORKER_MODE"
	EnvSocket = "MANDEL_WORKER_SOCKET"
	EnvID     = "MANDEL_WORKER_ID"
)

type stdio struct {
	io.Reader
	io.Writer
}

// ServeStdio serves one exchange with the assignment arriving on r and the
// result leaving on w. A pipe worker calls it with os.Stdin and os.Stdout.
func ServeStdio(r io.Reader, w io.Writer) (transport.Header, error) {
	return Serve(stdio{r, w})
}

// DialAndServe connects to the orchestrator's Unix socket at path and
// serves one exchange over the connection.
func DialAndServe(ctx context.Context, path string) (transport.Header, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return transport.Header{}, fmt.Errorf("worker: dial %s: %w", path, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	return Serve(conn)
}
