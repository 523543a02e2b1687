package coordinator

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/mandelgrid/internal/config"
	"github.com/dreamware/mandelgrid/internal/worker"
)

// WorkerCommand describes how to launch a worker process.
type WorkerCommand struct {
	Path string
	Args []string
	// Env is appended to the orchestrator's environment.
	Env []string
	// Stderr receives the workers' log output; os.Stderr when nil.
	Stderr io.Writer
}

func (c WorkerCommand) command(ctx context.Context, mode, workerID string, extra ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Env = append(cmd.Env, worker.EnvMode+"="+mode, worker.EnvID+"="+workerID)
	cmd.Env = append(cmd.Env, extra...)
	cmd.Stderr = c.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	cmd.WaitDelay = time.Second
	return cmd
}

func closeAll(ins []io.WriteCloser, outs []io.ReadCloser) {
	for _, c := range ins {
		c.Close()
	}
	for _, c := range outs {
		c.Close()
	}
}

type process struct {
	id  string
	cmd *exec.Cmd
}

// reap kills whatever is still running and waits for it, used when setup
// fails part way.
func reap(procs []process) {
	for _, p := range procs {
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
			p.cmd.Wait()
		}
	}
}

// PipeDispatcher starts one worker process per chunk and talks to it over
// a private stdin/stdout pipe pair. Each worker computes into its own
// buffer and streams it back; nothing is shared between processes.
type PipeDispatcher struct {
	Command WorkerCommand
}

func (d *PipeDispatcher) Name() string { return config.TransportPipe }

func (d *PipeDispatcher) Start(parent context.Context, p *Phase) (WaitFunc, error) {
	ctx, cancel := context.WithCancel(parent)
	chunks := p.Chunks()

	procs := make([]process, len(chunks))
	stdins := make([]io.WriteCloser, len(chunks))
	stdouts := make([]io.ReadCloser, len(chunks))
	for i := range chunks {
		id := uuid.NewString()
		cmd := d.Command.command(ctx, worker.ModeStdio, id)
		in, err := cmd.StdinPipe()
		if err != nil {
			cancel()
			closeAll(stdins[:i], stdouts[:i])
			return nil, fmt.Errorf("%w: stdin pipe: %w", ErrChannelSetup, err)
		}
		out, err := cmd.StdoutPipe()
		if err != nil {
			cancel()
			in.Close()
			closeAll(stdins[:i], stdouts[:i])
			return nil, fmt.Errorf("%w: stdout pipe: %w", ErrChannelSetup, err)
		}
		procs[i], stdins[i], stdouts[i] = process{id: id, cmd: cmd}, in, out
	}

	for i, proc := range procs {
		if err := proc.cmd.Start(); err != nil {
			cancel()
			reap(procs[:i])
			closeAll(stdins, stdouts)
			return nil, fmt.Errorf("%w: start worker %s: %w", ErrChannelSetup, d.Command.Path, err)
		}
	}

	errs := make(chan error, len(chunks))
	var wg sync.WaitGroup
	for i, c := range chunks {
		wg.Add(1)
		go func(proc process, in io.WriteCloser, out io.Reader, c *ChunkRecord) {
			defer wg.Done()
			log := p.Log().With("worker", proc.id, "pid", proc.cmd.Process.Pid)

			err := p.Exchange(in, out, c.Assignment, proc.id)
			in.Close()
			if err != nil {
				errs <- fmt.Errorf("%w: %w", ErrWorkerFailed, err)
				// fail fast: stop every other worker too
				cancel()
				proc.cmd.Wait()
				return
			}
			if err := proc.cmd.Wait(); err != nil {
				errs <- fmt.Errorf("%w: worker %s: %w", ErrWorkerFailed, proc.id, err)
				return
			}
			log.Debug("worker exited")
		}(procs[i], stdins[i], stdouts[i], c)
	}

	wait := joinWait(parent, &wg, errs)
	return func() error {
		defer cancel()
		return wait()
	}, nil
}

// SocketDispatcher listens on a Unix-domain socket in a private temporary
// directory and starts one worker process per chunk; each worker dials in
// and receives the next unserved chunk on its connection.
type SocketDispatcher struct {
	Command WorkerCommand
}

func (d *SocketDispatcher) Name() string { return config.TransportSocket }

func (d *SocketDispatcher) Start(parent context.Context, p *Phase) (WaitFunc, error) {
	dir, err := os.MkdirTemp("", "mandel-")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrChannelSetup, err)
	}
	path := filepath.Join(dir, "workers.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: listen %s: %w", ErrChannelSetup, path, err)
	}

	ctx, cancel := context.WithCancel(parent)
	cleanup := func() {
		cancel()
		ln.Close()
		os.RemoveAll(dir)
	}

	chunks := p.Chunks()
	procs := make([]process, len(chunks))
	for i := range chunks {
		id := uuid.NewString()
		procs[i] = process{id: id, cmd: d.Command.command(ctx, worker.ModeSocket, id, worker.EnvSocket+"="+path)}
	}
	for i, proc := range procs {
		if err := proc.cmd.Start(); err != nil {
			reap(procs[:i])
			cleanup()
			return nil, fmt.Errorf("%w: start worker %s: %w", ErrChannelSetup, d.Command.Path, err)
		}
	}

	// a blocked Accept or Read returns once the listener or connection closes
	stopListener := context.AfterFunc(ctx, func() { ln.Close() })

	errs := make(chan error, 2*len(chunks)+1)
	var wg sync.WaitGroup

	for _, proc := range procs {
		wg.Add(1)
		go func(proc process) {
			defer wg.Done()
			if err := proc.cmd.Wait(); err != nil {
				errs <- fmt.Errorf("%w: worker %s: %w", ErrWorkerFailed, proc.id, err)
				cancel()
			}
		}(proc)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, c := range chunks {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("%w: accept: %w", ErrWorkerFailed, err)
					cancel()
				}
				return
			}

			wg.Add(1)
			go func(conn net.Conn, c *ChunkRecord) {
				defer wg.Done()
				defer conn.Close()
				stop := context.AfterFunc(ctx, func() { conn.Close() })
				defer stop()

				// the process behind a connection is anonymous; the
				// connection's chunk is its identity
				workerID := fmt.Sprintf("socket-conn-%d", c.ID)
				if err := p.Exchange(conn, conn, c.Assignment, workerID); err != nil {
					errs <- fmt.Errorf("%w: %w", ErrWorkerFailed, err)
					cancel()
				}
			}(conn, c)
		}
	}()

	wait := joinWait(parent, &wg, errs)
	return func() error {
		defer stopListener()
		defer cleanup()
		return wait()
	}, nil
}
