package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dreamware/mandelgrid/internal/cluster"
	"github.com/dreamware/mandelgrid/internal/config"
	"github.com/dreamware/mandelgrid/internal/transport"
)

// RemoteDispatcher sends each chunk to a worker node over HTTP. Nodes are
// health-checked once before dispatch; chunks are dealt round-robin over
// the nodes that passed. With no healthy node the phase fails with
// ErrChannelSetup.
type RemoteDispatcher struct {
	Nodes  []cluster.NodeInfo
	Health *HealthMonitor
}

func (d *RemoteDispatcher) Name() string { return config.TransportRemote }

func (d *RemoteDispatcher) Start(parent context.Context, p *Phase) (WaitFunc, error) {
	if len(d.Nodes) == 0 {
		return nil, fmt.Errorf("%w: no nodes configured", ErrChannelSetup)
	}
	if d.Health == nil {
		d.Health = NewHealthMonitor(2*time.Second, p.Log())
	}

	healthy := d.Health.Check(parent, d.Nodes)
	if len(healthy) == 0 {
		return nil, fmt.Errorf("%w: none of %d nodes is healthy", ErrChannelSetup, len(d.Nodes))
	}
	if len(healthy) < len(d.Nodes) {
		p.Log().Warn("dispatching to a subset of nodes", "healthy", len(healthy), "configured", len(d.Nodes))
	}

	chunks := p.Chunks()
	bodies := make([][]byte, len(chunks))
	for i, c := range chunks {
		var buf bytes.Buffer
		if err := transport.SendAssignment(&buf, p.Header(c.Assignment)); err != nil {
			return nil, fmt.Errorf("%w: encode %s: %w", ErrChannelSetup, c.Assignment, err)
		}
		bodies[i] = buf.Bytes()
	}

	ctx, cancel := context.WithCancel(parent)
	errs := make(chan error, len(chunks))
	var wg sync.WaitGroup

	for i, c := range chunks {
		node := healthy[i%len(healthy)]
		wg.Add(1)
		go func(node cluster.NodeInfo, c *ChunkRecord, body []byte) {
			defer wg.Done()

			resp, err := cluster.PostBinary(ctx, cluster.URL(node.Addr, cluster.PathCompute), body)
			if err != nil {
				errs <- fmt.Errorf("%w: node %s on %s: %w", ErrWorkerFailed, node.ID, c.Assignment, err)
				cancel()
				return
			}
			defer resp.Close()

			if err := p.deliver(resp, node.ID, &c.Assignment); err != nil {
				errs <- fmt.Errorf("%w: %w", ErrWorkerFailed, err)
				cancel()
			}
		}(node, c, bodies[i])
	}

	wait := joinWait(parent, &wg, errs)
	return func() error {
		defer cancel()
		return wait()
	}, nil
}
