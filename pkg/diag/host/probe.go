// probe.go implements a TCP reachability prober used as a ConnectivitySource.

package host

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag"
)

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProbeInterval sets the time between probes (default: 15s).
func WithProbeInterval(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithProbeTimeout bounds each dial (default: 3s).
func WithProbeTimeout(d time.Duration) ProberOption {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithDialer replaces the dial function, mainly for tests.
func WithDialer(dial DialFunc) ProberOption {
	return func(p *Prober) {
		p.dial = dial
	}
}

// Prober considers the host online while at least one target accepts a TCP
// connection.
type Prober struct {
	targets  []string
	interval time.Duration
	timeout  time.Duration
	dial     DialFunc
}

var _ diag.ConnectivitySource = (*Prober)(nil)

// NewProber creates a prober for host:port targets.
func NewProber(targets []string, opts ...ProberOption) *Prober {
	d := &net.Dialer{}
	p := &Prober{
		targets:  append([]string(nil), targets...),
		interval: 15 * time.Second,
		timeout:  3 * time.Second,
		dial:     d.DialContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe dials every target concurrently and reports whether any succeeded.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var reachable atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	for _, target := range p.targets {
		g.Go(func() error {
			conn, err := p.dial(gctx, "tcp", target)
			if err != nil {
				return nil
			}
			_ = conn.Close()
			reachable.Store(true)
			// any success settles the probe
			cancel()
			return nil
		})
	}
	_ = g.Wait()
	return reachable.Load()
}

// OnConnectivityChange probes immediately and then every interval, calling
// fn whenever the result differs from the previous one. The first result is
// reported only when offline, matching the engine's online initial state.
func (p *Prober) OnConnectivityChange(fn func(online bool)) (stop func(), err error) {
	if len(p.targets) == 0 {
		return nil, errors.New("host: prober has no targets")
	}
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.run(ctx, fn)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}

func (p *Prober) run(ctx context.Context, fn func(bool)) {
	online := true
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		result := p.Probe(ctx)
		if ctx.Err() != nil {
			return
		}
		if result != online {
			online = result
			fn(online)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
