package stunnat

import (
	"context"
	"fmt"
	"net"
)

// Query resolves addr (host:port) and runs one discovery run over a socket
// this call creates and closes. variant selects which RFC procedure to run;
// queryType selects how much of that procedure to run (spec §4.G).
func Query(addr string, variant DiscoveryVariant, queryType QueryType, cfg Config) (*QueryResult, error) {
	server, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("stunnat: resolving %q: %w", addr, err)
	}

	var localAddr *Endpoint
	if cfg.LocalBind != nil {
		localAddr = cfg.LocalBind
	}
	t, err := newUDPTransport(localAddr)
	if err != nil {
		return nil, err
	}
	defer t.close()

	return dispatch(t, server, variant, queryType, cfg)
}

// QueryWithSocket runs one discovery run over a caller-owned connection.
// stunnat never closes conn; the caller retains ownership for its entire
// lifetime (spec §4.G, §5).
func QueryWithSocket(conn *net.UDPConn, server *Endpoint, variant DiscoveryVariant, queryType QueryType, cfg Config) (*QueryResult, error) {
	t := newUDPTransportFromConn(conn)
	return dispatch(t, server, variant, queryType, cfg)
}

func dispatch(t Transport, server *Endpoint, variant DiscoveryVariant, queryType QueryType, cfg Config) (*QueryResult, error) {
	switch variant {
	case Rfc3489:
		return runClassicDiscovery(t, server, queryType, cfg)
	case Rfc5780:
		return runBehaviorDiscovery(t, server, queryType, cfg)
	default:
		return nil, fmt.Errorf("stunnat: unknown discovery variant %d", variant)
	}
}

// Future is the handle returned by the asynchronous entry points. It mirrors
// the goroutine-plus-channel shape _examples/thelastdreamer-MultiWANBond's
// pkg/nat/stun.go uses for its background refresh routine, rather than
// golang.org/x/sync/errgroup: nothing in the retrieved pack imports errgroup
// directly, so a bare channel is the idiom this module follows.
type Future struct {
	done chan struct{}
	res  *QueryResult
	err  error
}

// Wait blocks until the run completes, or ctx is done, whichever comes
// first.
func (f *Future) Wait(ctx context.Context) (*QueryResult, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// QueryAsync starts Query in a background goroutine and returns immediately.
func QueryAsync(addr string, variant DiscoveryVariant, queryType QueryType, cfg Config) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		f.res, f.err = Query(addr, variant, queryType, cfg)
		close(f.done)
	}()
	return f
}

// QueryWithSocketAsync starts QueryWithSocket in a background goroutine and
// returns immediately.
func QueryWithSocketAsync(conn *net.UDPConn, server *Endpoint, variant DiscoveryVariant, queryType QueryType, cfg Config) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		f.res, f.err = QueryWithSocket(conn, server, variant, queryType, cfg)
		close(f.done)
	}()
	return f
}
