// Package hostport implements the host:port parsing and resolution
// collaborator the core library leaves as an external contract.
package hostport

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// Resolve parses "<host>:<port>" and resolves host to a single UDP endpoint.
// host is tried first as a literal IP address; on failure it is resolved via
// DNS and the first A/AAAA record returned is used.
func Resolve(ctx context.Context, input string) (*net.UDPAddr, error) {
	host, portStr, err := net.SplitHostPort(input)
	if err != nil {
		return nil, fmt.Errorf("hostport: %q: %w", input, err)
	}
	if host == "" {
		return nil, fmt.Errorf("hostport: %q: empty host", input)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("hostport: %q: invalid port %q: %w", input, portStr, err)
	}

	if ip := net.ParseIP(host); ip != nil {
		return &net.UDPAddr{IP: ip, Port: int(port)}, nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("hostport: resolving %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("hostport: %q has no A/AAAA records", host)
	}
	return &net.UDPAddr{IP: addrs[0].IP, Port: int(port)}, nil
}
