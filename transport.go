package stunnat

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// recvBufferSize is the datagram buffer size; any oversized datagram is
// truncated by the kernel/net package and the excess discarded (spec §4.D).
const recvBufferSize = 2048

// Transport is the thin collaborator the discovery engines speak through.
// Concrete UDP socket operations live behind this interface so the engines
// are testable without kernel sockets (spec §1).
type Transport interface {
	// Send writes b to remote. b is a fully encoded STUN message.
	Send(b []byte, remote *Endpoint) error
	// Recv blocks until a datagram arrives or deadline passes, returning
	// (nil, nil) on timeout. It never retries internally.
	Recv(deadline time.Time) ([]byte, error)
	// LocalEndpoint reports the address this transport is bound to.
	LocalEndpoint() *Endpoint
}

// udpTransport is the default Transport, backed by a real net.UDPConn.
type udpTransport struct {
	conn     *net.UDPConn
	ownsConn bool
}

// newUDPTransport binds a UDP socket at localAddr (nil means any address,
// ephemeral port).
func newUDPTransport(localAddr *Endpoint) (*udpTransport, error) {
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return nil, fmt.Errorf("stunnat: binding UDP socket: %w", err)
	}
	return &udpTransport{conn: conn, ownsConn: true}, nil
}

// newUDPTransportFromConn wraps a caller-owned connection; close is a no-op
// for a transport built this way (spec §5: "sockets passed in by the caller
// are never closed by the core").
func newUDPTransportFromConn(conn *net.UDPConn) *udpTransport {
	return &udpTransport{conn: conn, ownsConn: false}
}

func (t *udpTransport) Send(b []byte, remote *Endpoint) error {
	_, err := t.conn.WriteToUDP(b, remote)
	if err != nil {
		return fmt.Errorf("stunnat: sending to %s: %w", remote, err)
	}
	return nil
}

func (t *udpTransport) Recv(deadline time.Time) ([]byte, error) {
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("stunnat: setting read deadline: %w", err)
	}
	buf := make([]byte, recvBufferSize)
	n, _, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil
		}
		return nil, fmt.Errorf("stunnat: receiving: %w", err)
	}
	return buf[:n], nil
}

func (t *udpTransport) LocalEndpoint() *Endpoint {
	addr, ok := t.conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return nil
	}
	return addr
}

func (t *udpTransport) close() error {
	if !t.ownsConn {
		return nil
	}
	return t.conn.Close()
}
