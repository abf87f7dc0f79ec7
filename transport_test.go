package stunnat

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPTransportSendRecvLoopback(t *testing.T) {
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer server.Close()

	client, err := newUDPTransport(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer client.close()

	serverAddr := server.LocalAddr().(*net.UDPAddr)
	require.NoError(t, client.Send([]byte("hello"), serverAddr))

	buf := make([]byte, 64)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(time.Second)))
	n, from, err := server.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	require.NoError(t, client.Send([]byte("world"), client.LocalEndpoint()))
	_, err = server.WriteToUDP([]byte("world"), from)
	require.NoError(t, err)

	reply, err := client.Recv(time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "world", string(reply))
}

func TestUDPTransportRecvTimeout(t *testing.T) {
	client, err := newUDPTransport(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer client.close()

	reply, err := client.Recv(time.Now().Add(50 * time.Millisecond))
	require.NoError(t, err)
	assert.Nil(t, reply)
}

func TestUDPTransportFromConnNeverCloses(t *testing.T) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer conn.Close()

	caller := newUDPTransportFromConn(conn)
	require.NoError(t, caller.close())

	// conn must still be usable: a closed connection would fail this.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Millisecond)))
	buf := make([]byte, 16)
	_, _, err = conn.ReadFromUDP(buf)
	assert.Error(t, err) // timeout, not "use of closed connection"

	var netErr net.Error
	assert.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}

// scriptedTransport is a deterministic fake Transport for the discovery
// engine tests. The run's transaction id is only known once the engine
// builds its first request, so each step builds its reply lazily from the
// transaction id of the most recently sent request.
type scriptedTransport struct {
	local *Endpoint
	steps []scriptedStep
	next  int
	sent  []scriptedSend
}

type scriptedStep struct {
	// build returns reply bytes for the most recent Send's transaction id,
	// or nil to simulate a timed-out recv.
	build func(txID TransactionID) []byte
}

type scriptedSend struct {
	dest *Endpoint
	msg  *Message
}

func (s *scriptedTransport) Send(b []byte, remote *Endpoint) error {
	msg, err := decodeMessage(b)
	if err != nil {
		return err
	}
	s.sent = append(s.sent, scriptedSend{dest: remote, msg: msg})
	return nil
}

func (s *scriptedTransport) Recv(time.Time) ([]byte, error) {
	if s.next >= len(s.steps) {
		return nil, nil
	}
	step := s.steps[s.next]
	s.next++
	if step.build == nil {
		return nil, nil
	}
	txID := s.sent[len(s.sent)-1].msg.TransactionID
	return step.build(txID), nil
}

func (s *scriptedTransport) LocalEndpoint() *Endpoint {
	return s.local
}

// bindingResponseWith builds an encoded BindingResponse over txID carrying
// the given attributes.
func bindingResponseWith(txID TransactionID, attrs ...Attribute) []byte {
	msg := NewMessage(BindingResponse, txID)
	for _, a := range attrs {
		msg.Add(a)
	}
	data, err := msg.encode()
	if err != nil {
		panic(err)
	}
	return data
}

// bindingErrorResponseWith builds an encoded BindingErrorResponse over txID.
func bindingErrorResponseWith(txID TransactionID, class, number int, phrase string) []byte {
	msg := NewMessage(BindingErrorResponse, txID)
	msg.Add(newErrorCodeAttribute(class, number, phrase))
	data, err := msg.encode()
	if err != nil {
		panic(err)
	}
	return data
}
