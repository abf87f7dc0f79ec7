package stunnat

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEndpoint(t *testing.T, ipStr string, port int) *Endpoint {
	t.Helper()
	ip := net.ParseIP(ipStr)
	require.NotNil(t, ip)
	return &Endpoint{IP: ip, Port: port}
}

func TestClassicDiscoveryOpenInternet(t *testing.T) {
	server := mustEndpoint(t, "198.51.100.1", 3478)
	local := mustEndpoint(t, "203.0.113.5", 4242)

	tr := &scriptedTransport{
		local: local,
		steps: []scriptedStep{
			{build: func(txID TransactionID) []byte {
				return bindingResponseWith(txID, newEndpointAttribute(AttrMappedAddress, *local))
			}},
			{build: func(txID TransactionID) []byte {
				return bindingResponseWith(txID, newEndpointAttribute(AttrMappedAddress, *local))
			}},
		},
	}

	result, err := runClassicDiscovery(tr, server, ExactNAT, Config{})
	require.NoError(t, err)
	assert.Equal(t, Success, result.QueryError)
	assert.Equal(t, OpenInternet, result.NATType)
}

func TestClassicDiscoverySymmetricUDPFirewall(t *testing.T) {
	server := mustEndpoint(t, "198.51.100.1", 3478)
	local := mustEndpoint(t, "203.0.113.5", 4242)

	tr := &scriptedTransport{
		local: local,
		steps: []scriptedStep{
			{build: func(txID TransactionID) []byte {
				return bindingResponseWith(txID, newEndpointAttribute(AttrMappedAddress, *local))
			}},
			{build: nil}, // S2 timeout
		},
	}

	result, err := runClassicDiscovery(tr, server, ExactNAT, Config{})
	require.NoError(t, err)
	assert.Equal(t, Success, result.QueryError)
	assert.Equal(t, SymmetricUDPFirewall, result.NATType)
}

func TestClassicDiscoveryFullCone(t *testing.T) {
	server := mustEndpoint(t, "198.51.100.1", 3478)
	local := mustEndpoint(t, "203.0.113.5", 4242)
	public := mustEndpoint(t, "203.0.113.9", 55001)
	changed := mustEndpoint(t, "198.51.100.2", 3479)

	tr := &scriptedTransport{
		local: local,
		steps: []scriptedStep{
			{build: func(txID TransactionID) []byte {
				return bindingResponseWith(txID,
					newEndpointAttribute(AttrMappedAddress, *public),
					newEndpointAttribute(AttrChangedAddress, *changed))
			}},
			{build: func(txID TransactionID) []byte {
				return bindingResponseWith(txID, newEndpointAttribute(AttrMappedAddress, *public))
			}},
		},
	}

	result, err := runClassicDiscovery(tr, server, ExactNAT, Config{})
	require.NoError(t, err)
	assert.Equal(t, Success, result.QueryError)
	assert.Equal(t, FullCone, result.NATType)
}

func TestClassicDiscoverySymmetric(t *testing.T) {
	server := mustEndpoint(t, "198.51.100.1", 3478)
	local := mustEndpoint(t, "203.0.113.5", 4242)
	public := mustEndpoint(t, "203.0.113.9", 55001)
	changed := mustEndpoint(t, "198.51.100.2", 3479)
	differentMapping := mustEndpoint(t, "203.0.113.9", 55002)

	tr := &scriptedTransport{
		local: local,
		steps: []scriptedStep{
			{build: func(txID TransactionID) []byte {
				return bindingResponseWith(txID,
					newEndpointAttribute(AttrMappedAddress, *public),
					newEndpointAttribute(AttrChangedAddress, *changed))
			}},
			{build: nil}, // S3 timeout
			{build: func(txID TransactionID) []byte {
				return bindingResponseWith(txID, newEndpointAttribute(AttrMappedAddress, *differentMapping))
			}},
		},
	}

	result, err := runClassicDiscovery(tr, server, ExactNAT, Config{})
	require.NoError(t, err)
	assert.Equal(t, Success, result.QueryError)
	assert.Equal(t, Symmetric, result.NATType)
	assert.Nil(t, result.PublicEndpoint)
}

func TestClassicDiscoveryPortRestricted(t *testing.T) {
	server := mustEndpoint(t, "198.51.100.1", 3478)
	local := mustEndpoint(t, "203.0.113.5", 4242)
	public := mustEndpoint(t, "203.0.113.9", 55001)
	changed := mustEndpoint(t, "198.51.100.2", 3479)

	tr := &scriptedTransport{
		local: local,
		steps: []scriptedStep{
			{build: func(txID TransactionID) []byte {
				return bindingResponseWith(txID,
					newEndpointAttribute(AttrMappedAddress, *public),
					newEndpointAttribute(AttrChangedAddress, *changed))
			}},
			{build: nil}, // S3 timeout
			{build: func(txID TransactionID) []byte {
				return bindingResponseWith(txID, newEndpointAttribute(AttrMappedAddress, *public))
			}},
			{build: nil}, // S5 timeout
		},
	}

	result, err := runClassicDiscovery(tr, server, ExactNAT, Config{})
	require.NoError(t, err)
	assert.Equal(t, Success, result.QueryError)
	assert.Equal(t, PortRestricted, result.NATType)
}

func TestClassicDiscoveryRestricted(t *testing.T) {
	server := mustEndpoint(t, "198.51.100.1", 3478)
	local := mustEndpoint(t, "203.0.113.5", 4242)
	public := mustEndpoint(t, "203.0.113.9", 55001)
	changed := mustEndpoint(t, "198.51.100.2", 3479)

	tr := &scriptedTransport{
		local: local,
		steps: []scriptedStep{
			{build: func(txID TransactionID) []byte {
				return bindingResponseWith(txID,
					newEndpointAttribute(AttrMappedAddress, *public),
					newEndpointAttribute(AttrChangedAddress, *changed))
			}},
			{build: nil}, // S3 timeout
			{build: func(txID TransactionID) []byte {
				return bindingResponseWith(txID, newEndpointAttribute(AttrMappedAddress, *public))
			}},
			{build: func(txID TransactionID) []byte {
				return bindingResponseWith(txID, newEndpointAttribute(AttrMappedAddress, *public))
			}},
		},
	}

	result, err := runClassicDiscovery(tr, server, ExactNAT, Config{})
	require.NoError(t, err)
	assert.Equal(t, Success, result.QueryError)
	assert.Equal(t, Restricted, result.NATType)
}

func TestClassicDiscoveryServerErrorOnS0(t *testing.T) {
	server := mustEndpoint(t, "198.51.100.1", 3478)
	local := mustEndpoint(t, "203.0.113.5", 4242)

	tr := &scriptedTransport{
		local: local,
		steps: []scriptedStep{
			{build: func(txID TransactionID) []byte {
				return bindingErrorResponseWith(txID, 4, 0, "Bad Request")
			}},
		},
	}

	result, err := runClassicDiscovery(tr, server, ExactNAT, Config{})
	require.NoError(t, err)
	assert.Equal(t, ServerError, result.QueryError)
	assert.Equal(t, 400, result.ServerError)
	assert.Equal(t, "Bad Request", result.ServerErrorPhrase)
}

func TestClassicDiscoveryPublicIPStopsAtS0(t *testing.T) {
	server := mustEndpoint(t, "198.51.100.1", 3478)
	local := mustEndpoint(t, "203.0.113.5", 4242)
	public := mustEndpoint(t, "203.0.113.9", 55001)

	tr := &scriptedTransport{
		local: local,
		steps: []scriptedStep{
			{build: func(txID TransactionID) []byte {
				return bindingResponseWith(txID, newEndpointAttribute(AttrMappedAddress, *public))
			}},
		},
	}

	result, err := runClassicDiscovery(tr, server, PublicIP, Config{})
	require.NoError(t, err)
	assert.Equal(t, Success, result.QueryError)
	require.NotNil(t, result.PublicEndpoint)
	assert.True(t, result.PublicEndpoint.IP.Equal(public.IP))
	assert.Len(t, tr.sent, 1)
}
