package stunnat

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointAttributeRoundTrip(t *testing.T) {
	ep := Endpoint{IP: net.ParseIP("203.0.113.5").To4(), Port: 54321}
	attr := newEndpointAttribute(AttrMappedAddress, ep)

	c := newWriteCursor(8)
	attr.(*endpointAttribute).encodeBody(c)

	decoded, known, err := decodeAttributeBody(AttrMappedAddress, c.bytes(), messageContext{})
	require.NoError(t, err)
	require.True(t, known)

	got := decoded.(*endpointAttribute)
	assert.True(t, got.Endpoint.IP.Equal(ep.IP))
	assert.Equal(t, ep.Port, got.Endpoint.Port)
}

func TestXorMappedAddressRoundTripIPv4(t *testing.T) {
	txID := TransactionID{}
	copy(txID[:], []byte{0x21, 0x12, 0xA4, 0x42, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})

	ep := Endpoint{IP: net.ParseIP("198.51.100.9").To4(), Port: 12345}
	attr := newXorMappedAddressAttribute(ep)

	c := newWriteCursor(8)
	attr.encodeBody(c, txID)

	decoded, err := decodeXorMappedAddress(c.bytes(), messageContext{transactionID: txID})
	require.NoError(t, err)

	got := decoded.(*xorMappedAddressAttribute)
	assert.True(t, got.Endpoint.IP.Equal(ep.IP))
	assert.Equal(t, ep.Port, got.Endpoint.Port)
}

func TestXorMappedAddressRoundTripIPv6(t *testing.T) {
	txID := TransactionID{}
	copy(txID[:], []byte{0x21, 0x12, 0xA4, 0x42, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})

	ep := Endpoint{IP: net.ParseIP("2001:db8::1"), Port: 443}
	attr := newXorMappedAddressAttribute(ep)

	c := newWriteCursor(20)
	attr.encodeBody(c, txID)

	decoded, err := decodeXorMappedAddress(c.bytes(), messageContext{transactionID: txID})
	require.NoError(t, err)

	got := decoded.(*xorMappedAddressAttribute)
	assert.True(t, got.Endpoint.IP.Equal(ep.IP))
	assert.Equal(t, ep.Port, got.Endpoint.Port)
}

func TestChangeRequestRoundTrip(t *testing.T) {
	attr := newChangeRequestAttribute(true, false)
	c := newWriteCursor(4)
	attr.(*changeRequestAttribute).encodeBody(c)

	decoded, known, err := decodeAttributeBody(AttrChangeRequest, c.bytes(), messageContext{})
	require.NoError(t, err)
	require.True(t, known)

	got := decoded.(*changeRequestAttribute)
	assert.True(t, got.ChangeIP)
	assert.False(t, got.ChangePort)
}

func TestErrorCodeRoundTrip(t *testing.T) {
	attr := newErrorCodeAttribute(4, 20, "Unknown Attribute")
	c := newWriteCursor(16)
	attr.(*errorCodeAttribute).encodeBody(c)

	decoded, known, err := decodeAttributeBody(AttrErrorCode, c.bytes(), messageContext{})
	require.NoError(t, err)
	require.True(t, known)

	got := decoded.(*errorCodeAttribute)
	assert.Equal(t, 420, got.Code())
	assert.Equal(t, "Unknown Attribute", got.Phrase)
}

func TestErrorCodeRejectsOutOfRangeClass(t *testing.T) {
	c := newWriteCursor(8)
	c.writeUint16(0)
	c.writeUint8(0x09) // class 1, out of the 3..6 range
	c.writeUint8(0)
	_, err := decodeErrorCode(c.bytes(), messageContext{})
	assert.Error(t, err)
}

func TestDecodeAttributeBodyUnknownTypeReturnsFalse(t *testing.T) {
	attr, known, err := decodeAttributeBody(AttributeType(0x9999), []byte{1, 2, 3, 4}, messageContext{})
	require.NoError(t, err)
	assert.False(t, known)
	assert.Nil(t, attr)
}
