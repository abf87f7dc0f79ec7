package stunnat

import (
	"crypto/rand"
	"fmt"
	"net"
)

// magicCookie is the fixed value that marks a transaction id as belonging to
// the RFC 5780 behavior-discovery procedure. It lives inside the 16-octet
// transaction id itself, not in a separate header field.
const magicCookie uint32 = 0x2112A442

var magicCookieBytes = [4]byte{0x21, 0x12, 0xA4, 0x42}

// TransactionID is the 16-octet opaque value carried by every STUN message
// in a discovery run. Equality is byte-wise.
type TransactionID [16]byte

// newClassicTransactionID generates a fully random id, per RFC 3489.
func newClassicTransactionID() (TransactionID, error) {
	var id TransactionID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("stunnat: generating transaction id: %w", err)
	}
	return id, nil
}

// newBehaviorTransactionID fixes the leading 4 octets to the magic cookie
// and randomizes the remaining 12, per RFC 5780.
func newBehaviorTransactionID() (TransactionID, error) {
	var id TransactionID
	copy(id[:4], magicCookieBytes[:])
	if _, err := rand.Read(id[4:]); err != nil {
		return id, fmt.Errorf("stunnat: generating transaction id: %w", err)
	}
	return id, nil
}

// Endpoint is a transport address: an IP address plus a port. It is the
// wire-level analogue of the STUN "endpoint body" described in spec §3.
type Endpoint = net.UDPAddr

func endpointEqual(a, b *Endpoint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

// MessageType is one of the 16-bit STUN message type values this core
// understands.
type MessageType uint16

const (
	BindingRequest       MessageType = 0x0001
	BindingResponse      MessageType = 0x0101
	BindingErrorResponse MessageType = 0x0111

	// Preserved for decoding completeness; this core never issues a
	// Shared-Secret request and treats any reply carrying one as an
	// unexpected message type.
	SharedSecretRequest       MessageType = 0x0002
	SharedSecretResponse      MessageType = 0x0102
	SharedSecretErrorResponse MessageType = 0x0112
)

func (t MessageType) String() string {
	switch t {
	case BindingRequest:
		return "BindingRequest"
	case BindingResponse:
		return "BindingResponse"
	case BindingErrorResponse:
		return "BindingErrorResponse"
	case SharedSecretRequest:
		return "SharedSecretRequest"
	case SharedSecretResponse:
		return "SharedSecretResponse"
	case SharedSecretErrorResponse:
		return "SharedSecretErrorResponse"
	default:
		return fmt.Sprintf("MessageType(0x%04x)", uint16(t))
	}
}

// NATType is the legacy RFC 3489 verdict.
type NATType int

const (
	Unspecified NATType = iota
	OpenInternet
	FullCone
	Restricted
	PortRestricted
	Symmetric
	SymmetricUDPFirewall
)

func (n NATType) String() string {
	switch n {
	case Unspecified:
		return "Unspecified"
	case OpenInternet:
		return "OpenInternet"
	case FullCone:
		return "FullCone"
	case Restricted:
		return "Restricted"
	case PortRestricted:
		return "PortRestricted"
	case Symmetric:
		return "Symmetric"
	case SymmetricUDPFirewall:
		return "SymmetricUDPFirewall"
	default:
		return "Unspecified"
	}
}

// MappingBehavior is the RFC 5780 mapping-behavior verdict.
type MappingBehavior int

const (
	MappingUnspecified MappingBehavior = iota
	NoMapping
	MappingEndpointIndependent
	MappingAddressDependent
	MappingAddressAndPortDependent
)

func (m MappingBehavior) String() string {
	switch m {
	case NoMapping:
		return "NoMapping"
	case MappingEndpointIndependent:
		return "EndpointIndependent"
	case MappingAddressDependent:
		return "AddressDependent"
	case MappingAddressAndPortDependent:
		return "AddressAndPortDependent"
	default:
		return "Unspecified"
	}
}

// FilteringBehavior is the RFC 5780 filtering-behavior verdict.
type FilteringBehavior int

const (
	FilteringUnspecified FilteringBehavior = iota
	FilteringEndpointIndependent
	FilteringAddressDependent
	FilteringAddressAndPortDependent
)

func (f FilteringBehavior) String() string {
	switch f {
	case FilteringEndpointIndependent:
		return "EndpointIndependent"
	case FilteringAddressDependent:
		return "AddressDependent"
	case FilteringAddressAndPortDependent:
		return "AddressAndPortDependent"
	default:
		return "Unspecified"
	}
}

// QueryError classifies the outcome of a discovery run. Success coexists
// with a non-Unspecified NATType for a full discovery, or with only
// PublicEndpoint set for a PublicIP query.
type QueryError int

const (
	Success QueryError = iota
	ServerError
	BadResponse
	BadTransactionID
	Timeout
	NotSupported
)

func (e QueryError) String() string {
	switch e {
	case Success:
		return "Success"
	case ServerError:
		return "ServerError"
	case BadResponse:
		return "BadResponse"
	case BadTransactionID:
		return "BadTransactionID"
	case Timeout:
		return "Timeout"
	case NotSupported:
		return "NotSupported"
	default:
		return "Unknown"
	}
}

// QueryType selects how much discovery work a Query call performs.
type QueryType int

const (
	// PublicIP stops after learning the public endpoint (classic S1).
	PublicIP QueryType = iota
	// OpenNAT runs the classic procedure through its first CHANGE-REQUEST
	// probe (S2 or S3) and stops before the mapping-stability probe (S4),
	// leaving NATType Unspecified when that probe does not settle it. Under
	// RFC 5780 it runs only the mapping test: NoMapping reports
	// OpenInternet, any other mapping leaves NATType Unspecified.
	OpenNAT
	// ExactNAT runs the full state machine to a terminal NAT type.
	ExactNAT
)

// DiscoveryVariant selects which RFC procedure a Query call runs.
type DiscoveryVariant int

const (
	Rfc3489 DiscoveryVariant = iota
	Rfc5780
)

// QueryResult is the outcome of one discovery run.
type QueryResult struct {
	QueryType         QueryType
	DiscoveryVariant  DiscoveryVariant
	QueryError        QueryError
	ServerEndpoint    *Endpoint
	LocalEndpoint     *Endpoint
	PublicEndpoint    *Endpoint
	NATType           NATType
	ServerError       int    // composite class*100+number, valid iff QueryError == ServerError
	ServerErrorPhrase string // valid iff QueryError == ServerError
	MappingBehavior   MappingBehavior
	FilteringBehavior FilteringBehavior
}
