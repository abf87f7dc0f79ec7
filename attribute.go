package stunnat

import (
	"fmt"
)

// AttributeType is the 16-bit STUN attribute type tag.
type AttributeType uint16

const (
	AttrMappedAddress     AttributeType = 0x0001
	AttrResponseAddress   AttributeType = 0x0002
	AttrChangeRequest     AttributeType = 0x0003
	AttrSourceAddress     AttributeType = 0x0004
	AttrChangedAddress    AttributeType = 0x0005
	AttrUsername          AttributeType = 0x0006
	AttrPassword          AttributeType = 0x0007
	AttrMessageIntegrity  AttributeType = 0x0008
	AttrErrorCode         AttributeType = 0x0009
	AttrUnknownAttributes AttributeType = 0x000A
	AttrReflectedFrom     AttributeType = 0x000B
	AttrXorMappedAddress  AttributeType = 0x0020
	AttrSoftware          AttributeType = 0x8022
	AttrAlternateServer   AttributeType = 0x8023
	AttrFingerprint       AttributeType = 0x8028
	AttrOtherAddress      AttributeType = 0x802B
	AttrResponseOrigin    AttributeType = 0x802C
)

// messageContext carries the state an attribute's body codec needs beyond
// its own bytes. Only XOR-MAPPED-ADDRESS currently needs it (the
// transaction id is its XOR key).
type messageContext struct {
	transactionID TransactionID
}

// Attribute is the capability set every attribute variant implements:
// identify itself and describe itself for logging/debugging. Decoding is
// performed by the per-type decode function registered in attributeDecoders;
// encoding is performed by bodyEncoder, except for XOR-MAPPED-ADDRESS whose
// body depends on the message's transaction id (see message.go's encode).
type Attribute interface {
	Type() AttributeType
	String() string
}

// bodyEncoder is implemented by every attribute whose body does not depend
// on message_context. XOR-MAPPED-ADDRESS is the one exception, handled
// directly by Message.encode.
type bodyEncoder interface {
	encodeBody(c *cursor)
}

type attributeDecoder func(body []byte, ctx messageContext) (Attribute, error)

var attributeDecoders = map[AttributeType]attributeDecoder{
	AttrMappedAddress:     decodeEndpointAttribute(AttrMappedAddress, false),
	AttrResponseAddress:   decodeEndpointAttribute(AttrResponseAddress, false),
	AttrSourceAddress:     decodeEndpointAttribute(AttrSourceAddress, false),
	AttrChangedAddress:    decodeEndpointAttribute(AttrChangedAddress, false),
	AttrReflectedFrom:     decodeEndpointAttribute(AttrReflectedFrom, false),
	AttrAlternateServer:   decodeEndpointAttribute(AttrAlternateServer, false),
	AttrOtherAddress:      decodeEndpointAttribute(AttrOtherAddress, false),
	AttrResponseOrigin:    decodeEndpointAttribute(AttrResponseOrigin, false),
	AttrXorMappedAddress:  decodeXorMappedAddress,
	AttrChangeRequest:     decodeChangeRequest,
	AttrUsername:          decodeTextAttribute(AttrUsername),
	AttrPassword:          decodeTextAttribute(AttrPassword),
	AttrSoftware:          decodeTextAttribute(AttrSoftware),
	AttrMessageIntegrity:  decodeOpaqueAttribute(AttrMessageIntegrity),
	AttrFingerprint:       decodeOpaqueAttribute(AttrFingerprint),
	AttrErrorCode:         decodeErrorCode,
	AttrUnknownAttributes: decodeUnknownAttributes,
}

// ---- endpoint-bodied attributes (MAPPED-ADDRESS and its siblings) ----

// endpointAttribute is the shared representation for every attribute whose
// body is a plain (non-XOR) endpoint.
type endpointAttribute struct {
	typ      AttributeType
	Endpoint Endpoint
}

func (a *endpointAttribute) Type() AttributeType { return a.typ }

func (a *endpointAttribute) String() string {
	return fmt.Sprintf("%s{%s}", attributeName(a.typ), a.Endpoint.String())
}

func (a *endpointAttribute) encodeBody(c *cursor) {
	encodeEndpointBody(c, &a.Endpoint, nil)
}

func decodeEndpointAttribute(typ AttributeType, _ bool) attributeDecoder {
	return func(body []byte, _ messageContext) (Attribute, error) {
		ep, err := decodeEndpointBody(body, nil)
		if err != nil {
			return nil, fmt.Errorf("stunnat: %s: %w", attributeName(typ), err)
		}
		return &endpointAttribute{typ: typ, Endpoint: *ep}, nil
	}
}

func newEndpointAttribute(typ AttributeType, ep Endpoint) Attribute {
	return &endpointAttribute{typ: typ, Endpoint: ep}
}

// ---- XOR-MAPPED-ADDRESS ----

type xorMappedAddressAttribute struct {
	Endpoint Endpoint
}

func (a *xorMappedAddressAttribute) Type() AttributeType { return AttrXorMappedAddress }

func (a *xorMappedAddressAttribute) String() string {
	return fmt.Sprintf("XOR-MAPPED-ADDRESS{%s}", a.Endpoint.String())
}

func (a *xorMappedAddressAttribute) encodeBody(c *cursor, txID TransactionID) {
	encodeEndpointBody(c, &a.Endpoint, &txID)
}

func decodeXorMappedAddress(body []byte, ctx messageContext) (Attribute, error) {
	ep, err := decodeEndpointBody(body, &ctx.transactionID)
	if err != nil {
		return nil, fmt.Errorf("stunnat: XOR-MAPPED-ADDRESS: %w", err)
	}
	return &xorMappedAddressAttribute{Endpoint: *ep}, nil
}

func newXorMappedAddressAttribute(ep Endpoint) *xorMappedAddressAttribute {
	return &xorMappedAddressAttribute{Endpoint: ep}
}

// ---- endpoint body wire format shared by all endpoint attributes ----

const (
	familyIPv4 = 0x01
	familyIPv6 = 0x02
)

func decodeEndpointBody(body []byte, xorKey *TransactionID) (*Endpoint, error) {
	c := newReadCursor(body)
	if _, err := c.readUint8(); err != nil { // reserved
		return nil, err
	}
	family, err := c.readUint8()
	if err != nil {
		return nil, err
	}
	port, err := c.readUint16()
	if err != nil {
		return nil, err
	}

	var addrLen int
	switch family {
	case familyIPv4:
		addrLen = 4
	case familyIPv6:
		addrLen = 16
	default:
		return nil, fmt.Errorf("unsupported address family 0x%02x", family)
	}
	addr, err := c.readBytes(addrLen)
	if err != nil {
		return nil, err
	}

	if xorKey != nil {
		port ^= uint16(magicCookie >> 16)
		for i := range addr {
			addr[i] ^= xorKey[i]
		}
	}

	return &Endpoint{IP: addr, Port: int(port)}, nil
}

func encodeEndpointBody(c *cursor, ep *Endpoint, xorKey *TransactionID) {
	ip4 := ep.IP.To4()
	family := uint8(familyIPv4)
	addr := []byte(ip4)
	if ip4 == nil {
		family = familyIPv6
		addr = []byte(ep.IP.To16())
	}

	port := uint16(ep.Port)
	encoded := make([]byte, len(addr))
	copy(encoded, addr)
	if xorKey != nil {
		port ^= uint16(magicCookie >> 16)
		for i := range encoded {
			encoded[i] ^= xorKey[i]
		}
	}

	c.writeUint8(0) // reserved
	c.writeUint8(family)
	c.writeUint16(port)
	c.writeRaw(encoded)
}

// ---- CHANGE-REQUEST ----

type changeRequestAttribute struct {
	ChangeIP   bool
	ChangePort bool
}

func (a *changeRequestAttribute) Type() AttributeType { return AttrChangeRequest }

func (a *changeRequestAttribute) String() string {
	return fmt.Sprintf("CHANGE-REQUEST{ip=%t,port=%t}", a.ChangeIP, a.ChangePort)
}

func (a *changeRequestAttribute) encodeBody(c *cursor) {
	var flags uint32
	if a.ChangeIP {
		flags |= 0x04
	}
	if a.ChangePort {
		flags |= 0x02
	}
	c.writeUint32(flags)
}

func decodeChangeRequest(body []byte, _ messageContext) (Attribute, error) {
	c := newReadCursor(body)
	flags, err := c.readUint32()
	if err != nil {
		return nil, fmt.Errorf("stunnat: CHANGE-REQUEST: %w", err)
	}
	return &changeRequestAttribute{
		ChangeIP:   flags&0x04 != 0,
		ChangePort: flags&0x02 != 0,
	}, nil
}

func newChangeRequestAttribute(changeIP, changePort bool) Attribute {
	return &changeRequestAttribute{ChangeIP: changeIP, ChangePort: changePort}
}

// ---- text-bodied attributes (USERNAME, PASSWORD, SOFTWARE) ----

type textAttribute struct {
	typ  AttributeType
	Text string
}

func (a *textAttribute) Type() AttributeType { return a.typ }
func (a *textAttribute) String() string      { return fmt.Sprintf("%s{%q}", attributeName(a.typ), a.Text) }

func (a *textAttribute) encodeBody(c *cursor) {
	c.writeRaw([]byte(a.Text))
}

func decodeTextAttribute(typ AttributeType) attributeDecoder {
	return func(body []byte, _ messageContext) (Attribute, error) {
		return &textAttribute{typ: typ, Text: string(body)}, nil
	}
}

// ---- opaque attributes (MESSAGE-INTEGRITY, FINGERPRINT) ----

type opaqueAttribute struct {
	typ AttributeType
	Raw []byte
}

func (a *opaqueAttribute) Type() AttributeType { return a.typ }
func (a *opaqueAttribute) String() string {
	return fmt.Sprintf("%s{%d bytes}", attributeName(a.typ), len(a.Raw))
}

func (a *opaqueAttribute) encodeBody(c *cursor) {
	c.writeRaw(a.Raw)
}

func decodeOpaqueAttribute(typ AttributeType) attributeDecoder {
	return func(body []byte, _ messageContext) (Attribute, error) {
		raw := make([]byte, len(body))
		copy(raw, body)
		return &opaqueAttribute{typ: typ, Raw: raw}, nil
	}
}

// ---- ERROR-CODE ----

type errorCodeAttribute struct {
	Class  int
	Number int
	Phrase string
}

func (a *errorCodeAttribute) Type() AttributeType { return AttrErrorCode }

func (a *errorCodeAttribute) Code() int { return a.Class*100 + a.Number }

func (a *errorCodeAttribute) String() string {
	return fmt.Sprintf("ERROR-CODE{%d %s}", a.Code(), a.Phrase)
}

func (a *errorCodeAttribute) encodeBody(c *cursor) {
	c.writeUint16(0) // reserved
	c.writeUint8(uint8(a.Class))
	c.writeUint8(uint8(a.Number))
	c.writeRaw([]byte(a.Phrase))
}

func decodeErrorCode(body []byte, _ messageContext) (Attribute, error) {
	c := newReadCursor(body)
	if _, err := c.readUint16(); err != nil { // reserved
		return nil, fmt.Errorf("stunnat: ERROR-CODE: %w", err)
	}
	classByte, err := c.readUint8()
	if err != nil {
		return nil, fmt.Errorf("stunnat: ERROR-CODE: %w", err)
	}
	number, err := c.readUint8()
	if err != nil {
		return nil, fmt.Errorf("stunnat: ERROR-CODE: %w", err)
	}
	class := int(classByte & 0x07)
	if class < 3 || class > 6 {
		return nil, fmt.Errorf("stunnat: ERROR-CODE: class %d out of range 3..6", class)
	}
	phrase, err := c.readBytes(c.remaining())
	if err != nil {
		return nil, fmt.Errorf("stunnat: ERROR-CODE: %w", err)
	}
	return &errorCodeAttribute{Class: class, Number: int(number), Phrase: string(phrase)}, nil
}

func newErrorCodeAttribute(class, number int, phrase string) Attribute {
	return &errorCodeAttribute{Class: class, Number: number, Phrase: phrase}
}

// ---- UNKNOWN-ATTRIBUTES ----

type unknownAttributesAttribute struct {
	Types []uint16
}

func (a *unknownAttributesAttribute) Type() AttributeType { return AttrUnknownAttributes }

func (a *unknownAttributesAttribute) String() string {
	return fmt.Sprintf("UNKNOWN-ATTRIBUTES{%v}", a.Types)
}

func (a *unknownAttributesAttribute) encodeBody(c *cursor) {
	for _, t := range a.Types {
		c.writeUint16(t)
	}
}

func decodeUnknownAttributes(body []byte, _ messageContext) (Attribute, error) {
	c := newReadCursor(body)
	var types []uint16
	for c.remaining() >= 2 {
		t, err := c.readUint16()
		if err != nil {
			return nil, fmt.Errorf("stunnat: UNKNOWN-ATTRIBUTES: %w", err)
		}
		types = append(types, t)
	}
	return &unknownAttributesAttribute{Types: types}, nil
}

// ---- registry lookup helpers ----

func attributeName(typ AttributeType) string {
	switch typ {
	case AttrMappedAddress:
		return "MAPPED-ADDRESS"
	case AttrResponseAddress:
		return "RESPONSE-ADDRESS"
	case AttrChangeRequest:
		return "CHANGE-REQUEST"
	case AttrSourceAddress:
		return "SOURCE-ADDRESS"
	case AttrChangedAddress:
		return "CHANGED-ADDRESS"
	case AttrUsername:
		return "USERNAME"
	case AttrPassword:
		return "PASSWORD"
	case AttrMessageIntegrity:
		return "MESSAGE-INTEGRITY"
	case AttrErrorCode:
		return "ERROR-CODE"
	case AttrUnknownAttributes:
		return "UNKNOWN-ATTRIBUTES"
	case AttrReflectedFrom:
		return "REFLECTED-FROM"
	case AttrXorMappedAddress:
		return "XOR-MAPPED-ADDRESS"
	case AttrSoftware:
		return "SOFTWARE"
	case AttrAlternateServer:
		return "ALTERNATE-SERVER"
	case AttrFingerprint:
		return "FINGERPRINT"
	case AttrOtherAddress:
		return "OTHER-ADDRESS"
	case AttrResponseOrigin:
		return "RESPONSE-ORIGIN"
	default:
		return fmt.Sprintf("Attribute(0x%04x)", uint16(typ))
	}
}

// decodeAttributeBody looks up the registered decoder for typ and invokes
// it; unrecognized types are the caller's responsibility to skip (see
// Message.decode).
func decodeAttributeBody(typ AttributeType, body []byte, ctx messageContext) (Attribute, bool, error) {
	decode, ok := attributeDecoders[typ]
	if !ok {
		return nil, false, nil
	}
	attr, err := decode(body, ctx)
	if err != nil {
		return nil, true, err
	}
	return attr, true, nil
}
