package stunnat

import (
	"fmt"
)

const messageHeaderSize = 20

// Message is a STUN message: a type, a transaction id, and an ordered
// attribute list. It is mutable only during construction — once encode has
// produced wire bytes, treat the Message as read-only.
type Message struct {
	Type          MessageType
	TransactionID TransactionID
	Attributes    []Attribute
}

// NewMessage builds an empty message of the given type over id.
func NewMessage(typ MessageType, id TransactionID) *Message {
	return &Message{Type: typ, TransactionID: id}
}

// Add appends an attribute to the message, preserving encode order.
func (m *Message) Add(attr Attribute) {
	m.Attributes = append(m.Attributes, attr)
}

// Get returns the first attribute of the given type, or nil.
func (m *Message) Get(typ AttributeType) Attribute {
	for _, a := range m.Attributes {
		if a.Type() == typ {
			return a
		}
	}
	return nil
}

// encode serializes the message: header, then each attribute's (type,
// length-placeholder, body), then a patch of the header's body_length field
// with the total attribute-section size.
func (m *Message) encode() ([]byte, error) {
	c := newWriteCursor(messageHeaderSize)
	c.writeUint16(uint16(m.Type))
	c.writeUint16(0) // body_length placeholder, patched below
	c.writeRaw(m.TransactionID[:])

	bodyStart := c.pos
	for _, attr := range m.Attributes {
		c.writeUint16(uint16(attr.Type()))
		lengthPos := c.pos
		c.writeUint16(0) // attr_length placeholder

		attrBodyStart := c.pos
		if err := encodeAttributeBody(attr, c, m.TransactionID); err != nil {
			return nil, fmt.Errorf("stunnat: encoding %s: %w", attr.String(), err)
		}
		attrLen := c.pos - attrBodyStart

		savedPos := c.pos
		if err := c.seek(lengthPos); err != nil {
			return nil, err
		}
		c.writeUint16(uint16(attrLen))
		if err := c.seek(savedPos); err != nil {
			return nil, err
		}
	}
	bodyLen := c.pos - bodyStart

	savedPos := c.pos
	if err := c.seek(2); err != nil {
		return nil, err
	}
	c.writeUint16(uint16(bodyLen))
	if err := c.seek(savedPos); err != nil {
		return nil, err
	}

	return c.bytes(), nil
}

func encodeAttributeBody(attr Attribute, c *cursor, txID TransactionID) error {
	if xm, ok := attr.(*xorMappedAddressAttribute); ok {
		xm.encodeBody(c, txID)
		return nil
	}
	be, ok := attr.(bodyEncoder)
	if !ok {
		return fmt.Errorf("attribute %T does not implement an encoder", attr)
	}
	be.encodeBody(c)
	return nil
}

// decodeMessage parses a wire buffer into a Message. It fails on truncation,
// on a body whose declared length doesn't line up with the buffer, or on
// any inner attribute decode failure. Unrecognized attribute types are
// skipped by advancing past their declared length; decoding continues.
func decodeMessage(buf []byte) (*Message, error) {
	if len(buf) < messageHeaderSize {
		return nil, fmt.Errorf("stunnat: message shorter than header (%d bytes)", len(buf))
	}

	c := newReadCursor(buf)
	rawType, err := c.readUint16()
	if err != nil {
		return nil, err
	}
	bodyLen, err := c.readUint16()
	if err != nil {
		return nil, err
	}
	idBytes, err := c.readBytes(16)
	if err != nil {
		return nil, err
	}

	m := &Message{Type: MessageType(rawType)}
	copy(m.TransactionID[:], idBytes)

	wantEnd := messageHeaderSize + int(bodyLen)
	if wantEnd > len(buf) {
		return nil, fmt.Errorf("stunnat: declared body_length %d exceeds buffer (%d bytes available)", bodyLen, len(buf)-messageHeaderSize)
	}

	ctx := messageContext{transactionID: m.TransactionID}

	for c.pos < wantEnd {
		if wantEnd-c.pos < 4 {
			return nil, fmt.Errorf("stunnat: truncated attribute header at offset %d", c.pos)
		}
		rawAttrType, err := c.readUint16()
		if err != nil {
			return nil, err
		}
		attrLen, err := c.readUint16()
		if err != nil {
			return nil, err
		}
		if c.pos+int(attrLen) > wantEnd {
			return nil, fmt.Errorf("stunnat: attribute body (type 0x%04x, length %d) overruns declared message body", rawAttrType, attrLen)
		}

		attrType := AttributeType(rawAttrType)
		body, err := c.readBytes(int(attrLen))
		if err != nil {
			return nil, err
		}

		attr, known, err := decodeAttributeBody(attrType, body, ctx)
		if err != nil {
			return nil, fmt.Errorf("stunnat: decoding %s: %w", attributeName(attrType), err)
		}
		if !known {
			// Unknown-attribute skip policy (spec §3): the cursor has
			// already advanced past the body via readBytes above, so there
			// is nothing further to do but move on.
			continue
		}
		m.Attributes = append(m.Attributes, attr)
	}

	if c.pos != wantEnd {
		return nil, fmt.Errorf("stunnat: attribute section ended at %d, expected %d", c.pos, wantEnd)
	}

	return m, nil
}
