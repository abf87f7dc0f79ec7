// Package stunnat discovers, over UDP, the public transport address a host
// is reachable at and the behavior of any intervening NAT. It speaks STUN
// (RFC 3489 framing) and drives two independent discovery procedures:
//
//   - the classic binding/change-request procedure (RFC 3489), which yields
//     the legacy cone/symmetric NAT taxonomy, and
//   - the behavior-discovery procedure (RFC 5780), which characterizes
//     mapping behavior and filtering behavior separately and derives a
//     taxonomy from the pair.
//
// Both procedures share one wire codec (cursor.go, attribute.go, message.go)
// and run against a Transport the caller can swap out for tests.
//
// # Deviations from standard STUN
//
// Attribute bodies are not padded to a 4-octet boundary on encode or decode.
// Standard STUN pads every attribute; this implementation deliberately
// reproduces the teacher's unpadded behavior on both sides of the wire, since
// it interoperates with the servers this client has been run against and
// "fixing" it without interop measurement against padded-attribute servers
// would just trade one unverified behavior for another.
//
// The 20-octet message header is type(2) + body_length(2) + transaction
// id(16), with no separate magic-cookie field: the classic procedure fills
// all 16 transaction-id octets with random bytes, while the behavior
// procedure fixes the leading 4 octets of that same field to 0x2112A442.
package stunnat
