// Package message defines the four arbitration messages exchanged between
// mediators and the codecs that frame them for the host-local bus.
//
// Every [Message] is scoped by a resource identifier. A message with a
// non-zero TargetPID is still delivered to every subscriber; recipients
// whose pid differs ignore it.
//
//	SCAN             ask recipients to re-announce their status
//	STATUS           announce preferred/actual access, pressure, broadcast info
//	ACCESS_REQUEST   ask the target to yield so the sender can obtain its preferred access
//	ACCESS_RESPONSE  SUCCESS, ERROR or DENY answer to an ACCESS_REQUEST
//
// Two framed encodings are provided: [JSONCodec] writes one JSON object per
// line, [CBORCodec] writes a sequence of CBOR data items using Core
// Deterministic Encoding. Both can decode a record from the front of a
// buffer that may hold a partial trailing record, which is what a tailing
// reader of an append-only log needs.
package message
