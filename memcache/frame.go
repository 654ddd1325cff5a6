package memcache

import (
	"encoding/binary"

	"github.com/awesomedotnetcore/memcache-driver/errors"
)

// ResponseHeader is the decoded form of the 24-byte binary protocol header,
// laid out per spec.md §3. Multibyte fields are big-endian on the wire.
type ResponseHeader struct {
	Magic           uint8
	OpCode          OpCode
	KeyLength       uint16
	ExtrasLength    uint8
	DataType        uint8
	Status          ResponseStatus // VBucketIdOrStatus field, response side
	TotalBodyLength uint32
	Opaque          uint32
	CAS             uint64
}

// PayloadLength returns the number of value bytes implied by this header,
// i.e. TotalBodyLength minus key and extras. Spec invariant:
// total_body_length >= key_length + extras_length.
func (h *ResponseHeader) PayloadLength() (int, error) {
	n := int(h.TotalBodyLength) - int(h.KeyLength) - int(h.ExtrasLength)
	if n < 0 {
		return 0, errors.Newf(
			"invalid response header: total body length %d shorter than "+
				"key (%d) + extras (%d)",
			h.TotalBodyLength, h.KeyLength, h.ExtrasLength)
	}
	return n, nil
}

// decodeHeader parses a 24-byte big-endian header buffer, as read by
// Transport's receive loop into its pinned header buffer.
func decodeHeader(buf []byte) (ResponseHeader, error) {
	if len(buf) != headerLength {
		return ResponseHeader{}, errors.Newf(
			"invalid header length: %d", len(buf))
	}

	h := ResponseHeader{
		Magic:           buf[0],
		OpCode:          OpCode(buf[1]),
		KeyLength:       binary.BigEndian.Uint16(buf[2:4]),
		ExtrasLength:    buf[4],
		DataType:        buf[5],
		Status:          ResponseStatus(binary.BigEndian.Uint16(buf[6:8])),
		TotalBodyLength: binary.BigEndian.Uint32(buf[8:12]),
		Opaque:          binary.BigEndian.Uint32(buf[12:16]),
		CAS:             binary.BigEndian.Uint64(buf[16:24]),
	}

	if h.Magic != respMagicByte {
		return h, errors.Newf("invalid response magic byte: 0x%x", h.Magic)
	}

	return h, nil
}

// encodeRequestHeader writes a 24-byte request header (magic 0x80, status
// field repurposed as the request's vbucket id) into buf[:24].
func encodeRequestHeader(
	buf []byte,
	opcode OpCode,
	keyLength, extrasLength int,
	vbucket uint16,
	totalBodyLength uint32,
	opaque uint32,
	cas uint64) {

	buf[0] = reqMagicByte
	buf[1] = byte(opcode)
	binary.BigEndian.PutUint16(buf[2:4], uint16(keyLength))
	buf[4] = byte(extrasLength)
	buf[5] = 0 // data type: memcached only defines 0x0
	binary.BigEndian.PutUint16(buf[6:8], vbucket)
	binary.BigEndian.PutUint32(buf[8:12], totalBodyLength)
	binary.BigEndian.PutUint32(buf[12:16], opaque)
	binary.BigEndian.PutUint64(buf[16:24], cas)
}

// EncodeRequest produces a complete binary protocol request buffer:
// header | extras | key | value, per spec.md §4.2's payload ordering. This
// is a pure function -- no I/O -- used both by AggregatingRequest's
// QueryBuffer() implementation and directly by tests constructing the
// exact byte sequences spec.md §8 pins.
func EncodeRequest(
	opcode OpCode,
	opaque uint32,
	vbucket uint16,
	cas uint64,
	extras, key, value []byte) []byte {

	total := len(extras) + len(key) + len(value)
	buf := make([]byte, headerLength+total)

	encodeRequestHeader(
		buf,
		opcode,
		len(key),
		len(extras),
		vbucket,
		uint32(total),
		opaque,
		cas)

	pos := headerLength
	pos += copy(buf[pos:], extras)
	pos += copy(buf[pos:], key)
	copy(buf[pos:], value)

	return buf
}
