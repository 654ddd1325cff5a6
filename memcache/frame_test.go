package memcache

import (
	. "gopkg.in/check.v1"
)

type FrameSuite struct{}

var _ = Suite(&FrameSuite{})

// Pinned to spec.md §8 scenario 1: the exact byte sequence a bare GET for
// "Hello" must produce.
func (s *FrameSuite) TestEncodeRequestGetHello(c *C) {
	buf := EncodeRequest(OpGet, 0, 0, 0, nil, []byte("Hello"), nil)

	expected := []byte{
		0x80, 0x00, 0x00, 0x05,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x05,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x48, 0x65, 0x6c, 0x6c, 0x6f,
	}
	c.Assert(buf, DeepEquals, expected)
}

func (s *FrameSuite) TestEncodeRequestRoundTripsExtrasKeyValue(c *C) {
	buf := EncodeRequest(
		OpSet, 42, 7, 0xdecafbad,
		[]byte{0xde, 0xad, 0xbe, 0xef}, []byte("k"), []byte("v"))

	c.Assert(len(buf), Equals, headerLength+4+1+1)
	c.Assert(buf[0], Equals, reqMagicByte)
	c.Assert(buf[1], Equals, byte(OpSet))
	c.Assert(buf[4], Equals, byte(4)) // extras length
	c.Assert(buf[6:8], DeepEquals, []byte{0x00, 0x07}) // vbucket
	c.Assert(buf[headerLength:headerLength+4], DeepEquals, []byte{0xde, 0xad, 0xbe, 0xef})
	c.Assert(string(buf[headerLength+4:headerLength+5]), Equals, "k")
	c.Assert(string(buf[headerLength+5:]), Equals, "v")
}

func (s *FrameSuite) TestDecodeHeaderRejectsWrongMagic(c *C) {
	buf := make([]byte, headerLength)
	buf[0] = reqMagicByte // request magic, not a response
	_, err := decodeHeader(buf)
	c.Assert(err, NotNil)
}

func (s *FrameSuite) TestDecodeHeaderRejectsWrongLength(c *C) {
	_, err := decodeHeader(make([]byte, 10))
	c.Assert(err, NotNil)
}

func (s *FrameSuite) TestPayloadLengthRejectsShortTotalBody(c *C) {
	h := ResponseHeader{KeyLength: 5, ExtrasLength: 4, TotalBodyLength: 3}
	_, err := h.PayloadLength()
	c.Assert(err, NotNil)
}

func (s *FrameSuite) TestDecodeHeaderRoundTripsFields(c *C) {
	buf := EncodeRequest(OpGet, 99, 3, 0x1122334455667788, nil, []byte("k"), nil)
	buf[0] = respMagicByte
	h, err := decodeHeader(buf[:headerLength])
	c.Assert(err, IsNil)
	c.Assert(h.OpCode, Equals, OpGet)
	c.Assert(h.KeyLength, Equals, uint16(1))
	c.Assert(h.Opaque, Equals, uint32(99))
	c.Assert(h.CAS, Equals, uint64(0x1122334455667788))
}
