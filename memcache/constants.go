package memcache

//
// Magic bytes
//

const (
	reqMagicByte  uint8 = 0x80
	respMagicByte uint8 = 0x81
)

//
// Response status
//
// NOTE: the teacher package (godropbox/memcache) assigned AuthRequired/
// AuthContinue sequential iota values (8, 9) since it never spoke to an
// authenticated server. This package talks real SASL handshakes, so
// those two are pinned to their actual wire values (0x20, 0x21) instead.

type ResponseStatus uint16

const (
	StatusNoError ResponseStatus = iota
	StatusKeyNotFound
	StatusKeyExists
	StatusValueTooLarge
	StatusInvalidArguments
	StatusItemNotStored
	StatusNonNumericValue
	StatusVBucketBelongsToAnotherServer
)

const (
	StatusAuthRequired ResponseStatus = 0x20
	StatusAuthContinue ResponseStatus = 0x21
)

const (
	StatusUnknownCommand ResponseStatus = 0x81 + iota
	StatusOutOfMemory
	StatusNotSupported
	StatusInternalError
	StatusBusy
	StatusTempFailure
)

// StatusInternalError doubles as the synthetic status used for
// client-generated failures (fail() in spec terms): Transport.dispose,
// submission refusal, and Request.Fail() all report this status since no
// server ever answered.

//
// Command opcodes
//
// This is the full table the binary protocol defines, not just the subset
// spec.md calls out "at minimum" -- a response can arrive for any opcode a
// caller's façade happens to emit, and the frame codec has to be able to
// decode all of them.

type OpCode uint8

const (
	OpGet        OpCode = 0x00
	OpSet        OpCode = 0x01
	OpAdd        OpCode = 0x02
	OpReplace    OpCode = 0x03
	OpDelete     OpCode = 0x04
	OpIncrement  OpCode = 0x05
	OpDecrement  OpCode = 0x06
	OpQuit       OpCode = 0x07
	OpFlush      OpCode = 0x08
	OpGetQ       OpCode = 0x09
	OpNoOp       OpCode = 0x0a
	OpVersion    OpCode = 0x0b
	OpGetK       OpCode = 0x0c
	OpGetKQ      OpCode = 0x0d
	OpAppend     OpCode = 0x0e
	OpPrepend    OpCode = 0x0f
	OpStat       OpCode = 0x10
	OpSetQ       OpCode = 0x11
	OpAddQ       OpCode = 0x12
	OpReplaceQ   OpCode = 0x13
	OpDeleteQ    OpCode = 0x14
	OpIncrementQ OpCode = 0x15
	OpDecrementQ OpCode = 0x16
	OpQuitQ      OpCode = 0x17
	OpFlushQ     OpCode = 0x18
	OpAppendQ    OpCode = 0x19
	OpPrependQ   OpCode = 0x1a
	OpVerbosity  OpCode = 0x1b
	OpTouch      OpCode = 0x1c
	OpGAT        OpCode = 0x1d
	OpGATQ       OpCode = 0x1e

	OpSASLListMechs OpCode = 0x20
	OpSASLAuth      OpCode = 0x21
	OpSASLStep      OpCode = 0x22
)

// quietOpcodes is the set of opcodes whose success path produces no
// response -- a reply only ever arrives for these on failure. Matching
// a response against a quiet opcode's pending entry is a protocol
// violation (see Transport.dequeueToMatch).
var quietOpcodes = map[OpCode]bool{
	OpGetQ:       true,
	OpGetKQ:      true,
	OpSetQ:       true,
	OpAddQ:       true,
	OpReplaceQ:   true,
	OpDeleteQ:    true,
	OpIncrementQ: true,
	OpDecrementQ: true,
	OpQuitQ:      true,
	OpFlushQ:     true,
	OpAppendQ:    true,
	OpPrependQ:   true,
	OpGATQ:       true,
}

func isQuietOpcode(op OpCode) bool {
	return quietOpcodes[op]
}

const (
	headerLength = 24
	maxKeyLength = 250
)
