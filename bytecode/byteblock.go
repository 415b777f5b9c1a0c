package bytecode

// OpCode is a one-byte instruction tag. Operands follow inline in the byte
// stream: one byte for constant-pool indices and local slots, two
// big-endian bytes for jump offsets.
type OpCode byte

const (
	OpPushConstant OpCode = iota
	OpPop
	OpNull
	OpTrue
	OpFalse
	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSub
	OpDiv
	OpMul
	OpNegate
	OpNot
	OpJmp
	OpJz
	OpLoop
	OpDefineGlobal
	OpGetGlobal
	OpSetGlobal
	OpGetLocal
	OpSetLocal
	OpPrint
	OpReturn
)

var opNames = [...]string{
	OpPushConstant: "OP_PUSH_CONSTANT",
	OpPop:          "OP_POP",
	OpNull:         "OP_NULL",
	OpTrue:         "OP_TRUE",
	OpFalse:        "OP_FALSE",
	OpEqual:        "OP_EQUAL",
	OpGreater:      "OP_GREATER",
	OpLess:         "OP_LESS",
	OpAdd:          "OP_ADD",
	OpSub:          "OP_SUB",
	OpDiv:          "OP_DIV",
	OpMul:          "OP_MUL",
	OpNegate:       "OP_NEGATE",
	OpNot:          "OP_NOT",
	OpJmp:          "OP_JMP",
	OpJz:           "OP_JZ",
	OpLoop:         "OP_LOOP",
	OpDefineGlobal: "OP_DEFINE_GLOBAL",
	OpGetGlobal:    "OP_GET_GLOBAL",
	OpSetGlobal:    "OP_SET_GLOBAL",
	OpGetLocal:     "OP_GET_LOCAL",
	OpSetLocal:     "OP_SET_LOCAL",
	OpPrint:        "OP_PRINT",
	OpReturn:       "OP_RETURN",
}

func (op OpCode) String() string {
	if int(op) >= len(opNames) {
		return "OP_UNKNOWN"
	}
	return opNames[op]
}

// MaxConstants is the hard limit on constants per block; pool indices are a
// single byte.
const MaxConstants = 256

// ByteBlock is a function's compiled code: the byte stream, one source line
// per byte for diagnostics, the constant pool, and the full source split
// into lines for runtime error rendering.
//
// Invariant: len(Bytes) == len(Lines) at all times. Appends are strictly
// monotonic; nothing ever rewrites the stream except jump patching, which
// only touches operand bytes already written.
type ByteBlock struct {
	Bytes       []byte
	Lines       []uint32
	Constants   []Value
	SourceLines []string
}

// NewByteBlock returns a block retaining the given source lines.
func NewByteBlock(sourceLines []string) ByteBlock {
	return ByteBlock{SourceLines: sourceLines}
}

// Push appends one byte to the stream, recording the source line it was
// compiled from.
func (b *ByteBlock) Push(byt byte, line uint32) {
	b.Bytes = append(b.Bytes, byt)
	b.Lines = append(b.Lines, line)
}

// AddConstant appends a value to the constant pool and returns its index.
// The caller enforces the MaxConstants limit; the pool itself just grows.
func (b *ByteBlock) AddConstant(v Value) int {
	b.Constants = append(b.Constants, v)
	return len(b.Constants) - 1
}
