package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DisassembleBlock dumps every instruction in the block to w, labeled by
// name.
func DisassembleBlock(w io.Writer, block *ByteBlock, name string) {
	fmt.Fprintf(w, "-- %s --\n", name)

	for offset := 0; offset < len(block.Bytes); {
		offset = DisassembleInstruction(w, block, offset)
	}
}

// DisassembleInstruction dumps the instruction at offset and returns the
// offset of the next one. The line column shows `|` when the line repeats
// the previous instruction's.
func DisassembleInstruction(w io.Writer, block *ByteBlock, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)

	if offset > 0 && block.Lines[offset] == block.Lines[offset-1] {
		fmt.Fprintf(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", block.Lines[offset])
	}

	op := OpCode(block.Bytes[offset])
	switch op {
	case OpPushConstant, OpDefineGlobal, OpGetGlobal, OpSetGlobal:
		return constantInstruction(w, op.String(), block, offset)
	case OpGetLocal, OpSetLocal:
		return byteInstruction(w, op.String(), block, offset)
	case OpJmp, OpJz:
		return jumpInstruction(w, op.String(), 1, block, offset)
	case OpLoop:
		return jumpInstruction(w, op.String(), -1, block, offset)
	case OpPop, OpNull, OpTrue, OpFalse, OpEqual, OpGreater, OpLess,
		OpAdd, OpSub, OpDiv, OpMul, OpNegate, OpNot, OpPrint, OpReturn:
		return simpleInstruction(w, op.String(), offset)
	default:
		fmt.Fprintf(w, "unknown opcode %d\n", byte(op))
		return offset + 1
	}
}

func simpleInstruction(w io.Writer, name string, offset int) int {
	fmt.Fprintf(w, "%s\n", name)
	return offset + 1
}

func constantInstruction(w io.Writer, name string, block *ByteBlock, offset int) int {
	constant := block.Bytes[offset+1]
	fmt.Fprintf(w, "%-16s %4d '%s'\n", name, constant, block.Constants[constant])
	return offset + 2
}

func byteInstruction(w io.Writer, name string, block *ByteBlock, offset int) int {
	slot := block.Bytes[offset+1]
	fmt.Fprintf(w, "%-16s %4d\n", name, slot)
	return offset + 2
}

func jumpInstruction(w io.Writer, name string, sign int, block *ByteBlock, offset int) int {
	jump := int(binary.BigEndian.Uint16(block.Bytes[offset+1 : offset+3]))
	fmt.Fprintf(w, "%-16s %4d -> %d\n", name, offset, offset+3+sign*jump)
	return offset + 3
}
