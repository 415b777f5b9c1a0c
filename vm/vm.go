// Package vm executes compiled dynamix bytecode. The VM owns the value
// stack, the call-frame stack, the globals map and the tracking list of
// every heap object the program materializes.
package vm

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dolthub/swiss"

	"dynamix/bytecode"
	"dynamix/compiler"
)

const (
	callFrameCapacity = 64
	stackCapacity     = callFrameCapacity * 256
	objectCapacity    = 256
)

// CallFrame is one in-progress function activation: the function being
// executed, the instruction pointer into its block, and the base of its
// locals on the value stack. Slot 0 holds the function itself.
type CallFrame struct {
	Function *bytecode.ObjFunction
	IP       int
	SlotBase int
}

// VM is the bytecode interpreter. One instance can run any number of
// sources in sequence; the REPL reuses a single VM so globals persist
// across lines.
type VM struct {
	stack   Stack[bytecode.Value]
	frames  Stack[CallFrame]
	objects Stack[bytecode.Obj]
	globals *swiss.Map[string, bytecode.Value]

	lastError RuntimeError
	debug     DebugConfig

	// Stdout receives program output (print); Stderr receives diagnostics
	// and debug dumps.
	Stdout io.Writer
	Stderr io.Writer
}

// New returns a VM with pre-sized stacks and debug toggles loaded from the
// environment.
func New() *VM {
	return &VM{
		stack:   NewStack[bytecode.Value](stackCapacity),
		frames:  NewStack[CallFrame](callFrameCapacity),
		objects: NewStack[bytecode.Obj](objectCapacity),
		globals: swiss.NewMap[string, bytecode.Value](objectCapacity),
		debug:   LoadDebugConfig(),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

// LastError returns the captured state of the most recent runtime error.
func (vm *VM) LastError() RuntimeError {
	return vm.lastError
}

// Free releases everything the VM owns: tracked heap objects, both stacks
// and the globals map. The VM is reusable afterwards.
func (vm *VM) Free() {
	vm.objects.Clear()
	vm.stack.Clear()
	vm.frames.Clear()
	vm.globals = swiss.NewMap[string, bytecode.Value](objectCapacity)
}

// RunCode compiles and executes one source string. Compile errors are
// printed to Stderr and reported without touching the VM state; runtime
// errors are rendered as a two-line panic-style diagnostic.
func (vm *VM) RunCode(filename, source string) InterpretResult {
	comp := compiler.New(filename, source)

	function, err := comp.Compile()
	if err != nil {
		fmt.Fprint(vm.Stderr, err.Error())
		return InterpretCompileError
	}

	if vm.debug.DisassembleCode {
		name := function.Name
		if name == "" {
			name = "<script>"
		}
		bytecode.DisassembleBlock(vm.Stderr, &function.Block, name)
	}

	vm.stack.Push(bytecode.ObjValue(function))
	vm.frames.Push(CallFrame{
		Function: function,
		IP:       0,
		SlotBase: vm.stack.Len() - 1,
	})

	if vm.interpret() == InterpretRuntimeError {
		fmt.Fprintf(vm.Stderr,
			"thread 'main' panicked at: '%s'\n<%s:%d:%s> Runtime Error: %s\n",
			vm.lastError.SourceLine,
			filename,
			vm.lastError.Line,
			vm.lastError.FunctionName,
			vm.lastError.Msg,
		)
		return InterpretRuntimeError
	}

	return InterpretOk
}

// interpret is the dispatch loop. The hot references are the top frame and
// its block; every opcode's stack effect and operand layout must agree
// with what the compiler emitted.
func (vm *VM) interpret() InterpretResult {
	frame := vm.frames.Top()

	if vm.debug.StackTrace {
		fmt.Fprintf(vm.Stderr, "-- stack trace --\n")
	}

	for {
		if vm.debug.StackTrace {
			vm.stackTrace(frame)
		}

		switch op := bytecode.OpCode(vm.readByte(frame)); op {
		case bytecode.OpPushConstant:
			constant := vm.readConstant(frame)
			if obj, ok := constant.AsObject(); ok {
				vm.objects.Push(obj)
			}
			vm.stack.Push(constant)

		case bytecode.OpPop:
			vm.stack.Pop()

		case bytecode.OpNull:
			vm.stack.Push(bytecode.NullValue())

		case bytecode.OpTrue:
			vm.stack.Push(bytecode.BoolValue(true))

		case bytecode.OpFalse:
			vm.stack.Push(bytecode.BoolValue(false))

		case bytecode.OpEqual:
			b, _ := vm.stack.Pop()
			a, _ := vm.stack.Pop()
			vm.stack.Push(bytecode.BoolValue(a.Equals(b)))

		case bytecode.OpGreater:
			if !vm.binaryOp(frame, ">", func(a, b float64) bytecode.Value {
				return bytecode.BoolValue(a > b)
			}) {
				return InterpretRuntimeError
			}

		case bytecode.OpLess:
			if !vm.binaryOp(frame, "<", func(a, b float64) bytecode.Value {
				return bytecode.BoolValue(a < b)
			}) {
				return InterpretRuntimeError
			}

		case bytecode.OpAdd:
			lhs, _ := vm.stack.Peek(1)
			if lhs.IsString() {
				if !vm.concatenate() {
					vm.typeMismatch(frame, "+")
					return InterpretRuntimeError
				}
			} else if !vm.binaryOp(frame, "+", func(a, b float64) bytecode.Value {
				return bytecode.NumberValue(a + b)
			}) {
				return InterpretRuntimeError
			}

		case bytecode.OpSub:
			if !vm.binaryOp(frame, "-", func(a, b float64) bytecode.Value {
				return bytecode.NumberValue(a - b)
			}) {
				return InterpretRuntimeError
			}

		case bytecode.OpMul:
			if !vm.binaryOp(frame, "*", func(a, b float64) bytecode.Value {
				return bytecode.NumberValue(a * b)
			}) {
				return InterpretRuntimeError
			}

		case bytecode.OpDiv:
			if !vm.binaryOp(frame, "/", func(a, b float64) bytecode.Value {
				return bytecode.NumberValue(a / b)
			}) {
				return InterpretRuntimeError
			}

		case bytecode.OpNegate:
			top, _ := vm.stack.Peek(0)
			n, ok := top.AsNumber()
			if !ok {
				vm.runtimeError("operand must be a number", frame)
				return InterpretRuntimeError
			}
			vm.stack.Pop()
			vm.stack.Push(bytecode.NumberValue(-n))

		case bytecode.OpNot:
			v, _ := vm.stack.Pop()
			vm.stack.Push(bytecode.BoolValue(isFalsey(v)))

		case bytecode.OpJmp:
			offset := vm.readShort(frame)
			frame.IP += int(offset)

		case bytecode.OpJz:
			// the condition stays on the stack; the branch code pops it
			offset := vm.readShort(frame)
			top, _ := vm.stack.Peek(0)
			if isFalsey(top) {
				frame.IP += int(offset)
			}

		case bytecode.OpLoop:
			offset := vm.readShort(frame)
			frame.IP -= int(offset)

		case bytecode.OpDefineGlobal:
			name, ok := vm.readString(frame)
			if !ok {
				return InterpretRuntimeError
			}
			if vm.globals.Has(name.Chars) {
				vm.runtimeError(fmt.Sprintf(
					"global variable '%s' has multiple definitions; multiple initialization",
					name.Chars,
				), frame)
				return InterpretRuntimeError
			}
			top, _ := vm.stack.Peek(0)
			vm.globals.Put(name.Chars, top)
			vm.stack.Pop()

		case bytecode.OpGetGlobal:
			name, ok := vm.readString(frame)
			if !ok {
				return InterpretRuntimeError
			}
			value, found := vm.globals.Get(name.Chars)
			if !found {
				vm.runtimeError(fmt.Sprintf("undefined variable '%s'", name.Chars), frame)
				return InterpretRuntimeError
			}
			vm.stack.Push(value)

		case bytecode.OpSetGlobal:
			// assignment is an expression: the value stays on the stack
			name, ok := vm.readString(frame)
			if !ok {
				return InterpretRuntimeError
			}
			if !vm.globals.Has(name.Chars) {
				vm.runtimeError(fmt.Sprintf("undefined variable '%s'", name.Chars), frame)
				return InterpretRuntimeError
			}
			top, _ := vm.stack.Peek(0)
			vm.globals.Put(name.Chars, top)

		case bytecode.OpGetLocal:
			slot := vm.readByte(frame)
			vm.stack.Push(vm.stack.At(frame.SlotBase + int(slot)))

		case bytecode.OpSetLocal:
			slot := vm.readByte(frame)
			top, _ := vm.stack.Peek(0)
			vm.stack.Set(frame.SlotBase+int(slot), top)

		case bytecode.OpPrint:
			v, _ := vm.stack.Pop()
			fmt.Fprintln(vm.Stdout, v.String())

		case bytecode.OpReturn:
			return InterpretOk

		default:
			vm.runtimeError(fmt.Sprintf(
				"OpCode '%d' not implemented in virtual machine", byte(op),
			), frame)
			return InterpretRuntimeError
		}
	}
}

func (vm *VM) readByte(frame *CallFrame) byte {
	b := frame.Function.Block.Bytes[frame.IP]
	frame.IP++
	return b
}

func (vm *VM) readShort(frame *CallFrame) uint16 {
	s := binary.BigEndian.Uint16(frame.Function.Block.Bytes[frame.IP : frame.IP+2])
	frame.IP += 2
	return s
}

func (vm *VM) readConstant(frame *CallFrame) bytecode.Value {
	return frame.Function.Block.Constants[vm.readByte(frame)]
}

func (vm *VM) readString(frame *CallFrame) (*bytecode.ObjString, bool) {
	constant := vm.readConstant(frame)
	str, ok := constant.AsString()
	if !ok {
		vm.runtimeError("name constant is not a string", frame)
		return nil, false
	}
	return str, true
}

// binaryOp pops two operands for a numeric operator. Anything but a pair
// of numbers is a type mismatch.
func (vm *VM) binaryOp(frame *CallFrame, op string, apply func(a, b float64) bytecode.Value) bool {
	rhs, _ := vm.stack.Peek(0)
	lhs, _ := vm.stack.Peek(1)

	b, okB := rhs.AsNumber()
	a, okA := lhs.AsNumber()
	if !okA || !okB {
		vm.typeMismatch(frame, op)
		return false
	}

	vm.stack.Pop()
	vm.stack.Pop()
	vm.stack.Push(apply(a, b))
	return true
}

// concatenate handles Add with a string on the left: append a string, a
// character or a decimal-formatted number. The result is a fresh tracked
// string object. A false return means the right operand type has no
// concatenation rule.
func (vm *VM) concatenate() bool {
	rhs, _ := vm.stack.Peek(0)

	var appended string
	switch {
	case rhs.IsString():
		s, _ := rhs.AsString()
		appended = s.Chars
	case rhs.Is(bytecode.ValCharacter):
		c, _ := rhs.AsChar()
		appended = string(c)
	case rhs.Is(bytecode.ValNumber):
		n, _ := rhs.AsNumber()
		appended = strconv.FormatFloat(n, 'g', -1, 64)
	default:
		return false
	}

	vm.stack.Pop()
	lhsValue, _ := vm.stack.Pop()
	lhs, _ := lhsValue.AsString()

	result := &bytecode.ObjString{Chars: lhs.Chars + appended}
	vm.objects.Push(result)
	vm.stack.Push(bytecode.ObjValue(result))
	return true
}

// isFalsey decides which values take the false branch: null, false, zero,
// the character '0' and the empty string. Functions are always truthy.
func isFalsey(v bytecode.Value) bool {
	switch v.Type {
	case bytecode.ValNumber:
		n, _ := v.AsNumber()
		return n == 0.0
	case bytecode.ValBool:
		b, _ := v.AsBool()
		return !b
	case bytecode.ValCharacter:
		c, _ := v.AsChar()
		return c == '0'
	case bytecode.ValNull:
		return true
	case bytecode.ValObj:
		if s, ok := v.AsString(); ok {
			return len(s.Chars) == 0
		}
	}
	return false
}

func (vm *VM) typeMismatch(frame *CallFrame, op string) {
	rhs, _ := vm.stack.Peek(0)
	lhs, _ := vm.stack.Peek(1)
	vm.runtimeError(fmt.Sprintf(
		"operator '%s' not defined for types '%s' and '%s'",
		op, lhs.TypeName(), rhs.TypeName(),
	), frame)
}

// runtimeError captures the error site from the line table and resets both
// stacks; execution cannot continue past a runtime error.
func (vm *VM) runtimeError(msg string, frame *CallFrame) {
	instruction := frame.IP - 1
	line := frame.Function.Block.Lines[instruction]

	var sourceLine string
	if int(line) >= 1 && int(line) <= len(frame.Function.Block.SourceLines) {
		sourceLine = frame.Function.Block.SourceLines[line-1]
	}

	functionName := frame.Function.Name
	if functionName == "" {
		functionName = "<script>"
	}

	vm.lastError = RuntimeError{
		Msg:          msg,
		SourceLine:   sourceLine,
		FunctionName: functionName,
		Line:         line,
	}
	vm.resetStack()
}

func (vm *VM) resetStack() {
	vm.stack.Clear()
	vm.frames.Clear()
}

// stackTrace prints the value stack and disassembles the instruction about
// to execute.
func (vm *VM) stackTrace(frame *CallFrame) {
	fmt.Fprintf(vm.Stderr, "          ")
	for i := 0; i < vm.stack.Len(); i++ {
		fmt.Fprintf(vm.Stderr, "[ %s ]", vm.stack.At(i))
	}
	fmt.Fprintf(vm.Stderr, "\n")

	bytecode.DisassembleInstruction(vm.Stderr, &frame.Function.Block, frame.IP)
}
