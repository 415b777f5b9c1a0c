package compiler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"dynamix/bytecode"
)

func compileSource(t *testing.T, source string) (*bytecode.ObjFunction, error) {
	t.Helper()
	return New("test", source).Compile()
}

func mustCompile(t *testing.T, source string) *bytecode.ObjFunction {
	t.Helper()
	function, err := compileSource(t, source)
	require.NoError(t, err)
	require.NotNil(t, function)
	return function
}

func TestPrintExpressionBytecode(t *testing.T) {
	function := mustCompile(t, "print 1 + 2 * 3;")

	require.Equal(t, []byte{
		byte(bytecode.OpPushConstant), 0,
		byte(bytecode.OpPushConstant), 1,
		byte(bytecode.OpPushConstant), 2,
		byte(bytecode.OpMul),
		byte(bytecode.OpAdd),
		byte(bytecode.OpPrint),
		byte(bytecode.OpReturn),
	}, function.Block.Bytes)

	require.Len(t, function.Block.Constants, 3)
	require.True(t, function.Block.Constants[0].Equals(bytecode.NumberValue(1)))
	require.True(t, function.Block.Constants[2].Equals(bytecode.NumberValue(3)))
}

// -a*b+c compiles as ((-a)*b)+c: unary binds tighter than factor, factor
// tighter than term.
func TestUnaryPrecedence(t *testing.T) {
	function := mustCompile(t, "print -1 * 2 + 3;")

	require.Equal(t, []byte{
		byte(bytecode.OpPushConstant), 0,
		byte(bytecode.OpNegate),
		byte(bytecode.OpPushConstant), 1,
		byte(bytecode.OpMul),
		byte(bytecode.OpPushConstant), 2,
		byte(bytecode.OpAdd),
		byte(bytecode.OpPrint),
		byte(bytecode.OpReturn),
	}, function.Block.Bytes)
}

// Comparisons without a dedicated opcode are fused from the opposite
// comparison and Not.
func TestComparisonFusion(t *testing.T) {
	tests := []struct {
		source string
		ops    []bytecode.OpCode
	}{
		{"print 1 == 2;", []bytecode.OpCode{bytecode.OpEqual}},
		{"print 1 != 2;", []bytecode.OpCode{bytecode.OpEqual, bytecode.OpNot}},
		{"print 1 < 2;", []bytecode.OpCode{bytecode.OpLess}},
		{"print 1 <= 2;", []bytecode.OpCode{bytecode.OpGreater, bytecode.OpNot}},
		{"print 1 > 2;", []bytecode.OpCode{bytecode.OpGreater}},
		{"print 1 >= 2;", []bytecode.OpCode{bytecode.OpLess, bytecode.OpNot}},
	}

	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			function := mustCompile(t, tt.source)

			want := []byte{
				byte(bytecode.OpPushConstant), 0,
				byte(bytecode.OpPushConstant), 1,
			}
			for _, op := range tt.ops {
				want = append(want, byte(op))
			}
			want = append(want, byte(bytecode.OpPrint), byte(bytecode.OpReturn))

			require.Equal(t, want, function.Block.Bytes)
		})
	}
}

func TestGlobalDeclaration(t *testing.T) {
	function := mustCompile(t, "let x = 1; print x;")

	require.Equal(t, []byte{
		byte(bytecode.OpPushConstant), 1,
		byte(bytecode.OpDefineGlobal), 0,
		byte(bytecode.OpGetGlobal), 2,
		byte(bytecode.OpPrint),
		byte(bytecode.OpReturn),
	}, function.Block.Bytes)

	name, ok := function.Block.Constants[0].AsString()
	require.True(t, ok)
	require.Equal(t, "x", name.Chars)
}

func TestUninitializedGlobalDefaultsToNull(t *testing.T) {
	function := mustCompile(t, "let x;")

	require.Equal(t, []byte{
		byte(bytecode.OpNull),
		byte(bytecode.OpDefineGlobal), 0,
		byte(bytecode.OpReturn),
	}, function.Block.Bytes)
}

// Locals resolve to stack slots at compile time; slot 0 is the enclosing
// function, so the first local lands in slot 1. Leaving the scope pops it.
func TestLocalSlotResolution(t *testing.T) {
	function := mustCompile(t, "{ let x = 1; print x; }")

	require.Equal(t, []byte{
		byte(bytecode.OpPushConstant), 0,
		byte(bytecode.OpGetLocal), 1,
		byte(bytecode.OpPrint),
		byte(bytecode.OpPop),
		byte(bytecode.OpReturn),
	}, function.Block.Bytes)
}

func TestIfElseJumpPatching(t *testing.T) {
	function := mustCompile(t, "if true { print 1; } else { print 2; }")

	require.Equal(t, []byte{
		byte(bytecode.OpTrue),
		byte(bytecode.OpJz), 0, 7,
		byte(bytecode.OpPop),
		byte(bytecode.OpPushConstant), 0,
		byte(bytecode.OpPrint),
		byte(bytecode.OpJmp), 0, 4,
		byte(bytecode.OpPop),
		byte(bytecode.OpPushConstant), 1,
		byte(bytecode.OpPrint),
		byte(bytecode.OpReturn),
	}, function.Block.Bytes)
}

func TestWhileLoopBytecode(t *testing.T) {
	function := mustCompile(t, "while false { print 1; }")

	require.Equal(t, []byte{
		byte(bytecode.OpFalse),
		byte(bytecode.OpJz), 0, 7,
		byte(bytecode.OpPop),
		byte(bytecode.OpPushConstant), 0,
		byte(bytecode.OpPrint),
		byte(bytecode.OpLoop), 0, 11,
		byte(bytecode.OpPop),
		byte(bytecode.OpReturn),
	}, function.Block.Bytes)
}

func TestForLoopCompiles(t *testing.T) {
	function := mustCompile(t, "for (let i = 0; i < 3; i = i + 1) { print i; }")

	require.Equal(t, len(function.Block.Bytes), len(function.Block.Lines))
	require.Equal(t, byte(bytecode.OpReturn), function.Block.Bytes[len(function.Block.Bytes)-1])
}

func TestLinesTrackEveryByte(t *testing.T) {
	function := mustCompile(t, "print 1;\nprint 2;")

	require.Equal(t, len(function.Block.Bytes), len(function.Block.Lines))
	require.Equal(t, uint32(1), function.Block.Lines[0])
	require.Equal(t, uint32(2), function.Block.Lines[len(function.Block.Lines)-2])
}

func TestRootFunctionHasEmptyName(t *testing.T) {
	function := mustCompile(t, "print 1;")

	require.Equal(t, "", function.Name)
	require.Equal(t, uint32(0), function.Arity)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantMsg string
	}{
		{"duplicate local", "{ let x = 1; let x = 2; }", "variable 'x' has multiple definitions"},
		{"uninitialized local in own initializer", "{ let x = x; }", "uninitialized local variable 'x' used"},
		{"invalid assignment target", "1 + 2 = 3;", "invalid assignment target"},
		{"expected expression", "print ;", "expected expression"},
		{"missing semicolon", "print 1", "expected ';' after value"},
		{"unterminated grouping", "print (1;", "expected ')' after expression"},
		{"missing variable name", "let = 1;", "expected variable name"},
		{"missing for parens", "for let i = 0; { }", "expected '(' after 'for'"},
		{"lexer error surfaces", "let @ = 1;", "unexpected character '@'"},
		{"unterminated string", `print "abc`, "unterminated string literal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := New("test", tt.source)
			function, err := comp.Compile()

			require.Nil(t, function)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantMsg)
			require.Contains(t, err.Error(), "Compiler Error")
			require.Equal(t, err.Error(), comp.LastError())
		})
	}
}

func TestErrorAtEndRendering(t *testing.T) {
	_, err := compileSource(t, "print 1")

	require.Error(t, err)
	require.Contains(t, err.Error(), "Compiler Error at end:")
}

// Shadowing an outer scope's name is legal; redeclaring within the same
// scope is not.
func TestShadowingIsLegal(t *testing.T) {
	_, err := compileSource(t, "{ let x = 1; { let x = 2; print x; } }")
	require.NoError(t, err)
}

func TestTooManyConstants(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("print 0")
	for i := 1; i <= 256; i++ {
		fmt.Fprintf(&sb, " + %d", i)
	}
	sb.WriteString(";")

	_, err := compileSource(t, sb.String())

	require.Error(t, err)
	require.Contains(t, err.Error(), "too many constants in one block")
}

func TestLoopBodyTooLarge(t *testing.T) {
	source := "while true { " + strings.Repeat("!true;", 22000) + " }"

	_, err := compileSource(t, source)

	require.Error(t, err)
	require.Contains(t, err.Error(), "loop body too large")
}

// Panic mode swallows the cascade after the first error in a statement;
// the parser resynchronizes at the next statement boundary and keeps
// going, so a later error is still caught.
func TestSynchronizationRecoversAtStatementBoundary(t *testing.T) {
	comp := New("test", "print ; print 1; let = 2;")
	function, err := comp.Compile()

	require.Nil(t, function)
	require.Error(t, err)
	require.Contains(t, comp.LastError(), "expected variable name")
}
