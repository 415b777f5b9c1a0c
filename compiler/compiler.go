// Package compiler turns dynamix source into bytecode in a single pass.
// A Pratt parser pulls tokens from the lexer and emits instructions
// directly into the byte block of the function under construction; there is
// no AST. Each token kind maps to a prefix rule, an infix rule and a
// precedence level.
package compiler

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"dynamix/bytecode"
	"dynamix/lexer"
	"dynamix/token"
)

// maxLocals is the hard limit on local variables per function; local slots
// are a single byte.
const maxLocals = 256

// Local is a declared local variable: its name token and the scope depth it
// was declared at. Depth -1 marks a local that is declared but not yet
// initialized, so its own initializer cannot read it.
type Local struct {
	Name  token.Token
	Depth int32
}

// parser holds the two-token lookahead window and the error flags. Panic
// mode suppresses cascading errors until the next synchronization point.
type parser struct {
	previous  token.Token
	current   token.Token
	hadError  bool
	panicMode bool
}

// Compiler compiles one source string into a root function object. It
// fails with compile errors but never panics; on failure the rendered
// message of the most recent error is available through LastError.
type Compiler struct {
	filename  string
	source    string
	lastError string

	lexer  *lexer.Lexer
	parser parser

	function *bytecode.ObjFunction

	locals     []Local
	scopeDepth int32
}

// New returns a compiler for the given file and source. Slot 0 of the
// locals sequence is claimed by an unnamed sentinel representing the
// enclosing function, mirroring the VM's call frame layout.
func New(filename, source string) *Compiler {
	c := &Compiler{
		filename: filename,
		source:   source,
		lexer:    lexer.New(source),
		function: &bytecode.ObjFunction{
			Block: bytecode.NewByteBlock(strings.Split(source, "\n")),
		},
		locals: make([]Local, 1, maxLocals),
	}
	return c
}

// Compile runs the parse. On success it returns the root function holding
// the compiled script; on failure it returns a CompileError carrying the
// rendered diagnostic and the function is discarded.
func (c *Compiler) Compile() (*bytecode.ObjFunction, error) {
	c.advance()

	for !c.match(token.Eof) {
		c.declaration()
	}

	c.pushReturn()

	if c.parser.hadError {
		return nil, CompileError{Message: c.lastError}
	}
	return c.function, nil
}

// LastError returns the rendered message of the most recent compile error.
func (c *Compiler) LastError() string {
	return c.lastError
}

func (c *Compiler) currentBlock() *bytecode.ByteBlock {
	return &c.function.Block
}

func (c *Compiler) lexeme(tok token.Token) string {
	return tok.Lexeme(c.source)
}

// ---- token plumbing ----

// advance shifts the lookahead window one token. Error tokens are reported
// here and skipped, so the parse rules only ever see well-formed tokens.
func (c *Compiler) advance() {
	c.parser.previous = c.parser.current

	for {
		c.parser.current = c.lexer.ScanToken()
		if c.parser.current.Type != token.Error {
			break
		}
		c.errorAtCurrent(c.parser.current.Message)
	}
}

func (c *Compiler) consume(expected token.Type, msg string) {
	if c.check(expected) {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) match(kind token.Type) bool {
	if !c.check(kind) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) check(kind token.Type) bool {
	return c.parser.current.Type == kind
}

// ---- declarations and statements ----

func (c *Compiler) declaration() {
	if c.match(token.Let) {
		c.letDeclaration()
	} else {
		c.statement()
	}

	if c.parser.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) letDeclaration() {
	global := c.parseVariable("expected variable name")

	if c.match(token.Eq) {
		c.expression()
	} else {
		c.pushByte(byte(bytecode.OpNull))
	}
	c.consume(token.Semicolon, "expected ';' after variable declaration")

	c.defineVariable(global)
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.Print):
		c.printStatement()
	case c.match(token.LBracket):
		c.beginScope()
		c.block()
		c.endScope()
	case c.match(token.If):
		c.ifStatement()
	case c.match(token.While):
		c.whileStatement()
	case c.match(token.For):
		c.forStatement()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) block() {
	for !c.check(token.RBracket) && !c.check(token.Eof) {
		c.declaration()
	}

	c.consume(token.RBracket, "expected '}' after block")
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.Semicolon, "expected ';' after value")
	c.pushByte(byte(bytecode.OpPrint))
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.Semicolon, "expected ';' after expression")
	c.pushByte(byte(bytecode.OpPop))
}

// ifStatement compiles a bare-expression condition and one or two branches.
// Jz leaves the condition value on the stack, so each branch begins by
// popping it.
func (c *Compiler) ifStatement() {
	c.expression()

	thenJump := c.pushJump(byte(bytecode.OpJz))
	c.pushByte(byte(bytecode.OpPop))
	c.statement()

	elseJump := c.pushJump(byte(bytecode.OpJmp))
	c.patchJump(thenJump)
	c.pushByte(byte(bytecode.OpPop))

	if c.match(token.Else) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) whileStatement() {
	loopStart := len(c.currentBlock().Bytes)
	c.expression()

	exitJump := c.pushJump(byte(bytecode.OpJz))
	c.pushByte(byte(bytecode.OpPop))
	c.statement()
	c.pushLoop(loopStart)

	c.patchJump(exitJump)
	c.pushByte(byte(bytecode.OpPop))
}

// forStatement compiles the parenthesized three-clause form. The increment
// clause textually precedes the body but runs after it, so the body jumps
// over it on the way in and the loop-back lands on it.
func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LParen, "expected '(' after 'for'")

	switch {
	case c.match(token.Semicolon):
		// no initializer
	case c.match(token.Let):
		c.letDeclaration()
	default:
		c.expressionStatement()
	}

	loopStart := len(c.currentBlock().Bytes)

	exitJump := -1
	if !c.match(token.Semicolon) {
		c.expression()
		c.consume(token.Semicolon, "expected ';' after loop condition")

		exitJump = c.pushJump(byte(bytecode.OpJz))
		c.pushByte(byte(bytecode.OpPop))
	}

	if !c.match(token.RParen) {
		bodyJump := c.pushJump(byte(bytecode.OpJmp))
		incrementStart := len(c.currentBlock().Bytes)

		c.expression()
		c.pushByte(byte(bytecode.OpPop))
		c.consume(token.RParen, "expected ')' after for clauses")

		c.pushLoop(loopStart)
		loopStart = incrementStart
		c.patchJump(bodyJump)
	}

	c.statement()
	c.pushLoop(loopStart)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.pushByte(byte(bytecode.OpPop))
	}

	c.endScope()
}

// synchronize discards tokens until a statement boundary so one syntax
// error does not cascade into a wall of follow-on diagnostics.
func (c *Compiler) synchronize() {
	c.parser.panicMode = false

	for c.parser.current.Type != token.Eof {
		if c.parser.previous.Type == token.Semicolon {
			return
		}

		switch c.parser.current.Type {
		case token.Struct, token.Fun, token.Let, token.For,
			token.If, token.While, token.Print, token.Return:
			return
		}

		c.advance()
	}
}

// ---- scopes and variables ----

func (c *Compiler) beginScope() {
	c.scopeDepth++
}

// endScope discards the scope's locals, one Pop per stack slot they
// occupied.
func (c *Compiler) endScope() {
	c.scopeDepth--

	for len(c.locals) > 0 && c.locals[len(c.locals)-1].Depth > c.scopeDepth {
		c.pushByte(byte(bytecode.OpPop))
		c.locals = c.locals[:len(c.locals)-1]
	}
}

// parseVariable consumes the identifier and declares it. At global scope it
// returns the constant-pool index of the name; at local scope the slot is
// resolved at compile time and the return value is an unused placeholder.
func (c *Compiler) parseVariable(errMsg string) byte {
	c.consume(token.Ident, errMsg)

	c.declareVariable()
	if c.scopeDepth > 0 {
		return 0
	}

	return c.identifierConstant(c.parser.previous)
}

// declareVariable registers a new local in the current scope. Globals are
// late-bound by name, so at depth 0 this is a no-op. A name already
// declared in the same scope is a compile error; matches in enclosing
// scopes shadow legally.
func (c *Compiler) declareVariable() {
	if c.scopeDepth == 0 {
		return
	}

	name := c.parser.previous
	for i := len(c.locals) - 1; i >= 0; i-- {
		local := c.locals[i]
		if local.Depth != -1 && local.Depth < c.scopeDepth {
			break
		}

		if c.identifiersEqual(name, local.Name) {
			c.error(fmt.Sprintf("variable '%s' has multiple definitions", c.lexeme(name)))
		}
	}

	c.addLocal(name)
}

func (c *Compiler) addLocal(name token.Token) {
	if len(c.locals) == maxLocals {
		c.error("too many local variables in one function")
		return
	}

	c.locals = append(c.locals, Local{Name: name, Depth: -1})
}

func (c *Compiler) markInitialized() {
	c.locals[len(c.locals)-1].Depth = c.scopeDepth
}

// defineVariable makes the declared variable usable: locals flip from the
// uninitialized sentinel depth to the current scope, globals emit a
// DefineGlobal naming them.
func (c *Compiler) defineVariable(global byte) {
	if c.scopeDepth > 0 {
		c.markInitialized()
		return
	}

	c.pushBytes(byte(bytecode.OpDefineGlobal), global)
}

func (c *Compiler) identifierConstant(name token.Token) byte {
	return c.makeConstant(bytecode.ObjValue(&bytecode.ObjString{Chars: c.lexeme(name)}))
}

func (c *Compiler) identifiersEqual(a, b token.Token) bool {
	return a.Length == b.Length && c.lexeme(a) == c.lexeme(b)
}

// resolveLocal scans the locals top-down for the name. A hit at depth -1
// means the variable's own initializer is reading it, which is an error.
// No hit falls back to global access, signalled by -1.
func (c *Compiler) resolveLocal(name token.Token) int {
	for i := len(c.locals) - 1; i >= 0; i-- {
		local := c.locals[i]
		if c.identifiersEqual(name, local.Name) {
			if local.Depth == -1 {
				c.error(fmt.Sprintf("uninitialized local variable '%s' used", c.lexeme(name)))
			}
			return i
		}
	}

	return -1
}

// namedVariable emits the get or set for an identifier. Locals resolve to
// stack slots at compile time; everything else becomes a runtime global
// lookup by name. With canAssign, a trailing '=' turns the access into an
// assignment whose value stays on the stack.
func (c *Compiler) namedVariable(name token.Token, canAssign bool) {
	var getOp, setOp bytecode.OpCode
	var arg byte

	if slot := c.resolveLocal(name); slot != -1 {
		arg = byte(slot)
		getOp = bytecode.OpGetLocal
		setOp = bytecode.OpSetLocal
	} else {
		arg = c.identifierConstant(name)
		getOp = bytecode.OpGetGlobal
		setOp = bytecode.OpSetGlobal
	}

	if canAssign && c.match(token.Eq) {
		c.expression()
		c.pushBytes(byte(setOp), arg)
	} else {
		c.pushBytes(byte(getOp), arg)
	}
}

// ---- emission ----

func (c *Compiler) pushByte(byt byte) {
	c.currentBlock().Push(byt, uint32(c.parser.previous.Line))
}

func (c *Compiler) pushBytes(one, two byte) {
	c.pushByte(one)
	c.pushByte(two)
}

// pushJump emits a forward jump with a placeholder offset and returns the
// offset of the operand for patchJump.
func (c *Compiler) pushJump(instruction byte) int {
	c.pushByte(instruction)
	c.pushByte(0xff)
	c.pushByte(0xff)
	return len(c.currentBlock().Bytes) - 2
}

// patchJump back-fills a forward jump to land on the next instruction to
// be emitted. Offsets are relative to the byte after the operand.
func (c *Compiler) patchJump(offset int) {
	jump := len(c.currentBlock().Bytes) - offset - 2

	if jump > math.MaxUint16 {
		c.error("too much code to jump over")
		return
	}

	binary.BigEndian.PutUint16(c.currentBlock().Bytes[offset:], uint16(jump))
}

// pushLoop emits a backward jump to loopStart. The +2 accounts for the
// operand bytes the VM has already consumed when it applies the offset.
func (c *Compiler) pushLoop(loopStart int) {
	c.pushByte(byte(bytecode.OpLoop))

	offset := len(c.currentBlock().Bytes) - loopStart + 2
	if offset > math.MaxUint16 {
		c.error("loop body too large")
		offset = 0
	}

	c.pushByte(byte(offset >> 8))
	c.pushByte(byte(offset))
}

func (c *Compiler) pushConstant(value bytecode.Value) {
	c.pushBytes(byte(bytecode.OpPushConstant), c.makeConstant(value))
}

func (c *Compiler) pushReturn() {
	c.pushByte(byte(bytecode.OpReturn))
}

// makeConstant appends to the pool and returns the index as a byte. The
// pool is capped at 256 entries because the operand is one byte.
func (c *Compiler) makeConstant(value bytecode.Value) byte {
	index := c.currentBlock().AddConstant(value)
	if index > math.MaxUint8 {
		c.error("too many constants in one block")
		return 0
	}

	return byte(index)
}

// ---- error reporting ----

func (c *Compiler) error(msg string) {
	c.errorAt(c.parser.previous, msg)
}

func (c *Compiler) errorAtCurrent(msg string) {
	c.errorAt(c.parser.current, msg)
}

// errorAt renders and records a compile error. While panic mode is active
// further reports are dropped; they are almost always noise caused by the
// first error.
func (c *Compiler) errorAt(tok token.Token, msg string) {
	if c.parser.panicMode {
		return
	}
	c.parser.panicMode = true

	location := fmt.Sprintf("<%s:%d:%d>", c.filename, tok.Column, tok.Line)

	var rendered string
	if tok.Type == token.Eof {
		rendered = fmt.Sprintf("%s Compiler Error at end: %s\n", location, msg)
	} else {
		rendered = fmt.Sprintf("%s Compiler Error at '%s': %s\n", location, c.lexeme(tok), msg)
	}

	c.lastError = rendered
	c.parser.hadError = true
}
