package compiler

import (
	"strconv"
	"strings"

	"dynamix/bytecode"
	"dynamix/token"
)

// Precedence levels of the grammar, lowest to highest. Higher-precedence
// subexpressions are parsed and compiled before lower ones bind them.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssign
	PrecOr
	PrecAnd
	PrecEquality
	PrecComparison
	PrecTerm
	PrecFactor
	PrecUnary
	PrecCall
	PrecAtom
)

// parseFn is a parse action bound to the compiler. The flag tells prefix
// rules whether an assignment target is legal at this precedence.
type parseFn func(*Compiler, bool)

// parseRule is one row of the Pratt table: how a token kind parses in
// prefix position, in infix position, and how tightly it binds.
type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

// parseRules is indexed directly by token kind. Kinds without an entry
// have no parse rule, which surfaces as "expected expression" when they
// show up in prefix position.
var parseRules = [token.NumTypes]parseRule{
	token.LParen: {prefix: (*Compiler).grouping},
	token.Minus:  {prefix: (*Compiler).unary, infix: (*Compiler).binary, precedence: PrecTerm},
	token.Plus:   {infix: (*Compiler).binary, precedence: PrecTerm},
	token.Slash:  {infix: (*Compiler).binary, precedence: PrecFactor},
	token.Star:   {infix: (*Compiler).binary, precedence: PrecFactor},
	token.Bang:   {prefix: (*Compiler).unary},
	token.BangEq: {infix: (*Compiler).binary, precedence: PrecEquality},
	token.EqEq:   {infix: (*Compiler).binary, precedence: PrecEquality},
	token.Gt:     {infix: (*Compiler).binary, precedence: PrecComparison},
	token.Gte:    {infix: (*Compiler).binary, precedence: PrecComparison},
	token.Lt:     {infix: (*Compiler).binary, precedence: PrecComparison},
	token.Lte:    {infix: (*Compiler).binary, precedence: PrecComparison},
	token.Ident:  {prefix: (*Compiler).variable},
	token.String: {prefix: (*Compiler).string_},
	token.Number: {prefix: (*Compiler).number},
	token.Char:   {prefix: (*Compiler).character},
	token.True:   {prefix: (*Compiler).literal},
	token.False:  {prefix: (*Compiler).literal},
	token.Null:   {prefix: (*Compiler).literal},
	token.And:    {infix: (*Compiler).and, precedence: PrecAnd},
	token.Or:     {infix: (*Compiler).or, precedence: PrecOr},
}

func getRule(kind token.Type) parseRule {
	return parseRules[kind]
}

func (c *Compiler) expression() {
	c.parsePrecedence(PrecAssign)
}

// parsePrecedence drives the Pratt loop: one prefix rule to produce a left
// operand, then infix rules as long as the next token binds at least as
// tightly as min. Assignment is only offered to targets parsed at
// assignment precedence or looser; a leftover '=' afterwards is a bad
// target like `a + b = c`.
func (c *Compiler) parsePrecedence(min Precedence) {
	c.advance()

	prefix := getRule(c.parser.previous.Type).prefix
	if prefix == nil {
		c.error("expected expression")
		return
	}

	canAssign := min <= PrecAssign
	prefix(c, canAssign)

	for getRule(c.parser.current.Type).precedence >= min {
		c.advance()
		infix := getRule(c.parser.previous.Type).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(token.Eq) {
		c.error("invalid assignment target")
	}
}

// binary compiles the right operand one level tighter than the operator,
// making every binary operator left-associative, then emits its opcode.
// Operators without a dedicated opcode are fused from a comparison and Not.
func (c *Compiler) binary(bool) {
	operator := c.parser.previous.Type
	rule := getRule(operator)
	c.parsePrecedence(rule.precedence + 1)

	switch operator {
	case token.Plus:
		c.pushByte(byte(bytecode.OpAdd))
	case token.Minus:
		c.pushByte(byte(bytecode.OpSub))
	case token.Star:
		c.pushByte(byte(bytecode.OpMul))
	case token.Slash:
		c.pushByte(byte(bytecode.OpDiv))
	case token.EqEq:
		c.pushByte(byte(bytecode.OpEqual))
	case token.BangEq:
		c.pushBytes(byte(bytecode.OpEqual), byte(bytecode.OpNot))
	case token.Gt:
		c.pushByte(byte(bytecode.OpGreater))
	case token.Gte:
		c.pushBytes(byte(bytecode.OpLess), byte(bytecode.OpNot))
	case token.Lt:
		c.pushByte(byte(bytecode.OpLess))
	case token.Lte:
		c.pushBytes(byte(bytecode.OpGreater), byte(bytecode.OpNot))
	}
}

func (c *Compiler) unary(bool) {
	operator := c.parser.previous.Type
	c.parsePrecedence(PrecUnary)

	switch operator {
	case token.Minus:
		c.pushByte(byte(bytecode.OpNegate))
	case token.Bang:
		c.pushByte(byte(bytecode.OpNot))
	}
}

func (c *Compiler) grouping(bool) {
	c.expression()
	c.consume(token.RParen, "expected ')' after expression")
}

func (c *Compiler) literal(bool) {
	switch c.parser.previous.Type {
	case token.True:
		c.pushByte(byte(bytecode.OpTrue))
	case token.False:
		c.pushByte(byte(bytecode.OpFalse))
	case token.Null:
		c.pushByte(byte(bytecode.OpNull))
	}
}

// number parses the literal's text into a double. `_` and `'` are legal
// filler inside literals and are stripped before conversion.
func (c *Compiler) number(bool) {
	text := strings.NewReplacer("_", "", "'", "").Replace(c.lexeme(c.parser.previous))

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		c.error("invalid numeric literal")
		return
	}

	c.pushConstant(bytecode.NumberValue(value))
}

// string_ emits the literal's contents, without the surrounding quotes, as
// a string object constant.
func (c *Compiler) string_(bool) {
	text := c.lexeme(c.parser.previous)
	chars := text[1 : len(text)-1]

	c.pushConstant(bytecode.ObjValue(&bytecode.ObjString{Chars: chars}))
}

func (c *Compiler) character(bool) {
	text := c.lexeme(c.parser.previous)
	c.pushConstant(bytecode.CharValue(text[0]))
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.parser.previous, canAssign)
}

// and short-circuits: with a falsey left operand the jump skips the right
// operand entirely and the left value is the result. Otherwise the left
// value is popped and the right operand becomes the result.
func (c *Compiler) and(bool) {
	endJump := c.pushJump(byte(bytecode.OpJz))

	c.pushByte(byte(bytecode.OpPop))
	c.parsePrecedence(PrecAnd)

	c.patchJump(endJump)
}

// or short-circuits the dual way: a truthy left operand jumps over the
// right operand and remains the result.
func (c *Compiler) or(bool) {
	elseJump := c.pushJump(byte(bytecode.OpJz))
	endJump := c.pushJump(byte(bytecode.OpJmp))

	c.patchJump(elseJump)
	c.pushByte(byte(bytecode.OpPop))

	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}
