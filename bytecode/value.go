// Package bytecode holds the ABI shared by the compiler and the virtual
// machine: runtime values, heap objects, the compiled byte block, the
// opcode set and the disassembler. The compiler emits into these types and
// the VM executes them; keeping both sides on one definition is what makes
// the stack effects and operand layouts consistent.
package bytecode

import (
	"fmt"
	"strconv"
)

// ValueType tags the variant held by a Value.
type ValueType int

const (
	ValNumber ValueType = iota
	ValBool
	ValCharacter
	ValNull
	ValObj
)

// Value is a tagged union over the dynamix scalar types and heap object
// references. Values are small and copied freely; only the object variant
// points at shared state.
type Value struct {
	Type      ValueType
	number    float64
	boolean   bool
	character byte
	object    Obj
}

func NumberValue(n float64) Value {
	return Value{Type: ValNumber, number: n}
}

func BoolValue(b bool) Value {
	return Value{Type: ValBool, boolean: b}
}

func CharValue(c byte) Value {
	return Value{Type: ValCharacter, character: c}
}

func NullValue() Value {
	return Value{Type: ValNull}
}

func ObjValue(o Obj) Value {
	return Value{Type: ValObj, object: o}
}

// Is reports whether the value holds the given variant.
func (v Value) Is(t ValueType) bool {
	return v.Type == t
}

func (v Value) IsObject() bool {
	return v.Is(ValObj)
}

func (v Value) isObjectType(t ObjType) bool {
	return v.IsObject() && v.object.ObjectType() == t
}

func (v Value) IsString() bool {
	return v.isObjectType(ObjStringType)
}

func (v Value) IsFunction() bool {
	return v.isObjectType(ObjFunctionType)
}

// AsNumber returns the numeric payload. The second result is false when the
// value holds a different variant.
func (v Value) AsNumber() (float64, bool) {
	if !v.Is(ValNumber) {
		return 0, false
	}
	return v.number, true
}

func (v Value) AsBool() (bool, bool) {
	if !v.Is(ValBool) {
		return false, false
	}
	return v.boolean, true
}

func (v Value) AsChar() (byte, bool) {
	if !v.Is(ValCharacter) {
		return 0, false
	}
	return v.character, true
}

func (v Value) AsObject() (Obj, bool) {
	if !v.IsObject() {
		return nil, false
	}
	return v.object, true
}

func (v Value) AsString() (*ObjString, bool) {
	if !v.IsString() {
		return nil, false
	}
	return v.object.(*ObjString), true
}

func (v Value) AsFunction() (*ObjFunction, bool) {
	if !v.IsFunction() {
		return nil, false
	}
	return v.object.(*ObjFunction), true
}

// TypeName renders the value's type for diagnostics, distinguishing the
// object variants.
func (v Value) TypeName() string {
	switch v.Type {
	case ValNumber:
		return "number"
	case ValBool:
		return "bool"
	case ValCharacter:
		return "char"
	case ValNull:
		return "null"
	case ValObj:
		switch v.object.ObjectType() {
		case ObjStringType:
			return "String"
		case ObjFunctionType:
			return "Function"
		}
	}
	return "None"
}

// Equals is structural equality: same tag, same payload. Strings compare by
// bytes. Functions compare by name and arity, not identity; two distinct
// function objects with the same signature are equal.
func (v Value) Equals(other Value) bool {
	if v.Type != other.Type {
		return false
	}

	switch v.Type {
	case ValNumber:
		return v.number == other.number
	case ValBool:
		return v.boolean == other.boolean
	case ValCharacter:
		return v.character == other.character
	case ValNull:
		return true
	case ValObj:
		if v.object.ObjectType() != other.object.ObjectType() {
			return false
		}
		switch lhs := v.object.(type) {
		case *ObjString:
			rhs := other.object.(*ObjString)
			return lhs.Chars == rhs.Chars
		case *ObjFunction:
			rhs := other.object.(*ObjFunction)
			return lhs.Name == rhs.Name && lhs.Arity == rhs.Arity
		}
	}
	return false
}

// String renders the value the way print shows it: numbers in shortest
// round-trip decimal form, characters and string contents raw, functions as
// <fn name>.
func (v Value) String() string {
	switch v.Type {
	case ValNumber:
		return strconv.FormatFloat(v.number, 'g', -1, 64)
	case ValBool:
		if v.boolean {
			return "true"
		}
		return "false"
	case ValCharacter:
		return string(v.character)
	case ValNull:
		return "null"
	case ValObj:
		switch obj := v.object.(type) {
		case *ObjString:
			return obj.Chars
		case *ObjFunction:
			name := obj.Name
			if name == "" {
				name = "<script>"
			}
			return fmt.Sprintf("<fn %s>", name)
		}
	}
	return "None"
}
