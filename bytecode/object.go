package bytecode

// ObjType discriminates the heap object variants.
type ObjType int

const (
	ObjStringType ObjType = iota
	ObjFunctionType
)

// Obj is a heap-allocated runtime object. Objects are created by the
// compiler (string and identifier constants) and by the VM (concatenation
// results); the VM owns every object it sees through its tracking list.
type Obj interface {
	ObjectType() ObjType
}

// ObjString is an owned character sequence.
type ObjString struct {
	Chars string
}

func (*ObjString) ObjectType() ObjType { return ObjStringType }

// ObjFunction is a compiled function: its arity, its byte block and its
// name. The top-level script is itself a function with an empty name, which
// unifies "main" and user functions under one evaluation mechanism.
type ObjFunction struct {
	Arity uint32
	Block ByteBlock
	Name  string
}

func (*ObjFunction) ObjectType() ObjType { return ObjFunctionType }
