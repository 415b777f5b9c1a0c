package compiler

// CompileError is returned by Compile when the source does not compile.
// Message is the fully rendered diagnostic, already carrying the file,
// position and offending lexeme.
type CompileError struct {
	Message string
}

func (e CompileError) Error() string {
	return e.Message
}
