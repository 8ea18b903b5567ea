package bytecode

import "fmt"

// CompileError reports a program the bytecode backend cannot lower. No
// partial module is produced.
type CompileError struct {
	Msg string
}

func (e *CompileError) Error() string { return "compile error: " + e.Msg }

func compileErrorf(format string, args ...interface{}) *CompileError {
	return &CompileError{Msg: fmt.Sprintf(format, args...)}
}
