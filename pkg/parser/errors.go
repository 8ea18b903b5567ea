package parser

import "fmt"

// SyntaxError reports malformed source. Line is 1-based and zero when the
// error comes from a bare expression with no line context.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("syntax error: line %d: %s", e.Line, e.Msg)
	}
	return "syntax error: " + e.Msg
}

func syntaxErrorf(format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{Msg: fmt.Sprintf(format, args...)}
}

// atLine attaches a line number to err if it is a SyntaxError without one.
func atLine(err error, line int) error {
	if se, ok := err.(*SyntaxError); ok && se.Line == 0 {
		return &SyntaxError{Line: line, Msg: se.Msg}
	}
	return err
}
