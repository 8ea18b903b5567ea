package interp

import "fmt"

// ErrorKind classifies a RuntimeError.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindNotFound
	KindWrongArity
	KindCast
	KindSecurity
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindWrongArity:
		return "wrong arity"
	case KindCast:
		return "cast"
	case KindSecurity:
		return "security"
	default:
		return "runtime"
	}
}

// RuntimeError is an evaluation failure. It unwinds the whole call; no
// block construct catches it.
type RuntimeError struct {
	Kind ErrorKind
	Msg  string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.Msg)
}

// Is matches the kind sentinels below, so callers can write
// errors.Is(err, interp.ErrNotFound).
func (e *RuntimeError) Is(target error) bool {
	t, ok := target.(*RuntimeError)
	return ok && t.Msg == "" && t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrNotFound   = &RuntimeError{Kind: KindNotFound}
	ErrWrongArity = &RuntimeError{Kind: KindWrongArity}
	ErrCast       = &RuntimeError{Kind: KindCast}
	ErrSecurity   = &RuntimeError{Kind: KindSecurity}
)

// SecurityError is raised when a script reaches for a capability the host
// has not granted. It also satisfies errors.As(err, **RuntimeError).
type SecurityError struct {
	Msg string
}

func (e *SecurityError) Error() string { return "security error: " + e.Msg }

func (e *SecurityError) As(target interface{}) bool {
	if t, ok := target.(**RuntimeError); ok {
		*t = &RuntimeError{Kind: KindSecurity, Msg: e.Msg}
		return true
	}
	return false
}

func (e *SecurityError) Is(target error) bool { return target == ErrSecurity }

func runtimeErrorf(format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Kind: KindOther, Msg: fmt.Sprintf(format, args...)}
}

func notFoundf(format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func castErrorf(format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{Kind: KindCast, Msg: fmt.Sprintf(format, args...)}
}

func wrongArity(name string, want string, got int) *RuntimeError {
	return &RuntimeError{
		Kind: KindWrongArity,
		Msg:  fmt.Sprintf("%s expects %s arguments, %d given", name, want, got),
	}
}

// isRecoverable reports whether a host function failure should fall
// through to the next resolution step instead of aborting the call.
func isRecoverable(err error) bool {
	re, ok := err.(*RuntimeError)
	return ok && (re.Kind == KindNotFound || re.Kind == KindWrongArity)
}
