package interp

import (
	"errors"
	"io"
	"reflect"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("govm.interp")

// Host is everything a script can reach outside its own locals.
type Host interface {
	// Resolve looks a variable up, locals first.
	Resolve(locals Locals, name string) (interface{}, bool)
	// Call invokes a function (nil receiver) or a method on receiver.
	Call(receiver interface{}, name string, locals Locals, args []interface{}) (interface{}, error)
}

// Func is a host function callable from scripts with a nil receiver.
// Returning a NotFound or WrongArity RuntimeError lets resolution continue
// with the builtin table.
type Func func(locals Locals, args []interface{}) (interface{}, error)

// Registry is the default Host. It holds host variables, host functions
// and per-type method handlers; nothing is shared between registries.
type Registry struct {
	// Output receives `log` lines when set; otherwise they go to the
	// govm.interp logger.
	Output io.Writer

	vars     map[string]interface{}
	funcs    map[string]Func
	handlers map[reflect.Type]Handler
	allowed  map[string]bool
	trusted  bool
}

// NewRegistry returns a Registry with the builtin handlers installed and
// `true`, `false` and `null` defined.
func NewRegistry() *Registry {
	r := &Registry{
		vars:     map[string]interface{}{"true": true, "false": false, "null": nil},
		funcs:    make(map[string]Func),
		handlers: make(map[reflect.Type]Handler),
		allowed:  make(map[string]bool),
	}
	r.Handle("", stringMethods)
	for _, sample := range []interface{}{int32(0), int64(0), float64(0), int(0), int8(0), int16(0), float32(0)} {
		r.Handle(sample, numberMethods)
	}
	r.Handle(&List{}, listMethods)
	r.Handle(&Dict{}, dictMethods)
	r.Handle(&Class{}, r.classMethods())
	return r
}

// SetVar defines a host variable.
func (r *Registry) SetVar(name string, v interface{}) { r.vars[name] = v }

// Define registers a host function.
func (r *Registry) Define(name string, fn Func) { r.funcs[name] = fn }

// Handle routes method calls on values with the exact dynamic type of
// sample to h.
func (r *Registry) Handle(sample interface{}, h Handler) {
	r.handlers[reflect.TypeOf(sample)] = h
}

// Allow permits scripts to call `new` on the named class.
func (r *Registry) Allow(className string, allow bool) {
	r.allowed[className] = allow
}

// SetTrusted enables the reflective bridge for types without a handler.
// Trust cannot be revoked once granted.
func (r *Registry) SetTrusted(trusted bool) error {
	if r.trusted && !trusted {
		return errors.New("interp: trusted mode cannot be disabled once enabled")
	}
	if trusted && !r.trusted {
		log.Warning("trusted mode enabled: scripts may call any exported method")
	}
	r.trusted = trusted
	return nil
}

// Trusted reports whether the reflective bridge is enabled.
func (r *Registry) Trusted() bool { return r.trusted }

func (r *Registry) Resolve(locals Locals, name string) (interface{}, bool) {
	if v, ok := locals[name]; ok {
		return v, true
	}
	v, ok := r.vars[name]
	return v, ok
}

func (r *Registry) Call(receiver interface{}, name string, locals Locals, args []interface{}) (interface{}, error) {
	if a, ok := receiver.([]interface{}); ok {
		return arrayMethods.CallMethod(a, name, args)
	}

	if receiver == nil {
		if fn, ok := r.funcs[name]; ok {
			v, err := fn(locals, args)
			if err == nil || !isRecoverable(err) {
				return v, err
			}
			log.Debugf("host function %s declined: %v", name, err)
		}
	} else {
		t := reflect.TypeOf(receiver)
		h, ok := r.handlers[t]
		if !ok && r.trusted {
			log.Infof("installing reflective handler for %s", t)
			h = ReflectHandler{}
			r.handlers[t] = h
			ok = true
		}
		if ok {
			return h.CallMethod(receiver, name, args)
		}
	}

	if receiver != nil {
		return nil, notFoundf("method %s not found on %s", name, TypeName(receiver))
	}
	if b, ok := builtins[name]; ok {
		return b(r, locals, args)
	}
	return nil, notFoundf("function %s not found", name)
}
