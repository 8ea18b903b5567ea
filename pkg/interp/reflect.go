package interp

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// ReflectHandler exposes every exported method of a Go value to scripts.
// Method names match case-insensitively, so `sb.append("x")` reaches
// Append. Only a trusted Registry installs it.
type ReflectHandler struct{}

func (ReflectHandler) CallMethod(recv interface{}, name string, args []interface{}) (interface{}, error) {
	rv := reflect.ValueOf(recv)
	if !rv.IsValid() {
		return nil, notFoundf("method %s not found on null", name)
	}
	t := rv.Type()
	arityMismatch := false
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if !strings.EqualFold(m.Name, name) {
			continue
		}
		fn := rv.Method(i)
		if !acceptsArgs(fn.Type(), len(args)) {
			arityMismatch = true
			continue
		}
		return callFunc(m.Name, fn, args)
	}
	if arityMismatch {
		return nil, &RuntimeError{Kind: KindWrongArity, Msg: "no overload of " + name + " takes the given arguments"}
	}
	return nil, notFoundf("method %s not found on %s", name, TypeName(recv))
}

func acceptsArgs(ft reflect.Type, n int) bool {
	if ft.IsVariadic() {
		return n >= ft.NumIn()-1
	}
	return n == ft.NumIn()
}

// callFunc invokes fn with script values, converting numbers to the
// declared parameter types. A trailing error result becomes the call's
// error.
func callFunc(name string, fn reflect.Value, args []interface{}) (interface{}, error) {
	ft := fn.Type()
	if !acceptsArgs(ft, len(args)) {
		return nil, wrongArity(name, describeArity(ft), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var pt reflect.Type
		if ft.IsVariadic() && i >= ft.NumIn()-1 {
			pt = ft.In(ft.NumIn() - 1).Elem()
		} else {
			pt = ft.In(i)
		}
		v, err := convertArg(a, pt)
		if err != nil {
			return nil, castErrorf("argument %d of %s: %v", i+1, name, err)
		}
		in[i] = v
	}

	out := fn.Call(in)
	if n := len(out); n > 0 && ft.Out(n-1) == errorType {
		if e := out[n-1].Interface(); e != nil {
			return nil, e.(error)
		}
		out = out[:n-1]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}

func describeArity(ft reflect.Type) string {
	if ft.IsVariadic() {
		return "at least " + strconv.Itoa(ft.NumIn()-1)
	}
	return strconv.Itoa(ft.NumIn())
}

func convertArg(a interface{}, pt reflect.Type) (reflect.Value, error) {
	if a == nil {
		switch pt.Kind() {
		case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
			return reflect.Zero(pt), nil
		}
		return reflect.Value{}, fmt.Errorf("null is not a %s", pt)
	}
	v := reflect.ValueOf(a)
	if v.Type().AssignableTo(pt) {
		return v, nil
	}
	if isNumberKind(v.Kind()) && isNumberKind(pt.Kind()) {
		return v.Convert(pt), nil
	}
	return reflect.Value{}, fmt.Errorf("%s is not a %s", TypeName(a), pt)
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
