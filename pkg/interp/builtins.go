package interp

import (
	"fmt"
	"sort"
)

// MaxRange bounds the array `range` may build.
const MaxRange = 1 << 20

type builtin func(r *Registry, locals Locals, args []interface{}) (interface{}, error)

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"format": builtinFormat,
		"log":    builtinLog,
		"deref":  builtinDeref,
		"isnull": builtinIsNull,
		"array":  builtinArray,
		"range":  builtinRange,
		"list":   builtinList,
		"dict":   builtinDict,
	}
	listMethods.methods["length"] = listMethods.methods["size"]
}

// BuiltinNames lists the functions every Registry provides.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// StringMethods lists the methods callable on string values.
func StringMethods() []string { return stringMethods.Methods() }

// builtinFormat implements format(fmt, args...). The format string uses
// Go's fmt verbs, not Java's: %d for int32 and int64, %f/%g/%e for float64,
// %s and %q for strings, %v for any value, %x for hex (a string prints its
// bytes in hex). There is no %n; write "\n". A verb that does not match its
// argument renders inline as %!verb(type=value) rather than failing.
func builtinFormat(r *Registry, _ Locals, args []interface{}) (interface{}, error) {
	if len(args) < 2 {
		return nil, wrongArity("format", "at least 2", len(args))
	}
	f, err := stringArg("format", args, 0)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf(f, args[1:]...), nil
}

func builtinLog(r *Registry, _ Locals, args []interface{}) (interface{}, error) {
	if err := arity("log", args, 1); err != nil {
		return nil, err
	}
	msg := FormatValue(args[0])
	if r.Output != nil {
		fmt.Fprintf(r.Output, "ScriptLog: %s\n", msg)
	} else {
		log.Infof("ScriptLog: %s", msg)
	}
	return true, nil
}

func builtinDeref(r *Registry, locals Locals, args []interface{}) (interface{}, error) {
	if err := arity("deref", args, 1); err != nil {
		return nil, err
	}
	name, err := stringArg("deref", args, 0)
	if err != nil {
		return nil, err
	}
	v, _ := r.Resolve(locals, name)
	return v, nil
}

func builtinIsNull(_ *Registry, _ Locals, args []interface{}) (interface{}, error) {
	if err := arity("isnull", args, 1); err != nil {
		return nil, err
	}
	return args[0] == nil, nil
}

func builtinArray(_ *Registry, _ Locals, args []interface{}) (interface{}, error) {
	return append([]interface{}{}, args...), nil
}

func builtinRange(_ *Registry, _ Locals, args []interface{}) (interface{}, error) {
	var from, to int
	var err error
	switch len(args) {
	case 1:
		to, err = intArg("range", args, 0)
	case 2:
		if from, err = intArg("range", args, 0); err == nil {
			to, err = intArg("range", args, 1)
		}
	default:
		return nil, wrongArity("range", "1 or 2", len(args))
	}
	if err != nil {
		return nil, err
	}
	if to-from > MaxRange {
		return nil, runtimeErrorf("range of %d elements exceeds the limit of %d", to-from, MaxRange)
	}
	out := []interface{}{}
	for i := from; i < to; i++ {
		out = append(out, int32(i))
	}
	return out, nil
}

func builtinList(_ *Registry, _ Locals, args []interface{}) (interface{}, error) {
	return NewList(args...), nil
}

func builtinDict(_ *Registry, _ Locals, args []interface{}) (interface{}, error) {
	if len(args)%2 != 0 {
		return nil, runtimeErrorf("dict expects key/value pairs, got %d arguments", len(args))
	}
	d := NewDict()
	for i := 0; i < len(args); i += 2 {
		if err := d.Set(args[i], args[i+1]); err != nil {
			return nil, err
		}
	}
	return d, nil
}
