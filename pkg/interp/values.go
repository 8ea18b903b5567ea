package interp

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Locals holds the variables of one function activation. Assignments only
// ever write here.
type Locals map[string]interface{}

// List is a growable sequence created by the `list` builtin.
type List struct {
	Items []interface{}
}

// NewList returns a list holding a copy of items.
func NewList(items ...interface{}) *List {
	return &List{Items: append([]interface{}(nil), items...)}
}

// Dict is a map that remembers key insertion order, so iteration is
// deterministic.
type Dict struct {
	keys []interface{}
	m    map[interface{}]interface{}
}

// NewDict returns an empty dict.
func NewDict() *Dict {
	return &Dict{m: make(map[interface{}]interface{})}
}

// Set stores v under k. Keys must be comparable.
func (d *Dict) Set(k, v interface{}) error {
	if k != nil && !reflect.TypeOf(k).Comparable() {
		return castErrorf("%s cannot be used as a dict key", TypeName(k))
	}
	if _, ok := d.m[k]; !ok {
		d.keys = append(d.keys, k)
	}
	d.m[k] = v
	return nil
}

// Get returns the value stored under k.
func (d *Dict) Get(k interface{}) (interface{}, bool) {
	if k != nil && !reflect.TypeOf(k).Comparable() {
		return nil, false
	}
	v, ok := d.m[k]
	return v, ok
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []interface{} {
	return append([]interface{}(nil), d.keys...)
}

func (d *Dict) Len() int { return len(d.keys) }

// Constructor is one way to build an instance of a Class.
type Constructor struct {
	Params []string
	New    func(args []interface{}) (interface{}, error)
}

// Class is a host type exposed to scripts. Scripts may list its
// constructors with `dir()` and build instances with `new(...)` when the
// registry allows it.
type Class struct {
	Name  string
	Ctors []Constructor
}

// NewClass builds a Class from plain Go constructor funcs. Parameter names
// shown by `dir()` are the Go type names.
func NewClass(name string, ctors ...interface{}) *Class {
	c := &Class{Name: name}
	for _, fn := range ctors {
		fv := reflect.ValueOf(fn)
		if fv.Kind() != reflect.Func {
			panic(fmt.Sprintf("interp: constructor for %s is %T, not a func", name, fn))
		}
		var params []string
		for i := 0; i < fv.Type().NumIn(); i++ {
			params = append(params, fv.Type().In(i).String())
		}
		c.Ctors = append(c.Ctors, Constructor{
			Params: params,
			New: func(args []interface{}) (interface{}, error) {
				return callFunc(name, fv, args)
			},
		})
	}
	return c
}

// TypeName is the script-facing name of a value's type.
func TypeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case int32:
		return "int"
	case int64:
		return "long"
	case float64:
		return "float"
	case string:
		return "string"
	case bool:
		return "bool"
	case []interface{}:
		return "array"
	case *List:
		return "list"
	case *Dict:
		return "dict"
	case *Class:
		return "class"
	}
	return fmt.Sprintf("%T", v)
}

// FormatValue renders a value the way `log` and the REPL print it.
func FormatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10) + "L"
	case float64:
		s := strconv.FormatFloat(t, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s
	case []interface{}:
		return formatSeq(t)
	case *List:
		return formatSeq(t.Items)
	case *Dict:
		var sb strings.Builder
		sb.WriteByte('{')
		for i, k := range t.keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(FormatValue(k))
			sb.WriteString(": ")
			sb.WriteString(FormatValue(t.m[k]))
		}
		sb.WriteByte('}')
		return sb.String()
	case *Class:
		return "class " + t.Name
	}
	return fmt.Sprint(v)
}

func formatSeq(items []interface{}) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = FormatValue(it)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// valuesEqual is == for script values. Values of different dynamic types
// are never equal; uncomparable values compare deeply.
func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// elements returns the items a for loop visits, and false when v is not
// iterable.
func elements(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case []interface{}:
		return t, true
	case *List:
		return append([]interface{}(nil), t.Items...), true
	case *Dict:
		return t.Keys(), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, true
	}
	return nil, false
}
