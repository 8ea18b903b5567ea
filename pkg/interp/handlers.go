package interp

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Handler serves method calls on values of one Go type.
type Handler interface {
	CallMethod(recv interface{}, name string, args []interface{}) (interface{}, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(recv interface{}, name string, args []interface{}) (interface{}, error)

func (f HandlerFunc) CallMethod(recv interface{}, name string, args []interface{}) (interface{}, error) {
	return f(recv, name, args)
}

type method func(recv interface{}, args []interface{}) (interface{}, error)

// methodTable is a Handler backed by a fixed set of lower-case method names.
type methodTable struct {
	typeName string
	methods  map[string]method
}

func (t *methodTable) CallMethod(recv interface{}, name string, args []interface{}) (interface{}, error) {
	m, ok := t.methods[name]
	if !ok {
		return nil, notFoundf("method %s not found on %s", name, t.typeName)
	}
	return m(recv, args)
}

// Methods returns the method names in sorted order.
func (t *methodTable) Methods() []string {
	names := make([]string, 0, len(t.methods))
	for n := range t.methods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

func arity(name string, args []interface{}, n int) error {
	if len(args) != n {
		return wrongArity(name, strconv.Itoa(n), len(args))
	}
	return nil
}

func intArg(name string, args []interface{}, i int) (int, error) {
	switch v := args[i].(type) {
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case int:
		return v, nil
	}
	return 0, castErrorf("argument %d of %s must be an int, got %s", i+1, name, TypeName(args[i]))
}

func stringArg(name string, args []interface{}, i int) (string, error) {
	if s, ok := args[i].(string); ok {
		return s, nil
	}
	return "", castErrorf("argument %d of %s must be a string, got %s", i+1, name, TypeName(args[i]))
}

// ---------------------------------------------------------------------------
// Strings
//
// Indices count runes, not bytes.
// ---------------------------------------------------------------------------

var stringMethods = &methodTable{typeName: "string", methods: map[string]method{
	"substring": func(recv interface{}, args []interface{}) (interface{}, error) {
		r := []rune(recv.(string))
		if len(args) != 1 && len(args) != 2 {
			return nil, wrongArity("substring", "1 or 2", len(args))
		}
		from, err := intArg("substring", args, 0)
		if err != nil {
			return nil, err
		}
		to := len(r)
		if len(args) == 2 {
			if to, err = intArg("substring", args, 1); err != nil {
				return nil, err
			}
		}
		if from < 0 || to > len(r) || from > to {
			return nil, runtimeErrorf("substring(%d, %d) out of range for length %d", from, to, len(r))
		}
		return string(r[from:to]), nil
	},
	"charat": func(recv interface{}, args []interface{}) (interface{}, error) {
		if err := arity("charat", args, 1); err != nil {
			return nil, err
		}
		r := []rune(recv.(string))
		i, err := intArg("charat", args, 0)
		if err != nil {
			return nil, err
		}
		if i < 0 || i >= len(r) {
			return nil, runtimeErrorf("charat(%d) out of range for length %d", i, len(r))
		}
		return string(r[i]), nil
	},
	"compareto": func(recv interface{}, args []interface{}) (interface{}, error) {
		if err := arity("compareto", args, 1); err != nil {
			return nil, err
		}
		other, err := stringArg("compareto", args, 0)
		if err != nil {
			return nil, err
		}
		return int32(strings.Compare(recv.(string), other)), nil
	},
	"comparetoignorecase": func(recv interface{}, args []interface{}) (interface{}, error) {
		if err := arity("comparetoignorecase", args, 1); err != nil {
			return nil, err
		}
		other, err := stringArg("comparetoignorecase", args, 0)
		if err != nil {
			return nil, err
		}
		return int32(strings.Compare(strings.ToLower(recv.(string)), strings.ToLower(other))), nil
	},
	"length": func(recv interface{}, args []interface{}) (interface{}, error) {
		if err := arity("length", args, 0); err != nil {
			return nil, err
		}
		return int32(len([]rune(recv.(string)))), nil
	},
	"startswith": func(recv interface{}, args []interface{}) (interface{}, error) {
		if len(args) != 1 && len(args) != 2 {
			return nil, wrongArity("startswith", "1 or 2", len(args))
		}
		prefix, err := stringArg("startswith", args, 0)
		if err != nil {
			return nil, err
		}
		r := []rune(recv.(string))
		if len(args) == 2 {
			off, err := intArg("startswith", args, 1)
			if err != nil {
				return nil, err
			}
			if off < 0 || off > len(r) {
				return false, nil
			}
			r = r[off:]
		}
		return strings.HasPrefix(string(r), prefix), nil
	},
	"endswith": func(recv interface{}, args []interface{}) (interface{}, error) {
		if err := arity("endswith", args, 1); err != nil {
			return nil, err
		}
		suffix, err := stringArg("endswith", args, 0)
		if err != nil {
			return nil, err
		}
		return strings.HasSuffix(recv.(string), suffix), nil
	},
	"tolowercase": func(recv interface{}, args []interface{}) (interface{}, error) {
		if err := arity("tolowercase", args, 0); err != nil {
			return nil, err
		}
		return strings.ToLower(recv.(string)), nil
	},
	"touppercase": func(recv interface{}, args []interface{}) (interface{}, error) {
		if err := arity("touppercase", args, 0); err != nil {
			return nil, err
		}
		return strings.ToUpper(recv.(string)), nil
	},
	"split": func(recv interface{}, args []interface{}) (interface{}, error) {
		if len(args) != 1 && len(args) != 2 {
			return nil, wrongArity("split", "1 or 2", len(args))
		}
		pattern, err := stringArg("split", args, 0)
		if err != nil {
			return nil, err
		}
		limit := 0
		if len(args) == 2 {
			if limit, err = intArg("split", args, 1); err != nil {
				return nil, err
			}
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, runtimeErrorf("split: bad pattern %q: %v", pattern, err)
		}
		return splitRegexp(re, recv.(string), limit), nil
	},
}}

// splitRegexp splits s around matches of re. A positive limit caps the
// number of parts; zero drops trailing empty parts; negative keeps all.
func splitRegexp(re *regexp.Regexp, s string, limit int) []interface{} {
	n := -1
	if limit > 0 {
		n = limit
	}
	parts := re.Split(s, n)
	if limit == 0 {
		for len(parts) > 0 && parts[len(parts)-1] == "" {
			parts = parts[:len(parts)-1]
		}
	}
	out := make([]interface{}, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out
}

// ---------------------------------------------------------------------------
// Numbers
// ---------------------------------------------------------------------------

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case float32:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func hashNumber(v interface{}) int32 {
	switch n := v.(type) {
	case int64:
		return int32(n ^ int64(uint64(n)>>32))
	case float64:
		bits := math.Float64bits(n)
		return int32(bits ^ bits>>32)
	case float32:
		return int32(math.Float32bits(n))
	}
	return int32(toInt64(v))
}

func numberMethod(conv func(interface{}) interface{}) method {
	return func(recv interface{}, args []interface{}) (interface{}, error) {
		if len(args) != 0 {
			return nil, wrongArity("conversion", "0", len(args))
		}
		return conv(recv), nil
	}
}

var numberMethods = &methodTable{typeName: "number", methods: map[string]method{
	"bytevalue":  numberMethod(func(v interface{}) interface{} { return int8(toInt64(v)) }),
	"shortvalue": numberMethod(func(v interface{}) interface{} { return int16(toInt64(v)) }),
	"intvalue":   numberMethod(func(v interface{}) interface{} { return int32(toInt64(v)) }),
	"longvalue":  numberMethod(func(v interface{}) interface{} { return toInt64(v) }),
	"floatvalue": numberMethod(func(v interface{}) interface{} {
		f, _ := toFloat(v)
		return float32(f)
	}),
	"doublevalue": numberMethod(func(v interface{}) interface{} {
		f, _ := toFloat(v)
		return f
	}),
	"hashcode": numberMethod(func(v interface{}) interface{} { return hashNumber(v) }),
	"tostring": numberMethod(func(v interface{}) interface{} {
		if _, ok := v.(int64); ok {
			return strconv.FormatInt(v.(int64), 10)
		}
		return FormatValue(v)
	}),
}}

// ---------------------------------------------------------------------------
// Arrays, lists and dicts
// ---------------------------------------------------------------------------

func index(name string, args []interface{}, n int) (int, error) {
	i, err := intArg(name, args, 0)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= n {
		return 0, runtimeErrorf("%s: index %d out of range for length %d", name, i, n)
	}
	return i, nil
}

func contains(items []interface{}, v interface{}) bool {
	for _, it := range items {
		if valuesEqual(it, v) {
			return true
		}
	}
	return false
}

var arrayMethods = &methodTable{typeName: "array", methods: map[string]method{
	"length": func(recv interface{}, args []interface{}) (interface{}, error) {
		if err := arity("length", args, 0); err != nil {
			return nil, err
		}
		return int32(len(recv.([]interface{}))), nil
	},
	"get": func(recv interface{}, args []interface{}) (interface{}, error) {
		a := recv.([]interface{})
		if err := arity("get", args, 1); err != nil {
			return nil, err
		}
		i, err := index("get", args, len(a))
		if err != nil {
			return nil, err
		}
		return a[i], nil
	},
	"set": func(recv interface{}, args []interface{}) (interface{}, error) {
		a := recv.([]interface{})
		if err := arity("set", args, 2); err != nil {
			return nil, err
		}
		i, err := index("set", args, len(a))
		if err != nil {
			return nil, err
		}
		a[i] = args[1]
		return args[1], nil
	},
	"contains": func(recv interface{}, args []interface{}) (interface{}, error) {
		if err := arity("contains", args, 1); err != nil {
			return nil, err
		}
		return contains(recv.([]interface{}), args[0]), nil
	},
}}

var listMethods = &methodTable{typeName: "list", methods: map[string]method{
	"add": func(recv interface{}, args []interface{}) (interface{}, error) {
		l := recv.(*List)
		l.Items = append(l.Items, args...)
		return true, nil
	},
	"get": func(recv interface{}, args []interface{}) (interface{}, error) {
		l := recv.(*List)
		if err := arity("get", args, 1); err != nil {
			return nil, err
		}
		i, err := index("get", args, len(l.Items))
		if err != nil {
			return nil, err
		}
		return l.Items[i], nil
	},
	"set": func(recv interface{}, args []interface{}) (interface{}, error) {
		l := recv.(*List)
		if err := arity("set", args, 2); err != nil {
			return nil, err
		}
		i, err := index("set", args, len(l.Items))
		if err != nil {
			return nil, err
		}
		l.Items[i] = args[1]
		return args[1], nil
	},
	"size": func(recv interface{}, args []interface{}) (interface{}, error) {
		if err := arity("size", args, 0); err != nil {
			return nil, err
		}
		return int32(len(recv.(*List).Items)), nil
	},
	"contains": func(recv interface{}, args []interface{}) (interface{}, error) {
		if err := arity("contains", args, 1); err != nil {
			return nil, err
		}
		return contains(recv.(*List).Items, args[0]), nil
	},
}}

var dictMethods = &methodTable{typeName: "dict", methods: map[string]method{
	"get": func(recv interface{}, args []interface{}) (interface{}, error) {
		if err := arity("get", args, 1); err != nil {
			return nil, err
		}
		v, _ := recv.(*Dict).Get(args[0])
		return v, nil
	},
	"put": func(recv interface{}, args []interface{}) (interface{}, error) {
		if err := arity("put", args, 2); err != nil {
			return nil, err
		}
		return args[1], recv.(*Dict).Set(args[0], args[1])
	},
	"containskey": func(recv interface{}, args []interface{}) (interface{}, error) {
		if err := arity("containskey", args, 1); err != nil {
			return nil, err
		}
		_, ok := recv.(*Dict).Get(args[0])
		return ok, nil
	},
	"keys": func(recv interface{}, args []interface{}) (interface{}, error) {
		if err := arity("keys", args, 0); err != nil {
			return nil, err
		}
		return recv.(*Dict).Keys(), nil
	},
	"size": func(recv interface{}, args []interface{}) (interface{}, error) {
		if err := arity("size", args, 0); err != nil {
			return nil, err
		}
		return int32(recv.(*Dict).Len()), nil
	},
}}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

func (r *Registry) classMethods() *methodTable {
	return &methodTable{typeName: "class", methods: map[string]method{
		"dir": func(recv interface{}, args []interface{}) (interface{}, error) {
			c := recv.(*Class)
			var sb strings.Builder
			for _, ctor := range c.Ctors {
				sb.WriteString(c.Name + "(" + strings.Join(ctor.Params, ", ") + ")\n")
			}
			return sb.String(), nil
		},
		"new": func(recv interface{}, args []interface{}) (interface{}, error) {
			c := recv.(*Class)
			if !r.trusted && !r.allowed[c.Name] {
				return nil, &SecurityError{Msg: "instantiating " + c.Name + " is not allowed"}
			}
			var lastErr error
			for _, ctor := range c.Ctors {
				if len(ctor.Params) != len(args) {
					continue
				}
				v, err := ctor.New(args)
				if err == nil {
					return v, nil
				}
				lastErr = err
			}
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, notFoundf("constructor for %s with %d arguments not found", c.Name, len(args))
		},
	}}
}
