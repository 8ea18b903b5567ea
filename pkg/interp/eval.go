package interp

import (
	"math"
	"strings"

	"github.com/hce/govm/pkg/ast"
)

// Outcome is the result of evaluating a block.
type Outcome struct {
	// Executed is true when the block's body (or one of its elif/else
	// branches) ran at least once.
	Executed bool
	// Returned is true when a return statement fired. Value holds what
	// it yielded, which may be nil.
	Returned bool
	Value    interface{}
}

// Evaluate runs a block against locals and host.
func Evaluate(b *ast.Block, locals Locals, host Host) (Outcome, error) {
	if locals == nil {
		return Outcome{}, runtimeErrorf("evaluate %s: nil locals", b.Label)
	}
	if b.For {
		return evalFor(b, locals, host)
	}

	var out Outcome
	cond, err := condition(b, locals, host)
	for err == nil && cond {
		out.Executed = true
		var body Outcome
		body, err = runBody(b, locals, host)
		if err != nil {
			return Outcome{}, err
		}
		if body.Returned || !b.While {
			return body, nil
		}
		cond, err = condition(b, locals, host)
	}
	if err != nil {
		return Outcome{}, err
	}
	if b.While {
		return out, nil
	}

	for _, elif := range b.Elifs {
		res, err := Evaluate(elif, locals, host)
		if err != nil {
			return Outcome{}, err
		}
		if res.Executed {
			return res, nil
		}
	}
	if b.Else != nil {
		return Evaluate(b.Else, locals, host)
	}
	return out, nil
}

// condition is true when absent; a non-bool value counts as false.
func condition(b *ast.Block, locals Locals, host Host) (bool, error) {
	if b.Condition == nil {
		return true, nil
	}
	v, err := Eval(b.Condition, locals, host)
	if err != nil {
		return false, err
	}
	ok, _ := v.(bool)
	return ok, nil
}

func runBody(b *ast.Block, locals Locals, host Host) (Outcome, error) {
	for _, stmt := range b.Statements {
		v, err := Eval(stmt, locals, host)
		if err != nil {
			return Outcome{}, err
		}
		if stmt.Returns() {
			return Outcome{Executed: true, Returned: true, Value: v}, nil
		}
	}
	for _, sub := range b.Blocks {
		res, err := Evaluate(sub, locals, host)
		if err != nil {
			return Outcome{}, err
		}
		if res.Returned {
			return res, nil
		}
	}
	return Outcome{Executed: true}, nil
}

func evalFor(b *ast.Block, locals Locals, host Host) (Outcome, error) {
	if b.Iterable == nil {
		return Outcome{}, nil
	}
	v, err := Eval(b.Iterable, locals, host)
	if err != nil {
		return Outcome{}, err
	}
	items, ok := elements(v)
	if !ok {
		return Outcome{}, nil
	}
	for _, item := range items {
		locals[b.Iterator] = item
		res, err := runBody(b, locals, host)
		if err != nil {
			return Outcome{}, err
		}
		if res.Returned {
			return res, nil
		}
	}
	return Outcome{Executed: true}, nil
}

// Eval evaluates a single expression node.
func Eval(n ast.Node, locals Locals, host Host) (interface{}, error) {
	switch v := n.(type) {
	case *ast.IntLit:
		return v.Value, nil
	case *ast.LongLit:
		return v.Value, nil
	case *ast.FloatLit:
		return v.Value, nil
	case *ast.StringLit:
		return v.Value, nil
	case *ast.Name:
		return v.Name, nil
	case *ast.VarRef:
		val, _ := host.Resolve(locals, v.Name)
		return val, nil
	case *ast.Call:
		args, err := evalArgs(v.Args, locals, host)
		if err != nil {
			return nil, err
		}
		return host.Call(nil, v.Func, locals, args)
	case *ast.Operation:
		return evalOp(v, locals, host)
	case nil:
		return nil, nil
	}
	return nil, runtimeErrorf("cannot evaluate %s node", n.Kind())
}

func evalArgs(nodes []ast.Node, locals Locals, host Host) ([]interface{}, error) {
	args := make([]interface{}, len(nodes))
	for i, a := range nodes {
		v, err := Eval(a, locals, host)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func evalOp(op *ast.Operation, locals Locals, host Host) (interface{}, error) {
	left, err := Eval(op.Left, locals, host)
	if err != nil {
		return nil, err
	}

	switch op.Op {
	case ast.OpMethod:
		if left == nil {
			return nil, runtimeErrorf("method %s called on null", op.Method)
		}
		args, err := evalArgs(op.Args, locals, host)
		if err != nil {
			return nil, err
		}
		return host.Call(left, op.Method, locals, args)

	case ast.OpAssign:
		name, ok := left.(string)
		if !ok {
			return nil, runtimeErrorf("invalid assignment target %v", left)
		}
		right, err := Eval(op.Right, locals, host)
		if err != nil {
			return nil, err
		}
		locals[name] = right
		return nil, nil

	case ast.OpAnd, ast.OpOr:
		lb, ok := left.(bool)
		if !ok {
			return nil, castErrorf("%s needs bool operands, got %s", op.Op, TypeName(left))
		}
		if (op.Op == ast.OpAnd && !lb) || (op.Op == ast.OpOr && lb) {
			return lb, nil
		}
		right, err := Eval(op.Right, locals, host)
		if err != nil {
			return nil, err
		}
		rb, ok := right.(bool)
		if !ok {
			return nil, castErrorf("%s needs bool operands, got %s", op.Op, TypeName(right))
		}
		return rb, nil
	}

	right, err := Eval(op.Right, locals, host)
	if err != nil {
		return nil, err
	}
	return Binary(op.Op, left, right)
}

// Binary applies a non-short-circuit operator. Dispatch is on the runtime
// type of left; right must have the same type except for `^`, `==` and
// `!=`.
func Binary(op ast.Operator, left, right interface{}) (interface{}, error) {
	switch op {
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv:
		return arith(op, left, right)
	case ast.OpPow:
		l, lok := toFloat(left)
		r, rok := toFloat(right)
		if !lok || !rok {
			return nil, mismatch(op, left, right)
		}
		return math.Pow(l, r), nil
	case ast.OpLT, ast.OpGT, ast.OpLE, ast.OpGE:
		if l, ok := left.(float64); ok {
			if r, ok := right.(float64); ok {
				return compareFloat(op, l, r), nil
			}
		}
		c, err := compare(op, left, right)
		if err != nil {
			return nil, err
		}
		switch op {
		case ast.OpLT:
			return c < 0, nil
		case ast.OpGT:
			return c > 0, nil
		case ast.OpLE:
			return c <= 0, nil
		}
		return c >= 0, nil
	case ast.OpEq:
		return valuesEqual(left, right), nil
	case ast.OpNE:
		return !valuesEqual(left, right), nil
	case ast.OpBitAnd, ast.OpBitOr, ast.OpShl, ast.OpShr:
		l, lok := left.(int32)
		r, rok := right.(int32)
		if !lok || !rok {
			return nil, mismatch(op, left, right)
		}
		switch op {
		case ast.OpBitAnd:
			return l & r, nil
		case ast.OpBitOr:
			return l | r, nil
		case ast.OpShl:
			return l << (uint32(r) & 31), nil
		}
		return l >> (uint32(r) & 31), nil
	}
	return nil, runtimeErrorf("operator %s is not supported", op)
}

func mismatch(op ast.Operator, left, right interface{}) error {
	return castErrorf("cannot apply %s to %s and %s", op, TypeName(left), TypeName(right))
}

func arith(op ast.Operator, left, right interface{}) (interface{}, error) {
	switch l := left.(type) {
	case int32:
		r, ok := right.(int32)
		if !ok {
			break
		}
		switch op {
		case ast.OpAdd:
			return l + r, nil
		case ast.OpSub:
			return l - r, nil
		case ast.OpMul:
			return l * r, nil
		}
		if r == 0 {
			return nil, runtimeErrorf("division by zero")
		}
		return l / r, nil

	case int64:
		r, ok := right.(int64)
		if !ok {
			break
		}
		switch op {
		case ast.OpAdd:
			return l + r, nil
		case ast.OpSub:
			return l - r, nil
		case ast.OpMul:
			return l * r, nil
		}
		if r == 0 {
			return nil, runtimeErrorf("division by zero")
		}
		return l / r, nil

	case float64:
		r, ok := right.(float64)
		if !ok {
			break
		}
		switch op {
		case ast.OpAdd:
			return l + r, nil
		case ast.OpSub:
			return l - r, nil
		case ast.OpMul:
			return l * r, nil
		}
		return l / r, nil

	case string:
		r, ok := right.(string)
		if ok && op == ast.OpAdd {
			return l + r, nil
		}
	}
	return nil, mismatch(op, left, right)
}

// compare orders two values of the same type.
func compare(op ast.Operator, left, right interface{}) (int, error) {
	switch l := left.(type) {
	case int32:
		if r, ok := right.(int32); ok {
			return cmp(l < r, l > r), nil
		}
	case int64:
		if r, ok := right.(int64); ok {
			return cmp(l < r, l > r), nil
		}
	case string:
		if r, ok := right.(string); ok {
			return strings.Compare(l, r), nil
		}
	}
	return 0, mismatch(op, left, right)
}

// compareFloat applies op directly so any comparison with NaN is false.
func compareFloat(op ast.Operator, l, r float64) bool {
	switch op {
	case ast.OpLT:
		return l < r
	case ast.OpGT:
		return l > r
	case ast.OpLE:
		return l <= r
	}
	return l >= r
}

func cmp(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	}
	return 0
}
