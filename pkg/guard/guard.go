/*
Package guard compiles and evaluates edge guard expressions.

Guards are restricted HCL expressions evaluated against a read-only state
snapshot: path lookups, comparisons, boolean connectives, membership and
length checks. There is no arbitrary code execution. Syntax errors are
reported at graph-load time. Evaluation is total: a reference to an
absent state path yields false, never an error.
*/
package guard

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
)

// Roots that guard expressions may reference. Anything else is rejected
// at graph-load time.
var allowedRoots = map[string]bool{
	"data":         true,
	"counters":     true,
	"run_id":       true,
	"current_node": true,
	"stage":        true,
	"request":      true,
	"value":        true, // decision rule binding
	"memory":       true, // dredged facts
	"task_id":      true, // branch snapshots
}

// Expr is a compiled guard expression.
type Expr struct {
	src  string
	expr hcl.Expression
}

// Compile parses a guard expression and validates its syntax and variable
// roots. An empty source compiles to the always-true guard.
func Compile(src string) (*Expr, error) {
	trimmed := strings.TrimSpace(src)
	if trimmed == "" || trimmed == "true" {
		return &Expr{src: "true"}, nil
	}

	expr, diags := hclsyntax.ParseExpression([]byte(trimmed), "guard", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("invalid guard %q: %s", trimmed, diags.Error())
	}

	for _, v := range expr.Variables() {
		root := v.RootName()
		if !allowedRoots[root] {
			return nil, fmt.Errorf("invalid guard %q: unknown root %q", trimmed, root)
		}
	}

	return &Expr{src: trimmed, expr: expr}, nil
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.src }

// Eval evaluates the guard against a snapshot. It is total: missing
// paths, type mismatches and non-boolean results all evaluate to false.
func (e *Expr) Eval(snapshot map[string]any) bool {
	if e.expr == nil {
		return true
	}

	vars := make(map[string]cty.Value, len(snapshot))
	for k, v := range snapshot {
		vars[k] = ctyValue(v)
	}

	val, diags := e.expr.Value(&hcl.EvalContext{
		Variables: vars,
		Functions: guardFunctions,
	})
	if diags.HasErrors() || val.IsNull() || !val.IsKnown() {
		return false
	}

	b, err := convert.Convert(val, cty.Bool)
	if err != nil || b.IsNull() {
		return false
	}
	return b.True()
}

// Evaluator caches compiled guards by source text. Safe for concurrent use.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*Expr
}

// NewEvaluator creates an empty evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{cache: make(map[string]*Expr)}
}

// Evaluate compiles (or reuses) the expression and evaluates it against
// the snapshot. Expressions that fail to compile evaluate to false; the
// validator is expected to have rejected them at load time already.
func (ev *Evaluator) Evaluate(src string, snapshot map[string]any) bool {
	ev.mu.RLock()
	expr, ok := ev.cache[src]
	ev.mu.RUnlock()

	if !ok {
		var err error
		expr, err = Compile(src)
		if err != nil {
			return false
		}
		ev.mu.Lock()
		ev.cache[src] = expr
		ev.mu.Unlock()
	}

	return expr.Eval(snapshot)
}

// guardFunctions is the complete function surface available to guards.
var guardFunctions = map[string]function.Function{
	"length":   lengthFunc,
	"contains": containsFunc,
}

var lengthFunc = function.New(&function.Spec{
	Params: []function.Parameter{{
		Name:             "collection",
		Type:             cty.DynamicPseudoType,
		AllowDynamicType: true,
		AllowNull:        true,
	}},
	Type: function.StaticReturnType(cty.Number),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		v := args[0]
		if v.IsNull() {
			return cty.NumberIntVal(0), nil
		}
		ty := v.Type()
		switch {
		case ty == cty.String:
			return cty.NumberIntVal(int64(len(v.AsString()))), nil
		case ty.IsTupleType() || ty.IsListType() || ty.IsSetType() || ty.IsMapType() || ty.IsObjectType():
			return cty.NumberIntVal(int64(v.LengthInt())), nil
		default:
			return cty.NumberIntVal(0), nil
		}
	},
})

var containsFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{
			Name:             "collection",
			Type:             cty.DynamicPseudoType,
			AllowDynamicType: true,
			AllowNull:        true,
		},
		{
			Name:             "value",
			Type:             cty.DynamicPseudoType,
			AllowDynamicType: true,
			AllowNull:        true,
		},
	},
	Type: function.StaticReturnType(cty.Bool),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		coll, needle := args[0], args[1]
		if coll.IsNull() || needle.IsNull() {
			return cty.False, nil
		}
		ty := coll.Type()
		switch {
		case ty == cty.String && needle.Type() == cty.String:
			return cty.BoolVal(strings.Contains(coll.AsString(), needle.AsString())), nil
		case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
			for it := coll.ElementIterator(); it.Next(); {
				_, el := it.Element()
				if el.RawEquals(needle) {
					return cty.True, nil
				}
			}
			return cty.False, nil
		default:
			return cty.False, nil
		}
	},
})

// ctyValue converts a snapshot value into a cty value. Unsupported types
// degrade to their string form rather than failing evaluation.
func ctyValue(v any) cty.Value {
	switch t := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case bool:
		return cty.BoolVal(t)
	case string:
		return cty.StringVal(t)
	case int:
		return cty.NumberIntVal(int64(t))
	case int64:
		return cty.NumberIntVal(t)
	case float64:
		return cty.NumberFloatVal(t)
	case float32:
		return cty.NumberFloatVal(float64(t))
	case map[string]any:
		if len(t) == 0 {
			return cty.EmptyObjectVal
		}
		attrs := make(map[string]cty.Value, len(t))
		for k, val := range t {
			attrs[k] = ctyValue(val)
		}
		return cty.ObjectVal(attrs)
	case []any:
		if len(t) == 0 {
			return cty.EmptyTupleVal
		}
		elems := make([]cty.Value, len(t))
		for i, val := range t {
			elems[i] = ctyValue(val)
		}
		return cty.TupleVal(elems)
	default:
		return cty.StringVal(fmt.Sprintf("%v", t))
	}
}
