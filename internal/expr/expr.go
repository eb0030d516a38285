package expr

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// ValueVar — имя переменной, через которую выражение видит значение ячейки.
const ValueVar = "value"

// Ошибки пакета expr.
var (
	// ErrSyntax — выражение не разбирается.
	ErrSyntax = errors.New("expression syntax error")

	// ErrEval — ошибка вычисления выражения.
	ErrEval = errors.New("expression evaluation error")

	// ErrUnknownVariable — выражение ссылается на переменную, отличную от value.
	ErrUnknownVariable = errors.New("unknown variable")

	// ErrResultType — результат нельзя записать в ячейку (список, объект).
	ErrResultType = errors.New("unsupported result type")
)

// functions — функции, доступные в выражениях.
var functions = map[string]function.Function{
	"upper":         stdlib.UpperFunc,
	"lower":         stdlib.LowerFunc,
	"title":         stdlib.TitleFunc,
	"trimspace":     stdlib.TrimSpaceFunc,
	"trimprefix":    stdlib.TrimPrefixFunc,
	"trimsuffix":    stdlib.TrimSuffixFunc,
	"substr":        stdlib.SubstrFunc,
	"replace":       stdlib.ReplaceFunc,
	"regex_replace": stdlib.RegexReplaceFunc,
	"strlen":        stdlib.StrlenFunc,
	"format":        stdlib.FormatFunc,
	"join":          stdlib.JoinFunc,
	"split":         stdlib.SplitFunc,
	"element":       stdlib.ElementFunc,
	"length":        stdlib.LengthFunc,
	"coalesce":      stdlib.CoalesceFunc,
	"abs":           stdlib.AbsoluteFunc,
	"max":           stdlib.MaxFunc,
	"min":           stdlib.MinFunc,
	"floor":         stdlib.FloorFunc,
	"ceil":          stdlib.CeilFunc,
	"tostring":      stdlib.MakeToFunc(cty.String),
	"tonumber":      stdlib.MakeToFunc(cty.Number),
}

// Functions возвращает имена доступных функций.
func Functions() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	return names
}

// Expression — скомпилированное custom-выражение.
//
// Выражение записывается в синтаксисе HCL и видит одну переменную value —
// значение текущей ячейки:
//
//	upper(trimspace(value))
//	value == null ? "UNKNOWN" : format("%s-%s", "STUDY1", value)
//	tonumber(value) * 2.54
type Expression struct {
	src  string
	expr hclsyntax.Expression
}

// Compile разбирает выражение и проверяет, что оно использует только value.
func Compile(src string) (*Expression, error) {
	e, diags := hclsyntax.ParseExpression([]byte(src), "expression", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrSyntax, diags.Error())
	}

	for _, tr := range e.Variables() {
		if name := tr.RootName(); name != ValueVar {
			return nil, fmt.Errorf("%w: %q (only %q is available)", ErrUnknownVariable, name, ValueVar)
		}
	}

	return &Expression{src: src, expr: e}, nil
}

// String возвращает исходный текст выражения.
func (e *Expression) String() string {
	return e.src
}

// Eval вычисляет выражение для значения ячейки.
func (e *Expression) Eval(value any) (any, error) {
	in, err := toCty(value)
	if err != nil {
		return nil, err
	}

	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{ValueVar: in},
		Functions: functions,
	}

	out, diags := e.expr.Value(ctx)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w: %s", ErrEval, diags.Error())
	}
	return fromCty(out)
}

// toCty конвертирует значение ячейки в cty.Value.
func toCty(v any) (cty.Value, error) {
	switch x := v.(type) {
	case nil:
		return cty.NullVal(cty.String), nil
	case string:
		return cty.StringVal(x), nil
	case int64:
		return cty.NumberIntVal(x), nil
	case int:
		return cty.NumberIntVal(int64(x)), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return cty.NilVal, fmt.Errorf("%w: non-finite number %v", ErrEval, x)
		}
		return cty.NumberFloatVal(x), nil
	case bool:
		return cty.BoolVal(x), nil
	default:
		return cty.NilVal, fmt.Errorf("%w: cell type %T", ErrResultType, v)
	}
}

// fromCty конвертирует результат выражения в значение ячейки.
// Целые числа, помещающиеся в int64, становятся int64.
func fromCty(v cty.Value) (any, error) {
	if !v.IsKnown() {
		return nil, fmt.Errorf("%w: unknown value", ErrEval)
	}
	if v.IsNull() {
		return nil, nil
	}

	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Bool:
		return v.True(), nil
	case cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrResultType, v.Type().FriendlyName())
	}
}
