package steps

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/shaiso/sdtmflow/internal/domain"
	"github.com/shaiso/sdtmflow/internal/expr"
	"github.com/shaiso/sdtmflow/internal/table"
)

// Режимы записи результата выражения.
const (
	ModeReplace = "replace"
	ModeAppend  = "append"
)

// Функции узла expression.
const (
	FuncStrip    = "strip"
	FuncTrim     = "trim"
	FuncUpper    = "upper"
	FuncLower    = "lower"
	FuncLeft     = "left"
	FuncRight    = "right"
	FuncSubstr   = "substr"
	FuncScan     = "scan"
	FuncCompress = "compress"
	FuncCatx     = "catx"
	FuncLength   = "length"
	FuncCustom   = "custom"
)

// ExpressionStep — вычисляемые колонки.
//
// Конфигурация:
//
//	{
//	    "expressions": [
//	        {"column": "SEX", "function": "upper", "mode": "replace"},
//	        {"column": "RFSTDTC", "function": "substr", "parameters": "1,4",
//	         "mode": "append", "new_column": "YEAR"},
//	        {"column": "AGE", "function": "custom", "parameters": "value * 12",
//	         "mode": "append", "new_column": "AGEMO"}
//	    ]
//	}
//
// Допускается плоская форма с одним выражением (column, function,
// parameters, mode, new_column на верхнем уровне).
//
// Выражения применяются последовательно и независимо: ошибка одного
// выражения попадает в Notes, узел завершается ошибкой только если
// не удалось ни одно выражение. Append в колонку, которая уже есть во
// входных данных (без учёта регистра), — ошибка конфигурации.
//
// Значения null остаются null для всех встроенных функций.
type ExpressionStep struct{}

// NewExpressionStep создаёт новый ExpressionStep.
func NewExpressionStep() *ExpressionStep {
	return &ExpressionStep{}
}

// Type возвращает тип шага.
func (s *ExpressionStep) Type() string {
	return string(domain.KindExpression)
}

// InputPorts возвращает количество входных портов.
func (s *ExpressionStep) InputPorts() int {
	return 1
}

// expression — одно выражение узла.
type expression struct {
	column     string
	function   string
	parameters string
	mode       string
	newColumn  string
}

// target возвращает колонку для записи результата.
func (e expression) target() string {
	if e.mode == ModeAppend {
		return e.newColumn
	}
	return e.column
}

// Execute применяет выражения.
func (s *ExpressionStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	in, err := requireInput(req, 0)
	if err != nil {
		return nil, err
	}

	exprs, err := s.parseExpressions(req.Config)
	if err != nil {
		return nil, err
	}
	if len(exprs) == 0 {
		return nil, configError("no expressions configured")
	}
	if err := checkAppendTargets(exprs, in); err != nil {
		return nil, err
	}

	out := in
	var notes []string
	var failed []error
	for i, e := range exprs {
		next, err := applyExpression(out, e)
		if err != nil {
			failed = append(failed, fmt.Errorf("expression %d (%s on %q): %w", i+1, e.function, e.column, err))
			notes = append(notes, fmt.Sprintf("expression %d failed: %v", i+1, err))
			continue
		}
		out = next
	}

	if len(failed) == len(exprs) {
		return nil, fmt.Errorf("%w: all expressions failed: %w", ErrExpression, errors.Join(failed...))
	}
	return NewResponse(out, notes...), nil
}

// parseExpressions читает список выражений (или плоскую форму).
func (s *ExpressionStep) parseExpressions(config map[string]any) ([]expression, error) {
	list, err := GetConfigList(config, "expressions")
	if err != nil {
		return nil, configError("%v", err)
	}
	if len(list) == 0 {
		if GetConfigStringAny(config, "column", "target_column") == "" {
			return nil, nil
		}
		list = []map[string]any{config}
	}

	exprs := make([]expression, 0, len(list))
	for i, item := range list {
		e := expression{
			column:     GetConfigStringAny(item, "column", "target_column"),
			function:   strings.ToLower(GetConfigStringAny(item, "function", "function_type")),
			parameters: GetConfigStringAny(item, "parameters", "expression"),
			mode:       strings.ToLower(GetConfigString(item, "mode")),
			newColumn:  strings.TrimSpace(GetConfigString(item, "new_column")),
		}
		if e.function == "" {
			e.function = FuncStrip
		}
		if e.mode == "" {
			e.mode = ModeReplace
		}
		if e.column == "" {
			return nil, configError("expression %d: column is required", i+1)
		}
		switch e.mode {
		case ModeReplace:
		case ModeAppend:
			if e.newColumn == "" {
				return nil, configError("expression %d: new_column is required in append mode", i+1)
			}
		default:
			return nil, configError("expression %d: unknown mode %q", i+1, e.mode)
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}

// checkAppendTargets проверяет, что append-колонки не совпадают
// с существующими колонками и друг с другом (без учёта регистра).
func checkAppendTargets(exprs []expression, in *table.Dataset) error {
	seen := make(map[string]int)
	for i, e := range exprs {
		if e.mode != ModeAppend {
			continue
		}
		if in.HasColumnFold(e.newColumn) {
			return configError("expression %d: new column %q already exists in input", i+1, e.newColumn)
		}
		key := strings.ToLower(e.newColumn)
		if j, dup := seen[key]; dup {
			return configError("expressions %d and %d both append column %q", j+1, i+1, e.newColumn)
		}
		seen[key] = i
	}
	return nil
}

// applyExpression применяет одно выражение и возвращает новый dataset.
func applyExpression(in *table.Dataset, e expression) (*table.Dataset, error) {
	if !in.HasColumn(e.column) {
		return nil, missingColumn(e.column, in)
	}

	fn, err := compileFunction(e.function, e.parameters)
	if err != nil {
		return nil, err
	}

	values, err := in.Column(e.column)
	if err != nil {
		return nil, err
	}

	results := make([]any, len(values))
	for r, v := range values {
		res, err := fn(v)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r+1, err)
		}
		results[r] = res
	}

	return in.WithColumn(e.target(), func(r int) any { return results[r] }), nil
}

// cellFunc — функция над значением ячейки.
type cellFunc func(v any) (any, error)

// stringFunc оборачивает строковую функцию: null остаётся null,
// остальные значения форматируются в строку.
func stringFunc(f func(string) any) cellFunc {
	return func(v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		return f(table.FormatValue(v)), nil
	}
}

// compileFunction разбирает параметры и возвращает функцию над ячейкой.
func compileFunction(name, params string) (cellFunc, error) {
	switch name {
	case FuncStrip, FuncTrim:
		return stringFunc(func(s string) any { return strings.TrimSpace(s) }), nil
	case FuncUpper:
		return stringFunc(func(s string) any { return strings.ToUpper(s) }), nil
	case FuncLower:
		return stringFunc(func(s string) any { return strings.ToLower(s) }), nil
	case FuncLeft:
		return stringFunc(func(s string) any { return strings.TrimLeftFunc(s, unicode.IsSpace) }), nil
	case FuncRight:
		return stringFunc(func(s string) any { return strings.TrimRightFunc(s, unicode.IsSpace) }), nil
	case FuncLength:
		return stringFunc(func(s string) any { return int64(len([]rune(s))) }), nil
	case FuncSubstr:
		return substrFunc(params)
	case FuncScan:
		return scanFunc(params)
	case FuncCompress:
		return compressFunc(params), nil
	case FuncCatx:
		prefix := unquote(strings.TrimSpace(params))
		return stringFunc(func(s string) any { return prefix + s }), nil
	case FuncCustom:
		return customFunc(params)
	default:
		return nil, configError("unknown function %q", name)
	}
}

// substrFunc — SUBSTR("start[,length]"), start с единицы.
func substrFunc(params string) (cellFunc, error) {
	parts := strings.Split(params, ",")
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || start < 1 {
		return nil, configError("substr: invalid start %q, expected \"start,length\" with start >= 1", params)
	}
	length := -1
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		length, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || length < 0 {
			return nil, configError("substr: invalid length %q", params)
		}
	}

	return stringFunc(func(s string) any {
		runes := []rune(s)
		from := start - 1
		if from >= len(runes) {
			return ""
		}
		to := len(runes)
		if length >= 0 && from+length < to {
			to = from + length
		}
		return string(runes[from:to])
	}), nil
}

// scanFunc — SCAN("delimiter,n"): n-е слово, с единицы;
// отрицательное n считается с конца. Слова вне диапазона дают null.
func scanFunc(params string) (cellFunc, error) {
	idx := strings.LastIndex(params, ",")
	if idx < 0 {
		return nil, configError("scan: expected \"delimiter,n\", got %q", params)
	}
	delim := unquote(strings.TrimSpace(params[:idx]))
	if delim == "" {
		delim = " "
	}
	n, err := strconv.Atoi(strings.TrimSpace(params[idx+1:]))
	if err != nil || n == 0 {
		return nil, configError("scan: invalid word number in %q", params)
	}

	return func(v any) (any, error) {
		if v == nil {
			return nil, nil
		}
		words := strings.Split(table.FormatValue(v), delim)
		i := n - 1
		if n < 0 {
			i = len(words) + n
		}
		if i < 0 || i >= len(words) {
			return nil, nil
		}
		return words[i], nil
	}, nil
}

// compressFunc — COMPRESS(chars): удаляет перечисленные символы,
// по умолчанию все пробельные.
func compressFunc(params string) cellFunc {
	chars := unquote(strings.TrimSpace(params))
	drop := unicode.IsSpace
	if chars != "" {
		drop = func(r rune) bool { return strings.ContainsRune(chars, r) }
	}
	return stringFunc(func(s string) any {
		return strings.Map(func(r rune) rune {
			if drop(r) {
				return -1
			}
			return r
		}, s)
	})
}

// customFunc компилирует HCL-выражение.
func customFunc(params string) (cellFunc, error) {
	if strings.TrimSpace(params) == "" {
		return nil, configError("custom: empty expression")
	}
	e, err := expr.Compile(params)
	if err != nil {
		return nil, configError("custom: %v", err)
	}
	return func(v any) (any, error) {
		res, err := e.Eval(v)
		if err != nil {
			// Функции stdlib не принимают null: такая ячейка остаётся null.
			if v == nil {
				return nil, nil
			}
			return nil, fmt.Errorf("%w: %v", ErrExpression, err)
		}
		return res, nil
	}, nil
}

// unquote снимает одинарные или двойные кавычки вокруг значения.
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
