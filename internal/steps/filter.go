package steps

import (
	"context"
	"strings"

	"github.com/shaiso/sdtmflow/internal/domain"
	"github.com/shaiso/sdtmflow/internal/table"
)

// Операторы фильтра.
const (
	OpEquals      = "equals"
	OpNotEquals   = "not_equals"
	OpContains    = "contains"
	OpStartsWith  = "starts_with"
	OpEndsWith    = "ends_with"
	OpGreaterThan = "greater_than"
	OpLessThan    = "less_than"
)

// Режимы вывода фильтра.
const (
	OutputMatching    = "matching"
	OutputNonMatching = "non-matching"
)

// FilterStep — фильтрация строк по предикату.
//
// Конфигурация (одно условие):
//
//	{
//	    "column": "SEX",
//	    "operator": "equals",
//	    "value": "m",
//	    "case_sensitive": false,
//	    "output_mode": "matching"
//	}
//
// Несколько условий:
//
//	{
//	    "conditions": [
//	        {"column": "AGE", "operator": "greater_than", "value": "17"},
//	        {"column": "ARM", "operator": "not_equals", "value": "SCREEN FAILURE"}
//	    ],
//	    "logic": "AND"
//	}
//
// Строковые сравнения по умолчанию без учёта регистра. greater_than и
// less_than сравнивают числа, если обе стороны разбираются как число,
// иначе строки лексикографически. null не проходит greater_than/less_than.
// output_mode "non-matching" инвертирует результат.
type FilterStep struct{}

// NewFilterStep создаёт новый FilterStep.
func NewFilterStep() *FilterStep {
	return &FilterStep{}
}

// Type возвращает тип шага.
func (s *FilterStep) Type() string {
	return string(domain.KindFilter)
}

// InputPorts возвращает количество входных портов.
func (s *FilterStep) InputPorts() int {
	return 1
}

// condition — одно условие фильтра.
type condition struct {
	column        string
	operator      string
	value         string
	caseSensitive bool
}

// Execute фильтрует строки.
func (s *FilterStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	in, err := requireInput(req, 0)
	if err != nil {
		return nil, err
	}

	conds, err := s.parseConditions(req.Config)
	if err != nil {
		return nil, err
	}
	for _, c := range conds {
		if !in.HasColumn(c.column) {
			return nil, missingColumn(c.column, in)
		}
	}

	logic := strings.ToUpper(GetConfigStringAny(req.Config, "logic", "logic_operator"))
	if logic == "" {
		logic = "AND"
	}
	if logic != "AND" && logic != "OR" {
		return nil, configError("logic must be AND or OR, got %q", logic)
	}

	mode := strings.ToLower(GetConfigString(req.Config, "output_mode"))
	if mode == "" {
		mode = OutputMatching
	}
	if mode != OutputMatching && mode != OutputNonMatching {
		return nil, configError("output_mode must be %q or %q, got %q", OutputMatching, OutputNonMatching, mode)
	}

	out := in.Filter(func(r int) bool {
		matched := logic == "AND"
		for _, c := range conds {
			v, _ := in.Value(r, c.column)
			ok := c.match(v)
			if logic == "AND" && !ok {
				matched = false
				break
			}
			if logic == "OR" && ok {
				matched = true
				break
			}
		}
		if mode == OutputNonMatching {
			return !matched
		}
		return matched
	})
	return NewResponse(out), nil
}

// parseConditions читает условия (список или одиночное).
func (s *FilterStep) parseConditions(config map[string]any) ([]condition, error) {
	defaultCase := GetConfigBool(config, "case_sensitive", false)

	list, err := GetConfigList(config, "conditions")
	if err != nil {
		return nil, configError("%v", err)
	}
	if len(list) == 0 {
		list = []map[string]any{{
			"column":         GetConfigStringAny(config, "column", "filter_column"),
			"operator":       GetConfigStringAny(config, "operator", "filter_operator"),
			"value":          GetConfigStringAny(config, "value", "filter_value"),
			"case_sensitive": defaultCase,
		}}
	}

	conds := make([]condition, 0, len(list))
	for i, item := range list {
		c := condition{
			column:        GetConfigStringAny(item, "column", "filter_column"),
			operator:      strings.ToLower(GetConfigStringAny(item, "operator", "filter_operator")),
			value:         GetConfigStringAny(item, "value", "filter_value"),
			caseSensitive: GetConfigBool(item, "case_sensitive", defaultCase),
		}
		if c.column == "" {
			return nil, configError("condition %d: column is required", i+1)
		}
		if c.operator == "" {
			c.operator = OpEquals
		}
		switch c.operator {
		case OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith, OpGreaterThan, OpLessThan:
		default:
			return nil, configError("condition %d: unknown operator %q", i+1, c.operator)
		}
		conds = append(conds, c)
	}
	return conds, nil
}

// match проверяет значение ячейки.
func (c condition) match(v any) bool {
	switch c.operator {
	case OpGreaterThan, OpLessThan:
		if v == nil {
			return false
		}
		cmp := compareValues(v, c.value)
		if c.operator == OpGreaterThan {
			return cmp > 0
		}
		return cmp < 0
	}

	cell := table.FormatValue(v)
	want := c.value
	if !c.caseSensitive {
		cell = strings.ToLower(cell)
		want = strings.ToLower(want)
	}

	switch c.operator {
	case OpEquals:
		return cell == want
	case OpNotEquals:
		return cell != want
	case OpContains:
		return strings.Contains(cell, want)
	case OpStartsWith:
		return strings.HasPrefix(cell, want)
	case OpEndsWith:
		return strings.HasSuffix(cell, want)
	default:
		return false
	}
}

// compareValues сравнивает значение ячейки со значением условия:
// численно, если обе стороны — числа, иначе лексикографически.
func compareValues(v any, want string) int {
	a, okA := table.ParseNumber(v)
	b, okB := table.ParseNumber(want)
	if okA && okB {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(table.FormatValue(v), want)
}
