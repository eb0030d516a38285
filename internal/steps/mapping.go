package steps

import (
	"context"
	"strings"

	"github.com/shaiso/sdtmflow/internal/domain"
	"github.com/shaiso/sdtmflow/internal/table"
)

// MappingStep — условное отображение значений колонки.
//
// Конфигурация:
//
//	{
//	    "source_column": "SEX",
//	    "target_column": "SEXCD",
//	    "mode": "append",
//	    "rules": [
//	        {"match": "Male", "result": "M"},
//	        {"match": "Female", "result": "F"}
//	    ],
//	    "default": "U",
//	    "case_sensitive": true
//	}
//
// Для каждой строки берётся результат первого совпавшего правила,
// иначе default (если задан), иначе исходное значение (в режиме append
// оно копируется в target_column).
//
// rules можно задать объектом match → result. Порядок ключей объекта
// не сохраняется, поэтому при case_sensitive=false ключи, совпадающие
// без учёта регистра, отклоняются: порядок задаётся только списком.
// mode "append" пишет в target_column, "replace" — в source_column.
type MappingStep struct{}

// NewMappingStep создаёт новый MappingStep.
func NewMappingStep() *MappingStep {
	return &MappingStep{}
}

// Type возвращает тип шага.
func (s *MappingStep) Type() string {
	return string(domain.KindMapping)
}

// InputPorts возвращает количество входных портов.
func (s *MappingStep) InputPorts() int {
	return 1
}

// rule — правило отображения.
type rule struct {
	match  string
	result any
}

// Execute применяет правила.
func (s *MappingStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	in, err := requireInput(req, 0)
	if err != nil {
		return nil, err
	}

	source := GetConfigString(req.Config, "source_column")
	if source == "" {
		return nil, configError("source_column is required")
	}

	mode, err := parseMappingMode(GetConfigStringAny(req.Config, "mode", "operation_mode"))
	if err != nil {
		return nil, err
	}

	target := source
	if mode == ModeAppend {
		target = strings.TrimSpace(GetConfigString(req.Config, "target_column"))
		if target == "" {
			return nil, configError("target_column is required in append mode")
		}
	}

	if !in.HasColumn(source) {
		return nil, missingColumn(source, in)
	}

	caseSensitive := GetConfigBool(req.Config, "case_sensitive", true)

	rules, err := s.parseRules(req.Config, caseSensitive)
	if err != nil {
		return nil, err
	}

	defVal, hasDefault := req.Config["default"]
	if !hasDefault {
		defVal, hasDefault = req.Config["default_value"]
		if str, ok := defVal.(string); hasDefault && ok && str == "" {
			hasDefault = false
		}
	}
	if hasDefault {
		defVal = table.FromJSONValue(defVal)
	}

	values, err := in.Column(source)
	if err != nil {
		return nil, err
	}

	out := in.WithColumn(target, func(r int) any {
		v := values[r]
		cell := table.FormatValue(v)
		for _, rl := range rules {
			if matchRule(cell, rl.match, caseSensitive) {
				return rl.result
			}
		}
		if hasDefault {
			return defVal
		}
		return v
	})
	return NewResponse(out), nil
}

// parseRules читает правила: список {match, result} (устаревший ключ
// condition) или объект match → result.
func (s *MappingStep) parseRules(config map[string]any, caseSensitive bool) ([]rule, error) {
	raw, ok := config["rules"]
	if !ok {
		raw = config["mappings"]
	}

	if m, ok := raw.(map[string]any); ok {
		rules := make([]rule, 0, len(m))
		folded := make(map[string]string, len(m))
		for _, k := range sortedKeys(m) {
			if !caseSensitive {
				key := strings.ToLower(k)
				if prev, ok := folded[key]; ok {
					return nil, configError("rules %q and %q overlap with case_sensitive=false: use a list of rules to order them", prev, k)
				}
				folded[key] = k
			}
			rules = append(rules, rule{match: k, result: table.FromJSONValue(m[k])})
		}
		return rules, nil
	}

	list, err := GetConfigList(map[string]any{"rules": raw}, "rules")
	if err != nil {
		return nil, configError("%v", err)
	}

	rules := make([]rule, 0, len(list))
	for i, item := range list {
		if _, ok := item["result"]; !ok {
			return nil, configError("rule %d: result is required", i+1)
		}
		match := GetConfigStringAny(item, "match", "condition")
		rules = append(rules, rule{match: match, result: table.FromJSONValue(item["result"])})
	}
	return rules, nil
}

// parseMappingMode нормализует режим, включая устаревшие подписи.
func parseMappingMode(mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeAppend, "add_column", "create new column":
		return ModeAppend, nil
	case ModeReplace, "replace values":
		return ModeReplace, nil
	default:
		return "", configError("unknown mapping mode %q", mode)
	}
}

// matchRule сравнивает значение ячейки со значением правила.
func matchRule(cell, match string, caseSensitive bool) bool {
	if caseSensitive {
		return cell == match
	}
	return strings.EqualFold(cell, match)
}
