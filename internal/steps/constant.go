package steps

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shaiso/sdtmflow/internal/domain"
)

// Типы значений константных колонок.
const (
	ConstString  = "string"
	ConstInteger = "integer"
	ConstFloat   = "float"
	ConstBoolean = "boolean"
)

// ConstantStep — добавление колонок с константным значением.
//
// Конфигурация:
//
//	{
//	    "columns": [
//	        {"name": "STUDYID", "value": "ABC-123", "type": "string"},
//	        {"name": "VISITNUM", "value": "1", "type": "integer"}
//	    ]
//	}
//
// Устаревший формат с одной колонкой: column_name, constant_value, data_type.
// Невалидное значение для integer/float/boolean заменяется на 0 / 0.0 / false.
// Существующая колонка с тем же именем перезаписывается.
type ConstantStep struct{}

// NewConstantStep создаёт новый ConstantStep.
func NewConstantStep() *ConstantStep {
	return &ConstantStep{}
}

// Type возвращает тип шага.
func (s *ConstantStep) Type() string {
	return string(domain.KindConstant)
}

// InputPorts возвращает количество входных портов.
func (s *ConstantStep) InputPorts() int {
	return 1
}

// constantColumn — описание одной константной колонки.
type constantColumn struct {
	name     string
	value    string
	dataType string
}

// Execute добавляет константные колонки.
func (s *ConstantStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	in, err := requireInput(req, 0)
	if err != nil {
		return nil, err
	}

	cols, err := s.parseColumns(req.Config)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, configError("no constant columns configured")
	}

	out := in
	var notes []string
	for i, c := range cols {
		if c.name == "" {
			notes = append(notes, fmt.Sprintf("column %d has empty name, skipped", i+1))
			continue
		}
		v, ok := CoerceConstant(c.value, c.dataType)
		if !ok {
			notes = append(notes, fmt.Sprintf("invalid %s value %q for column %q, using %v", c.dataType, c.value, c.name, v))
		}
		out = out.WithColumn(c.name, func(int) any { return v })
	}
	return NewResponse(out, notes...), nil
}

// parseColumns читает список колонок (новый и устаревший формат).
func (s *ConstantStep) parseColumns(config map[string]any) ([]constantColumn, error) {
	list, err := GetConfigList(config, "columns")
	if err != nil {
		return nil, configError("%v", err)
	}

	var cols []constantColumn
	for _, item := range list {
		cols = append(cols, constantColumn{
			name:     strings.TrimSpace(GetConfigStringAny(item, "name", "column_name")),
			value:    GetConfigStringAny(item, "value", "constant_value"),
			dataType: GetConfigStringAny(item, "type", "data_type"),
		})
	}

	if len(cols) == 0 {
		if name := strings.TrimSpace(GetConfigString(config, "column_name")); name != "" {
			cols = append(cols, constantColumn{
				name:     name,
				value:    GetConfigString(config, "constant_value"),
				dataType: GetConfigString(config, "data_type"),
			})
		}
	}
	return cols, nil
}

// CoerceConstant приводит строковое значение к типу dataType.
// Второе значение false, если значение невалидно и подставлен ноль типа.
func CoerceConstant(value, dataType string) (any, bool) {
	trimmed := strings.TrimSpace(value)

	switch strings.ToLower(dataType) {
	case ConstInteger, "int":
		if trimmed == "" {
			return int64(0), true
		}
		i, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return int64(0), false
		}
		return i, true

	case ConstFloat, "number":
		if trimmed == "" {
			return 0.0, true
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0.0, false
		}
		return f, true

	case ConstBoolean, "bool":
		switch strings.ToLower(trimmed) {
		case "true", "1", "yes", "on":
			return true, true
		default:
			return false, true
		}

	default:
		return value, true
	}
}
