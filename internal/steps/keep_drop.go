package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/sdtmflow/internal/domain"
)

// KeepDropStep — проекция на список колонок.
//
// Конфигурация:
//
//	{"included": ["STUDYID", "USUBJID", "SEX"]}
//
// included — авторитетный список в порядке вывода. Колонки, которых нет
// во входных данных, пропускаются и попадают в Notes. Если не найдено
// ни одной колонки — ошибка данных.
type KeepDropStep struct{}

// NewKeepDropStep создаёт новый KeepDropStep.
func NewKeepDropStep() *KeepDropStep {
	return &KeepDropStep{}
}

// Type возвращает тип шага.
func (s *KeepDropStep) Type() string {
	return string(domain.KindKeepDrop)
}

// InputPorts возвращает количество входных портов.
func (s *KeepDropStep) InputPorts() int {
	return 1
}

// Execute оставляет только перечисленные колонки.
func (s *KeepDropStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	in, err := requireInput(req, 0)
	if err != nil {
		return nil, err
	}

	included := GetConfigStrings(req.Config, "included")
	if included == nil {
		included = GetConfigStrings(req.Config, "included_columns")
	}
	if len(included) == 0 {
		return nil, configError("included must list at least one column")
	}

	keep := make([]string, 0, len(included))
	seen := make(map[string]bool, len(included))
	var missing []string
	for _, c := range included {
		if seen[c] {
			continue
		}
		seen[c] = true
		if !in.HasColumn(c) {
			missing = append(missing, c)
			continue
		}
		keep = append(keep, c)
	}

	if len(keep) == 0 {
		return nil, fmt.Errorf("%w: none of the included columns %v are present (available: %v)",
			ErrMissingColumn, included, in.Columns())
	}

	out, err := in.Select(keep...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrData, err)
	}

	var notes []string
	if len(missing) > 0 {
		notes = append(notes, fmt.Sprintf("columns not found, skipped: %v", missing))
	}
	return NewResponse(out, notes...), nil
}
