package steps

import (
	"context"
	"fmt"
	"sort"

	"github.com/shaiso/sdtmflow/internal/domain"
)

// RenameStep — переименование колонок.
//
// Конфигурация:
//
//	{"mappings": {"SUBJID": "USUBJID", "GENDER": "SEX"}}
//
// Ключи, отсутствующие во входных данных, пропускаются (попадают в Notes).
// Колонки, не упомянутые в mappings, сохраняются без изменений.
type RenameStep struct{}

// NewRenameStep создаёт новый RenameStep.
func NewRenameStep() *RenameStep {
	return &RenameStep{}
}

// Type возвращает тип шага.
func (s *RenameStep) Type() string {
	return string(domain.KindRename)
}

// InputPorts возвращает количество входных портов.
func (s *RenameStep) InputPorts() int {
	return 1
}

// Execute переименовывает колонки.
func (s *RenameStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	in, err := requireInput(req, 0)
	if err != nil {
		return nil, err
	}

	mappings := GetConfigMapString(req.Config, "mappings")
	if mappings == nil {
		mappings = GetConfigMapString(req.Config, "column_mappings")
	}

	applied := make(map[string]string, len(mappings))
	var notes []string
	for _, old := range sortedKeys(mappings) {
		name := mappings[old]
		if name == "" {
			return nil, configError("empty new name for column %q", old)
		}
		if !in.HasColumn(old) {
			notes = append(notes, fmt.Sprintf("column %q not found, skipped", old))
			continue
		}
		applied[old] = name
	}

	out, err := in.Rename(applied)
	if err != nil {
		return nil, configError("%v", err)
	}
	return NewResponse(out, notes...), nil
}

// sortedKeys возвращает ключи map в отсортированном порядке.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
