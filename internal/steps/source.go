package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shaiso/sdtmflow/internal/domain"
	"github.com/shaiso/sdtmflow/internal/table"
)

// SourceStep — узел-источник данных. Входных портов нет.
//
// Источник выбирается по приоритету:
//  1. Dataset, загруженный в узел заранее (Request.Data)
//  2. Файл: path (CSV или JSON в формате table.Dataset), относительно BaseDir
//  3. Inline-данные: columns + rows
//
// Для CSV типы ячеек выводятся без потери текста ("001" остаётся строкой).
// infer_types=false оставляет строками все ячейки, string_columns —
// только перечисленные колонки.
//
// Конфигурация:
//
//	{"path": "raw/dm.csv", "string_columns": ["SUBJID"]}
//	{"columns": ["USUBJID", "AGE"], "rows": [["S-001", 34], ["S-002", 51]]}
type SourceStep struct{}

// NewSourceStep создаёт новый SourceStep.
func NewSourceStep() *SourceStep {
	return &SourceStep{}
}

// Type возвращает тип шага.
func (s *SourceStep) Type() string {
	return string(domain.KindSource)
}

// InputPorts возвращает количество входных портов.
func (s *SourceStep) InputPorts() int {
	return 0
}

// Execute возвращает данные источника.
func (s *SourceStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	if req.Data != nil {
		return NewResponse(req.Data), nil
	}

	if path := GetConfigStringAny(req.Config, "path", "filename", "file_path"); path != "" {
		out, err := s.load(path, req.BaseDir, csvOptions(req.Config))
		if err != nil {
			return nil, err
		}
		return NewResponse(out), nil
	}

	if _, ok := req.Config["columns"]; ok {
		out, err := s.inline(req.Config)
		if err != nil {
			return nil, err
		}
		return NewResponse(out), nil
	}

	return nil, configError("source has no data: set path or columns/rows")
}

// load читает dataset из файла.
func (s *SourceStep) load(path, baseDir string, opts table.CSVOptions) (*table.Dataset, error) {
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		d, err := table.ReadCSVFile(path, opts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrData, err)
		}
		return d, nil

	case ".json":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrData, err)
		}
		var d table.Dataset
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrData, path, err)
		}
		return &d, nil

	default:
		return nil, configError("unsupported source file type %q (supported: .csv, .json)", filepath.Ext(path))
	}
}

// csvOptions читает параметры разбора CSV из конфигурации.
func csvOptions(config map[string]any) table.CSVOptions {
	return table.CSVOptions{
		RawText:       !GetConfigBool(config, "infer_types", true),
		StringColumns: GetConfigStrings(config, "string_columns"),
	}
}

// inline строит dataset из columns/rows конфигурации.
func (s *SourceStep) inline(config map[string]any) (*table.Dataset, error) {
	columns := GetConfigStrings(config, "columns")
	if len(columns) == 0 {
		return nil, configError("columns must be a non-empty list of strings")
	}

	var rows [][]any
	switch raw := config["rows"].(type) {
	case nil:
	case [][]any:
		rows = raw
	case []any:
		rows = make([][]any, 0, len(raw))
		for i, item := range raw {
			row, ok := item.([]any)
			if !ok {
				return nil, configError("rows[%d]: expected list, got %T", i, item)
			}
			cells := make([]any, len(row))
			for j, v := range row {
				cells[j] = table.FromJSONValue(v)
			}
			rows = append(rows, cells)
		}
	default:
		return nil, configError("rows: expected list, got %T", raw)
	}

	d, err := table.New(columns, rows)
	if err != nil {
		return nil, configError("%v", err)
	}
	return d, nil
}
