package steps

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shaiso/sdtmflow/internal/table"
)

// Registry Tests

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	// Пустой реестр
	if r.Count() != 0 {
		t.Errorf("expected empty registry")
	}

	r.Register(NewRenameStep())
	if r.Count() != 1 {
		t.Errorf("expected 1 step, got %d", r.Count())
	}

	step, err := r.Get("rename")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if step.Type() != "rename" {
		t.Errorf("expected rename, got %s", step.Type())
	}

	// Устаревшее имя класса
	if _, err := r.Get("ColumnRenamerNode"); err != nil {
		t.Errorf("expected legacy name to resolve, got %v", err)
	}

	_, err = r.Get("unknown")
	if !errors.Is(err, ErrStepNotFound) {
		t.Errorf("expected ErrStepNotFound, got %v", err)
	}

	r.Unregister("rename")
	if r.Has("rename") {
		t.Error("should not have rename after unregister")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	expected := []string{"constant", "domain", "expression", "filter", "join", "keep_drop", "mapping", "rename", "source"}
	if got := strings.Join(r.Types(), ","); got != strings.Join(expected, ",") {
		t.Errorf("unexpected types: %s", got)
	}

	for _, typ := range expected {
		step, _ := r.Get(typ)
		want := 1
		switch typ {
		case "source":
			want = 0
		case "join":
			want = 2
		}
		if step.InputPorts() != want {
			t.Errorf("%s: expected %d input ports, got %d", typ, want, step.InputPorts())
		}
	}
}

// helpers

func dm() *table.Dataset {
	return table.MustNew(
		[]string{"USUBJID", "SEX", "AGE"},
		[][]any{
			{"S-001", "M", 34},
			{"S-002", "F", 51},
			{"S-003", "f", 17},
			{"S-004", nil, nil},
		},
	)
}

func run(t *testing.T, s Step, config map[string]any, inputs ...*table.Dataset) *Response {
	t.Helper()
	resp, err := s.Execute(context.Background(), NewRequest("n1", config, inputs...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Output == nil {
		t.Fatal("output should not be nil")
	}
	return resp
}

func column(t *testing.T, d *table.Dataset, name string) []any {
	t.Helper()
	vals, err := d.Column(name)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return vals
}

func TestExecute_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRenameStep().Execute(ctx, NewRequest("n1", nil, dm()))
	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
}

// Source Step Tests

func TestSourceStep_Inline(t *testing.T) {
	resp := run(t, NewSourceStep(), map[string]any{
		"columns": []any{"ID", "VAL"},
		"rows":    []any{[]any{float64(1), "a"}, []any{float64(2), nil}},
	})

	if resp.Output.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", resp.Output.NumRows())
	}
	if v, _ := resp.Output.Value(0, "ID"); v != int64(1) {
		t.Errorf("expected int64 1, got %#v", v)
	}
}

func TestSourceStep_PreloadedData(t *testing.T) {
	req := NewRequest("n1", map[string]any{"path": "ignored.csv"})
	req.Data = dm()

	resp, err := NewSourceStep().Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Output != req.Data {
		t.Error("expected preloaded dataset to be returned")
	}
}

func TestSourceStep_CSV(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "dm.csv"), []byte("USUBJID,AGE\nS-001,34\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := NewRequest("n1", map[string]any{"path": "dm.csv"})
	req.BaseDir = dir

	resp, err := NewSourceStep().Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := resp.Output.Value(0, "AGE"); v != int64(34) {
		t.Errorf("expected 34, got %#v", v)
	}
}

func TestSourceStep_CSVStringColumns(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "dm.csv"), []byte("SUBJID,SITEID,AGE\n001,10,34\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := NewRequest("n1", map[string]any{"path": "dm.csv", "string_columns": []any{"SITEID"}})
	req.BaseDir = dir

	resp, err := NewSourceStep().Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := resp.Output.Value(0, "SUBJID"); v != "001" {
		t.Errorf("expected \"001\", got %#v", v)
	}
	if v, _ := resp.Output.Value(0, "SITEID"); v != "10" {
		t.Errorf("expected \"10\", got %#v", v)
	}
	if v, _ := resp.Output.Value(0, "AGE"); v != int64(34) {
		t.Errorf("expected 34, got %#v", v)
	}

	req = NewRequest("n1", map[string]any{"path": "dm.csv", "infer_types": false})
	req.BaseDir = dir
	resp, err = NewSourceStep().Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := resp.Output.Value(0, "AGE"); v != "34" {
		t.Errorf("expected \"34\", got %#v", v)
	}
}

func TestSourceStep_Errors(t *testing.T) {
	_, err := NewSourceStep().Execute(context.Background(), NewRequest("n1", nil))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	_, err = NewSourceStep().Execute(context.Background(), NewRequest("n1", map[string]any{"path": "/nonexistent/dm.csv"}))
	if !errors.Is(err, ErrData) {
		t.Errorf("expected ErrData, got %v", err)
	}

	_, err = NewSourceStep().Execute(context.Background(), NewRequest("n1", map[string]any{"path": "dm.sas7bdat"}))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

// Rename Step Tests

func TestRenameStep(t *testing.T) {
	in := table.MustNew([]string{"A", "B"}, [][]any{{1, 2}})

	resp := run(t, NewRenameStep(), map[string]any{
		"mappings": map[string]any{"A": "X", "MISSING": "Y"},
	}, in)

	if got := strings.Join(resp.Output.Columns(), ","); got != "X,B" {
		t.Errorf("expected X,B, got %s", got)
	}
	if len(resp.Notes) != 1 {
		t.Errorf("expected 1 note about skipped column, got %v", resp.Notes)
	}
	// Вход не изменился
	if got := strings.Join(in.Columns(), ","); got != "A,B" {
		t.Errorf("input mutated: %s", got)
	}
}

func TestRenameStep_Collision(t *testing.T) {
	in := table.MustNew([]string{"A", "B"}, [][]any{{1, 2}})

	_, err := NewRenameStep().Execute(context.Background(), NewRequest("n1", map[string]any{
		"mappings": map[string]any{"A": "B"},
	}, in))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

// Expression Step Tests

func TestExpressionStep_Functions(t *testing.T) {
	in := table.MustNew([]string{"V"}, [][]any{{"  Hello World  "}, {nil}})

	tests := []struct {
		function string
		params   string
		want     any
	}{
		{"strip", "", "Hello World"},
		{"trim", "", "Hello World"},
		{"upper", "", "  HELLO WORLD  "},
		{"lower", "", "  hello world  "},
		{"left", "", "Hello World  "},
		{"right", "", "  Hello World"},
		{"length", "", int64(15)},
		{"substr", "3,5", "Hello"},
		{"substr", "9", "World  "},
		{"scan", "' ',3", "Hello"},
		{"scan", "' ',-3", "World"},
		{"compress", "", "HelloWorld"},
		{"compress", "lo", "  He Wrd  "},
		{"catx", "'ID-'", "ID-  Hello World  "},
		{"custom", `upper(trimspace(value))`, "HELLO WORLD"},
	}

	for _, tt := range tests {
		t.Run(tt.function+"_"+tt.params, func(t *testing.T) {
			resp := run(t, NewExpressionStep(), map[string]any{
				"expressions": []any{map[string]any{
					"column": "V", "function": tt.function, "parameters": tt.params,
					"mode": "append", "new_column": "OUT",
				}},
			}, in)

			vals := column(t, resp.Output, "OUT")
			if vals[0] != tt.want {
				t.Errorf("%s(%q) = %#v, want %#v", tt.function, tt.params, vals[0], tt.want)
			}
		})
	}
}

func TestExpressionStep_NullPassthrough(t *testing.T) {
	in := table.MustNew([]string{"V"}, [][]any{{nil}})

	resp := run(t, NewExpressionStep(), map[string]any{
		"column": "V", "function": "upper",
	}, in)
	if v, _ := resp.Output.Value(0, "V"); v != nil {
		t.Errorf("expected nil, got %#v", v)
	}
}

func TestExpressionStep_ReplaceKeepsPosition(t *testing.T) {
	resp := run(t, NewExpressionStep(), map[string]any{
		"expressions": []any{map[string]any{"column": "SEX", "function": "upper", "mode": "Replace"}},
	}, dm())

	if got := strings.Join(resp.Output.Columns(), ","); got != "USUBJID,SEX,AGE" {
		t.Errorf("unexpected columns %s", got)
	}
	if v, _ := resp.Output.Value(2, "SEX"); v != "F" {
		t.Errorf("expected F, got %#v", v)
	}
}

func TestExpressionStep_PartialFailure(t *testing.T) {
	resp := run(t, NewExpressionStep(), map[string]any{
		"expressions": []any{
			map[string]any{"column": "MISSING", "function": "upper"},
			map[string]any{"column": "SEX", "function": "lower"},
		},
	}, dm())

	if len(resp.Notes) != 1 {
		t.Errorf("expected 1 note, got %v", resp.Notes)
	}
	if v, _ := resp.Output.Value(0, "SEX"); v != "m" {
		t.Errorf("expected m, got %#v", v)
	}
}

func TestExpressionStep_NonFiniteCellKeepsSiblings(t *testing.T) {
	in := table.MustNew([]string{"S", "X"}, [][]any{{"  a  ", math.NaN()}})

	resp := run(t, NewExpressionStep(), map[string]any{
		"expressions": []any{
			map[string]any{"column": "S", "function": "strip"},
			map[string]any{"column": "X", "function": "custom", "parameters": "value"},
		},
	}, in)

	if len(resp.Notes) != 1 {
		t.Errorf("expected 1 note, got %v", resp.Notes)
	}
	if v, _ := resp.Output.Value(0, "S"); v != "a" {
		t.Errorf("expected a, got %#v", v)
	}
}

func TestExpressionStep_AllFailed(t *testing.T) {
	_, err := NewExpressionStep().Execute(context.Background(), NewRequest("n1", map[string]any{
		"expressions": []any{
			map[string]any{"column": "MISSING", "function": "upper"},
			map[string]any{"column": "SEX", "function": "substr", "parameters": "abc"},
		},
	}, dm()))
	if !errors.Is(err, ErrExpression) {
		t.Errorf("expected ErrExpression, got %v", err)
	}
}

func TestExpressionStep_AppendExistingColumn(t *testing.T) {
	_, err := NewExpressionStep().Execute(context.Background(), NewRequest("n1", map[string]any{
		"expressions": []any{
			map[string]any{"column": "SEX", "function": "upper", "mode": "append", "new_column": "age"},
		},
	}, dm()))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	_, err = NewExpressionStep().Execute(context.Background(), NewRequest("n1", map[string]any{
		"expressions": []any{
			map[string]any{"column": "SEX", "function": "upper", "mode": "append", "new_column": "X"},
			map[string]any{"column": "SEX", "function": "lower", "mode": "append", "new_column": "x"},
		},
	}, dm()))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for duplicate append targets, got %v", err)
	}
}

// Constant Step Tests

func TestConstantStep(t *testing.T) {
	resp := run(t, NewConstantStep(), map[string]any{
		"columns": []any{
			map[string]any{"name": "STUDYID", "value": "ABC", "type": "string"},
			map[string]any{"name": "VISITNUM", "value": "x", "type": "integer"},
			map[string]any{"name": "DOSE", "value": "2.5", "type": "float"},
			map[string]any{"name": "FLAG", "value": "Yes", "type": "boolean"},
		},
	}, dm())

	row := map[string]any{}
	for _, c := range []string{"STUDYID", "VISITNUM", "DOSE", "FLAG"} {
		row[c], _ = resp.Output.Value(3, c)
	}
	if row["STUDYID"] != "ABC" || row["VISITNUM"] != int64(0) || row["DOSE"] != 2.5 || row["FLAG"] != true {
		t.Errorf("unexpected values: %#v", row)
	}
	if len(resp.Notes) != 1 {
		t.Errorf("expected 1 note for invalid integer, got %v", resp.Notes)
	}
}

func TestConstantStep_Legacy(t *testing.T) {
	resp := run(t, NewConstantStep(), map[string]any{
		"column_name": "DOMAIN", "constant_value": "DM", "data_type": "string",
	}, dm())
	if v, _ := resp.Output.Value(0, "DOMAIN"); v != "DM" {
		t.Errorf("expected DM, got %#v", v)
	}
}

func TestCoerceConstant(t *testing.T) {
	tests := []struct {
		value, typ string
		want       any
		ok         bool
	}{
		{"42", "integer", int64(42), true},
		{"4.2", "integer", int64(0), false},
		{"", "integer", int64(0), true},
		{"abc", "float", 0.0, false},
		{"NaN", "float", 0.0, false},
		{"-Inf", "float", 0.0, false},
		{"1.5", "float", 1.5, true},
		{"on", "boolean", true, true},
		{"nope", "boolean", false, true},
		{" x ", "string", " x ", true},
	}
	for _, tt := range tests {
		got, ok := CoerceConstant(tt.value, tt.typ)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CoerceConstant(%q, %q) = %#v, %v; want %#v, %v", tt.value, tt.typ, got, ok, tt.want, tt.ok)
		}
	}
}

// Filter Step Tests

func TestFilterStep_CaseInsensitiveEquals(t *testing.T) {
	resp := run(t, NewFilterStep(), map[string]any{
		"column": "SEX", "operator": "equals", "value": "f",
	}, dm())

	ids := column(t, resp.Output, "USUBJID")
	if len(ids) != 2 || ids[0] != "S-002" || ids[1] != "S-003" {
		t.Errorf("expected S-002,S-003, got %v", ids)
	}
}

func TestFilterStep_Operators(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
		want   int
	}{
		{"case sensitive", map[string]any{"column": "SEX", "value": "f", "case_sensitive": true}, 1},
		{"not equals", map[string]any{"column": "SEX", "operator": "not_equals", "value": "m"}, 3},
		{"contains", map[string]any{"column": "USUBJID", "operator": "contains", "value": "-00"}, 4},
		{"starts with", map[string]any{"column": "USUBJID", "operator": "starts_with", "value": "s-"}, 4},
		{"ends with", map[string]any{"column": "USUBJID", "operator": "ends_with", "value": "3"}, 1},
		{"greater than", map[string]any{"column": "AGE", "operator": "greater_than", "value": "18"}, 2},
		{"less than", map[string]any{"column": "AGE", "operator": "less_than", "value": "18"}, 1},
		{"lexicographic", map[string]any{"column": "USUBJID", "operator": "greater_than", "value": "S-002"}, 2},
		{"non-matching", map[string]any{"column": "SEX", "value": "M", "output_mode": "non-matching"}, 3},
		{"and", map[string]any{
			"conditions": []any{
				map[string]any{"column": "SEX", "value": "f"},
				map[string]any{"column": "AGE", "operator": "greater_than", "value": "18"},
			},
			"logic": "AND",
		}, 1},
		{"or", map[string]any{
			"conditions": []any{
				map[string]any{"column": "SEX", "value": "m"},
				map[string]any{"column": "AGE", "operator": "less_than", "value": "18"},
			},
			"logic": "or",
		}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := run(t, NewFilterStep(), tt.config, dm())
			if resp.Output.NumRows() != tt.want {
				t.Errorf("expected %d rows, got %d", tt.want, resp.Output.NumRows())
			}
		})
	}
}

func TestFilterStep_Errors(t *testing.T) {
	_, err := NewFilterStep().Execute(context.Background(), NewRequest("n1", map[string]any{"value": "x"}, dm()))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for empty column, got %v", err)
	}

	_, err = NewFilterStep().Execute(context.Background(), NewRequest("n1", map[string]any{"column": "NOPE", "value": "x"}, dm()))
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("expected ErrMissingColumn, got %v", err)
	}

	_, err = NewFilterStep().Execute(context.Background(), NewRequest("n1", map[string]any{"column": "SEX", "operator": "like"}, dm()))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for unknown operator, got %v", err)
	}
}

// Mapping Step Tests

func TestMappingStep_Default(t *testing.T) {
	in := table.MustNew([]string{"ANS"}, [][]any{{"Yes"}, {"No"}, {"Maybe"}})

	resp := run(t, NewMappingStep(), map[string]any{
		"source_column": "ANS",
		"target_column": "ANSCD",
		"mode":          "append",
		"rules":         map[string]any{"Yes": "Y", "No": "N"},
		"default":       "U",
	}, in)

	got := column(t, resp.Output, "ANSCD")
	if got[0] != "Y" || got[1] != "N" || got[2] != "U" {
		t.Errorf("expected [Y N U], got %v", got)
	}
	// Исходная колонка сохранена
	if v, _ := resp.Output.Value(2, "ANS"); v != "Maybe" {
		t.Errorf("source column changed: %v", v)
	}
}

func TestMappingStep_ReplaceWithoutDefault(t *testing.T) {
	resp := run(t, NewMappingStep(), map[string]any{
		"source_column": "SEX",
		"mode":          "replace",
		"rules": []any{
			map[string]any{"match": "M", "result": "Male"},
			map[string]any{"match": "M", "result": "ignored"},
		},
	}, dm())

	got := column(t, resp.Output, "SEX")
	if got[0] != "Male" || got[1] != "F" || got[3] != nil {
		t.Errorf("unexpected values %v", got)
	}
	if resp.Output.NumColumns() != 3 {
		t.Errorf("replace must not add columns")
	}
}

func TestMappingStep_CaseInsensitive(t *testing.T) {
	resp := run(t, NewMappingStep(), map[string]any{
		"source_column":  "SEX",
		"mode":           "replace",
		"rules":          []any{map[string]any{"match": "F", "result": "Female"}},
		"case_sensitive": false,
	}, dm())

	got := column(t, resp.Output, "SEX")
	if got[1] != "Female" || got[2] != "Female" {
		t.Errorf("unexpected values %v", got)
	}
}

func TestMappingStep_AppendWithoutDefaultCopiesSource(t *testing.T) {
	resp := run(t, NewMappingStep(), map[string]any{
		"source_column": "SEX",
		"target_column": "SEXCD",
		"mode":          "append",
		"rules":         []any{map[string]any{"match": "M", "result": "Male"}},
	}, dm())

	got := column(t, resp.Output, "SEXCD")
	if got[0] != "Male" || got[1] != "F" || got[2] != "f" || got[3] != nil {
		t.Errorf("unexpected values %v", got)
	}
}

func TestMappingStep_ObjectRulesOverlapWhenCaseInsensitive(t *testing.T) {
	config := map[string]any{
		"source_column":  "ANS",
		"mode":           "replace",
		"rules":          map[string]any{"yes": "Y", "YES": "1"},
		"case_sensitive": false,
	}
	in := table.MustNew([]string{"ANS"}, [][]any{{"Yes"}})

	_, err := NewMappingStep().Execute(context.Background(), NewRequest("n1", config, in))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	// С учётом регистра ключи различаются
	config["case_sensitive"] = true
	resp := run(t, NewMappingStep(), config, in)
	if v, _ := resp.Output.Value(0, "ANS"); v != "Yes" {
		t.Errorf("expected Yes unchanged, got %#v", v)
	}
}

func TestMappingStep_AppendWithoutTarget(t *testing.T) {
	_, err := NewMappingStep().Execute(context.Background(), NewRequest("n1", map[string]any{
		"source_column": "SEX", "mode": "append",
	}, dm()))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

// Keep/Drop Step Tests

func TestKeepDropStep(t *testing.T) {
	resp := run(t, NewKeepDropStep(), map[string]any{
		"included": []any{"AGE", "USUBJID", "NOPE"},
	}, dm())

	if got := strings.Join(resp.Output.Columns(), ","); got != "AGE,USUBJID" {
		t.Errorf("expected AGE,USUBJID, got %s", got)
	}
	if len(resp.Notes) != 1 {
		t.Errorf("expected note about missing column, got %v", resp.Notes)
	}

	_, err := NewKeepDropStep().Execute(context.Background(), NewRequest("n1", map[string]any{
		"included": []any{"NOPE"},
	}, dm()))
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("expected ErrMissingColumn, got %v", err)
	}
}

// Domain Step Tests

func TestDomainStep(t *testing.T) {
	resp := run(t, NewDomainStep(), map[string]any{"domain": "dm"}, dm())

	vals := column(t, resp.Output, "DOMAIN")
	for _, v := range vals {
		if v != "DM" {
			t.Fatalf("expected DM, got %v", v)
		}
	}

	_, err := NewDomainStep().Execute(context.Background(), NewRequest("n1", map[string]any{"domain": "XX"}, dm()))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}
