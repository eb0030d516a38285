package table

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func sample() *Dataset {
	return MustNew(
		[]string{"USUBJID", "AGE", "SEX"},
		[][]any{
			{"S-001", 34, "M"},
			{"S-002", 51, "F"},
			{"S-003", nil, "f"},
		},
	)
}

func TestNew_Validation(t *testing.T) {
	_, err := New([]string{"A", "A"}, nil)
	if !errors.Is(err, ErrDuplicateColumn) {
		t.Errorf("expected ErrDuplicateColumn, got %v", err)
	}

	_, err = New([]string{"A", "B"}, [][]any{{1}})
	if !errors.Is(err, ErrRowWidth) {
		t.Errorf("expected ErrRowWidth, got %v", err)
	}
}

func TestNew_NormalizesValues(t *testing.T) {
	d := MustNew([]string{"A", "B"}, [][]any{{7, float32(1.5)}})

	v, _ := d.Value(0, "A")
	if _, ok := v.(int64); !ok {
		t.Errorf("expected int64, got %T", v)
	}
	v, _ = d.Value(0, "B")
	if _, ok := v.(float64); !ok {
		t.Errorf("expected float64, got %T", v)
	}
}

func TestSelect(t *testing.T) {
	d := sample()

	out, err := d.Select("SEX", "USUBJID")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(out.Columns(), ","); got != "SEX,USUBJID" {
		t.Errorf("unexpected columns %s", got)
	}
	if v, _ := out.Value(1, "USUBJID"); v != "S-002" {
		t.Errorf("unexpected value %v", v)
	}

	if _, err := d.Select("MISSING"); !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("expected ErrColumnNotFound, got %v", err)
	}
}

func TestRename(t *testing.T) {
	d := sample()

	out, err := d.Rename(map[string]string{"SEX": "GENDER", "NOPE": "X"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(out.Columns(), ","); got != "USUBJID,AGE,GENDER" {
		t.Errorf("unexpected columns %s", got)
	}

	// Исходный dataset не изменился
	if !d.HasColumn("SEX") {
		t.Error("input dataset was mutated")
	}

	if _, err := d.Rename(map[string]string{"SEX": "AGE"}); !errors.Is(err, ErrDuplicateColumn) {
		t.Errorf("expected ErrDuplicateColumn, got %v", err)
	}
}

func TestWithColumn(t *testing.T) {
	d := sample()

	added := d.WithColumn("DOMAIN", func(int) any { return "DM" })
	if added.NumColumns() != 4 || d.NumColumns() != 3 {
		t.Fatalf("unexpected column counts %d / %d", added.NumColumns(), d.NumColumns())
	}

	replaced := d.WithColumn("SEX", func(r int) any {
		v, _ := d.Value(r, "SEX")
		return strings.ToUpper(FormatValue(v))
	})
	if got := strings.Join(replaced.Columns(), ","); got != "USUBJID,AGE,SEX" {
		t.Errorf("replace should keep position, got %s", got)
	}
	if v, _ := replaced.Value(2, "SEX"); v != "F" {
		t.Errorf("expected F, got %v", v)
	}
	if v, _ := d.Value(2, "SEX"); v != "f" {
		t.Errorf("input dataset was mutated: %v", v)
	}
}

func TestFilter(t *testing.T) {
	d := sample()
	out := d.Filter(func(r int) bool {
		v, _ := d.Value(r, "AGE")
		return v != nil
	})
	if out.NumRows() != 2 {
		t.Errorf("expected 2 rows, got %d", out.NumRows())
	}
}

func TestReadCSV(t *testing.T) {
	src := "\ufeffUSUBJID,AGE,WEIGHT,SEX\nS-001,34,70.5,M\nS-002,,81,F\n"

	d, err := ReadCSV(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Columns()[0] != "USUBJID" {
		t.Errorf("BOM not stripped: %q", d.Columns()[0])
	}
	if v, _ := d.Value(0, "AGE"); v != int64(34) {
		t.Errorf("expected int64 34, got %#v", v)
	}
	if v, _ := d.Value(0, "WEIGHT"); v != 70.5 {
		t.Errorf("expected 70.5, got %#v", v)
	}
	if v, _ := d.Value(1, "AGE"); v != nil {
		t.Errorf("expected nil for empty cell, got %#v", v)
	}

	var buf bytes.Buffer
	if err := d.WriteCSV(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "USUBJID,AGE,WEIGHT,SEX\nS-001,34,70.5,M\nS-002,,81,F\n"
	if buf.String() != want {
		t.Errorf("unexpected csv:\n%s", buf.String())
	}
}

func TestReadCSV_PreservesIdentifierText(t *testing.T) {
	src := "USUBJID,SUBJID,DOSE,SITE\nS-001,001,1.50,+7\nS-002,0042,2.5,0\n"

	d, err := ReadCSV(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := d.Value(0, "SUBJID"); v != "001" {
		t.Errorf("expected \"001\", got %#v", v)
	}
	if v, _ := d.Value(1, "DOSE"); v != 2.5 {
		t.Errorf("expected 2.5, got %#v", v)
	}
	if v, _ := d.Value(1, "SITE"); v != int64(0) {
		t.Errorf("expected int64 0, got %#v", v)
	}

	var buf bytes.Buffer
	if err := d.WriteCSV(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != src {
		t.Errorf("round trip changed csv:\n%s", buf.String())
	}
}

func TestReadCSVWith(t *testing.T) {
	src := "SUBJID,AGE\n7,34\n,\n"

	d, err := ReadCSVWith(strings.NewReader(src), CSVOptions{StringColumns: []string{"SUBJID"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := d.Value(0, "SUBJID"); v != "7" {
		t.Errorf("expected \"7\", got %#v", v)
	}
	if v, _ := d.Value(0, "AGE"); v != int64(34) {
		t.Errorf("expected int64 34, got %#v", v)
	}
	if v, _ := d.Value(1, "SUBJID"); v != nil {
		t.Errorf("expected nil for empty cell, got %#v", v)
	}

	d, err = ReadCSVWith(strings.NewReader(src), CSVOptions{RawText: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := d.Value(0, "AGE"); v != "34" {
		t.Errorf("expected \"34\", got %#v", v)
	}
}

func TestInferValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"", nil},
		{"42", int64(42)},
		{"-3", int64(-3)},
		{"0", int64(0)},
		{"001", "001"},
		{"-0", "-0"},
		{"+5", "+5"},
		{"70.5", 70.5},
		{"1.50", "1.50"},
		{"NaN", "NaN"},
		{"Inf", "Inf"},
		{"M", "M"},
	}
	for _, tt := range tests {
		if got := InferValue(tt.in); got != tt.want {
			t.Errorf("InferValue(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestReadCSV_Errors(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("")); err == nil {
		t.Error("expected error for empty input")
	}
	if _, err := ReadCSV(strings.NewReader("A,B\n1\n")); !errors.Is(err, ErrRowWidth) {
		t.Errorf("expected ErrRowWidth, got %v", err)
	}
}

func TestMarshalJSON_Canonical(t *testing.T) {
	d := MustNew([]string{"A", "B", "C", "D"}, [][]any{{"x", int64(1), 2.0, nil}, {"y", int64(2), 2.5, true}})

	b1, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"columns":["A","B","C","D"],"rows":[["x",1,2.0,null],["y",2,2.5,true]]}`
	if string(b1) != want {
		t.Errorf("unexpected json:\n got %s\nwant %s", b1, want)
	}

	var back Dataset
	if err := json.Unmarshal(b1, &back); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !back.Equal(d) {
		t.Errorf("decoded dataset differs: %s", b1)
	}

	b2, _ := json.Marshal(&back)
	if !bytes.Equal(b1, b2) {
		t.Errorf("encoding not stable:\n%s\n%s", b1, b2)
	}
}
