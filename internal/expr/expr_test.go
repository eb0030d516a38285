package expr

import (
	"errors"
	"math"
	"testing"
)

func TestCompile_Errors(t *testing.T) {
	if _, err := Compile("upper(value"); !errors.Is(err, ErrSyntax) {
		t.Errorf("expected ErrSyntax, got %v", err)
	}
	if _, err := Compile("upper(row.SEX)"); !errors.Is(err, ErrUnknownVariable) {
		t.Errorf("expected ErrUnknownVariable, got %v", err)
	}
}

func TestEval(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		value any
		want  any
	}{
		{"upper", `upper(value)`, "male", "MALE"},
		{"trim and lower", `lower(trimspace(value))`, "  Female ", "female"},
		{"substr", `substr(value, 0, 4)`, "2023-05-17", "2023"},
		{"format", `format("%s-%s", "STUDY1", value)`, "001", "STUDY1-001"},
		{"integer arithmetic", `value * 2`, int64(21), int64(42)},
		{"float arithmetic", `value / 2`, int64(5), 2.5},
		{"conditional on null", `value == null ? "UNKNOWN" : value`, nil, "UNKNOWN"},
		{"bool", `value == "Y"`, "Y", true},
		{"regex", `regex_replace(value, "[^0-9]", "")`, "A-12/3", "123"},
		{"tonumber", `tonumber(value) + 1`, "41", int64(42)},
		{"null result", `null`, "x", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Compile(tt.src)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, err := e.Eval(tt.value)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Eval(%v) = %#v, want %#v", tt.value, got, tt.want)
			}
		})
	}
}

func TestEval_Errors(t *testing.T) {
	e, err := Compile(`upper(value)`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// upper не принимает null
	if _, err := e.Eval(nil); !errors.Is(err, ErrEval) {
		t.Errorf("expected ErrEval, got %v", err)
	}

	list, err := Compile(`split(",", value)`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := list.Eval("a,b"); !errors.Is(err, ErrResultType) {
		t.Errorf("expected ErrResultType, got %v", err)
	}
}

func TestEval_NonFiniteNumber(t *testing.T) {
	e, err := Compile(`value`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := e.Eval(v); !errors.Is(err, ErrEval) {
			t.Errorf("Eval(%v): expected ErrEval, got %v", v, err)
		}
	}
}
