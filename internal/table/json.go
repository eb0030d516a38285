package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
)

// jsonDataset — формат JSON-представления dataset.
type jsonDataset struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// MarshalJSON кодирует dataset в канонический JSON:
//
//	{"columns":[...],"rows":[[...],...]}
//
// Одинаковые dataset'ы всегда дают одинаковые байты. Нечисловые float
// (NaN, Inf) кодируются как null.
func (d *Dataset) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"columns":`)
	cols, err := json.Marshal(d.columns)
	if err != nil {
		return nil, err
	}
	if d.columns == nil {
		cols = []byte("[]")
	}
	buf.Write(cols)

	buf.WriteString(`,"rows":[`)
	for r, row := range d.rows {
		if r > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		for i, v := range row {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCell(&buf, v); err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", r, d.columns[i], err)
			}
		}
		buf.WriteByte(']')
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

func writeCell(buf *bytes.Buffer, v any) error {
	switch x := v.(type) {
	case nil:
		buf.WriteString("null")
	case int64:
		buf.WriteString(strconv.FormatInt(x, 10))
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			buf.WriteString("null")
			return nil
		}
		// Целые float64 пишем с дробной частью, чтобы при декодировании
		// тип ячейки не превратился в int64.
		s := strconv.FormatFloat(x, 'f', -1, 64)
		if x == math.Trunc(x) && !bytes.ContainsAny([]byte(s), ".e") {
			s += ".0"
		}
		buf.WriteString(s)
	case bool:
		buf.WriteString(strconv.FormatBool(x))
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

// UnmarshalJSON декодирует dataset из формата MarshalJSON.
// Числа без дробной части становятся int64, остальные float64.
func (d *Dataset) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw jsonDataset
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decode dataset: %w", err)
	}

	for _, row := range raw.Rows {
		for i, v := range row {
			row[i] = fromJSONValue(v)
		}
	}

	nd, err := New(raw.Columns, raw.Rows)
	if err != nil {
		return err
	}
	*d = *nd
	return nil
}

// fromJSONValue конвертирует значение из JSON-декодера в значение ячейки.
func fromJSONValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int64(x)
		}
		return x
	case map[string]any, []any:
		b, _ := json.Marshal(x)
		return string(b)
	default:
		return Normalize(x)
	}
}

// FromJSONValue конвертирует значение, декодированное encoding/json
// (например, из конфигурации узла), в значение ячейки.
func FromJSONValue(v any) any {
	return fromJSONValue(v)
}

// WriteJSONFile записывает dataset в JSON-файл в каноническом формате.
func (d *Dataset) WriteJSONFile(path string) error {
	data, err := d.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal dataset: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
