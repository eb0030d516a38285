package table

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Ошибки пакета table.
var (
	// ErrDuplicateColumn — имя колонки встречается дважды.
	ErrDuplicateColumn = errors.New("duplicate column")

	// ErrColumnNotFound — колонка отсутствует в dataset.
	ErrColumnNotFound = errors.New("column not found")

	// ErrRowWidth — ширина строки не совпадает с числом колонок.
	ErrRowWidth = errors.New("row width mismatch")
)

// Dataset — неизменяемая таблица: упорядоченные уникальные имена колонок
// и строки значений.
//
// Значение ячейки: nil, string, int64, float64 или bool.
// Все операции возвращают новый Dataset; исходный не меняется, поэтому
// один результат безопасно отдавать нескольким потребителям.
type Dataset struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// New создаёт dataset из колонок и строк.
// Значения нормализуются (int → int64, float32 → float64 и т.д.).
func New(columns []string, rows [][]any) (*Dataset, error) {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := idx[c]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c)
		}
		idx[c] = i
	}

	out := make([][]any, len(rows))
	for r, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("%w: row %d has %d values, expected %d", ErrRowWidth, r, len(row), len(columns))
		}
		cp := make([]any, len(row))
		for i, v := range row {
			cp[i] = Normalize(v)
		}
		out[r] = cp
	}

	return &Dataset{
		columns: append([]string(nil), columns...),
		index:   idx,
		rows:    out,
	}, nil
}

// MustNew — New, паникующий при ошибке. Для тестов и статичных данных.
func MustNew(columns []string, rows [][]any) *Dataset {
	d, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return d
}

// FromRecords строит dataset из записей (колонка → значение).
// Порядок колонок задаётся явно.
func FromRecords(columns []string, records []map[string]any) (*Dataset, error) {
	rows := make([][]any, len(records))
	for i, rec := range records {
		row := make([]any, len(columns))
		for j, c := range columns {
			row[j] = rec[c]
		}
		rows[i] = row
	}
	return New(columns, rows)
}

// build создаёт dataset без копирования и нормализации.
// Вызывающий гарантирует уникальность колонок и ширину строк.
func build(columns []string, rows [][]any) *Dataset {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	return &Dataset{columns: columns, index: idx, rows: rows}
}

// Columns возвращает копию списка колонок.
func (d *Dataset) Columns() []string {
	return append([]string(nil), d.columns...)
}

// NumColumns возвращает количество колонок.
func (d *Dataset) NumColumns() int {
	return len(d.columns)
}

// NumRows возвращает количество строк.
func (d *Dataset) NumRows() int {
	return len(d.rows)
}

// HasColumn проверяет наличие колонки (с учётом регистра).
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.index[name]
	return ok
}

// HasColumnFold проверяет наличие колонки без учёта регистра.
func (d *Dataset) HasColumnFold(name string) bool {
	for _, c := range d.columns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

// ColumnIndex возвращает индекс колонки или -1.
func (d *Dataset) ColumnIndex(name string) int {
	if i, ok := d.index[name]; ok {
		return i
	}
	return -1
}

// Value возвращает значение ячейки.
func (d *Dataset) Value(row int, column string) (any, bool) {
	i, ok := d.index[column]
	if !ok || row < 0 || row >= len(d.rows) {
		return nil, false
	}
	return d.rows[row][i], true
}

// Row возвращает копию строки.
func (d *Dataset) Row(i int) []any {
	return append([]any(nil), d.rows[i]...)
}

// Column возвращает копию значений колонки.
func (d *Dataset) Column(name string) ([]any, error) {
	i, ok := d.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	out := make([]any, len(d.rows))
	for r, row := range d.rows {
		out[r] = row[i]
	}
	return out, nil
}

// Records возвращает строки в виде записей (колонка → значение).
func (d *Dataset) Records() []map[string]any {
	out := make([]map[string]any, len(d.rows))
	for r, row := range d.rows {
		rec := make(map[string]any, len(d.columns))
		for i, c := range d.columns {
			rec[c] = row[i]
		}
		out[r] = rec
	}
	return out
}

// Select возвращает dataset только с указанными колонками в указанном порядке.
func (d *Dataset) Select(columns ...string) (*Dataset, error) {
	idx := make([]int, len(columns))
	seen := make(map[string]bool, len(columns))
	for j, c := range columns {
		i, ok := d.index[c]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, c)
		}
		if seen[c] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c)
		}
		seen[c] = true
		idx[j] = i
	}

	rows := make([][]any, len(d.rows))
	for r, row := range d.rows {
		nr := make([]any, len(idx))
		for j, i := range idx {
			nr[j] = row[i]
		}
		rows[r] = nr
	}
	return build(append([]string(nil), columns...), rows), nil
}

// Filter возвращает dataset со строками, для которых keep вернул true.
// Строки не копируются: они неизменяемы и разделяются между dataset'ами.
func (d *Dataset) Filter(keep func(row int) bool) *Dataset {
	var rows [][]any
	for r, row := range d.rows {
		if keep(r) {
			rows = append(rows, row)
		}
	}
	return build(d.columns, rows)
}

// Rename переименовывает колонки по карте old → new.
// Отсутствующие ключи игнорируются. Возвращает ошибку, если новое имя
// совпадает с другой существующей колонкой.
func (d *Dataset) Rename(mapping map[string]string) (*Dataset, error) {
	cols := d.Columns()
	for i, c := range cols {
		if n, ok := mapping[c]; ok {
			cols[i] = n
		}
	}

	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if seen[c] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c)
		}
		seen[c] = true
	}
	return build(cols, d.rows), nil
}

// WithColumn возвращает dataset с колонкой, значения которой вычисляет fn.
// Если колонка существует, она заменяется на месте, иначе добавляется в конец.
func (d *Dataset) WithColumn(name string, fn func(row int) any) *Dataset {
	pos, exists := d.index[name]
	cols := d.columns
	if !exists {
		cols = append(d.Columns(), name)
		pos = len(cols) - 1
	}

	rows := make([][]any, len(d.rows))
	for r, row := range d.rows {
		nr := make([]any, len(cols))
		copy(nr, row)
		nr[pos] = Normalize(fn(r))
		rows[r] = nr
	}
	return build(cols, rows)
}

// Equal сравнивает dataset'ы по колонкам и значениям.
func (d *Dataset) Equal(o *Dataset) bool {
	if d == nil || o == nil {
		return d == o
	}
	if len(d.columns) != len(o.columns) || len(d.rows) != len(o.rows) {
		return false
	}
	for i := range d.columns {
		if d.columns[i] != o.columns[i] {
			return false
		}
	}
	for r := range d.rows {
		for i := range d.rows[r] {
			if d.rows[r][i] != o.rows[r][i] {
				return false
			}
		}
	}
	return true
}

// Normalize приводит значение к одному из типов ячейки.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, string, int64, float64, bool:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case int8:
		return int64(x)
	case uint:
		return int64(x)
	case uint32:
		return int64(x)
	case uint16:
		return int64(x)
	case uint8:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// FormatValue форматирует значение ячейки как строку.
// nil превращается в пустую строку.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// ParseNumber пытается интерпретировать значение как число.
func ParseNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// InferValue интерпретирует строку из текстового источника:
// пустая строка → nil, затем int64, затем float64, иначе string.
//
// Число принимается, только если FormatValue восстанавливает исходный
// текст: "001", "+5" и "1.50" остаются строками.
func InferValue(s string) any {
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		if strconv.FormatInt(i, 10) == s {
			return i
		}
		return s
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		if FormatValue(f) == s {
			return f
		}
	}
	return s
}
