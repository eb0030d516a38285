package steps

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shaiso/sdtmflow/internal/domain"
	"github.com/shaiso/sdtmflow/internal/table"
)

// Типы соединения.
const (
	JoinInner = "inner"
	JoinLeft  = "left"
	JoinRight = "right"
	JoinOuter = "outer"
)

// Политики разрешения конфликтов имён колонок.
const (
	// DuplicateKeepLeft — левая колонка сохраняет имя, правая получает suffix_right.
	DuplicateKeepLeft = "keep_left"

	// DuplicateSuffixBoth — обе колонки получают суффиксы.
	DuplicateSuffixBoth = "suffix_both"
)

// Суффиксы по умолчанию.
const (
	DefaultSuffixLeft  = "_left"
	DefaultSuffixRight = "_right"
)

// JoinStep — реляционное соединение двух dataset'ов.
// Порт 0 — left, порт 1 — right.
//
// Конфигурация:
//
//	{
//	    "join_type": "left",
//	    "left_keys": ["USUBJID"],
//	    "right_keys": ["USUBJID"],
//	    "duplicate_handling": "keep_left",
//	    "suffix_left": "_left",
//	    "suffix_right": "_right",
//	    "select_left": ["USUBJID", "AGE"],
//	    "select_right": ["AESTDTC"]
//	}
//
// Пары ключей с одинаковым именем сливаются в одну колонку (значение
// левой стороны, для строк только из правой стороны — правой). Правые
// ключи с другим именем сохраняются как обычные колонки.
//
// Конфликты имён остальных колонок разрешаются по duplicate_handling.
// Устаревшие значения: "skip" = keep_left, "append" = suffix_both.
//
// Строки результата: строки left в исходном порядке (с совпавшими
// строками right в их порядке), затем несовпавшие строки right
// (для right/outer). null в ключе ни с чем не совпадает.
type JoinStep struct{}

// NewJoinStep создаёт новый JoinStep.
func NewJoinStep() *JoinStep {
	return &JoinStep{}
}

// Type возвращает тип шага.
func (s *JoinStep) Type() string {
	return string(domain.KindJoin)
}

// InputPorts возвращает количество входных портов.
func (s *JoinStep) InputPorts() int {
	return 2
}

// joinConfig — разобранная конфигурация соединения.
type joinConfig struct {
	joinType    string
	leftKeys    []string
	rightKeys   []string
	duplicates  string
	suffixLeft  string
	suffixRight string
	selectLeft  []string
	selectRight []string
}

// Execute выполняет соединение.
func (s *JoinStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	left, err := requireInput(req, 0)
	if err != nil {
		return nil, err
	}
	right, err := requireInput(req, 1)
	if err != nil {
		return nil, err
	}

	cfg, err := parseJoinConfig(req.Config)
	if err != nil {
		return nil, err
	}

	for _, k := range cfg.leftKeys {
		if !left.HasColumn(k) {
			return nil, fmt.Errorf("left: %w", missingColumn(k, left))
		}
	}
	for _, k := range cfg.rightKeys {
		if !right.HasColumn(k) {
			return nil, fmt.Errorf("right: %w", missingColumn(k, right))
		}
	}

	plan, err := planColumns(left, right, cfg)
	if err != nil {
		return nil, err
	}

	out, err := joinRows(left, right, cfg, plan)
	if err != nil {
		return nil, err
	}

	out, notes := selectColumns(out, cfg, plan)
	return NewResponse(out, notes...), nil
}

// parseJoinConfig читает и проверяет конфигурацию.
func parseJoinConfig(config map[string]any) (*joinConfig, error) {
	cfg := &joinConfig{
		joinType:    strings.ToLower(GetConfigString(config, "join_type")),
		leftKeys:    GetConfigStrings(config, "left_keys"),
		rightKeys:   GetConfigStrings(config, "right_keys"),
		duplicates:  strings.ToLower(GetConfigString(config, "duplicate_handling")),
		suffixLeft:  GetConfigStringAny(config, "suffix_left", "column_suffix_left"),
		suffixRight: GetConfigStringAny(config, "suffix_right", "column_suffix_right"),
		selectLeft:  GetConfigStrings(config, "select_left"),
		selectRight: GetConfigStrings(config, "select_right"),
	}

	if cfg.leftKeys == nil {
		cfg.leftKeys = GetConfigStrings(config, "left_columns")
	}
	if cfg.rightKeys == nil {
		cfg.rightKeys = GetConfigStrings(config, "right_columns")
	}
	if cfg.selectLeft == nil {
		cfg.selectLeft = GetConfigStrings(config, "selected_left_columns")
	}
	if cfg.selectRight == nil {
		cfg.selectRight = GetConfigStrings(config, "selected_right_columns")
	}

	switch cfg.joinType {
	case "":
		cfg.joinType = JoinInner
	case JoinInner, JoinLeft, JoinRight, JoinOuter:
	case "full", "full_outer":
		cfg.joinType = JoinOuter
	default:
		return nil, configError("unknown join_type %q", cfg.joinType)
	}

	switch cfg.duplicates {
	case "", DuplicateKeepLeft, "skip":
		cfg.duplicates = DuplicateKeepLeft
	case DuplicateSuffixBoth, "append":
		cfg.duplicates = DuplicateSuffixBoth
	default:
		return nil, configError("unknown duplicate_handling %q", cfg.duplicates)
	}

	if cfg.suffixLeft == "" {
		cfg.suffixLeft = DefaultSuffixLeft
	}
	if cfg.suffixRight == "" {
		cfg.suffixRight = DefaultSuffixRight
	}

	if len(cfg.leftKeys) == 0 || len(cfg.rightKeys) == 0 {
		return nil, configError("left_keys and right_keys must not be empty")
	}
	if len(cfg.leftKeys) != len(cfg.rightKeys) {
		return nil, configError("left_keys (%d) and right_keys (%d) must have the same length",
			len(cfg.leftKeys), len(cfg.rightKeys))
	}
	return cfg, nil
}

// columnPlan — раскладка колонок результата.
type columnPlan struct {
	// columns — имена колонок результата.
	columns []string

	// leftOut — исходное имя левой колонки → имя в результате.
	leftOut map[string]string

	// rightOut — исходное имя правой колонки → имя в результате.
	// Для слитых ключей указывает на колонку левого ключа.
	rightOut map[string]string

	// rightCols — правые колонки, идущие в результат (без слитых ключей).
	rightCols []string

	// merged — имя левого ключа → имя правого ключа для слитых пар.
	merged map[string]string

	// keyColumns — имена ключевых колонок в результате.
	keyColumns []string
}

// planColumns строит раскладку колонок с учётом слияния ключей и суффиксов.
func planColumns(left, right *table.Dataset, cfg *joinConfig) (*columnPlan, error) {
	p := &columnPlan{
		leftOut:  make(map[string]string),
		rightOut: make(map[string]string),
		merged:   make(map[string]string),
	}

	mergedRight := make(map[string]bool)
	for i, lk := range cfg.leftKeys {
		if rk := cfg.rightKeys[i]; lk == rk {
			p.merged[lk] = rk
			mergedRight[rk] = true
		}
	}

	for _, c := range right.Columns() {
		if !mergedRight[c] {
			p.rightCols = append(p.rightCols, c)
		}
	}

	conflicts := make(map[string]bool)
	for _, c := range p.rightCols {
		if left.HasColumn(c) {
			conflicts[c] = true
		}
	}

	for _, c := range left.Columns() {
		name := c
		if conflicts[c] && cfg.duplicates == DuplicateSuffixBoth {
			name = c + cfg.suffixLeft
		}
		p.leftOut[c] = name
		p.columns = append(p.columns, name)
	}
	for _, c := range p.rightCols {
		name := c
		if conflicts[c] {
			name = c + cfg.suffixRight
		}
		p.rightOut[c] = name
		p.columns = append(p.columns, name)
	}
	for rk := range mergedRight {
		p.rightOut[rk] = p.leftOut[rk]
	}

	seen := make(map[string]bool, len(p.columns))
	for _, c := range p.columns {
		if seen[c] {
			return nil, fmt.Errorf("%w: suffixed column %q collides with an existing column", ErrData, c)
		}
		seen[c] = true
	}

	keySeen := make(map[string]bool)
	for _, lk := range cfg.leftKeys {
		if name := p.leftOut[lk]; !keySeen[name] {
			keySeen[name] = true
			p.keyColumns = append(p.keyColumns, name)
		}
	}
	for _, rk := range cfg.rightKeys {
		if name := p.rightOut[rk]; !keySeen[name] {
			keySeen[name] = true
			p.keyColumns = append(p.keyColumns, name)
		}
	}
	return p, nil
}

// joinRows формирует строки результата.
func joinRows(left, right *table.Dataset, cfg *joinConfig, p *columnPlan) (*table.Dataset, error) {
	leftCols := left.Columns()
	leftKeyIdx := columnIndexes(left, cfg.leftKeys)
	rightKeyIdx := columnIndexes(right, cfg.rightKeys)
	rightColIdx := columnIndexes(right, p.rightCols)

	// Для слитых ключей: позиция в результате → индекс правой колонки.
	mergedFill := make(map[int]int)
	for i, c := range leftCols {
		if rk, ok := p.merged[c]; ok {
			mergedFill[i] = right.ColumnIndex(rk)
		}
	}

	index := make(map[string][]int)
	for r := 0; r < right.NumRows(); r++ {
		if key, ok := joinKey(right.Row(r), rightKeyIdx); ok {
			index[key] = append(index[key], r)
		}
	}

	width := len(p.columns)
	var rows [][]any
	matchedRight := make([]bool, right.NumRows())

	for l := 0; l < left.NumRows(); l++ {
		lrow := left.Row(l)
		var matches []int
		if key, ok := joinKey(lrow, leftKeyIdx); ok {
			matches = index[key]
		}

		if len(matches) == 0 {
			if cfg.joinType == JoinLeft || cfg.joinType == JoinOuter {
				row := make([]any, width)
				copy(row, lrow)
				rows = append(rows, row)
			}
			continue
		}

		for _, r := range matches {
			matchedRight[r] = true
			rrow := right.Row(r)
			row := make([]any, width)
			copy(row, lrow)
			for j, ci := range rightColIdx {
				row[len(lrow)+j] = rrow[ci]
			}
			rows = append(rows, row)
		}
	}

	if cfg.joinType == JoinRight || cfg.joinType == JoinOuter {
		for r := 0; r < right.NumRows(); r++ {
			if matchedRight[r] {
				continue
			}
			rrow := right.Row(r)
			row := make([]any, width)
			for pos, ci := range mergedFill {
				row[pos] = rrow[ci]
			}
			for j, ci := range rightColIdx {
				row[len(leftCols)+j] = rrow[ci]
			}
			rows = append(rows, row)
		}
	}

	out, err := table.New(p.columns, rows)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrData, err)
	}
	return out, nil
}

// selectColumns применяет select_left/select_right.
// Ключевые колонки всегда идут первыми. Если ни одна выбранная колонка
// не найдена, возвращаются все колонки.
func selectColumns(out *table.Dataset, cfg *joinConfig, p *columnPlan) (*table.Dataset, []string) {
	if len(cfg.selectLeft) == 0 && len(cfg.selectRight) == 0 {
		return out, nil
	}

	var notes []string
	cols := append([]string(nil), p.keyColumns...)
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		seen[c] = true
	}

	resolved := 0
	add := func(side string, names []string, mapping map[string]string) {
		for _, n := range names {
			name, ok := mapping[n]
			if !ok {
				notes = append(notes, fmt.Sprintf("%s column %q not found, skipped", side, n))
				continue
			}
			resolved++
			if !seen[name] {
				seen[name] = true
				cols = append(cols, name)
			}
		}
	}
	add("left", cfg.selectLeft, p.leftOut)
	add("right", cfg.selectRight, p.rightOut)

	if resolved == 0 {
		notes = append(notes, "no selected columns found, keeping all columns")
		return out, notes
	}

	sel, err := out.Select(cols...)
	if err != nil {
		notes = append(notes, fmt.Sprintf("column selection failed: %v", err))
		return out, notes
	}
	return sel, notes
}

// columnIndexes возвращает индексы колонок.
func columnIndexes(d *table.Dataset, columns []string) []int {
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = d.ColumnIndex(c)
	}
	return idx
}

// joinKey строит ключ соединения. Числа сравниваются по значению
// (1 и 1.0 совпадают). Ключ с null не совпадает ни с чем.
func joinKey(row []any, idx []int) (string, bool) {
	var b strings.Builder
	for i, ci := range idx {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		switch v := row[ci].(type) {
		case nil:
			return "", false
		case int64:
			b.WriteString("n:")
			b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 64))
		case float64:
			b.WriteString("n:")
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		case bool:
			b.WriteString("b:")
			b.WriteString(strconv.FormatBool(v))
		default:
			b.WriteString("s:")
			b.WriteString(table.FormatValue(v))
		}
	}
	return b.String(), true
}
