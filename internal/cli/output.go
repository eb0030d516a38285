package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shaiso/sdtmflow/internal/table"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output для stdout/stderr. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(os.Stdout, os.Stderr, jsonMode)
}

// NewOutputTo создаёт Output с произвольными writer'ами.
func NewOutputTo(w, errW io.Writer, jsonMode bool) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// JSONMode возвращает true, если включён вывод в JSON.
func (o *Output) JSONMode() bool {
	return o.jsonMode
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// maxCellWidth — ячейки длиннее обрезаются в табличном выводе.
const maxCellWidth = 40

// Table выводит данные в виде таблицы через tabwriter.
// Табуляции и переводы строк внутри ячеек заменяются пробелами.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len([]rune(h)))
	}
	writeRow(tw, headers)
	writeRow(tw, dashes)
	for _, row := range rows {
		writeRow(tw, row)
	}

	tw.Flush()
}

func writeRow(w io.Writer, cells []string) {
	clipped := make([]string, len(cells))
	for i, c := range cells {
		clipped[i] = clipCell(c)
	}
	fmt.Fprintln(w, strings.Join(clipped, "\t"))
}

// clipCell готовит значение к выводу в одну строку таблицы.
func clipCell(s string) string {
	s = strings.NewReplacer("\t", " ", "\r\n", " ", "\n", " ").Replace(s)
	if r := []rune(s); len(r) > maxCellWidth {
		return string(r[:maxCellWidth-3]) + "..."
	}
	return s
}

// Dataset выводит первые limit строк dataset (limit <= 0 — все строки).
// В режиме JSON выводится dataset целиком в формате table.Dataset.
func (o *Output) Dataset(d *table.Dataset, limit int) {
	if o.jsonMode {
		o.JSON(d)
		return
	}

	n := d.NumRows()
	if limit > 0 && limit < n {
		n = limit
	}

	rows := make([][]string, n)
	for i := range n {
		cells := d.Row(i)
		row := make([]string, len(cells))
		for j, v := range cells {
			row[j] = table.FormatValue(v)
		}
		rows[i] = row
	}
	fmt.Fprintf(o.w, "%d rows x %d columns\n", d.NumRows(), d.NumColumns())
	o.Table(d.Columns(), rows)

	if n < d.NumRows() {
		fmt.Fprintf(o.w, "... %d more rows\n", d.NumRows()-n)
	}
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		o.Error(err.Error())
	}
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Info выводит строку хода выполнения в stderr.
func (o *Output) Info(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}
