package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/sdtmflow/internal/table"
)

// Ошибки шагов.
var (
	// ErrStepNotFound — тип шага не найден в реестре.
	ErrStepNotFound = errors.New("step type not found")

	// ErrInvalidConfig — невалидная конфигурация шага.
	ErrInvalidConfig = errors.New("invalid step config")

	// ErrMissingColumn — колонка, указанная в конфигурации, отсутствует во входных данных.
	ErrMissingColumn = errors.New("column not found in input")

	// ErrData — данные не позволяют выполнить преобразование.
	ErrData = errors.New("invalid input data")

	// ErrExpression — ошибка вычисления выражения.
	ErrExpression = errors.New("expression failed")

	// ErrStepCancelled — выполнение шага отменено.
	ErrStepCancelled = errors.New("step execution cancelled")
)

// Step — интерфейс для типов узлов.
//
// Каждый тип узла (source, rename, expression, ..., join) реализует этот интерфейс.
// Шаг — чистое преобразование: результат зависит только от входов и конфигурации,
// входные dataset'ы не изменяются.
type Step interface {
	// Type возвращает тип шага (domain.NodeKind).
	Type() string

	// InputPorts возвращает количество входных портов.
	InputPorts() int

	// Execute выполняет шаг и возвращает результат.
	// Шаг должен проверять ctx.Done() перед началом работы.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request — входные данные для выполнения шага.
type Request struct {
	// NodeID — идентификатор узла.
	NodeID string

	// Config — конфигурация узла.
	Config map[string]any

	// Inputs — входные dataset'ы по портам (0 = left, 1 = right).
	Inputs []*table.Dataset

	// Data — dataset, загруженный в узел source заранее. Может быть nil.
	Data *table.Dataset

	// BaseDir — каталог для относительных путей (каталог файла flow).
	BaseDir string
}

// Response — результат выполнения шага.
type Response struct {
	// Output — выходной dataset.
	Output *table.Dataset

	// Notes — предупреждения, не приводящие к ошибке
	// (пропущенные колонки, неудавшиеся выражения).
	Notes []string
}

// NewRequest создаёт новый Request.
func NewRequest(nodeID string, config map[string]any, inputs ...*table.Dataset) *Request {
	if config == nil {
		config = make(map[string]any)
	}
	return &Request{
		NodeID: nodeID,
		Config: config,
		Inputs: inputs,
	}
}

// Input возвращает dataset входного порта или nil.
func (r *Request) Input(port int) *table.Dataset {
	if port < 0 || port >= len(r.Inputs) {
		return nil
	}
	return r.Inputs[port]
}

// NewResponse создаёт Response с результатом.
func NewResponse(out *table.Dataset, notes ...string) *Response {
	return &Response{Output: out, Notes: notes}
}

// checkContext возвращает ErrStepCancelled, если контекст отменён.
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	default:
		return nil
	}
}

// requireInput возвращает вход порта или ошибку.
func requireInput(req *Request, port int) (*table.Dataset, error) {
	in := req.Input(port)
	if in == nil {
		return nil, fmt.Errorf("%w: no dataset on input port %d", ErrData, port)
	}
	return in, nil
}

// configError формирует ошибку конфигурации.
func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// missingColumn формирует ошибку отсутствующей колонки.
func missingColumn(column string, in *table.Dataset) error {
	return fmt.Errorf("%w: %q (available: %v)", ErrMissingColumn, column, in.Columns())
}
