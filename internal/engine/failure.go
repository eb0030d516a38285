package engine

import (
	"errors"

	"github.com/shaiso/sdtmflow/internal/steps"
)

// Category — категория ошибки узла.
type Category string

const (
	// CategoryMissingInput — вход не подключён или у источника нет результата.
	CategoryMissingInput Category = "missing_input"

	// CategoryConfiguration — конфигурация узла некорректна.
	CategoryConfiguration Category = "configuration"

	// CategoryData — данные не подходят для преобразования.
	CategoryData Category = "data"

	// CategoryInternal — паника, отмена и прочие непредвиденные ошибки.
	CategoryInternal Category = "internal"
)

// Failure — запись об ошибке выполнения узла.
//
// Ошибка локальна для узла: выполнение остальных узлов продолжается.
type Failure struct {
	// Category — категория ошибки.
	Category Category `json:"category"`

	// Message — человекочитаемое описание.
	Message string `json:"message"`

	// Err — исходная ошибка.
	Err error `json:"-"`
}

// Error реализует интерфейс error.
func (f *Failure) Error() string {
	return f.Message
}

// Unwrap возвращает исходную ошибку.
func (f *Failure) Unwrap() error {
	return f.Err
}

// newFailure оборачивает ошибку шага в Failure с категорией.
func newFailure(err error) *Failure {
	return &Failure{
		Category: Classify(err),
		Message:  err.Error(),
		Err:      err,
	}
}

// Classify определяет категорию ошибки узла.
func Classify(err error) Category {
	switch {
	case errors.Is(err, ErrMissingInput), errors.Is(err, ErrUpstreamNotReady):
		return CategoryMissingInput
	case errors.Is(err, steps.ErrInvalidConfig), errors.Is(err, steps.ErrStepNotFound):
		return CategoryConfiguration
	case errors.Is(err, steps.ErrMissingColumn), errors.Is(err, steps.ErrData), errors.Is(err, steps.ErrExpression):
		return CategoryData
	default:
		return CategoryInternal
	}
}
