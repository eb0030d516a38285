// Package steps содержит реализации типов узлов преобразования.
//
// # Обзор
//
// Step — чистое преобразование табличных данных. Каждый шаг:
//   - Получает входные dataset'ы по портам (0 = left, 1 = right) и конфигурацию
//   - Не изменяет входные данные (table.Dataset неизменяем)
//   - Возвращает новый dataset и, возможно, предупреждения (Notes)
//
// Кэширование, порядок выполнения и сбор входов — задача engine.
//
// # Интерфейс Step
//
//	type Step interface {
//	    Type() string
//	    InputPorts() int
//	    Execute(ctx context.Context, req *Request) (*Response, error)
//	}
//
// # Registry
//
//	registry := steps.DefaultRegistry()  // все девять типов
//	step, err := registry.Get("join")    // или устаревшее "JoinNode"
//
// # Типы узлов
//
//   - source.go     — source: CSV/JSON файл, inline-строки или загруженный dataset
//   - rename.go     — rename: переименование колонок
//   - expression.go — expression: строковые функции и custom-выражения (HCL)
//   - constant.go   — constant: колонки с константой заданного типа
//   - filter.go     — filter: фильтрация строк, несколько условий с AND/OR
//   - mapping.go    — mapping: условное отображение значений
//   - keep_drop.go  — keep_drop: проекция на список колонок
//   - domain.go     — domain: колонка DOMAIN с кодом SDTM
//   - join.go       — join: inner/left/right/outer соединение
//
// # Обработка ошибок
//
// Шаги возвращают типизированные ошибки, по которым engine определяет
// категорию сбоя узла:
//
//	ErrInvalidConfig  → configuration
//	ErrStepNotFound   → configuration
//	ErrMissingColumn  → data
//	ErrData           → data
//	ErrExpression     → data
//
// Повторных попыток нет: ошибка фиксируется за узлом до следующего
// выполнения flow.
package steps
