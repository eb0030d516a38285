package engine

import "errors"

// Ошибки структуры графа.
var (
	// ErrNodeNotFound — узел с таким ID отсутствует в графе.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEmptyNodeID — узел не имеет ID.
	ErrEmptyNodeID = errors.New("node has empty ID")

	// ErrDuplicateNodeID — несколько узлов с одинаковым ID.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownNodeKind — неизвестный тип узла.
	ErrUnknownNodeKind = errors.New("unknown node kind")

	// ErrSelfLoop — соединение узла с самим собой.
	ErrSelfLoop = errors.New("node cannot be connected to itself")

	// ErrDuplicateEdge — такое соединение уже существует.
	ErrDuplicateEdge = errors.New("connection already exists")

	// ErrPortOccupied — входной порт уже занят другим соединением.
	ErrPortOccupied = errors.New("input port is already connected")

	// ErrPortOutOfRange — у узла нет входного порта с таким индексом.
	ErrPortOutOfRange = errors.New("input port out of range")

	// ErrEdgeNotFound — соединение не найдено.
	ErrEdgeNotFound = errors.New("connection not found")

	// ErrCyclicDependency — соединение замкнуло бы цикл.
	ErrCyclicDependency = errors.New("cyclic dependency detected")
)

// Ошибки выполнения flow.
var (
	// ErrEmptyGraph — flow не содержит узлов.
	ErrEmptyGraph = errors.New("flow has no nodes")

	// ErrInvalidFlowSpec — файл flow не удалось разобрать.
	ErrInvalidFlowSpec = errors.New("invalid flow spec")

	// ErrMissingInput — обязательный входной порт не подключён.
	ErrMissingInput = errors.New("missing input")

	// ErrUpstreamNotReady — вход подключён, но у источника нет результата.
	ErrUpstreamNotReady = errors.New("upstream node has no result")

	// ErrStepPanic — шаг завершился паникой.
	ErrStepPanic = errors.New("step panicked")

	// ErrNoOutput — шаг завершился без ошибки, но не вернул dataset.
	ErrNoOutput = errors.New("step returned no output")
)

// ValidationError — ошибка валидации с контекстом.
type ValidationError struct {
	NodeID  string // ID узла, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(nodeID, field, message string, err error) *ValidationError {
	return &ValidationError{
		NodeID:  nodeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
