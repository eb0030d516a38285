package domain

import "strings"

// NodeStatus — статус выполнения узла в движке.
//
// Жизненный цикл:
//
//	NOT_RUN → SUCCEEDED
//	        ↘ FAILED
//	(любое изменение графа выше по потоку) → NOT_RUN
type NodeStatus string

const (
	// NodeStatusNotRun — узел не выполнялся или его результат инвалидирован.
	NodeStatusNotRun NodeStatus = "NOT_RUN"

	// NodeStatusSucceeded — результат узла есть в кэше.
	NodeStatusSucceeded NodeStatus = "SUCCEEDED"

	// NodeStatusFailed — последняя попытка выполнения завершилась ошибкой.
	NodeStatusFailed NodeStatus = "FAILED"
)

// String возвращает строковое представление NodeStatus.
func (s NodeStatus) String() string {
	return string(s)
}

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	RUNNING → SUCCEEDED
//	        ↘ FAILED (хотя бы один узел завершился ошибкой)
//	        ↘ CANCELLED (контекст отменён между узлами)
type RunStatus string

const (
	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — все узлы выполнены успешно.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — хотя бы один узел завершился ошибкой.
	// Результаты успешных узлов остаются доступны.
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — выполнение прервано отменой контекста.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseRunStatus парсит строку в RunStatus (регистр не важен).
func ParseRunStatus(s string) RunStatus {
	switch strings.ToUpper(s) {
	case "RUNNING":
		return RunStatusRunning
	case "SUCCEEDED":
		return RunStatusSucceeded
	case "FAILED":
		return RunStatusFailed
	case "CANCELLED":
		return RunStatusCancelled
	default:
		return RunStatusRunning
	}
}
