package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — сводка одного выполнения flow (ExecuteFlow).
//
// Run создаётся когда:
// - Пользователь запускает flow через CLI (sdtmflow run)
// - Scheduler перезапускает flow в режиме watch
//
// Run не хранит данные узлов, только их статусы и размеры результатов.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// FlowName — имя выполняемого flow.
	FlowName string `json:"flow_name,omitempty"`

	// FlowVersion — версия flow из хранилища. 0, если flow загружен из файла.
	FlowVersion int `json:"flow_version,omitempty"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Nodes — результаты узлов в порядке выполнения.
	Nodes []NodeResult `json:"nodes"`

	// StartedAt — время начала выполнения.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения. Nil, если run ещё выполняется.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки уровня run (пустой граф, отмена, цикл).
	Error string `json:"error,omitempty"`
}

// NodeResult — итог выполнения одного узла в рамках run.
type NodeResult struct {
	// NodeID — стабильный идентификатор узла.
	NodeID string `json:"node_id"`

	// Title — отображаемое имя узла.
	Title string `json:"title,omitempty"`

	// Kind — тип узла.
	Kind NodeKind `json:"kind"`

	// Status — SUCCEEDED или FAILED.
	Status NodeStatus `json:"status"`

	// Cached — результат взят из кэша без пересчёта.
	Cached bool `json:"cached,omitempty"`

	// Rows, Columns — размеры результата (только для SUCCEEDED).
	Rows    int `json:"rows"`
	Columns int `json:"columns"`

	// Category — категория ошибки (missing_input, configuration, data, internal).
	Category string `json:"category,omitempty"`

	// Error — текст ошибки узла.
	Error string `json:"error,omitempty"`

	// Duration — время выполнения узла.
	Duration time.Duration `json:"duration"`
}

// NewRun создаёт run в статусе RUNNING.
func NewRun(flowName string) *Run {
	return &Run{
		ID:        uuid.New(),
		FlowName:  flowName,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// Failed возвращает результаты узлов, завершившихся ошибкой.
func (r *Run) Failed() []NodeResult {
	var out []NodeResult
	for _, n := range r.Nodes {
		if n.Status == NodeStatusFailed {
			out = append(out, n)
		}
	}
	return out
}

// Finish фиксирует итоговый статус по результатам узлов.
func (r *Run) Finish() {
	now := time.Now()
	r.FinishedAt = &now
	if r.Status == RunStatusCancelled {
		return
	}
	if r.Error != "" || len(r.Failed()) > 0 {
		r.Status = RunStatusFailed
		return
	}
	r.Status = RunStatusSucceeded
}

// MarkCancelled переводит run в статус CANCELLED.
func (r *Run) MarkCancelled(err string) {
	r.Status = RunStatusCancelled
	r.Error = err
}
