package domain

import (
	"time"

	"github.com/google/uuid"
)

// Flow — сохранённый pipeline преобразований.
//
// Один flow может иметь множество версий (FlowVersion).
// Каждый запуск (Run) выполняет конкретную версию flow.
type Flow struct {
	// ID — уникальный идентификатор flow.
	ID uuid.UUID `json:"id"`

	// Name — уникальное имя flow (например, "dm-mapping", "ae-derivation").
	Name string `json:"name"`

	// CreatedAt — время создания flow.
	CreatedAt time.Time `json:"created_at"`
}

// FlowVersion — версия flow с конкретной спецификацией графа.
type FlowVersion struct {
	// FlowID — ссылка на родительский flow.
	FlowID uuid.UUID `json:"flow_id"`

	// Version — номер версии (1, 2, 3, ...).
	Version int `json:"version"`

	// Spec — описание графа узлов и соединений.
	Spec FlowSpec `json:"spec"`

	// CreatedAt — время создания версии.
	CreatedAt time.Time `json:"created_at"`
}

// FlowSpec — сериализованное описание графа (формат файла flow.json).
//
// Движок не работает с FlowSpec напрямую: engine.BuildGraph строит
// из него живой граф, с которым уже работает Engine.
type FlowSpec struct {
	// Version — версия формата (для обратной совместимости).
	Version string `json:"version,omitempty"`

	// Name — имя flow.
	Name string `json:"name,omitempty"`

	// Description — описание назначения flow.
	Description string `json:"description,omitempty"`

	// Nodes — узлы графа.
	Nodes []NodeDef `json:"nodes"`

	// Connections — направленные соединения между узлами.
	Connections []EdgeDef `json:"connections"`
}

// NodeDef — сохранённое описание узла.
type NodeDef struct {
	// ID — стабильный идентификатор узла. Кэш результатов привязан к нему,
	// а не к Title.
	ID string `json:"id"`

	// Kind — тип узла. Старые файлы используют ключ "type" с именем класса.
	Kind string `json:"kind,omitempty"`

	// Type — устаревший ключ с именем класса узла ("ColumnRenamerNode").
	Type string `json:"type,omitempty"`

	// Title — отображаемое имя. Может повторяться и меняться пользователем.
	Title string `json:"title,omitempty"`

	// Config — конфигурация узла (зависит от типа).
	Config map[string]any `json:"config,omitempty"`

	// Properties — устаревшее имя для Config.
	Properties map[string]any `json:"properties,omitempty"`

	// Position — координаты на холсте. Движком не используются.
	Position *Position `json:"position,omitempty"`
}

// Position — координаты узла на холсте.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EdgeDef — сохранённое соединение выхода одного узла со входом другого.
type EdgeDef struct {
	// ID — идентификатор соединения (может быть пустым).
	ID string `json:"id,omitempty"`

	// From — ID узла-источника (его единственный выходной порт).
	From string `json:"from"`

	// To — ID узла-получателя.
	To string `json:"to"`

	// Port — индекс входного порта получателя.
	// Nil означает "первый свободный порт" (первое соединение — left).
	Port *int `json:"port,omitempty"`
}

// ResolvedKind возвращает тип узла с учётом устаревшего ключа "type".
func (n *NodeDef) ResolvedKind() string {
	if n.Kind != "" {
		return n.Kind
	}
	return n.Type
}

// ResolvedConfig возвращает конфигурацию с учётом устаревшего ключа "properties".
func (n *NodeDef) ResolvedConfig() map[string]any {
	if n.Config != nil {
		return n.Config
	}
	if n.Properties != nil {
		return n.Properties
	}
	return make(map[string]any)
}
