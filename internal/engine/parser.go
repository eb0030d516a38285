package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/shaiso/sdtmflow/internal/domain"
)

// ParseFlowSpec разбирает FlowSpec из JSON (формат flow.json).
func ParseFlowSpec(data []byte) (*domain.FlowSpec, error) {
	var spec domain.FlowSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFlowSpec, err)
	}
	return &spec, nil
}

// LoadFlowFile читает и разбирает файл flow.
func LoadFlowFile(path string) (*domain.FlowSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read flow file: %w", err)
	}
	spec, err := ParseFlowSpec(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// Validate выполняет полную валидацию FlowSpec.
//
// Проверяет:
// - Наличие узлов
// - Уникальность ID узлов
// - Корректность типов узлов (включая устаревшие имена классов)
// - Соединения: существующие узлы, порты, дубликаты, циклы
func Validate(spec *domain.FlowSpec) error {
	_, err := BuildGraph(spec)
	return err
}

// BuildGraph строит живой граф из FlowSpec.
//
// Узлы без ID получают новый uuid; на них нельзя сослаться из connections,
// поэтому такой flow стоит сохранить заново (SpecFromGraph).
// Соединения без порта занимают первый свободный порт в порядке файла.
func BuildGraph(spec *domain.FlowSpec) (*Graph, error) {
	if spec == nil || len(spec.Nodes) == 0 {
		return nil, ErrEmptyGraph
	}

	g := NewGraph(spec.Name)
	g.Description = spec.Description

	// Первый проход: создаём все узлы
	for i := range spec.Nodes {
		def := &spec.Nodes[i]

		if err := addNodeDef(g, def); err != nil {
			return nil, err
		}
	}

	// Второй проход: соединения
	for i := range spec.Connections {
		conn := &spec.Connections[i]

		if err := addEdgeDef(g, conn); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// addNodeDef добавляет узел из описания.
func addNodeDef(g *Graph, def *domain.NodeDef) error {
	kind, err := domain.ParseNodeKind(def.ResolvedKind())
	if err != nil {
		return NewValidationError(def.ID, "kind", err.Error(), ErrUnknownNodeKind)
	}

	id := def.ID
	if id == "" {
		id = newNodeID()
	}

	node, err := g.AddNodeWithID(id, kind, def.Title, def.ResolvedConfig())
	if err != nil {
		return err
	}
	node.Position = def.Position
	return nil
}

// addEdgeDef добавляет соединение из описания.
func addEdgeDef(g *Graph, conn *domain.EdgeDef) error {
	for _, id := range []string{conn.From, conn.To} {
		if _, ok := g.Node(id); !ok {
			return NewValidationError(conn.To, "connections",
				fmt.Sprintf("connection %s -> %s refers to unknown node: %q", conn.From, conn.To, id), ErrNodeNotFound)
		}
	}

	var (
		edge *Edge
		err  error
	)
	if conn.Port != nil {
		edge, err = g.ConnectPort(conn.From, conn.To, *conn.Port)
	} else {
		edge, err = g.Connect(conn.From, conn.To)
	}
	if err != nil {
		return err
	}
	if conn.ID != "" {
		edge.ID = conn.ID
	}
	return nil
}

// SpecFromGraph сериализует живой граф обратно в FlowSpec.
// Порты соединений всегда указываются явно.
func SpecFromGraph(g *Graph) domain.FlowSpec {
	spec := domain.FlowSpec{
		Version:     SpecVersion,
		Name:        g.Name,
		Description: g.Description,
		Nodes:       make([]domain.NodeDef, 0, g.Len()),
		Connections: make([]domain.EdgeDef, 0, len(g.edges)),
	}

	for _, n := range g.Nodes() {
		spec.Nodes = append(spec.Nodes, domain.NodeDef{
			ID:       n.ID,
			Kind:     string(n.Kind),
			Title:    n.Title,
			Config:   n.Config,
			Position: n.Position,
		})
	}

	for _, e := range g.Edges() {
		port := e.Port
		spec.Connections = append(spec.Connections, domain.EdgeDef{
			ID:   e.ID,
			From: e.From,
			To:   e.To,
			Port: &port,
		})
	}

	return spec
}

// SpecVersion — текущая версия формата flow.json.
const SpecVersion = "2"
