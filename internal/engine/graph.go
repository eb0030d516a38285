package engine

import (
	"fmt"
	"maps"
	"sort"

	"github.com/google/uuid"

	"github.com/shaiso/sdtmflow/internal/domain"
	"github.com/shaiso/sdtmflow/internal/table"
)

// Node — узел живого графа.
type Node struct {
	// ID — стабильный идентификатор. Кэш результатов привязан к нему.
	ID string

	// Kind — тип узла.
	Kind domain.NodeKind

	// Title — отображаемое имя, на кэш не влияет.
	Title string

	// Config — конфигурация узла (зависит от типа).
	Config map[string]any

	// Data — заранее загруженный dataset (только для source).
	Data *table.Dataset

	// Generation — увеличивается при каждом изменении Config или Data.
	Generation uint64

	// Position — координаты на холсте, сохраняются как есть.
	Position *domain.Position
}

// InputPorts возвращает количество входных портов узла.
func (n *Node) InputPorts() int {
	return n.Kind.InputPorts()
}

// Label возвращает имя узла для сообщений: Title, а если его нет — ID.
func (n *Node) Label() string {
	if n.Title != "" {
		return n.Title
	}
	return n.ID
}

// Edge — соединение выхода узла From с входным портом Port узла To.
type Edge struct {
	ID   string
	From string
	To   string
	Port int
}

// ChangeType — вид изменения графа.
type ChangeType int

const (
	ChangeNodeAdded ChangeType = iota
	ChangeNodeRemoved
	ChangeConfig
	ChangeData
	ChangeConnected
	ChangeDisconnected
)

// String возвращает имя изменения для логов.
func (c ChangeType) String() string {
	switch c {
	case ChangeNodeAdded:
		return "node_added"
	case ChangeNodeRemoved:
		return "node_removed"
	case ChangeConfig:
		return "config"
	case ChangeData:
		return "data"
	case ChangeConnected:
		return "connected"
	case ChangeDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Change — уведомление об изменении графа.
type Change struct {
	// Type — вид изменения.
	Type ChangeType

	// NodeID — узел, результаты которого (и всех узлов ниже) устарели.
	// Для соединений это узел-получатель.
	NodeID string

	// Edge — соединение (только для ChangeConnected / ChangeDisconnected).
	Edge *Edge
}

// Listener получает уведомления об изменениях графа.
//
// Вызывается синхронно, пока исходящие соединения NodeID ещё в графе:
// при удалении узла или соединения — до удаления.
type Listener func(g *Graph, c Change)

// Graph — живой граф узлов и соединений.
//
// Graph проверяет структурные инварианты при каждом изменении:
// соединение с собой, дубликаты, занятые порты, циклы.
// Graph не потокобезопасен: им владеет один пользователь.
type Graph struct {
	// Name — имя flow.
	Name string

	// Description — описание flow.
	Description string

	nodes     map[string]*Node
	order     []string // порядок добавления узлов
	edges     []*Edge
	listeners []Listener
}

// NewGraph создаёт пустой граф.
func NewGraph(name string) *Graph {
	return &Graph{
		Name:  name,
		nodes: make(map[string]*Node),
	}
}

// Subscribe подписывает слушателя на изменения графа.
func (g *Graph) Subscribe(l Listener) {
	g.listeners = append(g.listeners, l)
}

func (g *Graph) notify(c Change) {
	for _, l := range g.listeners {
		l(g, c)
	}
}

// AddNode добавляет узел с новым ID (uuid).
func (g *Graph) AddNode(kind domain.NodeKind, title string, config map[string]any) (*Node, error) {
	return g.AddNodeWithID(newNodeID(), kind, title, config)
}

func newNodeID() string {
	return uuid.New().String()
}

// AddNodeWithID добавляет узел с заданным ID (например, из сохранённого flow).
func (g *Graph) AddNodeWithID(id string, kind domain.NodeKind, title string, config map[string]any) (*Node, error) {
	if id == "" {
		return nil, NewValidationError("", "id", "node has empty ID", ErrEmptyNodeID)
	}
	if _, exists := g.nodes[id]; exists {
		return nil, NewValidationError(id, "id",
			fmt.Sprintf("duplicate node ID: %s", id), ErrDuplicateNodeID)
	}
	if !kind.IsValid() {
		return nil, NewValidationError(id, "kind",
			fmt.Sprintf("unknown node kind: %q", kind), ErrUnknownNodeKind)
	}
	if config == nil {
		config = make(map[string]any)
	}

	node := &Node{
		ID:     id,
		Kind:   kind,
		Title:  title,
		Config: config,
	}
	g.nodes[id] = node
	g.order = append(g.order, id)

	g.notify(Change{Type: ChangeNodeAdded, NodeID: id})
	return node, nil
}

// RemoveNode удаляет узел и все его соединения.
func (g *Graph) RemoveNode(id string) error {
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	// Сначала устаревают узлы ниже по графу, затем исчезают рёбра
	g.notify(Change{Type: ChangeNodeRemoved, NodeID: id})

	edges := g.edges[:0]
	for _, e := range g.edges {
		if e.From != id && e.To != id {
			edges = append(edges, e)
		}
	}
	g.edges = edges

	delete(g.nodes, id)
	for i, nid := range g.order {
		if nid == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return nil
}

// Connect соединяет выход from с первым свободным входным портом to:
// первое соединение — left (порт 0), второе — right (порт 1).
func (g *Graph) Connect(from, to string) (*Edge, error) {
	target, ok := g.nodes[to]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, to)
	}

	for port := 0; port < target.InputPorts(); port++ {
		if _, used := g.InputEdge(to, port); !used {
			return g.ConnectPort(from, to, port)
		}
	}

	if target.InputPorts() == 0 {
		return nil, NewValidationError(to, "port",
			fmt.Sprintf("%s node has no input ports", target.Kind), ErrPortOutOfRange)
	}
	// Все порты заняты: повтор существующего соединения — дубликат
	for _, e := range g.Incoming(to) {
		if e.From == from {
			return nil, NewValidationError(to, "port",
				fmt.Sprintf("%s is already connected to %s", from, to), ErrDuplicateEdge)
		}
	}
	return nil, NewValidationError(to, "port", "all input ports are connected", ErrPortOccupied)
}

// ConnectPort соединяет выход from с входным портом port узла to.
func (g *Graph) ConnectPort(from, to string, port int) (*Edge, error) {
	if _, ok := g.nodes[from]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, from)
	}
	target, ok := g.nodes[to]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, to)
	}
	if from == to {
		return nil, NewValidationError(to, "from", "node cannot be connected to itself", ErrSelfLoop)
	}
	if port < 0 || port >= target.InputPorts() {
		return nil, NewValidationError(to, "port",
			fmt.Sprintf("port %d out of range: %s node has %d input port(s)", port, target.Kind, target.InputPorts()),
			ErrPortOutOfRange)
	}
	if existing, used := g.InputEdge(to, port); used {
		if existing.From == from {
			return nil, NewValidationError(to, "port",
				fmt.Sprintf("%s is already connected to %s port", from, target.Kind.PortName(port)), ErrDuplicateEdge)
		}
		return nil, NewValidationError(to, "port",
			fmt.Sprintf("%s port is already connected to %s", target.Kind.PortName(port), existing.From), ErrPortOccupied)
	}
	if g.reachable(to, from) {
		return nil, NewValidationError(to, "from",
			fmt.Sprintf("connecting %s to %s would create a cycle", from, to), ErrCyclicDependency)
	}

	edge := &Edge{
		ID:   uuid.New().String(),
		From: from,
		To:   to,
		Port: port,
	}
	g.edges = append(g.edges, edge)

	g.notify(Change{Type: ChangeConnected, NodeID: to, Edge: edge})
	return edge, nil
}

// Disconnect удаляет соединение, входящее в порт port узла to.
func (g *Graph) Disconnect(to string, port int) error {
	for i, e := range g.edges {
		if e.To == to && e.Port == port {
			g.notify(Change{Type: ChangeDisconnected, NodeID: to, Edge: e})
			g.edges = append(g.edges[:i], g.edges[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s port %d", ErrEdgeNotFound, to, port)
}

// SetConfig заменяет конфигурацию узла.
func (g *Graph) SetConfig(id string, config map[string]any) error {
	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	if config == nil {
		config = make(map[string]any)
	}
	node.Config = config
	node.Generation++

	g.notify(Change{Type: ChangeConfig, NodeID: id})
	return nil
}

// UpdateConfig меняет отдельные ключи конфигурации узла.
func (g *Graph) UpdateConfig(id string, patch map[string]any) error {
	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	config := maps.Clone(node.Config)
	if config == nil {
		config = make(map[string]any)
	}
	maps.Copy(config, patch)
	return g.SetConfig(id, config)
}

// SetData прикрепляет к узлу заранее загруженный dataset.
func (g *Graph) SetData(id string, data *table.Dataset) error {
	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	node.Data = data
	node.Generation++

	g.notify(Change{Type: ChangeData, NodeID: id})
	return nil
}

// SetTitle меняет отображаемое имя. Результаты не устаревают.
func (g *Graph) SetTitle(id, title string) error {
	node, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	node.Title = title
	return nil
}

// Node возвращает узел по ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes возвращает узлы в порядке добавления.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id])
	}
	return nodes
}

// Len возвращает количество узлов.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Edges возвращает копию списка соединений в порядке создания.
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, len(g.edges))
	for i, e := range g.edges {
		edges[i] = *e
	}
	return edges
}

// InputEdge возвращает соединение, входящее в порт port узла id.
func (g *Graph) InputEdge(id string, port int) (*Edge, bool) {
	for _, e := range g.edges {
		if e.To == id && e.Port == port {
			return e, true
		}
	}
	return nil, false
}

// Incoming возвращает входящие соединения узла, упорядоченные по порту.
func (g *Graph) Incoming(id string) []*Edge {
	var in []*Edge
	for _, e := range g.edges {
		if e.To == id {
			in = append(in, e)
		}
	}
	sort.Slice(in, func(i, j int) bool { return in[i].Port < in[j].Port })
	return in
}

// Outgoing возвращает исходящие соединения узла в порядке создания.
func (g *Graph) Outgoing(id string) []*Edge {
	var out []*Edge
	for _, e := range g.edges {
		if e.From == id {
			out = append(out, e)
		}
	}
	return out
}

// Downstream возвращает id и все узлы, достижимые из него по исходящим
// соединениям. Каждый узел встречается один раз (ромбы не дублируются).
func (g *Graph) Downstream(id string) []string {
	if _, ok := g.nodes[id]; !ok {
		return nil
	}

	visited := map[string]bool{id: true}
	result := []string{id}
	queue := []string{id}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, e := range g.Outgoing(cur) {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			result = append(result, e.To)
			queue = append(queue, e.To)
		}
	}
	return result
}

// reachable возвращает true, если to достижим из from.
func (g *Graph) reachable(from, to string) bool {
	for _, id := range g.Downstream(from) {
		if id == to {
			return true
		}
	}
	return false
}

// position возвращает индекс узла в порядке добавления.
func (g *Graph) position(id string) int {
	for i, nid := range g.order {
		if nid == id {
			return i
		}
	}
	return len(g.order)
}
