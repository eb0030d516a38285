package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/shaiso/sdtmflow/internal/domain"
)

// mustAdd добавляет узел с заданным ID.
func mustAdd(t *testing.T, g *Graph, id string, kind domain.NodeKind) *Node {
	t.Helper()
	n, err := g.AddNodeWithID(id, kind, id, nil)
	if err != nil {
		t.Fatalf("add %s: %v", id, err)
	}
	return n
}

// mustConnect соединяет узлы в первый свободный порт.
func mustConnect(t *testing.T, g *Graph, from, to string) *Edge {
	t.Helper()
	e, err := g.Connect(from, to)
	if err != nil {
		t.Fatalf("connect %s -> %s: %v", from, to, err)
	}
	return e
}

func ids(nodes []*Node) string {
	s := make([]string, len(nodes))
	for i, n := range nodes {
		s[i] = n.ID
	}
	return strings.Join(s, ",")
}

func TestGraph_AddNode(t *testing.T) {
	g := NewGraph("test")

	a, err := g.AddNode(domain.KindSource, "Demographics", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := g.AddNode(domain.KindSource, "Demographics", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Одинаковые заголовки, разные ID
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct IDs, got %q and %q", a.ID, b.ID)
	}
	if a.Config == nil {
		t.Error("config should never be nil")
	}

	if _, err := g.AddNodeWithID(a.ID, domain.KindRename, "", nil); !errors.Is(err, ErrDuplicateNodeID) {
		t.Errorf("expected ErrDuplicateNodeID, got %v", err)
	}
	if _, err := g.AddNodeWithID("", domain.KindRename, "", nil); !errors.Is(err, ErrEmptyNodeID) {
		t.Errorf("expected ErrEmptyNodeID, got %v", err)
	}
	if _, err := g.AddNodeWithID("x", domain.NodeKind("pivot"), "", nil); !errors.Is(err, ErrUnknownNodeKind) {
		t.Errorf("expected ErrUnknownNodeKind, got %v", err)
	}
	if g.Len() != 2 {
		t.Errorf("expected 2 nodes, got %d", g.Len())
	}
}

func TestGraph_ConnectJoinPorts(t *testing.T) {
	g := NewGraph("test")
	mustAdd(t, g, "L", domain.KindSource)
	mustAdd(t, g, "R", domain.KindSource)
	mustAdd(t, g, "X", domain.KindSource)
	mustAdd(t, g, "J", domain.KindJoin)

	left := mustConnect(t, g, "L", "J")
	right := mustConnect(t, g, "R", "J")

	if left.Port != 0 || right.Port != 1 {
		t.Errorf("expected ports 0 and 1, got %d and %d", left.Port, right.Port)
	}

	// Третье соединение — портов больше нет
	if _, err := g.Connect("X", "J"); !errors.Is(err, ErrPortOccupied) {
		t.Errorf("expected ErrPortOccupied, got %v", err)
	}
	// Повтор существующего соединения
	if _, err := g.Connect("L", "J"); !errors.Is(err, ErrDuplicateEdge) {
		t.Errorf("expected ErrDuplicateEdge, got %v", err)
	}

	// После отключения left порт 0 снова свободен
	if err := g.Disconnect("J", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := mustConnect(t, g, "X", "J")
	if e.Port != 0 {
		t.Errorf("expected free port 0, got %d", e.Port)
	}

	in := g.Incoming("J")
	if len(in) != 2 || in[0].From != "X" || in[1].From != "R" {
		t.Errorf("unexpected incoming edges: %+v", in)
	}
}

func TestGraph_ConnectErrors(t *testing.T) {
	g := NewGraph("test")
	mustAdd(t, g, "S", domain.KindSource)
	mustAdd(t, g, "S2", domain.KindSource)
	mustAdd(t, g, "A", domain.KindRename)
	mustAdd(t, g, "B", domain.KindFilter)
	mustConnect(t, g, "S", "A")
	mustConnect(t, g, "A", "B")

	tests := []struct {
		name string
		from string
		to   string
		port int
		want error
	}{
		{"self loop", "A", "A", 0, ErrSelfLoop},
		{"port out of range", "S", "B", 1, ErrPortOutOfRange},
		{"source has no inputs", "A", "S2", 0, ErrPortOutOfRange},
		{"duplicate", "S", "A", 0, ErrDuplicateEdge},
		{"occupied", "S2", "A", 0, ErrPortOccupied},
		{"unknown node", "S", "nope", 0, ErrNodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.ConnectPort(tt.from, tt.to, tt.port)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if len(g.Edges()) != 2 {
		t.Errorf("rejected connections must not be added, got %d edges", len(g.Edges()))
	}
}

func TestGraph_RejectsCycle(t *testing.T) {
	g := NewGraph("test")
	mustAdd(t, g, "S", domain.KindSource)
	mustAdd(t, g, "A", domain.KindRename)
	mustAdd(t, g, "B", domain.KindFilter)
	mustAdd(t, g, "J", domain.KindJoin)
	mustConnect(t, g, "S", "J")
	mustConnect(t, g, "J", "A")
	mustConnect(t, g, "A", "B")

	// B → J замкнул бы цикл J → A → B → J
	_, err := g.Connect("B", "J")
	if !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("expected ErrCyclicDependency, got %v", err)
	}

	var verr *ValidationError
	if !errors.As(err, &verr) || verr.NodeID != "J" {
		t.Errorf("expected ValidationError for J, got %#v", err)
	}
}

func TestGraph_RemoveNode(t *testing.T) {
	g := NewGraph("test")
	mustAdd(t, g, "S", domain.KindSource)
	mustAdd(t, g, "A", domain.KindRename)
	mustAdd(t, g, "B", domain.KindFilter)
	mustConnect(t, g, "S", "A")
	mustConnect(t, g, "A", "B")

	if err := g.RemoveNode("A"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := g.Node("A"); ok {
		t.Error("A should be removed")
	}
	if len(g.Edges()) != 0 {
		t.Errorf("incident edges should be removed, got %+v", g.Edges())
	}
	if got := ids(g.Nodes()); got != "S,B" {
		t.Errorf("unexpected nodes %s", got)
	}
	if err := g.RemoveNode("A"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestGraph_Downstream(t *testing.T) {
	// S → A → C
	// S → B → C → D
	g := NewGraph("test")
	mustAdd(t, g, "S", domain.KindSource)
	mustAdd(t, g, "A", domain.KindRename)
	mustAdd(t, g, "B", domain.KindFilter)
	mustAdd(t, g, "C", domain.KindJoin)
	mustAdd(t, g, "D", domain.KindDomain)
	mustAdd(t, g, "X", domain.KindSource)
	mustConnect(t, g, "S", "A")
	mustConnect(t, g, "S", "B")
	mustConnect(t, g, "A", "C")
	mustConnect(t, g, "B", "C")
	mustConnect(t, g, "C", "D")

	got := g.Downstream("S")
	if strings.Join(got, ",") != "S,A,B,C,D" {
		t.Errorf("unexpected downstream %v", got)
	}
	if got := g.Downstream("B"); strings.Join(got, ",") != "B,C,D" {
		t.Errorf("unexpected downstream %v", got)
	}
	if got := g.Downstream("X"); strings.Join(got, ",") != "X" {
		t.Errorf("unexpected downstream %v", got)
	}
	if got := g.Downstream("nope"); got != nil {
		t.Errorf("expected nil for unknown node, got %v", got)
	}
}

func TestGraph_Notifications(t *testing.T) {
	g := NewGraph("test")

	var changes []string
	g.Subscribe(func(g *Graph, c Change) {
		// Исходящие соединения ещё видны слушателю
		changes = append(changes, c.Type.String()+":"+c.NodeID+":"+strings.Join(g.Downstream(c.NodeID), "|"))
	})

	mustAdd(t, g, "S", domain.KindSource)
	mustAdd(t, g, "A", domain.KindRename)
	mustConnect(t, g, "S", "A")
	if err := g.SetConfig("S", map[string]any{"path": "dm.csv"}); err != nil {
		t.Fatal(err)
	}
	if err := g.SetTitle("S", "Demographics"); err != nil {
		t.Fatal(err)
	}
	if err := g.Disconnect("A", 0); err != nil {
		t.Fatal(err)
	}
	if err := g.RemoveNode("S"); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"node_added:S:S",
		"node_added:A:A",
		"connected:A:A",
		"config:S:S|A",
		"disconnected:A:A",
		"node_removed:S:S",
	}
	if strings.Join(changes, " ") != strings.Join(want, " ") {
		t.Errorf("unexpected changes:\n got %v\nwant %v", changes, want)
	}
}

func TestGraph_Generation(t *testing.T) {
	g := NewGraph("test")
	n := mustAdd(t, g, "A", domain.KindRename)

	if n.Generation != 0 {
		t.Fatalf("expected generation 0, got %d", n.Generation)
	}
	_ = g.SetConfig("A", map[string]any{"mappings": map[string]any{"X": "Y"}})
	_ = g.UpdateConfig("A", map[string]any{"extra": true})
	_ = g.SetTitle("A", "Renamer")

	if n.Generation != 2 {
		t.Errorf("expected generation 2, got %d", n.Generation)
	}
	if _, ok := n.Config["mappings"]; !ok {
		t.Error("UpdateConfig should keep existing keys")
	}
}

func TestTopologicalSort(t *testing.T) {
	g := NewGraph("test")
	// Узлы добавлены не в порядке зависимостей
	mustAdd(t, g, "D", domain.KindDomain)
	mustAdd(t, g, "J", domain.KindJoin)
	mustAdd(t, g, "L", domain.KindSource)
	mustAdd(t, g, "R", domain.KindSource)
	mustAdd(t, g, "F", domain.KindFilter)
	mustConnect(t, g, "L", "J")
	mustConnect(t, g, "R", "F")
	mustConnect(t, g, "F", "J")
	mustConnect(t, g, "J", "D")

	order, err := TopologicalSort(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(order); got != "L,R,F,J,D" {
		t.Errorf("unexpected order %s", got)
	}

	// Каждый узел после всех своих источников
	pos := make(map[string]int)
	for i, n := range order {
		pos[n.ID] = i
	}
	for _, e := range g.Edges() {
		if pos[e.From] >= pos[e.To] {
			t.Errorf("%s should precede %s", e.From, e.To)
		}
	}

	if got := ids(Roots(g)); got != "L,R" {
		t.Errorf("unexpected roots %s", got)
	}
	if got := ids(Sinks(g)); got != "D" {
		t.Errorf("unexpected sinks %s", got)
	}
}

func TestTopologicalSort_Disconnected(t *testing.T) {
	g := NewGraph("test")
	mustAdd(t, g, "A", domain.KindSource)
	mustAdd(t, g, "B", domain.KindSource)
	mustAdd(t, g, "C", domain.KindRename)

	order, err := TopologicalSort(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 3 {
		t.Errorf("expected every node visited once, got %s", ids(order))
	}
}
