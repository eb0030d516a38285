package engine

import (
	"sort"
)

// TopologicalSort возвращает узлы графа в порядке выполнения (алгоритм Кана).
//
// Каждый узел идёт после всех узлов, от которых он получает данные.
// Узлы, готовые одновременно, упорядочены по времени добавления в граф:
// это делает логи воспроизводимыми, но вызывающий код не должен
// полагаться на порядок независимых узлов.
//
// Возвращает ErrCyclicDependency, если обойти удалось не все узлы.
func TopologicalSort(g *Graph) ([]*Node, error) {
	// Считаем inDegree по соединениям
	inDegree := make(map[string]int, g.Len())
	for _, e := range g.edges {
		inDegree[e.To]++
	}

	// Очередь узлов с inDegree = 0 в порядке добавления
	queue := make([]*Node, 0, g.Len())
	for _, node := range g.Nodes() {
		if inDegree[node.ID] == 0 {
			queue = append(queue, node)
		}
	}

	order := make([]*Node, 0, g.Len())

	for len(queue) > 0 {
		// Извлекаем узел из очереди
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		// Уменьшаем inDegree у зависимых узлов
		var ready []*Node
		for _, e := range g.Outgoing(node.ID) {
			inDegree[e.To]--
			if inDegree[e.To] == 0 {
				ready = append(ready, g.nodes[e.To])
			}
		}
		sort.SliceStable(ready, func(i, j int) bool {
			return g.position(ready[i].ID) < g.position(ready[j].ID)
		})
		queue = append(queue, ready...)
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != g.Len() {
		return nil, ErrCyclicDependency
	}

	return order, nil
}

// Roots возвращает узлы без входящих соединений в порядке добавления.
func Roots(g *Graph) []*Node {
	var roots []*Node
	for _, node := range g.Nodes() {
		if len(g.Incoming(node.ID)) == 0 {
			roots = append(roots, node)
		}
	}
	return roots
}

// Sinks возвращает узлы без исходящих соединений (конечные результаты flow).
func Sinks(g *Graph) []*Node {
	var sinks []*Node
	for _, node := range g.Nodes() {
		if len(g.Outgoing(node.ID)) == 0 {
			sinks = append(sinks, node)
		}
	}
	return sinks
}
