// Package engine содержит движок выполнения flow.
//
// Включает:
//   - graph.go  — живой граф: узлы, порты, соединения, уведомления об изменениях
//   - dag.go    — топологическая сортировка (алгоритм Кана)
//   - parser.go — разбор flow.json, валидация и построение графа
//   - engine.go — выполнение узлов, кэш результатов, инвалидация
//   - failure.go — категории ошибок узлов
//
// # Граф
//
// Graph отклоняет соединения, нарушающие структуру: соединение узла
// с собой, повторное соединение, занятый порт, порт вне диапазона и
// соединение, замыкающее цикл. У join два входа: первое соединение
// занимает left (порт 0), второе — right (порт 1).
//
// # Кэш
//
// Результаты хранятся по стабильному ID узла. Запись актуальна, пока
// не изменились Generation узла и записи его источников. При изменении
// графа подписанный Engine (Attach) сразу удаляет результаты изменённого
// узла и всех узлов ниже по потоку.
//
// # Ошибки
//
// Ошибка узла не прерывает выполнение flow: она сохраняется за узлом
// с категорией (missing_input, configuration, data, internal), а узлы,
// зависящие от него, завершаются ошибкой missing_input.
package engine
