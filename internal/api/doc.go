// Package api содержит HTTP API статуса для sdtmflow watch.
//
// Структура:
//   - handler.go      — Handler с зависимостями (источник статуса, репозиторий runs, logger)
//   - routes.go       — регистрация маршрутов
//   - middleware.go   — обёртка маршрутов (recovery, лог, метрики запросов)
//   - response.go     — конверт JSON-ответов и разбор параметров
//   - dto.go          — ответы API
//   - run_handler.go  — последний run и сохранённые runs
//   - node_handler.go — результаты и ошибки узлов, состояние кэша
//
// API только читает: выполнение flow управляется планировщиком.
package api
