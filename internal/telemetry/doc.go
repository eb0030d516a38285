// Package telemetry обеспечивает наблюдаемость движка.
//
// Включает:
//   - logging.go — structured logging через slog (LOG_LEVEL, LOG_FORMAT)
//   - metrics.go — Prometheus метрики выполнения узлов, кэша и flow
//
// Метрики экспортируются на /metrics только в режиме watch
// (флаг --metrics-addr).
package telemetry
