// Package mq публикует события завершения flow в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с переподключением и graceful shutdown
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сводок run
//   - consumer.go   — потребление событий (sdtmflow events)
//
// Exchanges:
//   - sdtmflow.runs — события run с ключами run.succeeded, run.failed, run.cancelled
//   - sdtmflow.dlq  — сообщения, которые не удалось обработать
package mq
