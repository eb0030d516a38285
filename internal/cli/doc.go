// Package cli реализует команды sdtmflow.
//
// # Обзор
//
// CLI выполняет flow локально: строит граф из файла flow.json (или из
// версии, сохранённой в PostgreSQL), выполняет его движком и выводит
// результаты узлов.
//
// # Ключевые компоненты
//
// ## Env
//
// Окружение команды: логгер, форматтер вывода и лениво открываемые
// подключения к PostgreSQL (repo) и RabbitMQ (mq). Команда run без
// --save и --publish не требует ни базы, ни брокера.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.Encoder) — с флагом --json
//
// Данные выводятся в stdout, сообщения и ход выполнения — в stderr.
// Это позволяет использовать pipe: sdtmflow run dm.json --json | jq .
//
// ## Commands
//
//   - run      — однократное выполнение flow
//   - validate — проверка flow без выполнения
//   - watch    — выполнение по расписанию с пересчётом изменённых узлов
//   - flow     — list, push, pull, versions, delete
//   - runs     — сохранённые сводки runs, runs show
//   - events   — чтение событий run из RabbitMQ
//
// Каждая команда создаётся фабричной функцией (NewRunCmd и т.д.),
// принимающей envFn — замыкание для ленивого создания Env после
// парсинга PersistentFlags.
package cli
