package domain

import (
	"time"
)

// Schedule — расписание повторного запуска flow в режиме watch.
//
// Schedule позволяет перезапускать flow:
// - По cron-выражению: "*/5 * * * *" (каждые 5 минут)
// - По интервалу: каждые N секунд
//
// Между запусками кэш движка сохраняется, поэтому повторный запуск
// без изменений в flow не пересчитывает узлы.
type Schedule struct {
	// CronExpr — cron-выражение.
	// Формат: "минуты часы дни месяцы дни_недели"
	// Если задан CronExpr, Interval игнорируется.
	CronExpr string `json:"cron_expr,omitempty"`

	// Interval — интервал между запусками.
	// Используется если CronExpr не задан.
	Interval time.Duration `json:"interval,omitempty"`

	// Timezone — часовой пояс для вычисления времени. По умолчанию: "UTC".
	Timezone string `json:"timezone"`

	// NextDueAt — время следующего запуска.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последнего запуска.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	// Runs — количество выполненных запусков.
	Runs int `json:"runs"`
}

// IsCron возвращает true, если расписание использует cron-выражение.
func (s *Schedule) IsCron() bool {
	return s.CronExpr != ""
}

// IsInterval возвращает true, если расписание использует интервал.
func (s *Schedule) IsInterval() bool {
	return s.CronExpr == "" && s.Interval > 0
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if s.NextDueAt == nil {
		return true
	}
	return !now.Before(*s.NextDueAt)
}

// RecordRun записывает информацию о запуске.
func (s *Schedule) RecordRun(at, nextDue time.Time) {
	s.LastRunAt = &at
	s.NextDueAt = &nextDue
	s.Runs++
}
