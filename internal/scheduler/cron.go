package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/sdtmflow/internal/domain"
)

// ErrInvalidSchedule — не задано ни cron-выражение, ни интервал.
var ErrInvalidSchedule = errors.New("schedule has neither cron expression nor interval")

// cronParser — парсер cron-выражений (5 полей, плюс дескрипторы @hourly, @every 1m).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CalculateNextDue вычисляет следующее время запуска после from.
// Cron-выражение вычисляется в timezone расписания; невалидный timezone
// заменяется на UTC. Результат всегда в UTC.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := from.In(loc)

	switch {
	case sched.IsCron():
		return calculateNextCron(sched.CronExpr, local)
	case sched.IsInterval():
		return local.Add(sched.Interval).UTC(), nil
	default:
		return time.Time{}, ErrInvalidSchedule
	}
}

func calculateNextCron(expr string, from time.Time) (time.Time, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	return schedule.Next(from).UTC(), nil
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Validate проверяет расписание целиком.
func Validate(sched *domain.Schedule) error {
	if sched.Timezone != "" {
		if _, err := time.LoadLocation(sched.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", sched.Timezone, err)
		}
	}
	if sched.IsCron() {
		return ValidateCronExpr(sched.CronExpr)
	}
	if !sched.IsInterval() {
		return ErrInvalidSchedule
	}
	return nil
}
