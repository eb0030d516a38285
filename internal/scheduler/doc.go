// Package scheduler перезапускает flow по расписанию (sdtmflow watch).
//
// Структура:
//   - scheduler.go — цикл Scheduler (Tick, Run)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Schedule: &domain.Schedule{CronExpr: "*/5 * * * *", Timezone: "UTC"},
//	    Run: func(ctx context.Context) *domain.Run {
//	        eng.ExecuteFlow(ctx, graph)
//	        return eng.LastRun()
//	    },
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err
//	}
//	return sched.Run(ctx)
//
// Кэш движка живёт между запусками: без изменений в flow повторный
// запуск не пересчитывает узлы.
package scheduler
