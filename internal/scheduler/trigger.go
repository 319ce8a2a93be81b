package scheduler

import (
	"fmt"
	"time"

	"github.com/wenfer/strmgate/internal/tasks"
)

// trigger computes a task's next fire time from its ScheduleKind.
type trigger struct {
	kind   tasks.ScheduleKind
	period time.Duration
	cron   CronSchedule
}

func newTrigger(task tasks.Task) (trigger, error) {
	switch task.ScheduleKind {
	case tasks.ScheduleNone, "":
		return trigger{kind: tasks.ScheduleNone}, nil

	case tasks.ScheduleInterval:
		if task.SchedulePeriod <= 0 {
			return trigger{}, fmt.Errorf("interval schedule requires a positive period")
		}

		return trigger{kind: tasks.ScheduleInterval, period: task.SchedulePeriod}, nil

	case tasks.ScheduleCron:
		cs, err := ParseCron(task.ScheduleCron)
		if err != nil {
			return trigger{}, err
		}

		return trigger{kind: tasks.ScheduleCron, cron: cs}, nil

	default:
		return trigger{}, fmt.Errorf("unknown schedule kind %q", task.ScheduleKind)
	}
}

// next returns the first fire time strictly after from. A ScheduleNone
// trigger never fires; callers must guard with Task.ScheduleOn before
// relying on a non-zero nextRun.
func (t trigger) next(from time.Time) (time.Time, error) {
	switch t.kind {
	case tasks.ScheduleInterval:
		return from.Add(t.period), nil
	case tasks.ScheduleCron:
		return t.cron.Next(from)
	default:
		return time.Time{}, nil
	}
}
