package runtime

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// parseCronSpec validates a `schedule` step's cron expression and
// returns the next run time it would produce from now, in the given
// IANA timezone (spec.md §12's supplemental ninth step kind: the
// engine validates and records scheduling intent, an external
// scheduler process is responsible for actually firing runs at that
// time).
func parseCronSpec(expression, timezone string) (time.Time, error) {
	loc := time.UTC
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("schedule: unknown timezone %q: %w", timezone, err)
		}
		loc = l
	}

	schedule, err := cron.ParseStandard(expression)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule: invalid cron expression %q: %w", expression, err)
	}

	return schedule.Next(time.Now().In(loc)), nil
}
