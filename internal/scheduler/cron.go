package scheduler

import (
	"fmt"
	"time"

	cron "github.com/netresearch/go-cron"
)

// Five fields, minute precision.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronExpr is a parsed cron trigger.
type CronExpr struct {
	raw      string
	schedule cron.Schedule
}

func ParseCron(expr string) (*CronExpr, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return &CronExpr{raw: expr, schedule: schedule}, nil
}

// Next returns the first activation strictly after t.
func (c *CronExpr) Next(t time.Time) time.Time {
	return c.schedule.Next(t)
}

func (c *CronExpr) String() string { return c.raw }
