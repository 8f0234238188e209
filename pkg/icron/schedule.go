package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Parser accepts five-field expressions and descriptors such as @hourly,
// matching cron.New's default.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type TriggerInfo struct {
	Next       time.Time
	Last       time.Time
	Expression string

	TimeSinceLast time.Duration
	TimeUntilNext time.Duration
}

// maxLookback bounds the search for the previous trigger.
const maxLookback = 366 * 24 * time.Hour

func GetTriggerInfo(cronExpr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := Parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}

	info := &TriggerInfo{
		Expression: cronExpr,
		Next:       schedule.Next(refTime),
		Last:       previous(schedule, refTime),
	}
	info.TimeUntilNext = info.Next.Sub(refTime)
	if !info.Last.IsZero() {
		info.TimeSinceLast = refTime.Sub(info.Last)
	}
	return info, nil
}

// previous walks back in widening steps until a trigger at or before ref is
// found, then walks forward to the latest one.
func previous(schedule cron.Schedule, ref time.Time) time.Time {
	for step := time.Minute; step <= maxLookback; step *= 2 {
		t := schedule.Next(ref.Add(-step))
		if t.After(ref) {
			continue
		}
		for {
			next := schedule.Next(t)
			if next.After(ref) {
				return t
			}
			t = next
		}
	}
	return time.Time{}
}

// NextRuns lists the next n trigger times after refTime.
func NextRuns(cronExpr string, refTime time.Time, n int) ([]time.Time, error) {
	schedule, err := Parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	runs := make([]time.Time, 0, n)
	t := refTime
	for range n {
		t = schedule.Next(t)
		if t.IsZero() {
			break
		}
		runs = append(runs, t)
	}
	return runs, nil
}
