package ph

import (
	"context"
	"time"

	"github.com/teambition/rrule-go"
)

// ParseSchedule parses an RRULE string (e.g. "FREQ=MINUTELY;INTERVAL=5")
// starting now. Empty string means no schedule.
func ParseSchedule(ruleStr string) (*rrule.RRule, error) {
	if ruleStr == "" {
		return nil, nil
	}
	start := time.Now().UTC().Format("20060102T150405Z")
	return rrule.StrToRRule("DTSTART=" + start + ";" + ruleStr)
}

// StartSchedule spawns a goroutine that calls fn at each recurrence until
// ctx is cancelled or the rule runs out.
func StartSchedule(ctx context.Context, ruleStr string, fn func()) error {
	rr, err := ParseSchedule(ruleStr)
	if err != nil || rr == nil {
		return err
	}
	go func() {
		for {
			next := rr.After(time.Now(), false)
			if next.IsZero() {
				return
			}
			t := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
				fn()
			}
		}
	}()
	return nil
}
