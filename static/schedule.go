package static

import (
	"fmt"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
)

type (
	// Schedule computes the occurrences of a timer.
	Schedule interface {
		fmt.Stringer
		Next(from time.Time) time.Time
	}

	cronSchedule struct {
		text string
		expr *cronexpr.Expression
	}

	intervalSchedule time.Duration
)

// ParseSchedule parses a timer schedule.  A six field cron expression
// begins with seconds.  A value of the form hh:mm:ss is a fixed interval.
func ParseSchedule(schedule string) (Schedule, error) {
	schedule = strings.TrimSpace(schedule)
	if interval, ok := parseInterval(schedule); ok {
		if interval <= 0 {
			return nil, fmt.Errorf("schedule %q: interval must be positive", schedule)
		}
		return intervalSchedule(interval), nil
	}
	expr := schedule
	if !strings.HasPrefix(expr, "@") && len(strings.Fields(expr)) == 6 {
		expr += " *"
	}
	parsed, err := cronexpr.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("schedule %q: %w", schedule, err)
	}
	return &cronSchedule{schedule, parsed}, nil
}

// Occurrences returns the next count occurrences of s after from.
func Occurrences(s Schedule, from time.Time, count int) []time.Time {
	times := make([]time.Time, 0, count)
	for i := 0; i < count; i++ {
		next := s.Next(from)
		if next.IsZero() {
			break
		}
		times = append(times, next)
		from = next
	}
	return times
}

func (c *cronSchedule) Next(from time.Time) time.Time {
	return c.expr.Next(from)
}

func (c *cronSchedule) String() string {
	return c.text
}

func (i intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(time.Duration(i))
}

func (i intervalSchedule) String() string {
	d := time.Duration(i)
	return fmt.Sprintf("%02d:%02d:%02d",
		int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func parseInterval(s string) (time.Duration, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		return 0, false
	}
	if m > 59 || sec > 59 || h < 0 || m < 0 || sec < 0 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec)*time.Second, true
}
