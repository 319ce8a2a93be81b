package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronSchedule is a parsed five-field cron expression (spec.md §4.9:
// "minute, hour, day-of-month, month, day-of-week, with *, lists (a,b),
// ranges (a-b), and step (*/n)").
type CronSchedule struct {
	minute, hour, dom, month, dow fieldSet
	expr                          string
}

// fieldSet is a bitset of the values a cron field accepts.
type fieldSet uint64

func (f fieldSet) has(v int) bool { return f&(1<<uint(v)) != 0 }

// ParseCron parses a five-field cron expression.
func ParseCron(expr string) (CronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return CronSchedule{}, fmt.Errorf("scheduler: cron expression %q must have 5 fields, got %d", expr, len(fields))
	}

	minute, err := parseField(fields[0], 0, 59)
	if err != nil {
		return CronSchedule{}, fmt.Errorf("scheduler: minute field: %w", err)
	}

	hour, err := parseField(fields[1], 0, 23)
	if err != nil {
		return CronSchedule{}, fmt.Errorf("scheduler: hour field: %w", err)
	}

	dom, err := parseField(fields[2], 1, 31)
	if err != nil {
		return CronSchedule{}, fmt.Errorf("scheduler: day-of-month field: %w", err)
	}

	month, err := parseField(fields[3], 1, 12)
	if err != nil {
		return CronSchedule{}, fmt.Errorf("scheduler: month field: %w", err)
	}

	dow, err := parseField(fields[4], 0, 6)
	if err != nil {
		return CronSchedule{}, fmt.Errorf("scheduler: day-of-week field: %w", err)
	}

	return CronSchedule{minute: minute, hour: hour, dom: dom, month: month, dow: dow, expr: expr}, nil
}

// parseField parses one cron field: "*", "a,b,c" lists, "a-b" ranges, and
// "*/n" or "a-b/n" steps, any of which may be comma-separated together.
func parseField(field string, min, max int) (fieldSet, error) {
	var set fieldSet

	for _, part := range strings.Split(field, ",") {
		lo, hi, step, err := parsePart(part, min, max)
		if err != nil {
			return 0, err
		}

		for v := lo; v <= hi; v += step {
			set |= 1 << uint(v)
		}
	}

	return set, nil
}

func parsePart(part string, min, max int) (lo, hi, step int, err error) {
	step = 1

	rangePart := part
	if i := strings.IndexByte(part, '/'); i >= 0 {
		step, err = strconv.Atoi(part[i+1:])
		if err != nil || step <= 0 {
			return 0, 0, 0, fmt.Errorf("invalid step in %q", part)
		}

		rangePart = part[:i]
	}

	switch {
	case rangePart == "*":
		lo, hi = min, max
	case strings.Contains(rangePart, "-"):
		bounds := strings.SplitN(rangePart, "-", 2)

		lo, err = strconv.Atoi(bounds[0])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid range start in %q", part)
		}

		hi, err = strconv.Atoi(bounds[1])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid range end in %q", part)
		}
	default:
		lo, err = strconv.Atoi(rangePart)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid value %q", part)
		}

		hi = lo
	}

	if lo < min || hi > max || lo > hi {
		return 0, 0, 0, fmt.Errorf("value out of range [%d,%d] in %q", min, max, part)
	}

	return lo, hi, step, nil
}

// maxLookahead bounds Next's search so a malformed or unsatisfiable
// expression (e.g. Feb 30) fails fast instead of looping forever.
const maxLookahead = 4 * 366 * 24 * time.Hour

// Next returns the first minute-aligned time strictly after from that
// satisfies the expression, matching standard cron's day-of-month/day-of-week
// OR semantics when both fields are restricted.
func (c CronSchedule) Next(from time.Time) (time.Time, error) {
	t := from.Truncate(time.Minute).Add(time.Minute)
	deadline := from.Add(maxLookahead)

	domRestricted := c.dom != anyOf(1, 31)
	dowRestricted := c.dow != anyOf(0, 6)

	for t.Before(deadline) {
		if !c.month.has(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())

			continue
		}

		domOK := c.dom.has(t.Day())
		dowOK := c.dow.has(int(t.Weekday()))

		// Standard cron rule: when both day-of-month and day-of-week are
		// restricted, a day matching either one is enough (OR). Otherwise
		// (at most one restricted) domOK && dowOK already reduces to
		// whichever field is restricted, since an unrestricted field's OK
		// is always true.
		dayMatches := domOK && dowOK
		if domRestricted && dowRestricted {
			dayMatches = domOK || dowOK
		}

		if !dayMatches {
			t = t.AddDate(0, 0, 1)
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())

			continue
		}

		if !c.hour.has(t.Hour()) {
			t = t.Add(time.Hour)
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())

			continue
		}

		if !c.minute.has(t.Minute()) {
			t = t.Add(time.Minute)

			continue
		}

		return t, nil
	}

	return time.Time{}, fmt.Errorf("scheduler: cron expression %q has no matching time within lookahead window", c.expr)
}

func anyOf(min, max int) fieldSet {
	var set fieldSet
	for v := min; v <= max; v++ {
		set |= 1 << uint(v)
	}

	return set
}
