package scheduler

import (
	"testing"
	"time"
)

func mustParseCron(t *testing.T, expr string) CronSchedule {
	t.Helper()

	cs, err := ParseCron(expr)
	if err != nil {
		t.Fatalf("ParseCron(%q): %v", expr, err)
	}

	return cs
}

func TestParseCronRejectsWrongFieldCount(t *testing.T) {
	t.Parallel()

	if _, err := ParseCron("* * *"); err == nil {
		t.Fatal("expected error for a 3-field expression")
	}
}

func TestCronEveryMinute(t *testing.T) {
	t.Parallel()

	cs := mustParseCron(t, "* * * * *")
	from := time.Date(2026, 7, 30, 10, 15, 30, 0, time.UTC)

	next, err := cs.Next(from)
	if err != nil {
		t.Fatal(err)
	}

	want := time.Date(2026, 7, 30, 10, 16, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestCronStepMinutes(t *testing.T) {
	t.Parallel()

	cs := mustParseCron(t, "*/15 * * * *")
	from := time.Date(2026, 7, 30, 10, 16, 0, 0, time.UTC)

	next, err := cs.Next(from)
	if err != nil {
		t.Fatal(err)
	}

	want := time.Date(2026, 7, 30, 10, 30, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestCronDailyAtFixedHour(t *testing.T) {
	t.Parallel()

	cs := mustParseCron(t, "0 9 * * *")
	from := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	next, err := cs.Next(from)
	if err != nil {
		t.Fatal(err)
	}

	want := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestCronList(t *testing.T) {
	t.Parallel()

	cs := mustParseCron(t, "0 9,21 * * *")
	from := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	next, err := cs.Next(from)
	if err != nil {
		t.Fatal(err)
	}

	want := time.Date(2026, 7, 30, 21, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

func TestCronRange(t *testing.T) {
	t.Parallel()

	cs := mustParseCron(t, "0 9-17 * * *")
	from := time.Date(2026, 7, 30, 18, 0, 0, 0, time.UTC)

	next, err := cs.Next(from)
	if err != nil {
		t.Fatal(err)
	}

	want := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v", next, want)
	}
}

// TestCronDayOfMonthOrDayOfWeek mirrors standard cron semantics: when both
// day-of-month and day-of-week are restricted, a day matching either one
// qualifies.
func TestCronDayOfMonthOrDayOfWeek(t *testing.T) {
	t.Parallel()

	// 2026-08-01 is a Saturday (dow=6); day-of-month 15 is restricted too,
	// so the 1st should still match via the day-of-week clause.
	cs := mustParseCron(t, "0 0 15 * 6")
	from := time.Date(2026, 7, 31, 23, 59, 0, 0, time.UTC)

	next, err := cs.Next(from)
	if err != nil {
		t.Fatal(err)
	}

	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("Next = %v, want %v (dom-or-dow match)", next, want)
	}
}

func TestCronInvalidField(t *testing.T) {
	t.Parallel()

	if _, err := ParseCron("60 * * * *"); err == nil {
		t.Fatal("expected error for out-of-range minute")
	}
}
