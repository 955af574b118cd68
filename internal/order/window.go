package order

import (
	"fmt"
	"strings"
	"time"
)

// Window is the weekly blackout during which orders cannot be created,
// edited or deleted. Close and Open are offsets from local midnight on Day;
// the window is [Close, Open).
type Window struct {
	Enabled  bool
	Day      time.Weekday
	Close    time.Duration
	Open     time.Duration
	Location *time.Location
}

// Closed reports whether t falls inside the blackout.
func (w Window) Closed(t time.Time) bool {
	if !w.Enabled {
		return false
	}
	loc := w.Location
	if loc == nil {
		loc = time.Local
	}
	lt := t.In(loc)
	if lt.Weekday() != w.Day {
		return false
	}
	offset := time.Duration(lt.Hour())*time.Hour +
		time.Duration(lt.Minute())*time.Minute +
		time.Duration(lt.Second())*time.Second +
		time.Duration(lt.Nanosecond())
	return offset >= w.Close && offset < w.Open
}

func (w Window) String() string {
	if !w.Enabled {
		return "disabled"
	}
	return fmt.Sprintf("%s %s-%s", w.Day, clock(w.Close), clock(w.Open))
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// ParseClock reads an "HH:MM" wall-clock time as an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// ParseWeekday reads an English weekday name, case-insensitively.
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}
