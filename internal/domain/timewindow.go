package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	MinutesPerDay = 24 * 60
	DateLayout    = "2006-01-02"
)

// ClockTime is a wall-clock time of day in whole minutes since midnight.
// 24:00 is valid and only meaningful as the end of a window.
type ClockTime int

func Clock(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

func ParseClock(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, validationError(fmt.Sprintf("invalid clock time %q, want HH:MM", s))
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, validationError(fmt.Sprintf("invalid clock time %q, want HH:MM", s))
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, validationError(fmt.Sprintf("invalid clock time %q, want HH:MM", s))
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, validationError(fmt.Sprintf("clock time %q out of range", s))
	}
	return Clock(h, m), nil
}

func MustParseClock(s string) ClockTime {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) Valid() bool {
	return c >= 0 && c <= MinutesPerDay
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c ClockTime) Add(minutes int) ClockTime {
	return c + ClockTime(minutes)
}

// On returns the instant this clock time denotes on date in loc.
func (c ClockTime) On(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour(), c.Minute(), 0, 0, loc)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TimeWindow is the half-open clock interval [Start, End).
type TimeWindow struct {
	Start ClockTime `json:"startTime"`
	End   ClockTime `json:"endTime"`
}

func NewTimeWindow(start, end ClockTime) (TimeWindow, error) {
	w := TimeWindow{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return TimeWindow{}, err
	}
	return w, nil
}

func ParseTimeWindow(start, end string) (TimeWindow, error) {
	s, err := ParseClock(start)
	if err != nil {
		return TimeWindow{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return TimeWindow{}, err
	}
	return NewTimeWindow(s, e)
}

func MustWindow(start, end string) TimeWindow {
	w, err := ParseTimeWindow(start, end)
	if err != nil {
		panic(err)
	}
	return w
}

func (w TimeWindow) Validate() error {
	if !w.Start.Valid() || !w.End.Valid() {
		return validationError(fmt.Sprintf("time window %s out of range", w))
	}
	if w.Start >= w.End {
		return validationError(fmt.Sprintf("time window %s must start before it ends", w))
	}
	return nil
}

func (w TimeWindow) Minutes() int {
	return int(w.End - w.Start)
}

func (w TimeWindow) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Span projects the window onto date in loc.
func (w TimeWindow) Span(date time.Time, loc *time.Location) Interval {
	return Interval{Start: w.Start.On(date, loc), End: w.End.On(date, loc)}
}

// Overlaps reports whether a and b share any minute. Touching endpoints do not overlap.
func Overlaps(a, b TimeWindow) bool {
	return a.Start < b.End && b.Start < a.End
}

// Contains reports whether inner lies fully inside outer, boundaries included.
func Contains(outer, inner TimeWindow) bool {
	return outer.Start <= inner.Start && inner.End <= outer.End
}

// ValidatePeriods returns the periods sorted by start time, or an InvalidInput
// error when any period is malformed or two periods overlap.
func ValidatePeriods(periods []TimeWindow) ([]TimeWindow, error) {
	out := make([]TimeWindow, len(periods))
	copy(out, periods)
	for _, p := range out {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start == out[j].Start {
			return out[i].End < out[j].End
		}
		return out[i].Start < out[j].Start
	})
	for i := 1; i < len(out); i++ {
		if Overlaps(out[i-1], out[i]) {
			return nil, validationError(fmt.Sprintf("time periods %s and %s overlap", out[i-1], out[i]))
		}
	}
	return out, nil
}

// Interval is an absolute half-open time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

// ParseDate parses YYYY-MM-DD into midnight UTC of that calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, validationError(fmt.Sprintf("invalid date %q, want YYYY-MM-DD", s))
	}
	return d, nil
}

func MustParseDate(s string) time.Time {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar date of t in loc, as midnight UTC.
func DateOf(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// DayBounds returns [midnight, next midnight) of date in loc.
func DayBounds(date time.Time, loc *time.Location) Interval {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	end := time.Date(date.Year(), date.Month(), date.Day()+1, 0, 0, 0, 0, loc)
	return Interval{Start: start, End: end}
}

// ProjectOntoDate converts an absolute reservation span into the calendar date
// and clock window it occupies in loc. Spans that cross midnight are rejected.
// Sub-minute precision rounds outward so containment checks stay conservative.
func ProjectOntoDate(start, end time.Time, loc *time.Location) (time.Time, TimeWindow, error) {
	if !start.Before(end) {
		return time.Time{}, TimeWindow{}, validationError("end_time must be after start_time")
	}
	date := DateOf(start, loc)
	day := DayBounds(date, loc)
	if end.After(day.End) {
		return time.Time{}, TimeWindow{}, validationError("reservation must start and end on the same day")
	}
	// Minutes come from the local clock reading, not elapsed time since
	// midnight, so days with a DST change line up with ClockTime.On.
	ls := start.In(loc)
	startMin := ls.Hour()*60 + ls.Minute()
	var endMin int
	if end.Equal(day.End) {
		endMin = MinutesPerDay
	} else {
		le := end.In(loc)
		endMin = le.Hour()*60 + le.Minute()
		if le.Second() != 0 || le.Nanosecond() != 0 {
			endMin++
		}
	}
	if endMin <= startMin {
		return time.Time{}, TimeWindow{}, validationError("reservation falls in a repeated clock hour")
	}
	return date, TimeWindow{Start: ClockTime(startMin), End: ClockTime(endMin)}, nil
}
