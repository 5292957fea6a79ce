package schedule

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Clock is a wall-clock time of day, in minutes since local midnight.
type Clock int

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q: out of range", s)
	}
	return Clock(h*60 + m), nil
}

// MustClock is ParseClock for literals.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60) }

// On places the clock on the calendar date of day, in day's location.
func (c Clock) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), int(c)/60, int(c)%60, 0, 0, day.Location())
}

func (c Clock) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

func (c *Clock) UnmarshalJSON(b []byte) error {
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

func (c *Clock) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseClock(value.Value)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Day is a weekday code as stored in timetables.
type Day string

const (
	Monday    Day = "MON"
	Tuesday   Day = "TUE"
	Wednesday Day = "WED"
	Thursday  Day = "THU"
	Friday    Day = "FRI"
	Saturday  Day = "SAT"
	Sunday    Day = "SUN"
)

var dayWeekday = map[Day]time.Weekday{
	Sunday: time.Sunday, Monday: time.Monday, Tuesday: time.Tuesday, Wednesday: time.Wednesday,
	Thursday: time.Thursday, Friday: time.Friday, Saturday: time.Saturday,
}

// Weekday converts the code, reporting false for unknown codes.
func (d Day) Weekday() (time.Weekday, bool) {
	w, ok := dayWeekday[Day(strings.ToUpper(string(d)))]
	return w, ok
}

// DayFor returns the code for a weekday.
func DayFor(w time.Weekday) Day {
	for d, wd := range dayWeekday {
		if wd == w {
			return d
		}
	}
	return ""
}

// SubjectType distinguishes lectures from labs.
type SubjectType string

const (
	Lecture SubjectType = "LECTURE"
	Lab     SubjectType = "LAB"
)

// Session is one recurring slot in a class timetable.
type Session struct {
	ID         string      `json:"id" yaml:"id"`
	ClassID    string      `json:"classId" yaml:"-"`
	Day        Day         `json:"day" yaml:"day"`
	Start      Clock       `json:"startTime" yaml:"start"`
	End        Clock       `json:"endTime" yaml:"end"`
	Subject    string      `json:"subject" yaml:"subject"`
	Instructor string      `json:"instructor,omitempty" yaml:"instructor"`
	Type       SubjectType `json:"subjectType" yaml:"type"`
}

// Duration is the scheduled length of the session.
func (s Session) Duration() time.Duration {
	return time.Duration(s.End-s.Start) * time.Minute
}

// Timetable is the set of sessions for a class in one semester.
type Timetable struct {
	ID        string     `json:"id" yaml:"id"`
	ClassID   string     `json:"classId" yaml:"class_id"`
	Semester  int        `json:"semester" yaml:"semester"`
	Year      int        `json:"year" yaml:"year"`
	StartDate *time.Time `json:"startDate,omitempty" yaml:"start_date"`
	EndDate   *time.Time `json:"endDate,omitempty" yaml:"end_date"`
	Sessions  []Session  `json:"sessions" yaml:"sessions"`
}

// covers reports whether the calendar date of day lies inside the timetable's
// optional semester bounds.
func (t Timetable) covers(day time.Time) bool {
	key := dateKey(day)
	if t.StartDate != nil && key < dateKey(*t.StartDate) {
		return false
	}
	if t.EndDate != nil && key > dateKey(*t.EndDate) {
		return false
	}
	return true
}

// overlaps reports whether the two timetables share at least one date.
// Missing bounds are open-ended.
func (t Timetable) overlaps(o Timetable) bool {
	if t.EndDate != nil && o.StartDate != nil && dateKey(*t.EndDate) < dateKey(*o.StartDate) {
		return false
	}
	if o.EndDate != nil && t.StartDate != nil && dateKey(*o.EndDate) < dateKey(*t.StartDate) {
		return false
	}
	return true
}

func dateKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// Occurrence is a session materialized on a concrete date.
type Occurrence struct {
	Session Session   `json:"session"`
	Date    time.Time `json:"date"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Ended reports whether the occurrence is over at now.
func (o Occurrence) Ended(now time.Time) bool {
	return !now.Before(o.End)
}
