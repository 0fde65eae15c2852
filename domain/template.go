package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Weekday is the symbolic day-of-week recorded on a template visit.
type Weekday string

const (
	Sunday    Weekday = "SUNDAY"
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
)

var weekdayIndex = map[Weekday]int{
	Sunday:    0,
	Monday:    1,
	Tuesday:   2,
	Wednesday: 3,
	Thursday:  4,
	Friday:    5,
	Saturday:  6,
}

// Index maps the weekday to its numeric position, SUNDAY=0 through
// SATURDAY=6.
func (w Weekday) Index() (int, bool) {
	idx, ok := weekdayIndex[w]
	return idx, ok
}

// TemplateVisit is one recurring slot within a template: a weekday, an HH:MM
// time range, and the name of the assigned care worker. The name is free
// text and is not cross-checked against real care-worker records.
type TemplateVisit struct {
	ID             string  `json:"id"`
	Day            Weekday `json:"day"`
	StartTime      string  `json:"startTime"`
	EndTime        string  `json:"endTime"`
	CareWorkerName string  `json:"careWorkerName"`
}

// Template is a named, reusable weekly visit plan. It has no relation to
// concrete dates until applied.
type Template struct {
	ID       string          `json:"id"`
	AgencyID string          `json:"agencyId,omitempty"`
	Name     string          `json:"name"`
	IsActive bool            `json:"isActive"`
	Visits   []TemplateVisit `json:"visits"`
}

// ParseHHMM parses an HH:MM time-of-day string. Unlike ingestion, template
// expansion treats a malformed time as an error: a silently wrong visit time
// is a correctness hazard a care schedule cannot mask.
func ParseHHMM(s string) (hour, minute int, err error) {
	if len(s) < 5 || s[2] != ':' {
		return 0, 0, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err = strconv.Atoi(s[:2])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(s[3:5])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// AtTimeOfDay combines a calendar day with an HH:MM string.
func AtTimeOfDay(day time.Time, hhmm string) (time.Time, error) {
	h, m, err := ParseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	y, mo, d := day.Date()
	return time.Date(y, mo, d, h, m, 0, 0, day.Location()), nil
}
