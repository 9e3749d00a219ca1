// Package appointments turns the free-text slot labels submitted by the
// booking form into concrete time intervals.
//
// The grammar is fixed: a date written as "Month D, YYYY", optionally
// followed by the word "at" and a 12-hour clock time "H:MM AM|PM". Text
// without a time yields an all-day interval; a time written any other way
// is rejected rather than dropped. All values are naive and are
// resolved in the single zone the Parser is built with; no per-locale or
// per-client zone guessing takes place.
package appointments

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	// The lambda image ships without zoneinfo.
	_ "time/tzdata"
)

// TimedDuration is the length of every timed appointment.
const TimedDuration = time.Hour

var (
	// ErrNoDate is returned when the text contains no "Month D, YYYY" date.
	ErrNoDate = errors.New("no date found")
	// ErrInvalidDate is returned when the date does not exist on the calendar.
	ErrInvalidDate = errors.New("invalid calendar date")
	// ErrInvalidTime is returned when a time follows the date but is not a
	// valid "at H:MM AM|PM" clause.
	ErrInvalidTime = errors.New("invalid time of day")
)

var (
	datePattern = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2}),\s*(\d{4})\b`)
	atPattern   = regexp.MustCompile(`(?i)^\s+at\b`)
	timePattern = regexp.MustCompile(`(?i)^\s+at\s+(\d{1,2}):(\d{2})\s*([ap])\.?m\.?(?:\W|$)`)

	// clockPattern spots a time of day written in any other shape.
	clockPattern = regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2}\b|\s*[ap]\.?m\b)`)
)

var months = map[string]time.Month{
	"january":   time.January,
	"february":  time.February,
	"march":     time.March,
	"april":     time.April,
	"may":       time.May,
	"june":      time.June,
	"july":      time.July,
	"august":    time.August,
	"september": time.September,
	"october":   time.October,
	"november":  time.November,
	"december":  time.December,
}

// Interval is a parsed appointment. For all-day intervals Start and End
// are both midnight of the same date.
type Interval struct {
	Start  time.Time
	End    time.Time
	AllDay bool
}

// Date returns the interval's calendar date as YYYY-MM-DD.
func (i Interval) Date() string {
	return i.Start.Format(time.DateOnly)
}

// ParseError describes why a single appointment text could not be parsed.
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("appointments: cannot parse %q: %v", e.Text, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parser resolves appointment text in a fixed location.
type Parser struct {
	loc *time.Location
}

// NewParser builds a parser for the given zone. A nil location means UTC.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.UTC
	}
	return &Parser{loc: loc}
}

// NewParserForZone loads the IANA zone name and builds a parser for it.
func NewParserForZone(zone string) (*Parser, error) {
	loc, err := time.LoadLocation(strings.TrimSpace(zone))
	if err != nil {
		return nil, fmt.Errorf("appointments: load zone %q: %w", zone, err)
	}
	return NewParser(loc), nil
}

// Location returns the zone naive values are interpreted in.
func (p *Parser) Location() *time.Location {
	return p.loc
}

// Parse converts one appointment text into an Interval. Failures are
// always *ParseError; Parse never panics on malformed input.
func (p *Parser) Parse(text string) (Interval, error) {
	m := datePattern.FindStringSubmatchIndex(text)
	if m == nil {
		return Interval{}, &ParseError{Text: text, Err: ErrNoDate}
	}

	month := months[strings.ToLower(text[m[2]:m[3]])]
	day, _ := strconv.Atoi(text[m[4]:m[5]])
	year, _ := strconv.Atoi(text[m[6]:m[7]])
	if !validDate(year, month, day) {
		return Interval{}, &ParseError{Text: text, Err: ErrInvalidDate}
	}

	rest := text[m[1]:]
	if !atPattern.MatchString(rest) {
		// A time that is not introduced by "at" must not be dropped silently.
		if clockPattern.MatchString(rest) {
			return Interval{}, &ParseError{Text: text, Err: ErrInvalidTime}
		}
		start := time.Date(year, month, day, 0, 0, 0, 0, p.loc)
		return Interval{Start: start, End: start, AllDay: true}, nil
	}

	tm := timePattern.FindStringSubmatch(rest)
	if tm == nil {
		return Interval{}, &ParseError{Text: text, Err: ErrInvalidTime}
	}
	hour, _ := strconv.Atoi(tm[1])
	minute, _ := strconv.Atoi(tm[2])
	if hour < 1 || hour > 12 || minute > 59 {
		return Interval{}, &ParseError{Text: text, Err: ErrInvalidTime}
	}
	hour %= 12
	if strings.EqualFold(tm[3], "p") {
		hour += 12
	}

	start := time.Date(year, month, day, hour, minute, 0, 0, p.loc)
	return Interval{Start: start, End: start.Add(TimedDuration)}, nil
}

func validDate(year int, month time.Month, day int) bool {
	if day < 1 || day > 31 {
		return false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && t.Month() == month && t.Day() == day
}
