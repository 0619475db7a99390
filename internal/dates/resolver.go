// Package dates resolves absolute and epoch-relative date expressions.
package dates

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the only accepted absolute calendar format.
const DateLayout = "2006-01-02"

// ErrInvalidDateExpression is returned for input that is neither an absolute
// date nor an epoch offset.
var ErrInvalidDateExpression = errors.New("invalid date expression")

var relativePattern = regexp.MustCompile(`(?i)^(?:epoch|start)(?:\s*([+-])\s*(\d+)\s*(days?|weeks?|months?))?$`)

var clockPattern = regexp.MustCompile(`^([01]?\d|2[0-3]):([0-5]\d)$`)

// Resolve converts expr into a calendar day in the epoch's location.
// Relative expressions take the form "epoch + 3 days" or "start - 1 week";
// absolute ones use DateLayout. The result is midnight of that day.
func Resolve(expr string, epoch time.Time) (time.Time, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDateExpression)
	}

	loc := epoch.Location()
	if m := relativePattern.FindStringSubmatch(s); m != nil {
		base := Midnight(epoch)
		if m[1] == "" {
			return base, nil
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q: offset out of range", ErrInvalidDateExpression, expr)
		}
		if m[1] == "-" {
			n = -n
		}
		switch strings.TrimSuffix(strings.ToLower(m[3]), "s") {
		case "day":
			return base.AddDate(0, 0, n), nil
		case "week":
			return base.AddDate(0, 0, 7*n), nil
		case "month":
			return base.AddDate(0, n, 0), nil
		}
	}

	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateExpression, expr)
	}
	return t, nil
}

// Midnight truncates t to the start of its calendar day in its own location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Clock is a time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses "HH:MM" in 24-hour form.
func ParseClock(s string) (Clock, error) {
	m := clockPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Clock{}, fmt.Errorf("%w: time of day %q", ErrInvalidDateExpression, s)
	}
	h, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	return Clock{Hour: h, Minute: minute}, nil
}

// At places clock on day, keeping day's location.
func At(day time.Time, clock Clock) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, clock.Hour, clock.Minute, 0, 0, day.Location())
}

// BeforeEpoch reports whether t falls on a day before the epoch's day.
func BeforeEpoch(t, epoch time.Time) bool {
	return Midnight(t.In(epoch.Location())).Before(Midnight(epoch))
}
