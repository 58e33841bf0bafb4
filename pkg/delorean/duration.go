package delorean

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidDate     = errors.New("invalid date")
)

// Month and year use average calendar lengths.
var secondsIn = map[byte]float64{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 86400,
	'w': 604800,
	'M': 2629743,
	'y': 31556926,
}

const (
	dateMinuteLayout = "2006-01-02 15:04"
	dateSecondLayout = "2006-01-02 15:04:05"
)

// ParseDuration turns "90d", "3M", "45" (seconds) and the like into a
// number of seconds. Units are case sensitive: m is minutes, M is months.
func ParseDuration(text string) (float64, error) {
	if text == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidDuration)
	}

	number, magnitude := text, 1.0
	if mag, ok := secondsIn[text[len(text)-1]]; ok {
		number, magnitude = text[:len(text)-1], mag
	}

	value, err := strconv.Atoi(number)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, text)
	}

	return float64(value) * magnitude, nil
}

// ParseDate reads "YYYY-MM-DD HH:MM" or "YYYY-MM-DD HH:MM:SS" in the host's
// local zone and returns unix seconds.
func ParseDate(text string) (float64, error) {
	layout := dateSecondLayout
	if len(text) == len(dateMinuteLayout) {
		layout = dateMinuteLayout
	}

	t, err := time.ParseInLocation(layout, text, time.Local)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDate, text)
	}

	return float64(t.Unix()), nil
}
