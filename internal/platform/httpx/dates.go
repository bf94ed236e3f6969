package httpx

import (
	"errors"
	"time"
)

// DateLayout is the query-string date format.
const DateLayout = "2006-01-02"

// ParseDateRange reads optional YYYY-MM-DD bounds. The upper bound covers
// its whole day.
func ParseDateRange(from, to string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if from != "" {
		if start, err = time.Parse(DateLayout, from); err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be YYYY-MM-DD")
		}
	}
	if to != "" {
		if end, err = time.Parse(DateLayout, to); err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be YYYY-MM-DD")
		}
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	return start, end, nil
}
