package goSession

import (
	"encoding/json"
	"fmt"
	"time"
)

// LocalTimeLayout is the zone-less timestamp format the API exchanges.
const LocalTimeLayout = "2006-01-02T15:04:05"

var localTimeLayouts = []string{
	LocalTimeLayout,
	"2006-01-02T15:04",
	"2006-01-02T15:04:05.999999999",
}

// LocalTime is a wall-clock time without a zone, sent as "2006-01-02T15:04:05".
type LocalTime struct {
	time.Time
}

// ParseLocalTime accepts seconds-less and fractional forms too.
func ParseLocalTime(s string) (LocalTime, error) {
	for _, layout := range localTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return LocalTime{t}, nil
		}
	}
	return LocalTime{}, fmt.Errorf("invalid local time %q", s)
}

func (t LocalTime) String() string {
	return t.Format(LocalTimeLayout)
}

func (t LocalTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(LocalTimeLayout))
}

func (t *LocalTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = LocalTime{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLocalTime(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
