package storage

import (
	"fmt"
	"strings"
	"time"
)

var dbTimeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	DayLayout,
}

func parseDBTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dbTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// nullTime scans DATETIME/TIMESTAMP columns regardless of how the driver
// surfaces them (time.Time, text or bytes). NULL leaves Time zero.
type nullTime struct {
	Time time.Time
}

func (n *nullTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		n.Time = time.Time{}
		return nil
	case time.Time:
		n.Time = x.UTC()
		return nil
	case string:
		t, err := parseDBTime(x)
		n.Time = t
		return err
	case []byte:
		t, err := parseDBTime(string(x))
		n.Time = t
		return err
	default:
		return fmt.Errorf("nullTime: unsupported type %T", v)
	}
}

// dayText scans DATE columns into "YYYY-MM-DD".
type dayText struct {
	Day string
}

func (d *dayText) Scan(v any) error {
	var nt nullTime
	if s, ok := v.(string); ok && len(strings.TrimSpace(s)) == len(DayLayout) {
		d.Day = strings.TrimSpace(s)
		return nil
	}
	if err := nt.Scan(v); err != nil {
		return err
	}
	if nt.Time.IsZero() {
		d.Day = ""
		return nil
	}
	d.Day = nt.Time.Format(DayLayout)
	return nil
}
