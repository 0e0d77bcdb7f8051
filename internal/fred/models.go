package fred

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

const (
	// DateLayout is the wire format for plain calendar dates.
	DateLayout = "2006-01-02"

	// TimestampLayout is the wire format FRED uses for last_updated.
	TimestampLayout = "2006-01-02 15:04:05-07"
)

// Date is a calendar date with no time of day or zone.
// The zero Date means "not provided".
type Date struct {
	t time.Time
}

// NewDate returns the given calendar date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string. An empty string yields the zero Date.
func ParseDate(s string) (Date, error) {
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q; use YYYY-MM-DD", s)
	}
	return Date{t: t}, nil
}

// MustParseDate is ParseDate for literals known to be valid.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) IsZero() bool { return d.t.IsZero() }

// AddDays returns the date n calendar days away from d.
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Timestamp is a UTC instant serialized as "YYYY-MM-DD HH:MM:SS±HH".
type Timestamp struct {
	time.Time
}

// ParseTimestamp parses a FRED last_updated value and normalizes it to UTC.
func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return Timestamp{Time: t.UTC()}, nil
}

func (t Timestamp) String() string {
	return t.UTC().Format(TimestampLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Observation is one (date, value) point of a series. Value is kept exactly as
// the provider sent it; "." marks a missing point.
type Observation struct {
	SeriesID string `json:"-"`
	Date     Date   `json:"date"`
	Value    string `json:"value"`
}

// SeriesMetadata describes an economic data series.
type SeriesMetadata struct {
	ID                      string    `json:"id"`
	RealtimeStart           Date      `json:"realtime_start"`
	RealtimeEnd             Date      `json:"realtime_end"`
	Title                   string    `json:"title"`
	ObservationStart        Date      `json:"observation_start"`
	ObservationEnd          Date      `json:"observation_end"`
	Frequency               string    `json:"frequency"`
	FrequencyShort          string    `json:"frequency_short"`
	Units                   string    `json:"units"`
	UnitsShort              string    `json:"units_short"`
	SeasonalAdjustment      string    `json:"seasonal_adjustment"`
	SeasonalAdjustmentShort string    `json:"seasonal_adjustment_short"`
	LastUpdated             Timestamp `json:"last_updated"`
	Popularity              int       `json:"popularity"`
	Notes                   string    `json:"notes"`
}

// RequestedRange is an observations query. Zero dates are open bounds.
type RequestedRange struct {
	SeriesID         string
	ObservationStart Date
	ObservationEnd   Date
	RealtimeStart    Date
	RealtimeEnd      Date
}

// IsRealtime reports whether the query is pinned to a realtime (ALFRED) snapshot.
func (r RequestedRange) IsRealtime() bool {
	return !r.RealtimeStart.IsZero() || !r.RealtimeEnd.IsZero()
}

// SortObservations orders rows ascending by date.
func SortObservations(rows []Observation) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Date.Before(rows[j].Date)
	})
}
