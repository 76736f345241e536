package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// DateLayout is the wire format of a Date.
const DateLayout = "2006-01-02"

var dateLayouts = []string{DateLayout, time.RFC3339Nano, time.RFC3339, "02/01/2006"}

// Date is a calendar date without time of day.
//
// Decoding never fails on a malformed string: the raw text is kept and Valid
// reports false, so validation can report it alongside the other fields.
// Any supplied value, including 0001-01-01, is distinct from the zero Date.
type Date struct {
	t   time.Time
	raw string
	set bool
}

// NewDate returns the date y-m-d.
func NewDate(y int, m time.Month, d int) Date {
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), set: true}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Date())
}

// DateFromPtr converts a nullable column value.
func DateFromPtr(t *time.Time) Date {
	if t == nil {
		return Date{}
	}
	return DateOf(*t)
}

// ParseDate coerces a date-like string. Empty input yields the zero Date.
func ParseDate(s string) Date {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t)
		}
	}
	return Date{raw: s, set: true}
}

// IsZero reports whether no date was supplied.
func (d Date) IsZero() bool { return !d.set }

// Valid reports whether the date was supplied and parsed.
func (d Date) Valid() bool { return d.set && d.raw == "" }

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time { return d.t }

// Ptr returns the date as a nullable value for storage.
func (d Date) Ptr() *time.Time {
	if !d.Valid() {
		return nil
	}
	t := d.t
	return &t
}

func (d Date) String() string {
	if d.Valid() {
		return d.t.Format(DateLayout)
	}
	return d.raw
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Numbers and other non-strings are kept for validation to reject.
		*d = Date{raw: string(b), set: true}
		return nil
	}
	*d = ParseDate(s)
	return nil
}
