package validate

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

// Rule is a single constraint on a normalized field value.
type Rule[V any] struct {
	reason string
	test   func(v V, now time.Time) bool
}

// Check builds a custom rule. test reports whether v satisfies it.
func Check[V any](reason string, test func(v V, now time.Time) bool) Rule[V] {
	return Rule[V]{reason: reason, test: test}
}

// Reason returns the message reported when the rule fails.
func (r Rule[V]) Reason() string { return r.reason }

func MinLen(n int, reason string) Rule[string] {
	return Check(reason, func(s string, _ time.Time) bool { return utf8.RuneCountInString(s) >= n })
}

func MaxLen(n int, reason string) Rule[string] {
	return Check(reason, func(s string, _ time.Time) bool { return utf8.RuneCountInString(s) <= n })
}

// MaxBytes bounds the encoded length rather than the character count.
func MaxBytes(n int, reason string) Rule[string] {
	return Check(reason, func(s string, _ time.Time) bool { return len(s) <= n })
}

func Len(n int, reason string) Rule[string] {
	return Check(reason, func(s string, _ time.Time) bool { return utf8.RuneCountInString(s) == n })
}

func Contains(sub, reason string) Rule[string] {
	return Check(reason, func(s string, _ time.Time) bool { return strings.Contains(s, sub) })
}

// Email accepts a bare address without display name, with a dotted domain.
func Email(reason string) Rule[string] {
	return Check(reason, func(s string, _ time.Time) bool {
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s || addr.Name != "" {
			return false
		}
		domain := s[strings.LastIndexByte(s, '@')+1:]
		return strings.Contains(strings.Trim(domain, "."), ".")
	})
}

// CPF accepts a national identifier whose check digits are correct.
func CPF(reason string) Rule[string] {
	return Check(reason, func(s string, _ time.Time) bool { return ValidCPF(s) })
}

type number interface {
	~int64 | ~float64
}

// Between accepts values in the inclusive range [lo, hi].
func Between[N number](lo, hi N, reason string) Rule[N] {
	return Check(reason, func(v N, _ time.Time) bool { return v >= lo && v <= hi })
}

func AtLeast[N number](lo N, reason string) Rule[N] {
	return Check(reason, func(v N, _ time.Time) bool { return v >= lo })
}

func AtMost[N number](hi N, reason string) Rule[N] {
	return Check(reason, func(v N, _ time.Time) bool { return v <= hi })
}

// today returns midnight UTC of now's calendar date.
func today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MinAge accepts dates at least years before now.
func MinAge(years int, reason string) Rule[time.Time] {
	return Check(reason, func(d time.Time, now time.Time) bool {
		return !d.After(today(now).AddDate(-years, 0, 0))
	})
}

// MaxAge accepts dates at most years before now.
func MaxAge(years int, reason string) Rule[time.Time] {
	return Check(reason, func(d time.Time, now time.Time) bool {
		return !d.Before(today(now).AddDate(-years, 0, 0))
	})
}

func NotBefore(epoch time.Time, reason string) Rule[time.Time] {
	return Check(reason, func(d time.Time, _ time.Time) bool { return !d.Before(epoch) })
}

func NotAfterNow(reason string) Rule[time.Time] {
	return Check(reason, func(d time.Time, now time.Time) bool { return !d.After(today(now)) })
}
