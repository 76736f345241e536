// Package validate checks typed records against per-entity rule sets.
//
// A RuleSet is an ordered list of fields. Parse normalizes every field of a
// copy of the input (trimming text, stripping mask characters) and then
// evaluates the field's rules against the normalized value. Violations from
// all fields are accumulated in declaration order; the normalized record is
// returned only when there are none.
package validate

import (
	"sort"
	"strings"
	"time"

	"github.com/org/dealership/pkg/models"
)

const (
	reasonRequired    = "is required"
	reasonInvalidDate = "is not a valid date"
)

// Violation is one failed constraint on one field.
type Violation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Violations is the ordered list of failed constraints for a record.
type Violations []Violation

func (v Violations) Error() string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = x.Field + ": " + x.Reason
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Fields returns the names of the failing fields, each once, in order.
func (v Violations) Fields() []string {
	var out []string
	seen := map[string]bool{}
	for _, x := range v {
		if !seen[x.Field] {
			seen[x.Field] = true
			out = append(out, x.Field)
		}
	}
	return out
}

// Result holds either a normalized record or the violations that rejected it.
type Result[T any] struct {
	Record     T
	Violations Violations
}

// OK reports whether the record passed every rule.
func (r Result[T]) OK() bool { return len(r.Violations) == 0 }

// Err returns the violations as an error, or nil.
func (r Result[T]) Err() error {
	if r.OK() {
		return nil
	}
	return r.Violations
}

// Field is one declared field of a record of type T.
type Field[T any] struct {
	name     string
	prep     []func(string) string
	verbatim bool
	apply    func(rec *T, now time.Time, norm func(string) string) []string
}

// Name returns the field name reported in violations.
func (f Field[T]) Name() string { return f.name }

// Strip removes every occurrence of the given characters from a text field
// before its rules run.
func (f Field[T]) Strip(chars string) Field[T] {
	f.prep = append(f.prep[:len(f.prep):len(f.prep)], func(s string) string {
		return strings.Map(func(r rune) rune {
			if strings.ContainsRune(chars, r) {
				return -1
			}
			return r
		}, s)
	})
	return f
}

// Lower folds a text field to lower case before its rules run.
func (f Field[T]) Lower() Field[T] {
	f.prep = append(f.prep[:len(f.prep):len(f.prep)], strings.ToLower)
	return f
}

// Verbatim keeps surrounding whitespace of a text field, for secrets.
func (f Field[T]) Verbatim() Field[T] {
	f.verbatim = true
	return f
}

func (f Field[T]) normalize(s string) string {
	for _, p := range f.prep {
		s = p(s)
	}
	if f.verbatim {
		return s
	}
	return strings.TrimSpace(s)
}

// RuleSet is the immutable, ordered set of fields checked for one entity kind.
type RuleSet[T any] struct {
	kind   string
	fields []Field[T]
}

// NewRuleSet declares the fields of kind in evaluation order.
func NewRuleSet[T any](kind string, fields ...Field[T]) *RuleSet[T] {
	return &RuleSet[T]{kind: kind, fields: append([]Field[T](nil), fields...)}
}

// Kind names the entity the rule set applies to.
func (s *RuleSet[T]) Kind() string { return s.kind }

// Fields lists the declared field names in evaluation order.
func (s *RuleSet[T]) Fields() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.name
	}
	return names
}

// Parse normalizes raw and checks it against every field, relative to now.
// raw itself is never modified.
func (s *RuleSet[T]) Parse(raw T, now time.Time) Result[T] {
	return s.parse(raw, now, nil)
}

// parse skips the rules of fields named in mistyped and reports them instead.
// Mistyped names that are not declared fields follow, sorted.
func (s *RuleSet[T]) parse(raw T, now time.Time, mistyped map[string]bool) Result[T] {
	rec := raw
	var out Violations
	declared := make(map[string]bool, len(s.fields))
	for _, f := range s.fields {
		declared[f.name] = true
		if mistyped[f.name] {
			out = append(out, Violation{Field: f.name, Reason: reasonWrongType})
			continue
		}
		for _, reason := range f.apply(&rec, now, f.normalize) {
			out = append(out, Violation{Field: f.name, Reason: reason})
		}
	}
	var extra []string
	for name := range mistyped {
		if !declared[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		out = append(out, Violation{Field: name, Reason: reasonWrongType})
	}
	if len(out) > 0 {
		return Result[T]{Violations: out}
	}
	return Result[T]{Record: rec}
}

func evaluate[V any](rules []Rule[V], v V, now time.Time) []string {
	var reasons []string
	for _, r := range rules {
		if !r.test(v, now) {
			reasons = append(reasons, r.reason)
		}
	}
	return reasons
}

// Text declares a required string field.
func Text[T any](name string, ref func(*T) *string, rules ...Rule[string]) Field[T] {
	return Field[T]{name: name, apply: func(rec *T, now time.Time, norm func(string) string) []string {
		p := ref(rec)
		*p = norm(*p)
		if *p == "" {
			return []string{reasonRequired}
		}
		return evaluate(rules, *p, now)
	}}
}

// OptionalText declares a nullable string field. Blank values become null.
func OptionalText[T any](name string, ref func(*T) **string, rules ...Rule[string]) Field[T] {
	return Field[T]{name: name, apply: func(rec *T, now time.Time, norm func(string) string) []string {
		p := ref(rec)
		if *p == nil {
			return nil
		}
		v := norm(**p)
		if v == "" {
			*p = nil
			return nil
		}
		*p = &v
		return evaluate(rules, v, now)
	}}
}

// Number declares a numeric field.
func Number[T any](name string, ref func(*T) *float64, rules ...Rule[float64]) Field[T] {
	return Field[T]{name: name, apply: func(rec *T, now time.Time, _ func(string) string) []string {
		return evaluate(rules, *ref(rec), now)
	}}
}

// OptionalNumber declares a nullable numeric field.
func OptionalNumber[T any](name string, ref func(*T) **float64, rules ...Rule[float64]) Field[T] {
	return Field[T]{name: name, apply: func(rec *T, now time.Time, _ func(string) string) []string {
		p := ref(rec)
		if *p == nil {
			return nil
		}
		return evaluate(rules, **p, now)
	}}
}

// Reference declares a required identifier of another record. Zero means absent.
func Reference[T any](name string, ref func(*T) *int64, rules ...Rule[int64]) Field[T] {
	return Field[T]{name: name, apply: func(rec *T, now time.Time, _ func(string) string) []string {
		v := *ref(rec)
		if v == 0 {
			return []string{reasonRequired}
		}
		return evaluate(rules, v, now)
	}}
}

// OptionalReference declares a nullable identifier of another record.
func OptionalReference[T any](name string, ref func(*T) **int64, rules ...Rule[int64]) Field[T] {
	return Field[T]{name: name, apply: func(rec *T, now time.Time, _ func(string) string) []string {
		p := ref(rec)
		if *p == nil {
			return nil
		}
		return evaluate(rules, **p, now)
	}}
}

// Date declares a required calendar date field.
func Date[T any](name string, ref func(*T) *models.Date, rules ...Rule[time.Time]) Field[T] {
	return dateField(name, ref, true, rules)
}

// OptionalDate declares a nullable calendar date field.
func OptionalDate[T any](name string, ref func(*T) *models.Date, rules ...Rule[time.Time]) Field[T] {
	return dateField(name, ref, false, rules)
}

func dateField[T any](name string, ref func(*T) *models.Date, required bool, rules []Rule[time.Time]) Field[T] {
	return Field[T]{name: name, apply: func(rec *T, now time.Time, _ func(string) string) []string {
		d := *ref(rec)
		switch {
		case d.IsZero() && required:
			return []string{reasonRequired}
		case d.IsZero():
			return nil
		case !d.Valid():
			return []string{reasonInvalidDate}
		}
		return evaluate(rules, d.Time(), now)
	}}
}
