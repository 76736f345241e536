package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const reasonWrongType = "has the wrong type"

// ErrNotObject is returned by ParseJSON when the body is not a JSON object.
var ErrNotObject = errors.New("body must be a JSON object")

// ParseJSON decodes body one member at a time and checks the result like
// Parse. A member whose JSON type does not fit its field is reported as a
// violation on that field, in declaration order, next to the rule
// violations of the other fields. Unknown members are ignored.
func (s *RuleSet[T]) ParseJSON(body []byte, now time.Time) (Result[T], error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(body, &members); err != nil || members == nil {
		return Result[T]{}, ErrNotObject
	}

	keys := make([]string, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var raw T
	mistyped := map[string]bool{}
	for _, k := range keys {
		one, err := json.Marshal(map[string]json.RawMessage{k: members[k]})
		if err != nil {
			return Result[T]{}, fmt.Errorf("re-encoding %q: %w", k, err)
		}
		if err := json.Unmarshal(one, &raw); err != nil {
			var typeErr *json.UnmarshalTypeError
			if !errors.As(err, &typeErr) {
				return Result[T]{}, fmt.Errorf("decoding %q: %w", k, err)
			}
			mistyped[strings.ToLower(k)] = true
		}
	}
	return s.parse(raw, now, mistyped), nil
}
