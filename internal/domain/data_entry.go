package domain

import (
	"fmt"
	"slices"
)

// AppendSeparator joins successive string contributions to an appending field.
const AppendSeparator = "\n\n"

// MergeDataEntry applies incoming field values onto existing data-entry data.
// Fields named in appendingFields accumulate across submissions: an absent
// string value is prefixed with the reporter name, two strings are joined with
// a blank line, and two lists are unioned without duplicates. A nil value leaves
// earlier contributions untouched. Every other field is overwritten. The
// existing map is not modified.
func MergeDataEntry(existing, incoming map[string]any, appendingFields []string, reporterName string) map[string]any {
	merged := make(map[string]any, len(existing)+len(incoming))
	for k, v := range existing {
		merged[k] = v
	}

	for field, newValue := range incoming {
		if !slices.Contains(appendingFields, field) {
			merged[field] = newValue
			continue
		}
		merged[field] = appendValue(merged[field], newValue, reporterName)
	}

	return merged
}

func appendValue(oldValue, newValue any, reporterName string) any {
	if newValue == nil {
		return oldValue
	}
	if oldValue == nil {
		if s, ok := newValue.(string); ok {
			return fmt.Sprintf("[%s] %s", reporterName, s)
		}
		return newValue
	}

	oldString, oldIsString := oldValue.(string)
	newString, newIsString := newValue.(string)
	if oldIsString && newIsString {
		return oldString + AppendSeparator + newString
	}

	oldList, oldIsList := toList(oldValue)
	newList, newIsList := toList(newValue)
	if oldIsList && newIsList {
		return unionList(oldList, newList)
	}

	return newValue
}

func toList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, 0, len(list))
		for _, s := range list {
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func unionList(a, b []any) []any {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]any, 0, len(a)+len(b))
	for _, v := range append(slices.Clone(a), b...) {
		key := fmt.Sprintf("%T:%v", v, v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
