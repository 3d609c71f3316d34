package event

import (
	"fmt"
	"strings"
)

// Assignment is one experiment/variant pair decoded from the
// experiments column.
type Assignment struct {
	Experiment string
	Variant    string
}

// ParseAssignments decodes the compact assignment encoding
// "{name1=variant1, name2=variant2}" into a list of pairs.
//
// An empty map ("{}", "" or whitespace) yields no assignments and no
// error. Unbalanced braces, entries without '=' and empty names are
// reported as errors; callers treat a failed parse as an event that
// contributes no exposures.
func ParseAssignments(s string) ([]Assignment, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, fmt.Errorf("experiments string %q: missing braces", s)
	}

	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return nil, nil
	}

	parts := strings.Split(body, ",")
	assignments := make([]Assignment, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		name, variant, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("experiments entry %q: missing '='", part)
		}
		name = strings.TrimSpace(name)
		variant = strings.TrimSpace(variant)
		if name == "" {
			return nil, fmt.Errorf("experiments entry %q: empty experiment name", part)
		}
		assignments = append(assignments, Assignment{Experiment: name, Variant: variant})
	}

	return assignments, nil
}
