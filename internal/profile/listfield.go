package profile

import "strings"

// ListField is an ordered set of list items with case-insensitive identity.
// It is the domain representation of the comma-joined list columns: parse on
// read, merge in memory, join on write. Order is insertion order; duplicates
// (ignoring case) never occur.
type ListField []string

// ParseListField splits a comma-joined stored value into its items,
// trimming whitespace and dropping empties and case-insensitive duplicates.
func ParseListField(stored string) ListField {
	var lf ListField
	for _, item := range strings.Split(stored, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		lf = lf.add(item)
	}
	return lf
}

// Add returns the union of lf and items, preserving lf's order and appending
// new items in the order given. Matching is case-insensitive; the first
// spelling seen wins.
func (lf ListField) Add(items ...string) ListField {
	out := append(ListField(nil), lf...)
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = out.add(item)
	}
	return out
}

// Remove returns lf without any item matching one of items, case-insensitively.
func (lf ListField) Remove(items ...string) ListField {
	drop := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			drop[strings.ToLower(item)] = struct{}{}
		}
	}

	var out ListField
	for _, existing := range lf {
		if _, ok := drop[strings.ToLower(existing)]; !ok {
			out = append(out, existing)
		}
	}
	return out
}

// Contains reports whether lf holds item, ignoring case.
func (lf ListField) Contains(item string) bool {
	item = strings.ToLower(strings.TrimSpace(item))
	for _, existing := range lf {
		if strings.ToLower(existing) == item {
			return true
		}
	}
	return false
}

// Join renders lf back into the comma-joined storage encoding.
func (lf ListField) Join() string {
	return strings.Join(lf, ", ")
}

func (lf ListField) add(item string) ListField {
	if lf.Contains(item) {
		return lf
	}
	return append(lf, item)
}

// MergeList applies a list-field mutation to a stored value and returns the
// new storage encoding. action is one of "add", "remove", or "replace";
// anything else is treated as replace, matching the tool contract where the
// schema constrains the value.
func MergeList(stored, incoming, action string) string {
	items := ParseListField(incoming)
	switch action {
	case "add":
		return ParseListField(stored).Add(items...).Join()
	case "remove":
		return ParseListField(stored).Remove(items...).Join()
	default: // replace
		return items.Join()
	}
}
