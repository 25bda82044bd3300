package origin

import (
	"fmt"
	"net/url"
	"strings"
)

// AllowList is an immutable set of trusted origins. Membership is exact
// match on scheme, host and port.
type AllowList struct {
	ordered []Origin
	set     map[Origin]struct{}
}

// NewAllowList builds an AllowList from already-parsed origins, dropping
// duplicates and zero values.
func NewAllowList(origins ...Origin) AllowList {
	l := AllowList{set: make(map[Origin]struct{}, len(origins))}
	for _, o := range origins {
		if o.IsZero() {
			continue
		}
		if _, dup := l.set[o]; dup {
			continue
		}
		l.set[o] = struct{}{}
		l.ordered = append(l.ordered, o)
	}
	return l
}

// ParseAllowList parses a comma-separated list of origins.
func ParseAllowList(csv string) (AllowList, error) {
	return ParseAllowListEntries(strings.Split(csv, ","))
}

// ParseAllowListEntries parses origins one per entry. Blank entries are
// skipped. An entry carrying a path, query or fragment is rejected rather
// than silently truncated to its origin.
func ParseAllowListEntries(entries []string) (AllowList, error) {
	origins := make([]Origin, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		o, err := Parse(entry)
		if err != nil {
			return AllowList{}, err
		}

		u, _ := url.Parse(entry)
		if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" || u.User != nil {
			return AllowList{}, fmt.Errorf("allowed origin %q must not contain a path, query, fragment or userinfo", entry)
		}

		origins = append(origins, o)
	}
	return NewAllowList(origins...), nil
}

// Contains reports whether o is in the list.
func (l AllowList) Contains(o Origin) bool {
	if o.IsZero() {
		return false
	}
	_, ok := l.set[o]
	return ok
}

// Match parses raw as an origin and reports the parsed value if it is in
// the list.
func (l AllowList) Match(raw string) (Origin, bool) {
	o, err := Parse(raw)
	if err != nil || !l.Contains(o) {
		return Origin{}, false
	}
	return o, true
}

// Len returns the number of distinct origins.
func (l AllowList) Len() int {
	return len(l.ordered)
}

// Origins returns a copy of the list in configured order.
func (l AllowList) Origins() []Origin {
	out := make([]Origin, len(l.ordered))
	copy(out, l.ordered)
	return out
}

// Strings returns the serialized origins in configured order.
func (l AllowList) Strings() []string {
	out := make([]string, len(l.ordered))
	for i, o := range l.ordered {
		out[i] = o.String()
	}
	return out
}

func (l AllowList) String() string {
	return strings.Join(l.Strings(), ",")
}
