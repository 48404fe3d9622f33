package cache

import (
	"sort"
	"strings"
)

// MatchAll is the invalidation pattern that matches every key.
const MatchAll = "*"

// Key builds the request key for a resource read. Parameters are
// serialized in sorted order so two calls for the same logical
// resource always produce equal keys.
func Key(resource string, params map[string]string) string {
	if len(params) == 0 {
		return resource
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(resource)
	b.WriteByte('?')
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(params[name])
	}
	return b.String()
}

// ChildKey builds the key for a single item under a resource, e.g.
// ChildKey("customers", "42") -> "customers/42". Keys built this way
// are evicted by the parent resource's invalidation pattern.
func ChildKey(resource, id string) string {
	return resource + "/" + id
}

// Matches reports whether a key falls under an invalidation pattern.
// A pattern matches its own key, every child key beneath it, and every
// parameterized variant of it.
func Matches(key, pattern string) bool {
	if pattern == MatchAll || key == pattern {
		return true
	}
	return strings.HasPrefix(key, pattern+"/") || strings.HasPrefix(key, pattern+"?")
}
