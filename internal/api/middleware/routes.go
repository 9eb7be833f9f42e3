package middleware

import (
	"path"
	"sort"
	"strings"

	"github.com/99minutos/storefront/internal/core/domain"
)

// Rule assigns an access level to every path under Prefix.
type Rule struct {
	Prefix string
	Access domain.Access
}

// RouteTable classifies request paths. The longest matching prefix wins and
// paths matching no rule are public, so every path has exactly one class.
type RouteTable struct {
	rules []Rule
}

// NewRouteTable builds a table from rules. A prefix matches itself and
// anything below it on a segment boundary: "/admin" covers "/admin/users"
// but not "/administrator".
func NewRouteTable(rules ...Rule) *RouteTable {
	sorted := make([]Rule, 0, len(rules))
	for _, r := range rules {
		r.Prefix = normalize(r.Prefix)
		sorted = append(sorted, r)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &RouteTable{rules: sorted}
}

// DefaultRouteTable is the storefront's route classification.
func DefaultRouteTable() *RouteTable {
	return NewRouteTable(
		Rule{Prefix: "/account", Access: domain.AccessAuthenticated},
		Rule{Prefix: "/orders", Access: domain.AccessAuthenticated},
		Rule{Prefix: "/checkout", Access: domain.AccessAuthenticated},
		Rule{Prefix: "/api/account", Access: domain.AccessAuthenticated},
		Rule{Prefix: "/api/orders", Access: domain.AccessAuthenticated},
		Rule{Prefix: "/admin", Access: domain.AccessAdmin},
		Rule{Prefix: "/api/admin", Access: domain.AccessAdmin},
		Rule{Prefix: "/api/auth", Access: domain.AccessPublic},
	)
}

// Classify returns the access level required for path.
func (t *RouteTable) Classify(path string) domain.Access {
	path = normalize(path)
	for _, r := range t.rules {
		if matches(r.Prefix, path) {
			return r.Access
		}
	}
	return domain.AccessPublic
}

func matches(prefix, path string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// normalize cleans dot segments, duplicate and trailing slashes so
// "//admin" and "/shop/../admin/" classify like "/admin".
func normalize(p string) string {
	return path.Clean("/" + p)
}
