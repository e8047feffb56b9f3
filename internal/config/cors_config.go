package config

import (
	"slices"
	"strings"
)

const (
	allowedOriginsVar = "CORS_ALLOWED_ORIGINS"
	allowedMethods    = "GET, POST, OPTIONS"
	allowedHeaders    = "Content-Type, X-CSRF-Token, HX-Request"
)

type Cors struct{}

var _ CorsConfig = Cors{}

// AllowedOrigins is a set of normalized origins, "*" allows any
type AllowedOrigins map[string]struct{}

func normalizeOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[normalizeOrigin(origin)]
	return ok
}

func (a AllowedOrigins) String() string {
	origins := make([]string, 0, len(a))
	for origin := range a {
		origins = append(origins, origin)
	}
	slices.Sort(origins)
	return strings.Join(origins, ", ")
}

// GetAllowedOrigins reads the comma separated CORS_ALLOWED_ORIGINS list.
// The hosts of these origins are also trusted for CSRF checks.
func (Cors) GetAllowedOrigins() AllowedOrigins {
	origins := AllowedOrigins{}
	for _, origin := range strings.Split(GetEnv(allowedOriginsVar, ""), ",") {
		if origin = normalizeOrigin(origin); origin != "" {
			origins[origin] = struct{}{}
		}
	}
	return origins
}

func (Cors) GetAllowedMethods() string {
	return allowedMethods
}

func (Cors) GetAllowedHeaders() string {
	return allowedHeaders
}
