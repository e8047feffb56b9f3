package config

import (
	"strings"
	"time"
)

const (
	// BackendMemory runs against the in-process stand-in backend
	BackendMemory = "memory"
	// BackendSupabase runs against a hosted Supabase project
	BackendSupabase = "supabase"
)

type Backend struct{}

var _ BackendConfig = Backend{}

func (Backend) GetBackend() string {
	return strings.ToLower(GetEnv("BACKEND", BackendMemory))
}

func (Backend) GetSupabaseURL() string {
	return strings.TrimRight(GetEnv("SUPABASE_URL", ""), "/")
}

func (Backend) GetSupabaseAnonKey() string {
	return GetEnv("SUPABASE_ANON_KEY", "")
}

// GetSupabaseServiceKey is only needed by the admin CLI
func (Backend) GetSupabaseServiceKey() string {
	return GetEnv("SUPABASE_SERVICE_KEY", "")
}

// GetSupabaseJWKSURL enables access token signature verification when set
func (Backend) GetSupabaseJWKSURL() string {
	return GetEnv("SUPABASE_JWKS_URL", "")
}

func (Backend) GetBackendTimeout() time.Duration {
	return GetDuration("BACKEND_TIMEOUT", 10*time.Second)
}

func (Backend) GetSeedAdminEmail() string {
	return GetEnv("SEED_ADMIN_EMAIL", "")
}

func (Backend) GetSeedAdminPassword() string {
	return GetEnv("SEED_ADMIN_PASSWORD", "")
}
