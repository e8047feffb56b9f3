package config

import "time"

type Config interface {
	EnvConfig
	CorsConfig
	BackendConfig
	SessionConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetBaseURL() string
	GetLogLevel() string
	GetOTLPEndpoint() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type BackendConfig interface {
	GetBackend() string
	GetSupabaseURL() string
	GetSupabaseAnonKey() string
	GetSupabaseServiceKey() string
	GetSupabaseJWKSURL() string
	GetBackendTimeout() time.Duration
	GetSeedAdminEmail() string
	GetSeedAdminPassword() string
}

type SessionConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetSessionCookieName() string
	GetSessionIdleTimeout() time.Duration
	GetSessionPersistTTL() time.Duration
	GetCSRFKey() string
}

type mainConfig struct {
	EnvVars
	Cors
	Backend
	Session
}

func New() Config {
	return mainConfig{}
}
