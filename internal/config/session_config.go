package config

import "time"

type Session struct{}

var _ SessionConfig = Session{}

// GetRedisAddr selects the Redis session repo when set, in-memory otherwise
func (Session) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "")
}

func (Session) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

func (Session) GetSessionCookieName() string {
	return GetEnv("SESSION_COOKIE", "session_id")
}

func (Session) GetSessionIdleTimeout() time.Duration {
	return GetDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute)
}

func (Session) GetSessionPersistTTL() time.Duration {
	return GetDuration("SESSION_PERSIST_TTL", 7*24*time.Hour)
}

// GetCSRFKey enables CSRF protection of form posts when set (32 bytes)
func (Session) GetCSRFKey() string {
	return GetEnv("CSRF_KEY", "")
}
