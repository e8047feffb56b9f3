package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/movie-ratings/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	config.ResetFile()
	c := config.New()

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, config.BackendMemory, c.GetBackend())
	require.Equal(t, 30*time.Minute, c.GetSessionIdleTimeout())
	require.Empty(t, c.GetAllowedOrigins())
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9090\nbackend: supabase\nsession_idle_timeout: 5m\n"), 0o600))
	require.NoError(t, config.LoadFile(path))
	t.Cleanup(config.ResetFile)

	c := config.New()
	require.Equal(t, ":9090", c.GetPort())
	require.Equal(t, config.BackendSupabase, c.GetBackend())
	require.Equal(t, 5*time.Minute, c.GetSessionIdleTimeout())

	t.Setenv("PORT", "7070")
	require.Equal(t, ":7070", c.GetPort())
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	origins := config.New().GetAllowedOrigins()
	require.True(t, origins.IsAllowedOrigin("https://a.example"))
	require.True(t, origins.IsAllowedOrigin("https://b.example"))
	require.True(t, origins.IsAllowedOrigin("https://A.example/"))
	require.False(t, origins.IsAllowedOrigin("https://c.example"))
	require.Equal(t, "https://a.example, https://b.example", origins.String())
}

func TestLoadFileMissing(t *testing.T) {
	require.Error(t, config.LoadFile(filepath.Join(t.TempDir(), "nope.yaml")))
}
