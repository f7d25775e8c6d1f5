package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DSN", "postgres://inspector@localhost:5432/inspections")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("DETECTION_API_KEY", "key")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	require.Equal(t, 8080, cfg.HTTP.Port)
	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, 40, cfg.Detection.Confidence)
	require.Equal(t, 30, cfg.Detection.Overlap)
	require.Equal(t, 30*time.Second, cfg.Detection.Timeout)
	require.Equal(t, "static", cfg.Storage.ArtifactDir)
	require.Equal(t, "default", cfg.Live.DefaultSessionID)
	require.Equal(t, 64, cfg.Live.MaxSessions)
	require.True(t, cfg.Report.WriteXLSX)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DETECTION_TIMEOUT", "5s")
	t.Setenv("LIVE_MAX_SESSIONS", "2")
	t.Setenv("REPORT_SEED", "42")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.HTTP.Port)
	require.Equal(t, 5*time.Second, cfg.Detection.Timeout)
	require.Equal(t, 2, cfg.Live.MaxSessions)
	require.Equal(t, int64(42), cfg.Report.Seed)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		unset   string
		wantErr string
	}{
		{name: "db dsn", unset: "DB_DSN", wantErr: "DB_DSN is required"},
		{name: "jwt secret", unset: "JWT_ACCESS_SECRET", wantErr: "JWT_ACCESS_SECRET is required"},
		{name: "detection key", unset: "DETECTION_API_KEY", wantErr: "DETECTION_API_KEY is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.unset, "")

			_, err := Load()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
