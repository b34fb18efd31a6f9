package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("ENVIRONMENT", "")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, LockLocal, cfg.LockMode)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 30*time.Second, cfg.BreakerOpenTimeout)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{"unknown store", map[string]string{"STORE_DRIVER": "postgres"}, true},
		{"unknown lock mode", map[string]string{"LOCK_MODE": "redis"}, true},
		{"production without auth", map[string]string{"ENVIRONMENT": "production"}, true},
		{"production with jwt", map[string]string{"ENVIRONMENT": "production", "JWT_SECRET": "s3cret"}, false},
		{"sqlite", map[string]string{"STORE_DRIVER": "sqlite", "SQLITE_PATH": "/tmp/x.db"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"STORE_DRIVER", "LOCK_MODE", "ENVIRONMENT", "JWT_SECRET", "SUPABASE_URL", "SQLITE_PATH"} {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig()

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadDomainConfig_MergesFileOverDefaults(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "tunables.yaml")
	body := "max_open_requests: 5\ngeneration_interval: 15m\nnotice_ttl: 20s\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	// Act
	cfg, err := LoadDomainConfig("development", path, zap.NewNop())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxOpenRequests)
	assert.Equal(t, 15*time.Minute, cfg.GenerationInterval)
	assert.Equal(t, 20*time.Second, cfg.NoticeTTL)
	assert.Equal(t, 120, cfg.CriticalWindowMinutes)
}

func TestLoadDomainConfig_SanitizesAndWarns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tunables.yaml")
	require.NoError(t, os.WriteFile(path, []byte("urgency_pressure_divisor: 0\n"), 0o600))
	core, logs := observer.New(zap.WarnLevel)

	cfg, err := LoadDomainConfig("", path, zap.New(core))

	require.NoError(t, err)
	assert.Equal(t, 10.0, cfg.UrgencyPressureDivisor)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "urgency_pressure_divisor", logs.All()[0].ContextMap()["field"])
}

func TestLoadDomainConfig_Errors(t *testing.T) {
	_, err := LoadDomainConfig("", filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_open_requests: [\n"), 0o600))
	_, err = LoadDomainConfig("", path, nil)
	assert.Error(t, err)
}
