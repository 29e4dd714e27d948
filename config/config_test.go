package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfig_Defaults(t *testing.T) {
	cfg, err := InitConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Mode)
	assert.Equal(t, "8000", cfg.Server.HTTPPort)
	assert.Equal(t, "change-me-in-env", cfg.JWT.SecretKey)
	assert.Equal(t, "HS256", cfg.JWT.Algorithm)
}

func TestInitConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CONTACTS_MODE", "production")
	t.Setenv("CONTACTS_JWT_SECRETKEY", "env-secret")
	t.Setenv("CONTACTS_REPOSITORIES_POSTGRES_HOST", "db.internal")
	t.Setenv("CONTACTS_MAIL_PASSWORD", "smtp-pass")

	cfg, err := InitConfig()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Mode)
	assert.Equal(t, "env-secret", cfg.JWT.SecretKey)
	assert.Equal(t, "db.internal", cfg.Repositories.Postgres.Host)
	assert.Equal(t, "smtp-pass", cfg.Mail.Password)

	// Keys without an env override keep their file values.
	assert.Equal(t, "contacts", cfg.Repositories.Postgres.DB)
}
