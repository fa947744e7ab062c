package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 7, cfg.Consistency.GracePeriodDays)
	assert.Equal(t, 7*24*time.Hour, cfg.Consistency.GracePeriod())
	assert.Equal(t, []string{"name", "email"}, cfg.Consistency.RequiredFields)
	assert.EqualValues(t, 3, cfg.Notifications.Threshold)
	assert.Len(t, cfg.Notifications.Sections, 3)
}

func TestMergeYAMLOverlaysOnlyPresentKeys(t *testing.T) {
	cfg := Defaults()
	err := cfg.MergeYAML([]byte(`
mongo_db: folio
consistency:
  grace_period_days: 14
  check_interval: 30m
notifications:
  sections:
    - collection: certificates
      display_name: Certificates
`))
	require.NoError(t, err)

	assert.Equal(t, "folio", cfg.MongoDB)
	assert.Equal(t, 14, cfg.Consistency.GracePeriodDays)
	assert.Equal(t, 30*time.Minute, cfg.Consistency.CheckInterval)
	assert.Equal(t, time.Hour, cfg.Consistency.SweepInterval)
	assert.Equal(t, []string{"name", "email"}, cfg.Consistency.RequiredFields)
	assert.Equal(t, []Section{{Collection: "certificates", DisplayName: "Certificates"}}, cfg.Notifications.Sections)
}

func TestLocalCountsFromYAML(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.MergeYAML([]byte(`
notifications:
  sections:
    - collection: skills
      display_name: Skills
      local_count: 4
    - collection: projects
      display_name: Projects
`)))

	assert.Equal(t, map[string]int64{"skills": 4, "projects": 0}, cfg.Notifications.LocalCounts())
}

func TestMergeYAMLRejectsGarbage(t *testing.T) {
	cfg := Defaults()
	require.Error(t, cfg.MergeYAML([]byte("consistency: [1, 2")))
}

func TestLoadReadsFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("consistency:\n  grace_period_days: 10\n"), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("REQUIRED_FIELDS", "name, email ,phone")
	t.Setenv("ADMIN_EMAILS", "owner@example.com")
	t.Setenv("CONTENT_THRESHOLD", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Consistency.GracePeriodDays)
	assert.Equal(t, []string{"name", "email", "phone"}, cfg.Consistency.RequiredFields)
	assert.Equal(t, []string{"owner@example.com"}, cfg.AdminEmails)
	assert.EqualValues(t, 5, cfg.Notifications.Threshold)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero grace period", func(c *Config) { c.Consistency.GracePeriodDays = 0 }},
		{"no required fields", func(c *Config) { c.Consistency.RequiredFields = nil }},
		{"zero threshold", func(c *Config) { c.Notifications.Threshold = 0 }},
		{"section without name", func(c *Config) { c.Notifications.Sections = []Section{{Collection: "skills"}} }},
		{"zero interval", func(c *Config) { c.Consistency.SweepInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
