package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jizpi/arm-ledger/internal/visit"
)

// inTempDir runs the test from an empty directory so no stray arm.yaml
// or .env is picked up.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "Asia/Tashkent", cfg.Timezone)
	assert.Equal(t, 7, cfg.HistogramDays)
	assert.Equal(t, visit.DefaultResources, cfg.Resources)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, "587", cfg.SMTP.Port)
}

func TestLoadYAML(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
database_url: postgres://arm@localhost/arm
histogram_days: 14
refresh_interval: 30s
resources: [Ilmiy zal, O'quv zali]
redis:
  addr: localhost:6379
smtp:
  host: smtp.example.com
  from: arm@example.com
report_recipients: [director@example.com]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "postgres://arm@localhost/arm", cfg.DatabaseURL)
	assert.Equal(t, 14, cfg.HistogramDays)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
	assert.Equal(t, []string{"Ilmiy zal", "O'quv zali"}, cfg.Resources)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "arm:visits:changed", cfg.Redis.Channel, "unset fields keep defaults")
	assert.True(t, cfg.SMTP.IsConfigured())
	assert.Equal(t, []string{"director@example.com"}, cfg.ReportRecipients)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	inTempDir(t)

	_, err := Load("nope.yaml")
	assert.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFile), []byte("addr: \":9000\"\n"), 0o600))
	t.Setenv("ARM_ADDR", ":7000")
	t.Setenv("ARM_HISTOGRAM_DAYS", "30")
	t.Setenv("ARM_DEV_MODE", "true")
	t.Setenv("ARM_CORS_ORIGINS", "http://a.uz, http://b.uz,")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, 30, cfg.HistogramDays)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, []string{"http://a.uz", "http://b.uz"}, cfg.CORSOrigins)
}

func TestLoadDotEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ARM_SMTP_HOST=mail.arm.uz\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("ARM_SMTP_HOST") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "mail.arm.uz", cfg.SMTP.Host)
}

func TestLoadBadEnvNumber(t *testing.T) {
	inTempDir(t)
	t.Setenv("ARM_REDIS_DB", "zero")

	_, err := Load("")
	assert.ErrorContains(t, err, "ARM_REDIS_DB")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Timezone = "Mars/Olympus"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.HistogramDays = 0
	assert.ErrorContains(t, bad.Validate(), "histogram_days")
}

func TestLocationAndStatsOptions(t *testing.T) {
	cfg := Default()
	opts := cfg.StatsOptions()

	assert.Equal(t, "Asia/Tashkent", opts.Location.String())
	assert.Equal(t, 7, opts.Days)
	assert.Equal(t, visit.DefaultResources, opts.Catalog)
}
