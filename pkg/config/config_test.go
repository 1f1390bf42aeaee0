package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Moziba-Labs/likelemba/core/pkg/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("DEFAULT_TIER", "")

	cfg := config.Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "likelemba.db", cfg.SQLitePath)
	assert.Equal(t, "standard", cfg.DefaultTier)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://likelemba@db/likelemba")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("SWEEP_SECRET", "s3cret")

	cfg := config.Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres://likelemba@db/likelemba", cfg.DatabaseURL)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "s3cret", cfg.SweepSecret)
}

func writeProfile(t *testing.T, dir, tier, body string) {
	t.Helper()
	path := filepath.Join(dir, "profile_"+tier+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestLoadTierProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "premium", `
name: Premium
currency: XAF
late_fee_minor: 2500
caution_multiple: 3
parallelism: 4
`)

	p, err := config.LoadTierProfile(dir, "premium")
	require.NoError(t, err)
	assert.Equal(t, "Premium", p.Name)
	assert.Equal(t, "premium", p.Tier) // backfilled from the filename
	assert.Equal(t, int64(2500), p.LateFeeMinor)
	assert.Equal(t, 4, p.Parallelism)
	assert.Equal(t, int64(15000), p.CautionMinorFor(5000))
}

func TestLoadTierProfileMissing(t *testing.T) {
	_, err := config.LoadTierProfile(t.TempDir(), "ghost")
	assert.Error(t, err)
}

func TestLoadAllTierProfiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "standard", "name: Standard\nlate_fee_minor: 1000\n")
	writeProfile(t, dir, "premium", "name: Premium\nlate_fee_minor: 2500\n")

	all, err := config.LoadAllTierProfiles(dir)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(1000), all["standard"].LateFeeMinor)
	assert.Equal(t, int64(2500), all["premium"].LateFeeMinor)
}

func TestDefaultTierProfile(t *testing.T) {
	p := config.DefaultTierProfile()
	assert.Equal(t, int64(1000), p.LateFeeMinor)
	assert.Equal(t, int64(10000), p.CautionMinorFor(5000))
}
