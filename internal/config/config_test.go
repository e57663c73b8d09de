package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownEnvironment(t *testing.T) {
	cfg := Default()
	cfg.App.Environment = "sandbox"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "postgres"
	require.Error(t, cfg.Validate())
}

func TestValidateRequiresNeo4jAndStrongPasswordInProduction(t *testing.T) {
	cfg := Default()
	cfg.App.Environment = "production"
	cfg.Store.Backend = "sqlite"
	require.Error(t, cfg.Validate(), "production must require the neo4j backend")

	cfg.Store.Backend = "neo4j"
	cfg.Store.Password = "short"
	require.Error(t, cfg.Validate(), "production must reject short passwords")

	cfg.Store.Password = "password"
	require.Error(t, cfg.Validate(), "production must reject the literal password 'password' even if long enough")

	cfg.Store.Password = "s3cure-enough"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsMalformedHypothesisRange(t *testing.T) {
	cfg := Default()
	cfg.Defaults.HypothesesPerDimensionMin = 5
	cfg.Defaults.HypothesesPerDimensionMax = 2
	require.Error(t, cfg.Validate())
}

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("GRAPHMIND_STORE_BACKEND", "NEO4J")
	t.Setenv("GRAPHMIND_APP_ENVIRONMENT", "STAGING")
	t.Setenv("GRAPHMIND_APP_PORT", "9999")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "neo4j", cfg.Store.Backend)
	assert.Equal(t, "staging", cfg.App.Environment)
	assert.Equal(t, 9999, cfg.App.Port)
}

func TestLoadFromEnvIgnoresMalformedPort(t *testing.T) {
	t.Setenv("GRAPHMIND_APP_PORT", "not-a-number")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().App.Port, cfg.App.Port)
}

func TestLoadFromFileOverlaysFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  environment: staging\n  log_level: info\n"), 0644))

	t.Setenv("GRAPHMIND_APP_LOG_LEVEL", "debug")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.App.Environment, "file value applies when env doesn't override it")
	assert.Equal(t, "debug", cfg.App.LogLevel, "env var takes precedence over the file")
}

func TestSaveToFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	cfg := Default()
	require.NoError(t, cfg.SaveToFile(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Store.Backend, loaded.Store.Backend)
	assert.Equal(t, cfg.Defaults.HypothesesPerDimensionMax, loaded.Defaults.HypothesesPerDimensionMax)
}

func TestConfidenceVectorConversions(t *testing.T) {
	d := DefaultsConfig{InitialConfidence: [4]float64{0.1, 0.2, 0.3, 0.4}}
	v := d.InitialConfidenceVector()
	assert.Equal(t, 0.1, v.EmpiricalSupport)
	assert.Equal(t, 0.2, v.TheoreticalBasis)
	assert.Equal(t, 0.3, v.MethodologicalRigor)
	assert.Equal(t, 0.4, v.ConsensusAlignment)
}
