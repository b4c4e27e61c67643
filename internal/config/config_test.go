package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, uint(8080), cfg.Port)
		assert.Equal(t, uint(9090), cfg.MetricsPort)
		assert.Equal(t, "30s", cfg.ShutdownTimeout)
		assert.Equal(t, 2, cfg.Governance.MinProposalLevel)
		assert.Equal(t, 1_000_000.0, cfg.Governance.TreasuryInitialBalance)
		assert.False(t, cfg.Governance.QuorumEnforced)
	})

	t.Run("Yaml File Overrides Defaults", func(t *testing.T) {
		path := writeConfigFile(t, `
port: 9000
dataDir: /tmp/realum
governance:
  minProposalLevel: 3
  quorumEnforced: true
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, uint(9000), cfg.Port)
		assert.Equal(t, "/tmp/realum", cfg.DataDir)
		assert.Equal(t, 3, cfg.Governance.MinProposalLevel)
		assert.True(t, cfg.Governance.QuorumEnforced)
		// Untouched keys keep their defaults
		assert.Equal(t, 7, cfg.Governance.DefaultVotingDays)
	})

	t.Run("Environment Overrides File", func(t *testing.T) {
		path := writeConfigFile(t, "port: 9000\n")
		t.Setenv("REALUM_PORT", "9001")
		t.Setenv("REALUM_DEBUG", "true")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, uint(9001), cfg.Port)
		assert.True(t, cfg.Debug)
	})

	t.Run("Missing File", func(t *testing.T) {
		_, err := Load("/does/not/exist.yaml")
		assert.Error(t, err)
	})

	t.Run("Malformed File", func(t *testing.T) {
		path := writeConfigFile(t, "port: [not a number\n")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("Validation", func(t *testing.T) {
		path := writeConfigFile(t, "governance:\n  defaultQuorumPercentage: 150\n")
		_, err := Load(path)
		assert.Error(t, err)

		path = writeConfigFile(t, "governance:\n  treasuryInitialBalance: -5\n")
		_, err = Load(path)
		assert.Error(t, err)
	})
}

func TestAddrs(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr())
	assert.Equal(t, "0.0.0.0:9090", cfg.MetricsAddr())
}
