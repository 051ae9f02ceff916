package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2048, cfg.Index.BlockSize)
	assert.Equal(t, "mmap", cfg.Index.PositionsBackend)
	assert.Equal(t, 150*time.Millisecond, cfg.Search.DefaultBudget)
	assert.Equal(t, "index.journal", cfg.Kafka.Topics.Journal)
	assert.False(t, cfg.Postgres.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
index:
  root: /srv/index
  blockSize: 4096
search:
  defaultBudget: 250ms
  fallbackThreshold: 20
`), 0o644))

	t.Setenv("RI_INDEX_POSITIONS_BACKEND", "pread")
	t.Setenv("RI_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("RI_SEARCH_DEFAULT_BUDGET", "1s")
	t.Setenv("RI_SERVER_PORT", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/index", cfg.Index.Root)
	assert.Equal(t, 4096, cfg.Index.BlockSize)
	assert.Equal(t, "pread", cfg.Index.PositionsBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.Second, cfg.Search.DefaultBudget)
	assert.Equal(t, 20, cfg.Search.FallbackThreshold)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("RI_INDEX_POSITIONS_BACKEND", "tape")
	_, err := Load("")
	assert.ErrorContains(t, err, "positionsBackend")

	t.Setenv("RI_INDEX_POSITIONS_BACKEND", "")
	t.Setenv("RI_INDEX_BLOCK_SIZE", "100")
	_, err = Load("")
	assert.ErrorContains(t, err, "blockSize")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
