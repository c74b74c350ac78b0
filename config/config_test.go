package config

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, cnf Configuration) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "ledgerscan*.json")
	require.NoError(t, err)
	require.NoError(t, json.NewEncoder(f).Encode(&cnf))
	require.NoError(t, f.Close())
	return f.Name()
}

func TestInitConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432/ledgerscan"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	})

	require.NoError(t, InitConfig(path))

	cnf, err := Fetch()
	require.NoError(t, err)

	assert.Equal(t, "Ledgerscan Server", cnf.ProjectName)
	assert.Equal(t, DEFAULT_PORT, cnf.Server.Port)
	assert.Equal(t, 10, cnf.Worker.BatchSize)
	assert.Equal(t, 3, cnf.Worker.MaxRetries)
	assert.Equal(t, 0.6, cnf.Pipeline.ReviewConfidenceThreshold)
	assert.Equal(t, 2, cnf.Pipeline.ReviewMaxLowRows)
	assert.Equal(t, "eng", cnf.OCR.Local.TesseractLang)
}

func TestInitConfigRequiresDataSource(t *testing.T) {
	path := writeTempConfig(t, Configuration{
		Redis: RedisConfig{Dns: "localhost:6379"},
	})
	assert.Error(t, InitConfig(path))
}

func TestOriginalURLTTLNeverExceedsRedacted(t *testing.T) {
	path := writeTempConfig(t, Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432/ledgerscan"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
		Storage: StorageConfig{
			RedactedURLTTLMin: 30,
			OriginalURLTTLMin: 120,
		},
	})

	require.NoError(t, InitConfig(path))
	cnf, err := Fetch()
	require.NoError(t, err)
	assert.LessOrEqual(t, cnf.Storage.OriginalURLTTLMin, cnf.Storage.RedactedURLTTLMin)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("LEDGERSCAN_WORKER_BATCH_SIZE", "25")
	path := writeTempConfig(t, Configuration{
		DataSource: DataSourceConfig{Dns: "postgres://localhost:5432/ledgerscan"},
		Redis:      RedisConfig{Dns: "localhost:6379"},
	})

	require.NoError(t, InitConfig(path))
	cnf, err := Fetch()
	require.NoError(t, err)
	assert.Equal(t, 25, cnf.Worker.BatchSize)
}
