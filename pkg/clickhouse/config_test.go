package clickhouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.NotEmpty(t, cfg.Hosts)
	assert.Equal(t, "localhost:9000", cfg.Hosts[0])
	assert.Equal(t, "default", cfg.Database)
	assert.Equal(t, "default", cfg.Username)
	assert.Empty(t, cfg.Password)
	assert.True(t, cfg.InsecureSkipVerify)

	assert.GreaterOrEqual(t, cfg.MaxExecutionTime, 0)
	assert.GreaterOrEqual(t, cfg.DialTimeout, 0)
	assert.GreaterOrEqual(t, cfg.MaxOpenConns, 0)
	assert.GreaterOrEqual(t, cfg.MaxIdleConns, 0)
	assert.GreaterOrEqual(t, cfg.ConnMaxLifetime, 0)
	assert.NotZero(t, cfg.BlockBufferSize)
	assert.NotEmpty(t, cfg.ClientName)
	assert.NotEmpty(t, cfg.ClientVersion)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CLICKHOUSE_HOSTS", "ch-1:9000,ch-2:9000")
	t.Setenv("CLICKHOUSE_DATABASE", "ledger")
	t.Setenv("CLICKHOUSE_MAX_OPEN_CONNS", "11")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"ch-1:9000", "ch-2:9000"}, cfg.Hosts)
	assert.Equal(t, "ledger", cfg.Database)
	assert.Equal(t, 11, cfg.MaxOpenConns)
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("CLICKHOUSE_MAX_OPEN_CONNS", "not-a-number")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse clickhouse config")
}
