package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
log_level = "debug"

[chain]
rpc = ["https://rpc-a.example", "https://rpc-b.example"]
contract = "0x1111111111111111111111111111111111111111"
first_block = 1200
private_key = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

[exchange]
api_key = "key"
secret_key = "secret"
leverage = 20

[algo]
timeout = "30m"
safebelt_trigger_pct = 1.5

[ledger]
driver = "sqlite"
sqlite_path = "/tmp/bets.db"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults_RequireCredentials(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain: at least one rpc entrypoint is required")
	assert.Contains(t, err.Error(), "exchange: api_key and secret_key must both be set")
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Len(t, cfg.Chain.RPC, 2)
	assert.Equal(t, uint64(1200), cfg.Chain.FirstBlock)
	assert.Equal(t, int64(97), cfg.Chain.ChainID)
	assert.Equal(t, 20, cfg.Exchange.Leverage)
	assert.Equal(t, "BTCUSDT", cfg.Exchange.Symbol)
	assert.Equal(t, 30*time.Minute, cfg.Algo.BetTimeout.Duration)
	assert.Equal(t, 1.5, cfg.Algo.SafebeltTriggerPct)
	assert.Equal(t, 3.0, cfg.Algo.WinTriggerPct)
	assert.Equal(t, "sqlite", cfg.Ledger.Driver)
	assert.Equal(t, 60*time.Second, cfg.Ingest.PollInterval.Duration)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BETBRIDGE_EXCHANGE_LEVERAGE", "5")
	t.Setenv("BETBRIDGE_CHAIN_FIRST_BLOCK", "77")
	t.Setenv("BETBRIDGE_CHAIN_RPC", "https://x.example, https://y.example ,")
	t.Setenv("BETBRIDGE_SWEEPER_INTERVAL", "15s")
	t.Setenv("BETBRIDGE_EXCHANGE_LEVERAGE_BOGUS", "ignored")

	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Exchange.Leverage)
	assert.Equal(t, uint64(77), cfg.Chain.FirstBlock)
	assert.Equal(t, []string{"https://x.example", "https://y.example"}, cfg.Chain.RPC)
	assert.Equal(t, 15*time.Second, cfg.Sweeper.Interval.Duration)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	cfg.Ledger.Driver = "mysql"
	cfg.Lock.Backend = "redis"
	cfg.Exchange.MarginType = "PORTFOLIO"
	cfg.Algo.WinTriggerPct = 0

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `ledger: unknown driver "mysql"`)
	assert.Contains(t, err.Error(), "lock: backend redis requires redis.enabled")
	assert.Contains(t, err.Error(), "exchange: margin_type must be ISOLATED or CROSSED")
	assert.Contains(t, err.Error(), "algo: win_trigger_pct must be in (0, 100)")
}

func TestRedactedConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	require.NoError(t, err)

	red := RedactedConfig(cfg)
	assert.Equal(t, "***", red.Chain.PrivateKey)
	assert.Equal(t, "***", red.Exchange.SecretKey)
	assert.Equal(t, "", red.Chain.KeyPassword)
	assert.NotEqual(t, "***", cfg.Exchange.SecretKey)

	red.Chain.RPC[0] = "mutated"
	assert.Equal(t, "https://rpc-a.example", cfg.Chain.RPC[0])
}
