package config

import (
	"os"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv() {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	os.Setenv("BTC_RPC_USER", "rpcuser")
	os.Setenv("BTC_RPC_PASS", "rpcpass")
}

func cleanupEnv() {
	vars := []string{
		"SERVER_ADDR", "LOG_LEVEL", "DATABASE_URL", "NATS_URL",
		"BTC_RPC_HOST", "BTC_RPC_USER", "BTC_RPC_PASS", "BTC_NETWORK",
		"BTC_RPC_DISABLE_TLS", "ADVERSARY_HASH_RATIO", "DEFAULT_CONFIDENCE",
		"SHUTDOWN_TIMEOUT",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}

func TestLoad_ValidConfig(t *testing.T) {
	setRequiredEnv()
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, "rpcuser", cfg.BitcoinRPCUser)
	assert.Equal(t, ":8080", cfg.ServerAddr) // Default
	assert.Equal(t, "info", cfg.LogLevel)    // Default
	assert.Equal(t, "localhost:8332", cfg.BitcoinRPCHost)
	assert.Equal(t, "mainnet", cfg.BitcoinNetwork)
	assert.Equal(t, 0.1, cfg.AdversaryHashRatio)
	assert.Equal(t, 0.99, cfg.DefaultConfidence)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	os.Setenv("BTC_RPC_USER", "rpcuser")
	os.Setenv("BTC_RPC_PASS", "rpcpass")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
}

func TestLoad_MissingRPCCredentials(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/test")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "BTC_RPC_USER is required")
	assert.Contains(t, err.Error(), "BTC_RPC_PASS is required")
}

func TestLoad_UnknownNetwork(t *testing.T) {
	setRequiredEnv()
	os.Setenv("BTC_NETWORK", "moonnet")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "unknown network")
}

func TestLoad_InvalidAdversaryRatio(t *testing.T) {
	setRequiredEnv()
	os.Setenv("ADVERSARY_HASH_RATIO", "0.6")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "AdversaryHashRatio")
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv()
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("NATS_URL", "nats://nats.example.com:4222")
	os.Setenv("BTC_RPC_HOST", "btc.example.com:18332")
	os.Setenv("BTC_NETWORK", "regtest")
	os.Setenv("BTC_RPC_DISABLE_TLS", "true")
	os.Setenv("ADVERSARY_HASH_RATIO", "0.25")
	os.Setenv("DEFAULT_CONFIDENCE", "0.999")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "nats://nats.example.com:4222", cfg.NATSURL)
	assert.Equal(t, "btc.example.com:18332", cfg.BitcoinRPCHost)
	assert.Equal(t, "regtest", cfg.BitcoinNetwork)
	assert.True(t, cfg.BitcoinDisableTLS)
	assert.Equal(t, 0.25, cfg.AdversaryHashRatio)
	assert.Equal(t, 0.999, cfg.DefaultConfidence)
	assert.Equal(t, &chaincfg.RegressionNetParams, cfg.ChainParams())
}

func TestParseNetwork(t *testing.T) {
	tests := []struct {
		name    string
		want    *chaincfg.Params
		wantErr bool
	}{
		{name: "mainnet", want: &chaincfg.MainNetParams},
		{name: "testnet", want: &chaincfg.TestNet3Params},
		{name: "testnet3", want: &chaincfg.TestNet3Params},
		{name: "regtest", want: &chaincfg.RegressionNetParams},
		{name: "signet", want: &chaincfg.SigNetParams},
		{name: "simnet", want: &chaincfg.SimNetParams},
		{name: "bogus", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("network "+tt.name, func(t *testing.T) {
			params, err := ParseNetwork(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, params)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := &Config{
		DatabaseURL:        "postgres://localhost/test",
		BitcoinRPCUser:     "u",
		BitcoinRPCPass:     "p",
		BitcoinNetwork:     "mainnet",
		AdversaryHashRatio: 0.1,
		DefaultConfidence:  0.99,
	}
	require.NoError(t, valid.Validate())

	badRatio := *valid
	badRatio.AdversaryHashRatio = 0.5
	require.Error(t, badRatio.Validate())

	badConfidence := *valid
	badConfidence.DefaultConfidence = 1.0
	require.Error(t, badConfidence.Validate())
}
