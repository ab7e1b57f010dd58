package rpc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_ConfigFromEnv(t *testing.T) {
	t.Setenv("VEIL_RPC_ENDPOINT", "wss://example.org")
	t.Setenv("VEIL_POOL_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("VEIL_MAX_LOG_RANGE", "2000")
	t.Setenv("VEIL_CHAIN_ID", "137")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, "wss://example.org", cfg.Endpoint)
	require.Equal(t, "0x1111111111111111111111111111111111111111", cfg.PoolAddress.Hex())
	require.Equal(t, uint64(2000), cfg.MaxLogRange)
	require.Equal(t, int64(137), cfg.ChainID.Int64())
}

func Test_ConfigFromEnvMissingEndpoint(t *testing.T) {
	t.Setenv("VEIL_RPC_ENDPOINT", "")
	_, err := ConfigFromEnv()
	require.Error(t, err)
}

func Test_ConfigFromEnvBadValues(t *testing.T) {
	t.Setenv("VEIL_RPC_ENDPOINT", "wss://example.org")

	t.Setenv("VEIL_MAX_LOG_RANGE", "not-a-number")
	_, err := ConfigFromEnv()
	require.Error(t, err)

	t.Setenv("VEIL_MAX_LOG_RANGE", "")
	t.Setenv("VEIL_CHAIN_ID", "not-a-number")
	_, err = ConfigFromEnv()
	require.Error(t, err)
}

func Test_IsRangeLimited(t *testing.T) {
	limited := []string{
		"query exceeds max block range 10000",
		"block range too large",
		"query returned more than 10000 results",
		"too many results, narrow the range",
		"response size exceeded",
		"limit exceeded",
	}
	for _, msg := range limited {
		require.True(t, isRangeLimited(errors.New(msg)), msg)
	}

	require.False(t, isRangeLimited(errors.New("connection refused")))
	require.False(t, isRangeLimited(errors.New("execution reverted")))
}
