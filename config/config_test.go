package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/neotheprogramist/dojo/sayaerrors"
	"github.com/neotheprogramist/dojo/types"
	"github.com/stretchr/testify/require"
)

func TestReadPreset(t *testing.T) {
	cfg, err := ReadConfig("local")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5050", cfg.RPCURL)
	require.Equal(t, 2000, cfg.ChunkSize)
	require.Equal(t, time.Second, cfg.PollInterval.Duration)
	require.Equal(t, "KATANA", cfg.ChainID)
	require.Equal(t, InputFormatJSON, cfg.ProverInputFormat)
	require.Contains(t, Presets(), "local")
}

func TestReadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saya.json")
	doc := `{
		"rpc_url": "http://katana:5050",
		"fact_registry_address": "0x217746a5f74c2e5b6fa92c97e902d8cd78b1fabf1e8081c4aa0d2fe159bc0eb",
		"world_address": "0xb4079627ebab1cd3cf9fd075dda1ad2454a7a448bf659591f259efa2519b18",
		"start_block": 12,
		"poll_interval": 0.5
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := ReadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.EqualValues(t, 12, cfg.StartBlock)
	require.Equal(t, 500*time.Millisecond, cfg.PollInterval.Duration)
	require.Equal(t, types.MustFelt("0x217746a5f74c2e5b6fa92c97e902d8cd78b1fabf1e8081c4aa0d2fe159bc0eb"), cfg.FactRegistryAddress)
	// defaults survive for absent fields
	require.Equal(t, 2000, cfg.ChunkSize)
	require.Equal(t, types.FeltOne, cfg.CairoVersion)
}

func TestReadConfigErrors(t *testing.T) {
	_, err := ReadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"poll_interval": "soon"}`), 0o600))
	_, err = ReadConfig(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.ErrorIs(t, cfg.Validate(), sayaerrors.ErrFMissingRPCURL)

	cfg.RPCURL = "http://localhost:5050"
	require.ErrorIs(t, cfg.Validate(), sayaerrors.ErrFMissingRegistry)

	cfg.FactRegistryAddress = types.NewFelt(0xfac7)
	cfg.PollInterval = Duration{}
	require.ErrorIs(t, cfg.Validate(), sayaerrors.ErrFInvalidPollInterval)

	cfg.PollInterval = Duration{time.Second}
	cfg.ChunkSize = 0
	require.ErrorIs(t, cfg.Validate(), sayaerrors.ErrVInvalidChunkSize)

	cfg.ChunkSize = 800
	require.NoError(t, cfg.Validate())

	cfg.ChainID = ""
	require.ErrorIs(t, cfg.Validate(), sayaerrors.ErrFInvalidChainID)
	cfg.ChainID = "a chain id that does not fit in a felt"
	require.ErrorIs(t, cfg.Validate(), sayaerrors.ErrFInvalidChainID)

	cfg.ChainID = "SN_SEPOLIA"
	id, err := cfg.ChainIDFelt()
	require.NoError(t, err)
	require.Equal(t, types.MustFelt("0x534e5f5345504f4c4941"), id)

	cfg.ProverInputFormat = "yaml"
	require.ErrorIs(t, cfg.Validate(), sayaerrors.ErrFInvalidInputFormat)
	cfg.ProverInputFormat = InputFormatDiffer
	require.NoError(t, cfg.Validate())
}
