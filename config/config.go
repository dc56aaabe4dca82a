// Package config loads the saya service configuration from a JSON document.
package config

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/neotheprogramist/dojo/sayaerrors"
	"github.com/neotheprogramist/dojo/types"
)

//go:embed *.json
var presetFS embed.FS

var presetFile = map[string]string{
	"local": "local.json", // katana dev node on the default port
}

// Duration is a time.Duration that reads "1s"-style strings or a number of seconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return err
	}
	d.Duration = time.Duration(secs * float64(time.Second))
	return nil
}

type Config struct {
	RPCURL              string     `json:"rpc_url"`
	StartBlock          uint64     `json:"start_block"`
	WorldAddress        types.Felt `json:"world_address"`
	FactRegistryAddress types.Felt `json:"fact_registry_address"`
	AccountAddress      types.Felt `json:"account_address"`
	// AccountPrivateKey signs settlement transactions in process. Zero leaves the
	// account without a signer.
	AccountPrivateKey types.Felt `json:"account_private_key"`
	ChainID           string     `json:"chain_id"`
	MaxFee            types.Felt `json:"max_fee"`
	ProverURL         string     `json:"prover_url"`
	ProverKey         string     `json:"prover_key"`
	ChunkSize         int        `json:"chunk_size"`
	// ProverInputFormat selects how program inputs are handed to the prover.
	ProverInputFormat string `json:"prover_input_format"`
	// CairoVersion is the version tag passed to the finalize call.
	CairoVersion      types.Felt `json:"cairo_version"`
	DataPath          string     `json:"data_path"`
	DataAvailability  bool       `json:"data_availability"`
	TelemetryEndpoint string     `json:"telemetry_endpoint"`
	LogLevel          string     `json:"log_level"`
	LogModules        string     `json:"log_modules"`
	LogJSON           bool       `json:"log_json"`
	PollInterval      Duration   `json:"poll_interval"`
	ApplyDiffs        bool       `json:"apply_diffs"`
}

const (
	InputFormatJSON   = "json"
	InputFormatDiffer = "differ"
)

func Default() *Config {
	return &Config{
		StartBlock:        1,
		ChunkSize:         2000,
		CairoVersion:      types.FeltOne,
		ChainID:           "KATANA",
		MaxFee:            types.MustFelt("0x38d7ea4c68000"),
		ProverInputFormat: InputFormatJSON,
		LogLevel:          "info",
		PollInterval:      Duration{time.Second},
	}
}

// ReadConfig loads a named preset or a JSON file at id. Fields absent from the
// document keep their Default values.
func ReadConfig(id string) (*Config, error) {
	var (
		data []byte
		err  error
	)
	if path, ok := presetFile[id]; ok {
		data, err = presetFS.ReadFile(path)
	} else {
		data, err = os.ReadFile(id)
	}
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", id, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCURL) == "" {
		return sayaerrors.ErrFMissingRPCURL
	}
	if c.FactRegistryAddress.IsZero() {
		return sayaerrors.ErrFMissingRegistry
	}
	if c.PollInterval.Duration <= 0 {
		return sayaerrors.ErrFInvalidPollInterval
	}
	if c.ChunkSize <= 0 {
		return sayaerrors.ErrVInvalidChunkSize
	}
	if _, err := c.ChainIDFelt(); err != nil {
		return err
	}
	switch c.ProverInputFormat {
	case InputFormatJSON, InputFormatDiffer:
	default:
		return fmt.Errorf("%w: %q", sayaerrors.ErrFInvalidInputFormat, c.ProverInputFormat)
	}
	return nil
}

// ChainIDFelt is the chain id as the short-string felt signed into transactions.
func (c *Config) ChainIDFelt() (types.Felt, error) {
	if c.ChainID == "" {
		return types.Felt{}, sayaerrors.ErrFInvalidChainID
	}
	f, err := types.FeltFromShortString(c.ChainID)
	if err != nil {
		return types.Felt{}, fmt.Errorf("%w: %w", sayaerrors.ErrFInvalidChainID, err)
	}
	return f, nil
}

// Presets lists the names ReadConfig resolves without touching the filesystem.
func Presets() []string {
	out := make([]string, 0, len(presetFile))
	for name := range presetFile {
		out = append(out, name)
	}
	return out
}
