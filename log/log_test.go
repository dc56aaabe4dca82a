package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("trace")
	require.NoError(t, err)
	assert.Equal(t, LevelTrace, lvl)

	lvl, err = ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, LevelWarn, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestModuleFiltering(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, InitLoggerTo(&buf, "trace", true))
	defer SetDefault(Discard())

	DisableModule(ProverMonitoring)
	Debug(ProverMonitoring, "hidden")
	assert.Zero(t, buf.Len())

	EnableModules("prover_mod, ")
	Debug(ProverMonitoring, "shown", "block", 7)
	require.NotZero(t, buf.Len())

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, ProverMonitoring, rec["module"])
	assert.EqualValues(t, 7, rec["block"])

	buf.Reset()
	Info(PipelineMonitoring, "always")
	assert.NotZero(t, buf.Len())
}

func TestEnableAllModules(t *testing.T) {
	EnableModules("all")
	for _, m := range knownModules {
		assert.True(t, isModuleEnabled(m), m)
		DisableModule(m)
	}
}
