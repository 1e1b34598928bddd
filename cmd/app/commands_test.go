package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"FinAgent/internal/di"
	"FinAgent/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	toolsOnce sync.Once
	tools     *di.Tooling
	toolsErr  error
)

// sharedTools builds the tooling once; the metrics register on the default
// Prometheus registry.
func sharedTools(t *testing.T) *di.Tooling {
	t.Helper()
	toolsOnce.Do(func() {
		cfg := config.Default()
		cfg.Log.Output = "stderr"
		cfg.Log.Level = "error"
		dir, err := os.MkdirTemp("", "finagent-cli")
		if err != nil {
			toolsErr = err
			return
		}
		cfg.Models.Dir = filepath.Join(dir, "models")
		cfg.Data.Dir = filepath.Join(dir, "data")
		cfg.Engine.WindowLength = 20
		tools, _, toolsErr = di.InitializeTooling(cfg)
	})
	require.NoError(t, toolsErr)
	return tools
}

func roundTrip(t *testing.T, run command, args ...string) map[string]any {
	t.Helper()
	env := run(context.Background(), sharedTools(t), args)
	var buf bytes.Buffer
	require.NoError(t, writeEnvelope(&buf, env))
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestSplitID(t *testing.T) {
	id, rest := splitID([]string{"abc", "--source", "x"})
	assert.Equal(t, "abc", id)
	assert.Equal(t, []string{"--source", "x"}, rest)

	id, rest = splitID([]string{"--id", "abc"})
	assert.Empty(t, id)
	assert.Len(t, rest, 2)
}

func TestAgentLifecycleCommands(t *testing.T) {
	created := roundTrip(t, createCmd, "--name", "cli", "--strategy", "momentum", "--id", "cli-agent", "--risk", "0.3")
	require.Equal(t, true, created["success"], created)
	assert.Equal(t, "cli-agent", created["agent_id"])

	src := "mock://BTCUSDT?interval=1h&limit=200"
	trained := roundTrip(t, trainCmd, "cli-agent", "--source", src)
	require.Equal(t, true, trained["success"], trained)

	pred := roundTrip(t, predictCmd, "cli-agent", "--source", src)
	require.Equal(t, true, pred["success"], pred)
	assert.Contains(t, []any{"buy", "sell", "hold"}, pred["signal"])

	exec := roundTrip(t, executeCmd, "--id", "cli-agent", "--source", src, "--balance", "500")
	require.Equal(t, true, exec["success"], exec)

	eval := roundTrip(t, evaluateCmd, "cli-agent", "--source", src, "--initial-balance", "1000")
	require.Equal(t, true, eval["success"], eval)

	list := roundTrip(t, listCmd)
	require.Equal(t, true, list["success"])
	assert.GreaterOrEqual(t, list["count"], 1.0)
}

func TestCommandFailuresAreEnvelopes(t *testing.T) {
	missing := roundTrip(t, predictCmd, "--source", "mock://BTCUSDT")
	assert.Equal(t, false, missing["success"])
	assert.Equal(t, "invalid_request", missing["error_kind"])

	unknown := roundTrip(t, predictCmd, "nope", "--source", "mock://BTCUSDT")
	assert.Equal(t, false, unknown["success"])
	assert.Equal(t, "agent_not_found", unknown["error_kind"])

	badFlag := roundTrip(t, trainCmd, "x", "--epochs", "many")
	assert.Equal(t, false, badFlag["success"])
	assert.Equal(t, "invalid_request", badFlag["error_kind"])
}

func TestLiveOverrides(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, liveOverrides(cfg, []string{"--agent", "a1", "--symbols", "btcusdt, ethusdt"}))
	assert.Equal(t, "a1", cfg.Live.AgentID)
	assert.Equal(t, []string{"btcusdt", "ethusdt"}, cfg.Live.Symbols)
}
