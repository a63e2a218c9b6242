package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okPlan = `
name: ok
queues: [{name: q1}, {name: q2}]
commands:
  - {name: a, queue: q1, duration: 1ms}
  - {name: b, queue: q2, after: [a]}
  - {name: gate, user: true, signal: {delay: 5ms, status: 0}}
  - {name: c, queue: q1, after: [b, gate]}
`

const failingPlan = `
name: failing
queues: [{name: q}]
commands:
  - {name: a, queue: q, fail: -5}
  - {name: b, queue: q, after: [a]}
`

// execute runs the root command with args against an isolated config file.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	prevLogger := log.Logger
	t.Cleanup(func() { log.Logger = prevLogger })

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "clevent.json")
	cfgJSON := `{"data_dir":"` + dir + `","logging":{"console":false,"level":"warn"},"engine":{"wait_recheck_ms":50}}`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgJSON), 0644))

	runWatch, runMonitor, runFormat = false, false, "text"

	cmd := GetRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	cmd.SetContext(context.Background())

	err := cmd.Execute()
	return out.String(), err
}

func writePlan(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		out, err := execute(t, "--version")
		require.NoError(t, err)
		assert.Contains(t, out, "clevent version")
		assert.Contains(t, out, GetVersion())
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		levelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, levelFlag)
		assert.Equal(t, "info", levelFlag.DefValue)
	})

	t.Run("subcommands registered", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range GetRootCmd().Commands() {
			names[c.Name()] = true
		}
		assert.True(t, names["run"])
		assert.True(t, names["validate"])
		assert.True(t, names["version"])
	})
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "clevent version "+GetVersion()))
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", writePlan(t, okPlan))
	require.NoError(t, err)
	assert.Contains(t, out, "plan ok is valid: 2 queues, 4 commands (1 user)")

	_, err = execute(t, "validate", writePlan(t, "name: broken\ncommands: [{name: a, queue: nowhere}]\n"))
	assert.ErrorContains(t, err, "unknown queue")
}

func TestRunCommand_Text(t *testing.T) {
	out, err := execute(t, "run", writePlan(t, okPlan))
	require.NoError(t, err)
	assert.Contains(t, out, "plan ok: 4 commands, 0 failed")
	assert.Contains(t, out, "COMMAND")
}

func TestRunCommand_JSON(t *testing.T) {
	out, err := execute(t, "run", "--format", "json", writePlan(t, okPlan))
	require.NoError(t, err)

	var report struct {
		Plan     string `json:"plan"`
		Failed   int    `json:"failed"`
		Commands []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"commands"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "ok", report.Plan)
	assert.Len(t, report.Commands, 4)
	for _, c := range report.Commands {
		assert.Equal(t, "complete", c.Status, c.Name)
	}
}

func TestRunCommand_FailuresExitNonZero(t *testing.T) {
	out, err := execute(t, "run", writePlan(t, failingPlan))
	assert.ErrorContains(t, err, "2 commands failed")
	assert.Contains(t, out, "out_of_resources")
}

func TestRunCommand_BadFormat(t *testing.T) {
	_, err := execute(t, "run", "--format", "xml", writePlan(t, okPlan))
	assert.ErrorContains(t, err, "unknown format")
}

func TestRunCommand_WithMonitor(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "clevent.json")
	cfgJSON := `{"data_dir":"` + dir + `","logging":{"console":false},"monitor":{"host":"127.0.0.1","port":0}}`
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgJSON), 0644))

	prevLogger := log.Logger
	t.Cleanup(func() { log.Logger = prevLogger })
	runWatch, runMonitor, runFormat = false, false, "text"

	cmd := GetRootCmd()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{"--config", cfgPath, "run", "--monitor", writePlan(t, okPlan)})
	cmd.SetContext(context.Background())

	require.NoError(t, cmd.Execute())
	assert.Contains(t, errOut.String(), "monitor listening on ws://127.0.0.1:")
	assert.Contains(t, out.String(), "0 failed")
}
