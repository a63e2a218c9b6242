package plan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demoPlan = `
name: demo
profiling: true
queues: [{name: q1}, {name: q2}]
commands:
  - {name: a, queue: q1, duration: 5ms}
  - {name: b, queue: q2, after: [a], fail: -5}
  - {name: gate, user: true, signal: {delay: 10ms, status: 0}}
  - {name: c, queue: q1, after: [b, gate]}
`

func TestParse_Demo(t *testing.T) {
	p, err := Parse([]byte(demoPlan))
	require.NoError(t, err)

	assert.Equal(t, "demo", p.Name)
	assert.True(t, p.Profiling)
	assert.Len(t, p.Queues, 2)
	require.Len(t, p.Commands, 4)

	a, ok := p.Command("a")
	require.True(t, ok)
	assert.Equal(t, 5*time.Millisecond, a.WorkDuration())

	b, _ := p.Command("b")
	assert.Equal(t, -5, b.Fail)
	assert.True(t, b.FailStatus().IsError())

	gate, _ := p.Command("gate")
	require.NotNil(t, gate.Signal)
	assert.Equal(t, 10*time.Millisecond, gate.Signal.SignalDelay())

	_, ok = p.Command("missing")
	assert.False(t, ok)
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", ``, "empty"},
		{"bad yaml", "name: [", "parse plan YAML"},
		{"missing commands", "name: x\n", "schema validation"},
		{"unknown field", "name: x\ncommands: [{name: a, queue: q, colour: red}]\nqueues: [{name: q}]\n", "schema validation"},
		{"positive fail", "name: x\nqueues: [{name: q}]\ncommands: [{name: a, queue: q, fail: 3}]\n", "schema validation"},
		{"fail below int32", "name: x\nqueues: [{name: q}]\ncommands: [{name: a, queue: q, fail: -4294967296}]\n", "schema validation"},
		{"signal below int32", "name: x\ncommands: [{name: g, user: true, signal: {status: -4294967295}}]\n", "schema validation"},
		{"unknown queue", "name: x\ncommands: [{name: a, queue: nope}]\n", "unknown queue"},
		{"duplicate command", "name: x\nqueues: [{name: q}]\ncommands: [{name: a, queue: q}, {name: a, queue: q}]\n", "declared twice"},
		{"duplicate queue", "name: x\nqueues: [{name: q}, {name: q}]\ncommands: [{name: a, queue: q}]\n", "declared twice"},
		{"forward reference", "name: x\nqueues: [{name: q}]\ncommands: [{name: a, queue: q, after: [b]}, {name: b, queue: q}]\n", "not declared before"},
		{"self reference", "name: x\nqueues: [{name: q}]\ncommands: [{name: a, queue: q, after: [a]}]\n", "not declared before"},
		{"bad duration", "name: x\nqueues: [{name: q}]\ncommands: [{name: a, queue: q, duration: soon}]\n", "duration"},
		{"user with queue", "name: x\nqueues: [{name: q}]\ncommands: [{name: g, user: true, queue: q, signal: {status: 0}}]\n", "cannot have a queue"},
		{"user without signal", "name: x\ncommands: [{name: g, user: true}]\n", "needs a signal"},
		{"signal on queue command", "name: x\nqueues: [{name: q}]\ncommands: [{name: a, queue: q, signal: {status: 0}}]\n", "only user commands"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(demoPlan), 0644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", p.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read plan file")
}
