package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	assert.Equal(t, "taskrouter version dev\n", run(t, "version"))
}

func TestGraphCommand(t *testing.T) {
	t.Setenv("TASKROUTER_AGENT_PROVIDER", "static")

	out := run(t, "graph")
	assert.Contains(t, out, "graph TD")
	assert.Contains(t, out, `arbitration -- "vehicle_task" --> task_allocation`)
	assert.Contains(t, out, `human_approval -- "approved" --> tools`)
	assert.Contains(t, out, "qa_task --> __end__")
}
