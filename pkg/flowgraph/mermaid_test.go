package flowgraph

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompiledGraph_Mermaid(t *testing.T) {
	var actions atomic.Int32
	compiled, err := approvalGraph(&actions).Compile()
	require.NoError(t, err)

	want := `graph TD
    __start__((START))
    act[["act"]]
    gate["gate"]
    start["start"]
    __end__((END))
    __start__ --> start
    act --> __end__
    gate -- "act" --> act
    gate -- "halt" --> __end__
    start --> gate
`
	assert.Equal(t, want, compiled.Mermaid())
}

func TestCompiledGraph_MermaidStable(t *testing.T) {
	compiled, err := NewGraph(mergeTest).
		AddNode("router", visit("router")).
		AddNode("a", visit("a")).
		AddNode("b", visit("b")).
		AddConditionalEdge("router", byRoute, map[string]string{"z": "b", "y": "a", "x": END}).
		AddEdge("a", END).
		AddEdge("b", END).
		SetEntry("router").
		Compile()
	require.NoError(t, err)

	first := compiled.Mermaid()
	for range 20 {
		assert.Equal(t, first, compiled.Mermaid())
	}
	assert.Contains(t, first, `router -- "x" --> __end__`)
}
