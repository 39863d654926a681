package flowgraph

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

const mermaidStart = "__start__"

// Mermaid renders the compiled graph as a Mermaid flowchart.
// Terminal nodes are drawn as subroutines and conditional edges carry
// their route label. Output is deterministic.
func (cg *CompiledGraph[S]) Mermaid() string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	fmt.Fprintf(&sb, "    %s((START))\n", mermaidStart)
	for _, id := range cg.NodeIDs() {
		if cg.IsTerminal(id) {
			fmt.Fprintf(&sb, "    %s[[\"%s\"]]\n", id, id)
		} else {
			fmt.Fprintf(&sb, "    %s[\"%s\"]\n", id, id)
		}
	}
	fmt.Fprintf(&sb, "    %s((END))\n", END)

	fmt.Fprintf(&sb, "    %s --> %s\n", mermaidStart, cg.EntryPoint())
	for _, id := range cg.NodeIDs() {
		switch {
		case cg.IsTerminal(id):
			fmt.Fprintf(&sb, "    %s --> %s\n", id, END)
		case cg.IsConditional(id):
			routes := cg.Routes(id)
			for _, label := range slices.Sorted(maps.Keys(routes)) {
				fmt.Fprintf(&sb, "    %s -- \"%s\" --> %s\n", id, strings.ReplaceAll(label, "\"", "'"), routes[label])
			}
		default:
			for _, to := range cg.Successors(id) {
				fmt.Fprintf(&sb, "    %s --> %s\n", id, to)
			}
		}
	}
	return sb.String()
}
