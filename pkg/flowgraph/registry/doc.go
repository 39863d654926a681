// Package registry provides a generic thread-safe registry of named
// capabilities.
//
// Graph nodes, routing functions and actions are registered by name once at
// startup and looked up when the graph is wired or a tool call executes:
//
//	actions := registry.New[string, Action]()
//	actions.MustRegister("start_vehicle", startVehicle)
//
//	act, err := actions.Lookup(call.Name)
//	if errors.Is(err, registry.ErrNotFound) {
//	    // unknown tool
//	}
//
// Keys iterate in sorted order so listings are deterministic.
package registry
