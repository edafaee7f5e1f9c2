// Package surface derives what the host application renders from the module
// registry: the route table, the sidebar navigation, dashboard widgets and
// per-module settings links.
//
// A Composer never owns activation state. It reads the registry and caches
// the composed artifacts keyed by the registry generation, so every call is
// cheap until a transition commits. Consumers that need to react to changes
// call Subscribe and receive a fresh Snapshot after every commit instead of
// polling or reloading.
//
// Navigation entries and widgets may carry a When condition written in CEL.
// The expression sees one variable, enabled, mapping every registered module
// id to its flag:
//
//	when: enabled["assets"] && !enabled["hr"]
//
// Conditions are compiled once when the Composer is created; a condition that
// does not compile to a boolean makes New fail. A condition that errors at
// evaluation time hides its entry.
package surface
