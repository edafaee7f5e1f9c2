// Package modulekit is a runtime module registry for applications that ship
// optional feature modules.
//
// Each module is described by a descriptor (id, name, version, dependencies,
// UI contributions). The registry tracks which modules are enabled, refuses
// transitions that would leave an enabled module without its dependencies,
// persists the enabled set through an activation store and notifies
// listeners of every committed change. The surface composer derives the
// routes, navigation entries and dashboard widgets visible for the current
// enabled set.
//
// # Packages
//
//   - descriptor: module descriptors and their validation
//   - dependency: the dependency graph, cycle detection and closures
//   - activation: the enabled-set type and the Store interface, with
//     memory, file, Redis and etcd backends in subpackages
//   - registry: registration, activation transitions and change notification
//   - surface: routes, nav and widgets for the enabled set
//   - catalog: YAML module catalogs, including the embedded default catalog
//   - config: modulekit.yaml and environment configuration
//   - health: store and registry health checks
//   - serve: the gRPC module service and its client
//
// # Errors
//
// This package holds the error types shared by every other package. Callers
// match sentinels with errors.Is and typed errors with errors.As:
//
//	if err := reg.Seal(); err != nil {
//	    var cycle *modulekit.CyclicDependencyError
//	    if errors.As(err, &cycle) {
//	        log.Fatalf("fix the catalog: %v", cycle.Cycle)
//	    }
//	}
//
// Refused activation transitions are not errors; they are reported through
// registry.Result.
package modulekit
