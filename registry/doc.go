// Package registry is the single source of truth for which feature modules
// exist and which are enabled, and the only code path allowed to change that.
//
// A registry goes through three phases:
//
//  1. Registration: descriptors are added with Register in the order the
//     application should list them. Duplicate ids are rejected immediately.
//  2. Sealing: Seal (called by Open if needed) checks the full dependency
//     graph once for unknown dependencies and cycles. Both are startup-fatal.
//  3. Open: Open reads the activation store once and hydrates the state; from
//     then on Enable/Disable validate, persist and publish every transition.
//
// Enable and Disable never panic and never return errors: a refused
// transition is a normal outcome of a toggle in the UI. They return a Result
// whose OK field is the boolean outcome and whose Message is suitable for a
// toast:
//
//	reg, _ := registry.New(registry.WithStore(store), registry.WithLogger(logger))
//	reg.MustRegister(assets)
//	reg.MustRegister(depreciation)
//	if err := reg.Open(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	if res := reg.Enable(ctx, "depreciation"); !res.OK {
//	    fmt.Println(res.Message()) // module depreciation requires assets to be enabled first
//	}
//
// Every committed transition bumps Generation and is delivered to listeners
// registered with Subscribe or Watch, so routers and sidebars can refresh
// without a reload.
//
// Thread-safety: All methods are safe for concurrent use. Reads never observe
// a partially applied transition.
package registry
