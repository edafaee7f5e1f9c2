// Package serve exposes a module registry over gRPC.
//
// The service modulekit.v1.ModuleService carries well-known protobuf
// messages (google.protobuf.Struct and google.protobuf.Empty), so clients in
// any language can call it without generated stubs. The JSON shape of each
// Struct matches the Go types of this package: ModuleStatus, Reply, Event and
// surface.Snapshot.
//
// A typical server:
//
//	srv, err := serve.NewServer(&serve.Config{Address: ":50061"})
//	if err != nil {
//	    return err
//	}
//	serve.Register(srv, serve.NewService(reg, composer, logger))
//	srv.SetServing(true)
//	return srv.Serve(ctx)
//
// Server also registers the standard gRPC health service; SetServing flips
// both the overall status and the status of ServiceName.
package serve
