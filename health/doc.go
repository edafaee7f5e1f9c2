// Package health provides health checks for a module registry deployment.
//
// The checks cover the pieces a registry needs to serve transitions:
//
//   - StoreCheck: the activation store answers Load
//   - RegistryCheck: the registry has been opened
//   - NetworkCheck: TCP connectivity to a store endpoint
//   - WritableDirCheck: a file-backed store can write its directory
//   - Combine: fold several checks into one status, worst wins
//
// # Usage Example
//
//	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
//	defer cancel()
//
//	overall := health.Combine(
//	    health.StoreCheck(ctx, store),
//	    health.RegistryCheck(reg),
//	)
//	if overall.IsUnhealthy() {
//	    logger.Error("module registry unhealthy", "details", overall.Details)
//	}
//
// modulekitd runs the backend checks before opening the store and the
// combined check before reporting SERVING on the gRPC health service.
package health
