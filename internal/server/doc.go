// Package server wires blogsys together and runs it.
//
// New opens the document store named by the database section, builds the
// account, post and session services over it, mounts the dashboard and the
// health endpoints on one ServeMux, and serves it either on a TCP address or
// on a Tailscale node:
//
//	srv, err := server.New(ctx, cfg, logger)
//	if err != nil {
//		return err
//	}
//	return srv.Run(ctx)
//
// Health endpoints:
//
//   - GET /health: liveness, always 200
//   - GET /health/ready: 200 when the store answers a ping, 503 otherwise
//
// Run blocks until ctx is canceled, then shuts down within
// server.shutdown_timeout (5s by default) and closes the store.
package server
