// Package server defines the contract of components started and stopped
// together by the handbook service.
package server

import "context"

// Runnable is a long-running component such as the HTTP server or the record
// watcher. Start returns once the component runs; Stop blocks until it has
// drained or ctx expires.
type Runnable interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
