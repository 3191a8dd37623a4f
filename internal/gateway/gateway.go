// Package gateway defines how Duka's entry points are run by the serve
// command.
package gateway

import "context"

// Gateway is a long-running entry point such as the HTTP API.
type Gateway interface {
	// Start serves until ctx is canceled or the listener fails. A clean
	// shutdown returns nil.
	Start(ctx context.Context) error

	// Stop drains in-flight requests until ctx expires.
	Stop(ctx context.Context) error
}
