// Package lifecycle starts and stops long-running components in dependency order.
package lifecycle

import "context"

// Component is a long-running part of the process.
type Component interface {
	// Start brings the component up. Blocking work belongs in a goroutine;
	// Start returns once the component is ready.
	Start(ctx context.Context) error

	// Stop shuts the component down within the context deadline.
	Stop(ctx context.Context) error

	// Name is used in logs and errors. Must not be empty.
	Name() string
}
