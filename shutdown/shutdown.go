// Package shutdown ties termination signals to a context.
package shutdown

import (
	"context"
	"os/signal"
)

// Context is cancelled on the first termination signal or when stop is
// called.
func Context(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}
