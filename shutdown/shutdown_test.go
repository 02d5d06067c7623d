package shutdown

import (
	"context"
	"syscall"
	"testing"
	"time"
)

func TestContextStop(t *testing.T) {
	ctx, stop := Context(context.Background())
	stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled by stop")
	}
}

func TestContextParent(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := Context(parent)
	defer stop()
	cancel()
	<-ctx.Done()
}

func TestSignalsIncludeTerm(t *testing.T) {
	for _, s := range signals {
		if s == syscall.SIGTERM {
			return
		}
	}
	t.Skip("no SIGTERM on this platform")
}
