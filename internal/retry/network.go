package retry

import "context"

// Network reports whether the upstream is reachable at all. The server
// deployment has no connectivity signal to observe, so the default
// implementation always reports online; tests and future embedded targets
// can inject their own.
type Network interface {
	// Online reports current reachability.
	Online() bool

	// WaitOnline blocks until connectivity is restored or ctx is done.
	// It returns immediately when already online.
	WaitOnline(ctx context.Context) error
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }

func (alwaysOnline) WaitOnline(ctx context.Context) error { return ctx.Err() }

// AlwaysOnline returns the default Network for server contexts.
func AlwaysOnline() Network { return alwaysOnline{} }
