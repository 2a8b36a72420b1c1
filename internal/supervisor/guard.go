package supervisor

import "sync"

// Guard is the in-flight approval guard. While held, output matching
// is suspended and operator keystrokes are routed to the approval flow
// instead of the agent. At most one approval flow runs at a time.
type Guard struct {
	mu   sync.Mutex
	held bool
}

// TryAcquire takes the guard if it is free.
func (g *Guard) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return false
	}
	g.held = true
	return true
}

// Release frees the guard. Releasing a free guard is a no-op.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.held = false
}

// Held reports whether an approval flow is in progress.
func (g *Guard) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}
