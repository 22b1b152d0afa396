package session

import (
	"context"
	"sync"
)

// dispatchGuard allows one outstanding remote request per session id.
// Once Drain has started no new request is admitted, so the wait group is
// never added to while Drain waits on it.
type dispatchGuard struct {
	mu       sync.Mutex
	running  map[string]struct{}
	draining bool
	wg       sync.WaitGroup
}

// TryLock marks id as busy. It fails with ErrDispatchInFlight when id
// already holds the slot, and with ErrSessionClosed once Drain has started.
func (g *dispatchGuard) TryLock(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.draining {
		return ErrSessionClosed
	}
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[id]; ok {
		return ErrDispatchInFlight
	}
	g.running[id] = struct{}{}
	g.wg.Add(1)
	return nil
}

// Unlock releases id. Must follow a successful TryLock.
func (g *dispatchGuard) Unlock(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, id)
	g.wg.Done()
}

// Busy reports whether id holds the slot.
func (g *dispatchGuard) Busy(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[id]
	return ok
}

// Drain stops admitting requests and blocks until every outstanding one
// finishes or ctx is done.
func (g *dispatchGuard) Drain(ctx context.Context) {
	g.mu.Lock()
	g.draining = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
