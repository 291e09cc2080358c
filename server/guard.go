package server

import "sync"

// settlementGuard tracks in-flight settlements per action instance so a
// burst of concurrent validation calls for the same instance cannot race
// each other into a double debit. It complements the storage-level
// pending-status guard, which remains the cross-process defense.
type settlementGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func newSettlementGuard() *settlementGuard {
	return &settlementGuard{
		inFlight: make(map[string]struct{}),
	}
}

// begin marks the instance as in flight. Returns false if another request
// is already settling it.
func (g *settlementGuard) begin(instanceID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.inFlight[instanceID]; exists {
		return false
	}
	g.inFlight[instanceID] = struct{}{}
	return true
}

// end clears the in-flight marker.
func (g *settlementGuard) end(instanceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, instanceID)
}
