package ledger

import (
	"fmt"
	"sync"
)

// Inventory tracks stock per channel. It is the single mutation point for
// both local dispenses and remote resupply.
type Inventory struct {
	mu     sync.Mutex
	counts map[string]int
	// sets counts overwrites per channel; a Take made before an overwrite
	// must not be restored on top of it.
	sets map[string]uint64
}

// Taken identifies one successful Take for a later Restore.
type Taken struct {
	ID  string
	set uint64
}

// NewInventory creates an inventory with the given starting counts.
func NewInventory(initial map[string]int) *Inventory {
	counts := make(map[string]int, len(initial))
	for id, n := range initial {
		if n < 0 {
			n = 0
		}
		counts[id] = n
	}
	return &Inventory{counts: counts, sets: make(map[string]uint64, len(counts))}
}

// Get returns the stock for a channel.
func (inv *Inventory) Get(id string) (int, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	n, ok := inv.counts[id]
	return n, ok
}

// Take decrements stock if any is left.
func (inv *Inventory) Take(id string) (Taken, bool) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	n, ok := inv.counts[id]
	if !ok || n <= 0 {
		return Taken{}, false
	}
	inv.counts[id] = n - 1
	return Taken{ID: id, set: inv.sets[id]}, true
}

// Restore undoes a Take. If the count was overwritten by Set since the
// Take, the new count already stands and Restore reports false.
func (inv *Inventory) Restore(t Taken) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if _, ok := inv.counts[t.ID]; !ok || inv.sets[t.ID] != t.set {
		return false
	}
	inv.counts[t.ID]++
	return true
}

// Set overwrites the stock for a known channel and reports whether it changed.
func (inv *Inventory) Set(id string, n int) (bool, error) {
	if n < 0 {
		return false, fmt.Errorf("inventory for %s: negative count %d", id, n)
	}
	inv.mu.Lock()
	defer inv.mu.Unlock()
	old, ok := inv.counts[id]
	if !ok {
		return false, fmt.Errorf("inventory for %s: unknown channel", id)
	}
	inv.counts[id] = n
	inv.sets[id]++
	return old != n, nil
}

// Snapshot returns a copy of all counts.
func (inv *Inventory) Snapshot() map[string]int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make(map[string]int, len(inv.counts))
	for id, n := range inv.counts {
		out[id] = n
	}
	return out
}
