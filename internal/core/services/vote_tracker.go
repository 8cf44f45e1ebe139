package services

import "sync"

// VoteTracker flags items with a vote submission outstanding in the local
// session. It only suppresses duplicate clicks; the store transaction is
// what guarantees one vote per participant.
type VoteTracker struct {
	mu       sync.Mutex
	inFlight map[string]bool
	onChange func(itemID string, inFlight bool)
}

func NewVoteTracker() *VoteTracker {
	return &VoteTracker{inFlight: make(map[string]bool)}
}

// OnChange sets a callback fired after every flag transition.
func (t *VoteTracker) OnChange(fn func(itemID string, inFlight bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// Begin sets the flag for itemID. It returns false if it was already set.
func (t *VoteTracker) Begin(itemID string) bool {
	t.mu.Lock()
	if t.inFlight[itemID] {
		t.mu.Unlock()
		return false
	}
	t.inFlight[itemID] = true
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(itemID, true)
	}
	return true
}

func (t *VoteTracker) End(itemID string) {
	t.mu.Lock()
	if !t.inFlight[itemID] {
		t.mu.Unlock()
		return
	}
	delete(t.inFlight, itemID)
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(itemID, false)
	}
}

func (t *VoteTracker) InFlight(itemID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight[itemID]
}

func (t *VoteTracker) Snapshot() map[string]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]bool, len(t.inFlight))
	for id := range t.inFlight {
		out[id] = true
	}
	return out
}
