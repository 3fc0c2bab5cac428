package enforce

import "sync"

// WarningState is the set of apps already warned in this enforcement session.
// It lives only in memory and is cleared when enforcement restarts.
type WarningState struct {
	mu     sync.Mutex
	warned map[string]struct{}
}

func NewWarningState() *WarningState {
	return &WarningState{warned: make(map[string]struct{})}
}

func (w *WarningState) Has(pkg string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.warned[pkg]
	return ok
}

// Add marks pkg as warned and reports whether it was newly added.
func (w *WarningState) Add(pkg string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.warned[pkg]; ok {
		return false
	}
	w.warned[pkg] = struct{}{}
	return true
}

func (w *WarningState) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.warned)
}

func (w *WarningState) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.warned)
}
