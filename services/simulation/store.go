// Package simulation is the reactive calculation orchestrator: it keeps an
// editable parameter snapshot synchronized with the remote computation
// service while coalescing edit bursts into single recalculations.
//
// The package wires four collaborators around one mutable Store: the change
// classifier picks a debounce tier, the dispatcher owns the pending timer
// and the dispatch record, the suggestion validator applies recommended
// changes optimistically and verifies convergence, and the Session ties
// them to the compute client and push channel for one application session.
package simulation

import (
	"sync"
	"time"

	"github.com/previsim/previsim/services/simulation/datatypes"
)

// ChangeListener is notified after every successful merge, outside the
// store's lock, with the snapshots before and after the edit.
type ChangeListener func(prev, next datatypes.ParameterSnapshot)

// ResultListener is notified whenever an authoritative result is accepted.
type ResultListener func(res datatypes.ResultSnapshot)

// Store is the single mutable resource of the orchestrator.
//
// # Description
//
// Holds the current immutable parameter snapshot, the last snapshot actually
// dispatched to the computation service (the DispatchRecord), and the most
// recent result. Every mutation swaps a whole snapshot value under the lock,
// never patches in place, so readers can never observe a torn intermediate
// state.
//
// # Thread Safety
//
// Safe for concurrent use. Listeners are invoked outside the lock; a
// listener may call back into the store.
type Store struct {
	mu sync.Mutex

	current datatypes.ParameterSnapshot

	// dispatched is the DispatchRecord: the normalized snapshot of the last
	// request actually sent, plus its fingerprint. Updated only by
	// RecordDispatch, synchronously with the request that produced it.
	dispatched   datatypes.ParameterSnapshot
	dispatchedFP string

	result  *datatypes.ResultSnapshot
	lastErr error

	listeners       []ChangeListener
	resultListeners []ResultListener

	// now is swappable for tests.
	now func() time.Time
}

// NewStore creates a Store seeded with the given snapshot.
//
// The seed's LastUpdate is stamped so the monotonic clock starts from a
// known point. The seed also becomes the initial DispatchRecord baseline, so
// the very first edit classifies against it.
func NewStore(seed datatypes.ParameterSnapshot) *Store {
	s := &Store{now: time.Now}
	seed.LastUpdate = s.now().UnixMilli()
	s.current = seed
	s.dispatched = seed
	return s
}

// OnChange registers a listener for snapshot merges.
//
// Listeners run synchronously in merge order, after the lock is released.
func (s *Store) OnChange(fn ChangeListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// OnResult registers a listener for accepted results.
func (s *Store) OnResult(fn ResultListener) {
	s.mu.Lock()
	s.resultListeners = append(s.resultListeners, fn)
	s.mu.Unlock()
}

// Current returns the current snapshot.
func (s *Store) Current() datatypes.ParameterSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Merge applies a partial update and installs the resulting snapshot.
//
// A zero patch is filtered out here (no listener fires, LastUpdate does not
// move). LastUpdate on the new snapshot is strictly greater than on the old
// one even when the wall clock has not advanced a millisecond.
//
// Returns the new snapshot and whether anything changed.
func (s *Store) Merge(patch datatypes.ParameterPatch) (datatypes.ParameterSnapshot, bool) {
	if patch.IsZero() {
		s.mu.Lock()
		cur := s.current
		s.mu.Unlock()
		return cur, false
	}

	s.mu.Lock()
	prev := s.current
	next := prev.Apply(patch)
	next.LastUpdate = s.nextUpdateLocked(prev.LastUpdate)
	s.current = next
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, next)
	}
	return next, true
}

// Replace installs a full snapshot, e.g. one read from a watched parameter
// file. Used like Merge; the LastUpdate of the incoming value is ignored.
func (s *Store) Replace(next datatypes.ParameterSnapshot) datatypes.ParameterSnapshot {
	s.mu.Lock()
	prev := s.current
	next.LastUpdate = s.nextUpdateLocked(prev.LastUpdate)
	s.current = next
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, next)
	}
	return next
}

func (s *Store) nextUpdateLocked(prev int64) int64 {
	ts := s.now().UnixMilli()
	if ts <= prev {
		ts = prev + 1
	}
	return ts
}

// RecordDispatch atomically updates the DispatchRecord.
//
// Called by the dispatcher at timer fire, before the network call resolves,
// so a re-entrant edit cannot be mistaken for a duplicate of a request that
// never went out.
func (s *Store) RecordDispatch(sent datatypes.ParameterSnapshot, fingerprint string) {
	s.mu.Lock()
	s.dispatched = sent
	s.dispatchedFP = fingerprint
	s.mu.Unlock()
}

// Dispatched returns the last-dispatched snapshot and its fingerprint.
func (s *Store) Dispatched() (datatypes.ParameterSnapshot, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatched, s.dispatchedFP
}

// SetResult stores a computed result if it is still authoritative.
//
// A result whose fingerprint does not match the current DispatchRecord
// answers a superseded request and is dropped. A matching result is stored;
// if the current snapshot has moved past the dispatched one in the meantime
// the result is flagged Stale. A stored result clears the error slot.
//
// Returns whether the result was accepted.
func (s *Store) SetResult(res datatypes.ResultSnapshot) bool {
	s.mu.Lock()
	if res.Fingerprint != s.dispatchedFP {
		s.mu.Unlock()
		return false
	}
	res.Stale = res.Fingerprint != s.current.Fingerprint()
	s.result = &res
	s.lastErr = nil
	listeners := s.resultListeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(res)
	}
	return true
}

// Result returns the last accepted result, or nil if none arrived yet.
func (s *Store) Result() *datatypes.ResultSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	r := *s.result
	return &r
}

// SetError records a computation failure. The last good result is kept;
// failures never clear it.
func (s *Store) SetError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

// Err returns the most recent computation error, or nil after a success.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
