// Package shared provides a versioned key-value store visible to all agents.
package shared

import (
	"log"
	"sort"
	"sync"
	"time"
)

// Entry is one versioned value in the store.
type Entry struct {
	// Key is the entry's key.
	Key string `json:"key"`
	// Value is the stored value.
	Value interface{} `json:"value"`
	// SetBy is the agent type (or "system") that last wrote the entry.
	SetBy string `json:"set_by"`
	// Timestamp is when the entry was last written.
	Timestamp time.Time `json:"timestamp"`
	// Version is the store-wide version assigned to the write.
	Version uint64 `json:"version"`
}

// Listener observes changes to store values. oldValue is nil when the key
// was previously absent; newValue is nil when the key was deleted.
type Listener func(key string, newValue, oldValue interface{})

// listenerEntry pairs a listener with a removable registration ID.
type listenerEntry struct {
	id       int
	listener Listener
}

// Store is a thread-safe key-value store with a strictly increasing
// store-wide version counter. Versions are never reused, even across
// deletes. Listeners are notified outside the store's critical section.
type Store struct {
	mu           sync.RWMutex
	entries      map[string]Entry
	version      uint64
	keyListeners map[string][]listenerEntry
	allListeners []listenerEntry
	nextID       int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		entries:      make(map[string]Entry),
		keyListeners: make(map[string][]listenerEntry),
	}
}

// Get returns the value for a key, and whether the key exists.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// GetEntry returns the full entry for a key, and whether the key exists.
func (s *Store) GetEntry(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// Set writes a value under a freshly incremented store-wide version.
func (s *Store) Set(key string, value interface{}, setBy string) {
	s.mu.Lock()
	old, existed := s.entries[key]
	s.version++
	s.entries[key] = Entry{
		Key:       key,
		Value:     value,
		SetBy:     setBy,
		Timestamp: time.Now(),
		Version:   s.version,
	}
	listeners := s.listenersForLocked(key)
	s.mu.Unlock()

	var oldValue interface{}
	if existed {
		oldValue = old.Value
	}
	s.notify(listeners, key, value, oldValue)
}

// Delete removes a key. Returns false if the key did not exist.
// The store-wide version still advances, so deleted versions are never reused.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	old, existed := s.entries[key]
	if !existed {
		s.mu.Unlock()
		return false
	}
	s.version++
	delete(s.entries, key)
	listeners := s.listenersForLocked(key)
	s.mu.Unlock()

	s.notify(listeners, key, nil, old.Value)
	return true
}

// Merge shallow-merges partial into the current map value for the key.
// A missing or non-map current value is treated as an empty map.
func (s *Store) Merge(key string, partial map[string]interface{}, setBy string) {
	s.mu.Lock()
	merged := make(map[string]interface{})
	old, existed := s.entries[key]
	if existed {
		if current, ok := old.Value.(map[string]interface{}); ok {
			for k, v := range current {
				merged[k] = v
			}
		}
	}
	for k, v := range partial {
		merged[k] = v
	}
	s.version++
	s.entries[key] = Entry{
		Key:       key,
		Value:     merged,
		SetBy:     setBy,
		Timestamp: time.Now(),
		Version:   s.version,
	}
	listeners := s.listenersForLocked(key)
	s.mu.Unlock()

	var oldValue interface{}
	if existed {
		oldValue = old.Value
	}
	s.notify(listeners, key, merged, oldValue)
}

// Append appends an item to the current slice value for the key.
// A missing or non-slice current value is treated as an empty slice.
func (s *Store) Append(key string, item interface{}, setBy string) {
	s.mu.Lock()
	var appended []interface{}
	old, existed := s.entries[key]
	if existed {
		if current, ok := old.Value.([]interface{}); ok {
			appended = append(appended, current...)
		}
	}
	appended = append(appended, item)
	s.version++
	s.entries[key] = Entry{
		Key:       key,
		Value:     appended,
		SetBy:     setBy,
		Timestamp: time.Now(),
		Version:   s.version,
	}
	listeners := s.listenersForLocked(key)
	s.mu.Unlock()

	var oldValue interface{}
	if existed {
		oldValue = old.Value
	}
	s.notify(listeners, key, appended, oldValue)
}

// Subscribe registers a listener for changes to one key.
// It returns an unsubscribe function.
func (s *Store) Subscribe(key string, l Listener) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.keyListeners[key] = append(s.keyListeners[key], listenerEntry{id: id, listener: l})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		entries := s.keyListeners[key]
		for i, e := range entries {
			if e.id == id {
				s.keyListeners[key] = append(entries[:i], entries[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers a listener for changes to any key.
// It returns an unsubscribe function.
func (s *Store) SubscribeAll(l Listener) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.allListeners = append(s.allListeners, listenerEntry{id: id, listener: l})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.allListeners {
			if e.id == id {
				s.allListeners = append(s.allListeners[:i], s.allListeners[i+1:]...)
				return
			}
		}
	}
}

// Snapshot returns the current key-to-value mapping.
func (s *Store) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[string]interface{}, len(s.entries))
	for k, e := range s.entries {
		snap[k] = e.Value
	}
	return snap
}

// Entries returns a copy of all entries, sorted by key.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// LoadSnapshot writes every key from the snapshot via Set, so restored
// entries receive fresh versions and fire listeners like any other write.
// Keys are applied in sorted order for deterministic versioning.
func (s *Store) LoadSnapshot(snap map[string]interface{}, setBy string) {
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Set(k, snap[k], setBy)
	}
}

// Version returns the latest assigned store-wide version.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Len returns the number of keys in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// listenersForLocked collects the listeners to notify for a key.
// Caller must hold s.mu.
func (s *Store) listenersForLocked(key string) []Listener {
	var out []Listener
	for _, e := range s.keyListeners[key] {
		out = append(out, e.listener)
	}
	for _, e := range s.allListeners {
		out = append(out, e.listener)
	}
	return out
}

// notify invokes listeners outside the critical section. A panicking
// listener is logged and does not interrupt the rest.
func (s *Store) notify(listeners []Listener, key string, newValue, oldValue interface{}) {
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[shared] listener panic for key %q: %v", key, r)
				}
			}()
			l(key, newValue, oldValue)
		}()
	}
}
