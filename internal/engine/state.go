package engine

import "sync"

// Store is a small shared key/value state table. Conditions built from
// configuration poll it (wait-until-on-flag, while-flag loops) and the
// MQTT and API layers write to it, so it takes a lock rather than
// relying on loop confinement.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewStore creates an empty state store.
func NewStore() *Store {
	return &Store{values: make(map[string]any)}
}

// Set stores a value under key, replacing any previous value.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = deepCopyValue(value)
}

// Delete removes a key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Get returns the value under key and whether it exists.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return deepCopyValue(v), ok
}

// Bool returns the value under key as a bool. Missing keys and
// non-bool values read as false, so flag conditions default to
// not-yet-set.
func (s *Store) Bool(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, _ := s.values[key].(bool)
	return v
}

// Float returns the value under key as a float64 with a fallback.
func (s *Store) Float(key string, fallback float64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch v := s.values[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return fallback
}

// Snapshot returns a deep copy of the whole table, for the API.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopyMap(s.values)
}

// FlagSet builds a condition that is true while the named flag is set.
func FlagSet(store *Store, key string) Condition {
	return func(*Run) bool { return store.Bool(key) }
}

// FlagClear builds a condition that is true while the named flag is
// unset or false.
func FlagClear(store *Store, key string) Condition {
	return func(*Run) bool { return !store.Bool(key) }
}
