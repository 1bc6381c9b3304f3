package config

import "sync"

// Store holds the current validated configuration.
// Get and Set may be called from any goroutine; readers always see a whole
// record, either the old one or the new one.
type Store struct {
	mu  sync.RWMutex
	cfg Config
}

// NewStore creates a Store holding Defaults().
func NewStore() *Store {
	return &Store{cfg: Defaults()}
}

// Get returns a snapshot of the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Set validates c and, if valid, replaces the stored configuration.
// A rejected candidate leaves the store untouched.
func (s *Store) Set(c Config) error {
	if err := Validate(c); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfg = c
	s.mu.Unlock()
	return nil
}

// Update applies fn to a copy of the current configuration and stores the
// result if it validates. The read-modify-write happens under one lock so
// concurrent updates of different fields do not lose each other.
func (s *Store) Update(fn func(*Config)) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cfg
	fn(&c)
	if err := Validate(c); err != nil {
		return s.cfg, err
	}
	s.cfg = c
	return c, nil
}
