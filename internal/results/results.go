package results

import (
	"sync"
	"time"
)

// Result is the outcome of one host's run.
type Result struct {
	Host     string
	At       time.Time
	Duration time.Duration
	Auth     string
	LogPath  string

	Paths       int
	FailedPaths int
	Drifted     bool
	AlertSent   bool
	Failed      bool
}

// Store is the interface used by scheduler/metrics.
type Store interface {
	Set(host string, r Result)
	Snapshot() map[string]Result
}

// MemStore is an in-memory implementation of Store.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]Result
}

func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string]Result),
	}
}

func (s *MemStore) Set(host string, r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[host] = r
}

func (s *MemStore) Snapshot() map[string]Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Result, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}
