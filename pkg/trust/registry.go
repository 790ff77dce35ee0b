package trust

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 16

// Registry holds all client profiles, sharded by identity hash so hot
// paths under different clients do not contend on one lock.
type Registry struct {
	shards       [shardCount]*shard
	timeProvider func() time.Time
}

type shard struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// RegistryOpts allow a test clock.
type RegistryOpts struct {
	TimeProvider func() time.Time
}

func NewRegistry(opts *RegistryOpts) *Registry {
	r := &Registry{timeProvider: time.Now}
	if opts != nil && opts.TimeProvider != nil {
		r.timeProvider = opts.TimeProvider
	}
	for i := range r.shards {
		r.shards[i] = &shard{profiles: make(map[string]*Profile)}
	}
	return r
}

func (r *Registry) shardFor(identity string) *shard {
	h := fnv.New32a()
	h.Write([]byte(identity))
	return r.shards[h.Sum32()%shardCount]
}

// Get returns the profile for an identity, creating a fresh default
// (score 100, standard strategy) when none exists.
func (r *Registry) Get(identity string) *Profile {
	s := r.shardFor(identity)

	s.mu.RLock()
	p, ok := s.profiles[identity]
	s.mu.RUnlock()
	if ok {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok = s.profiles[identity]; ok {
		return p
	}
	p = newProfile(r.timeProvider())
	s.profiles[identity] = p
	return p
}

// Reset removes a single profile. The next Get recreates it with
// defaults. Returns whether the identity was present.
func (r *Registry) Reset(identity string) bool {
	s := r.shardFor(identity)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[identity]; !ok {
		return false
	}
	delete(s.profiles, identity)
	return true
}

// Sweep evicts profiles whose lastUpdated is older than maxAge and
// returns how many were removed. Safe to run while Get traffic is live.
func (r *Registry) Sweep(maxAge time.Duration) int {
	cutoff := r.timeProvider().Add(-maxAge)
	removed := 0
	for _, s := range r.shards {
		s.mu.Lock()
		for id, p := range s.profiles {
			if p.Snapshot().LastUpdated.Before(cutoff) {
				delete(s.profiles, id)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len reports the number of tracked profiles across all shards.
func (r *Registry) Len() int {
	n := 0
	for _, s := range r.shards {
		s.mu.RLock()
		n += len(s.profiles)
		s.mu.RUnlock()
	}
	return n
}
