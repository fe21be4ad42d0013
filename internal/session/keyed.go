package session

import (
	"fmt"
	"hash/fnv"
	"sync"

	"daybook/internal/domain"
)

const keyedShards = 64

// Keyed hands out per-key exclusive access without a process-wide lock.
// Keys hash onto independent shards, so unrelated keys never contend on the
// same mutex. A second writer on a held key is refused immediately rather
// than queued.
type Keyed struct {
	shards [keyedShards]keyedShard
}

type keyedShard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewKeyed creates an empty lock table.
func NewKeyed() *Keyed {
	k := &Keyed{}
	for i := range k.shards {
		k.shards[i].held = make(map[string]struct{})
	}
	return k
}

func (k *Keyed) shard(key string) *keyedShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &k.shards[h.Sum32()%keyedShards]
}

// Acquire claims the key, reporting false when another writer holds it.
func (k *Keyed) Acquire(key string) bool {
	s := k.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.held[key]; busy {
		return false
	}
	s.held[key] = struct{}{}
	return true
}

// Release frees the key for the next writer.
func (k *Keyed) Release(key string) {
	s := k.shard(key)
	s.mu.Lock()
	delete(s.held, key)
	s.mu.Unlock()
}

// Do runs fn while holding the key, refusing concurrent writers.
func (k *Keyed) Do(key string, fn func() error) error {
	if !k.Acquire(key) {
		return fmt.Errorf("key %s has a writer in flight: %w", key, domain.ErrConflict)
	}
	defer k.Release(key)
	return fn()
}
