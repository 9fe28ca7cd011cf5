package store

import (
	"sync"

	"github.com/OneOfOne/xxhash"
)

const stripeCount = 256

// Stripes maps (kind, id) onto a fixed set of mutexes so unrelated records
// rarely share a lock and no operation ever takes a global one.
type Stripes struct {
	locks [stripeCount]sync.Mutex
}

func (s *Stripes) index(kind, id string) uint64 {
	return xxhash.ChecksumString64(kind+"/"+id) % stripeCount
}

// Lock acquires the stripe for (kind, id) and returns its unlock func.
func (s *Stripes) Lock(kind, id string) func() {
	m := &s.locks[s.index(kind, id)]
	m.Lock()
	return m.Unlock
}
