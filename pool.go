package nidas

import (
	"sync"
)

// minPoolCapacity is the smallest capacity class a bucket allocates,
// matching the spec's "never shrink below a watermark" contract by never
// creating slivers too small to be worth recycling.
const minPoolCapacity = 16

// bucketClass rounds n up to the next power-of-two element count, floored
// at minPoolCapacity, so that a modest spread of requested lengths shares
// a small number of free-list buckets instead of fragmenting the pool.
func bucketClass(n int) int {
	c := minPoolCapacity
	for c < n {
		c <<= 1
	}
	return c
}

type bucketKey struct {
	typ Type
	cap int
}

// SamplePool is the process-wide mapping from (type, capacity-class) to a
// free-list of Samples, as required by §4.1. Get never returns an error
// from exhaustion: it always falls back to a fresh allocation. It is safe
// for concurrent producers and consumers.
type SamplePool struct {
	mu      sync.RWMutex
	buckets map[bucketKey]*sync.Pool
}

// NewSamplePool creates an empty SamplePool. A process normally has a
// single SamplePool, constructed once by the Runtime before the first
// sample allocation (§3 Ownership).
func NewSamplePool() *SamplePool {
	return &SamplePool{
		buckets: make(map[bucketKey]*sync.Pool),
	}
}

// DefaultPool is the process-wide SamplePool used by GetSample when no
// explicit pool is threaded through. Sensors and pipeline stages that
// don't need test isolation can use it directly, matching NIDAS's
// singleton getSample<T>() helper.
var DefaultPool = NewSamplePool()

func (p *SamplePool) bucket(key bucketKey) *sync.Pool {
	p.mu.RLock()
	b, ok := p.buckets[key]
	p.mu.RUnlock()
	if ok {
		return b
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok = p.buckets[key]; ok {
		return b
	}
	b = &sync.Pool{
		New: func() interface{} {
			return &Sample{
				cap:  key.cap,
				data: make([]byte, key.cap*key.typ.Size()),
			}
		},
	}
	p.buckets[key] = b
	return b
}

// Get returns a Sample of the given Type with at least nelem elements of
// capacity, either recycled from the free-list or freshly allocated. The
// returned Sample carries one reference, owned by the caller.
func (p *SamplePool) Get(typ Type, nelem int) *Sample {
	key := bucketKey{typ: typ, cap: bucketClass(nelem)}
	s := p.bucket(key).Get().(*Sample)
	s.pool = p
	s.typ = typ
	s.n = 0
	s.time = 0
	s.id = 0
	s.refs = 1
	return s
}

// put returns a drained Sample (refs == 0) to the bucket matching its
// allocated capacity. Called only from Sample.FreeReference.
func (p *SamplePool) put(s *Sample) {
	key := bucketKey{typ: s.typ, cap: s.cap}
	p.bucket(key).Put(s)
}

// GetSample allocates from the DefaultPool, mirroring NIDAS's free
// getSample<T>(len) helper used throughout the sensor and pipeline code.
func GetSample(typ Type, nelem int) *Sample {
	return DefaultPool.Get(typ, nelem)
}
