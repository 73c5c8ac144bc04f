package nidas

import "sync"

// SampleSource is anything that distributes Samples to registered
// SampleClients: sensors, archive readers, and pipeline stages (the
// resampler and sync-record builder) all implement it, per §4.5.
type SampleSource interface {
	SampleTags() []*SampleTag
	AddSampleClient(c SampleClient)
	AddSampleClientForTag(c SampleClient, t *SampleTag)
	RemoveSampleClient(c SampleClient)
	Stats() *Stats
}

type clientReg struct {
	client SampleClient
	tag    *SampleTag // nil means "all tags"
}

// BaseSource implements the registration and fan-out half of SampleSource.
// Embedding types add their own SampleTags() and call Distribute as they
// produce Samples; it is the shared building block underneath Sensor,
// the archive reader, NearestResampler and SyncRecordBuilder.
type BaseSource struct {
	mu      sync.RWMutex
	clients []clientReg
	tags    []*SampleTag
	stats   *Stats
}

// NewBaseSource creates a BaseSource with its own Stats on the default
// window period.
func NewBaseSource() *BaseSource {
	return &BaseSource{stats: NewStats(0)}
}

// AddSampleTag registers a tag this source will produce, wiring it so
// further AddVariable calls on it fail with InvalidState.
func (b *BaseSource) AddSampleTag(t *SampleTag) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t.Wire()
	b.tags = append(b.tags, t)
}

// SampleTags implements SampleSource.
func (b *BaseSource) SampleTags() []*SampleTag {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*SampleTag, len(b.tags))
	copy(out, b.tags)
	return out
}

// AddSampleClient registers c to receive every Sample this source
// distributes, regardless of tag.
func (b *BaseSource) AddSampleClient(c SampleClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients = append(b.clients, clientReg{client: c})
}

// AddSampleClientForTag registers c to receive only Samples whose id
// matches t's.
func (b *BaseSource) AddSampleClientForTag(c SampleClient, t *SampleTag) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients = append(b.clients, clientReg{client: c, tag: t})
}

// RemoveSampleClient unregisters every registration of c, whole-source and
// per-tag alike.
func (b *BaseSource) RemoveSampleClient(c SampleClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.clients[:0]
	for _, reg := range b.clients {
		if reg.client != c {
			kept = append(kept, reg)
		}
	}
	b.clients = kept
}

// Stats implements SampleSource.
func (b *BaseSource) Stats() *Stats { return b.stats }

// Distribute pushes s to every registered client in registration order,
// per §4.5. The source's own implicit reference is released once every
// client has had a chance to add its own; clients that returned without
// calling AddReference see their share of the reference released here.
func (b *BaseSource) Distribute(s *Sample) error {
	b.mu.RLock()
	regs := make([]clientReg, len(b.clients))
	copy(regs, b.clients)
	b.mu.RUnlock()

	b.stats.AddSample(s.Time(), s.ByteLength())

	for _, reg := range regs {
		if reg.tag != nil && reg.tag.ID() != s.ID() {
			continue
		}
		before := s.RefCount()
		if _, err := reg.client.Receive(s); err != nil {
			return err
		}
		// A well-behaved client either leaves the count unchanged
		// (didn't retain) or incremented it (retained via AddReference).
		_ = before
	}
	return s.FreeReference()
}
