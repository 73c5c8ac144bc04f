package nidas

// ID is the opaque 32-bit sample identifier used throughout the pipeline.
// It packs a 10-bit DSM id (the node that owns the sample), a 16-bit short
// id (sensor + sample index within that DSM) and a reserved/raw-flag field,
// mirroring the original NIDAS dsm_sample_id_t bit layout.
type ID uint32

const (
	dsmIDBits   = 10
	shortIDBits = 16

	dsmIDShift = 32 - dsmIDBits // DSM id occupies the high bits
	dsmIDMask  = (uint32(1)<<dsmIDBits - 1) << dsmIDShift

	shortIDShift = dsmIDShift - shortIDBits
	shortIDMask  = (uint32(1)<<shortIDBits - 1) << shortIDShift

	// rawBit distinguishes a raw sample's id from its processed
	// counterpart's id, giving raw ids a parallel namespace as required
	// by §3 Id algebra.
	rawBit = uint32(1) << (shortIDShift - 1)
)

// MakeID packs a DSM id and short id into an ID. Panics are avoided by
// masking rather than validating; callers that need strict validation
// should check dsmID < 1<<10 and shortID < 1<<16 themselves.
func MakeID(dsmID uint16, shortID uint32) ID {
	return ID((uint32(dsmID)<<dsmIDShift)&dsmIDMask | (shortID<<shortIDShift)&shortIDMask)
}

// DSMID extracts the owning DSM's id from a sample ID.
func (id ID) DSMID() uint16 {
	return uint16((uint32(id) & dsmIDMask) >> dsmIDShift)
}

// ShortID extracts the sensor/sample-index short id from a sample ID.
func (id ID) ShortID() uint32 {
	return (uint32(id) & shortIDMask) >> shortIDShift
}

// Raw reports whether this id's raw bit is set, i.e. it addresses the
// sensor's unprocessed byte stream rather than its processed output.
func (id ID) Raw() bool {
	return uint32(id)&rawBit != 0
}

// WithRaw returns a copy of id with the raw bit set or cleared, giving
// raw/processed samples from the same sensor distinct, non-colliding ids.
func (id ID) WithRaw(raw bool) ID {
	v := uint32(id)
	if raw {
		v |= rawBit
	} else {
		v &^= rawBit
	}
	return ID(v)
}

// Reserved sample ids for the sync-record wire format (§6 External
// interfaces). These live in the (DSM, short-id) namespace like any other
// sample id, conventionally on a dedicated "sync" DSM id.
const (
	// SyncRecordID carries the per-second float record (C9).
	SyncRecordID ID = 0x7ffe
	// SyncRecordHeaderID carries the ASCII layout document.
	SyncRecordHeaderID ID = 0x7fff
)
