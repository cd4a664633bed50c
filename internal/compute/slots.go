package compute

import "sync/atomic"

const (
	// Sentinel marks an unwritten slot. It lies outside the 24-bit inner
	// space, so it never collides with a real nonce.
	Sentinel uint32 = 0xFFFFFFFF

	DefaultSlotCapacity = 8
)

// ResultSlots is the shared, host-visible output of one dispatch: a match
// counter plus a fixed-capacity list of inner nonces. Lanes reserve a slot
// by incrementing the counter, so simultaneous matches are never lost to
// each other; matches beyond capacity are counted but not stored.
type ResultSlots struct {
	matches atomic.Uint32
	values  []uint32
}

// NewResultSlots allocates capacity slots, already reset.
func NewResultSlots(capacity int) *ResultSlots {
	if capacity <= 0 {
		capacity = DefaultSlotCapacity
	}
	r := &ResultSlots{values: make([]uint32, capacity)}
	r.Reset()
	return r
}

// Reset clears the counter and fills every slot with Sentinel.
func (r *ResultSlots) Reset() {
	r.matches.Store(0)
	for i := range r.values {
		r.values[i] = Sentinel
	}
}

// Record appends inner. It is safe for concurrent use by many lanes and
// reports false when the match did not fit.
func (r *ResultSlots) Record(inner uint32) bool {
	n := r.matches.Add(1) - 1
	if int(n) >= len(r.values) {
		return false
	}
	atomic.StoreUint32(&r.values[n], inner)
	return true
}

// Load replaces the contents with a device read-back.
func (r *ResultSlots) Load(matches uint32, values []uint32) {
	r.matches.Store(matches)
	copy(r.values, values)
}

// Capacity is the number of storable matches.
func (r *ResultSlots) Capacity() int { return len(r.values) }

// Matches is the number of lanes that reported a match, stored or not.
func (r *ResultSlots) Matches() int { return int(r.matches.Load()) }

// Overflow reports whether some matches could not be stored.
func (r *ResultSlots) Overflow() bool { return r.Matches() > len(r.values) }

// Values returns a copy of the stored matches.
func (r *ResultSlots) Values() []uint32 {
	n := min(r.Matches(), len(r.values))
	out := make([]uint32, n)
	for i := range out {
		out[i] = atomic.LoadUint32(&r.values[i])
	}
	return out
}

// Raw returns a copy of every slot, including unwritten sentinels.
func (r *ResultSlots) Raw() []uint32 {
	out := make([]uint32, len(r.values))
	copy(out, r.values)
	return out
}
