// Package nonce describes the two-dimensional search space: a sequential
// outer byte chosen by the host and a 24-bit inner value chosen per lane.
package nonce

import "fmt"

const (
	OuterSpace = 1 << 8
	InnerSpace = 1 << 24

	// TotalSpace is the number of distinct (outer, inner) pairs.
	TotalSpace = OuterSpace * InnerSpace

	OuterHexLen = 2
	InnerHexLen = 6

	// PlaceholderLen is the number of template bytes replaced by a pair.
	PlaceholderLen = OuterHexLen + InnerHexLen
)

const hexDigits = "0123456789ABCDEF"

// Outer is the host-controlled nonce byte.
type Outer uint8

// Hex returns the two uppercase hex characters of o.
func (o Outer) Hex() [OuterHexLen]byte {
	return [OuterHexLen]byte{hexDigits[o>>4], hexDigits[o&0x0f]}
}

// Inner is the lane-controlled nonce. Only the low 24 bits are meaningful.
type Inner uint32

// Valid reports whether i lies inside the 24-bit inner space.
func (i Inner) Valid() bool { return i < InnerSpace }

// Hex returns the six uppercase hex characters of i.
func (i Inner) Hex() [InnerHexLen]byte {
	var out [InnerHexLen]byte
	PutInner(out[:], i)
	return out
}

// PutInner writes the six uppercase hex characters of i into dst[0:6].
// This is the per-lane placeholder overwrite.
func PutInner(dst []byte, i Inner) {
	_ = dst[InnerHexLen-1]
	dst[0] = hexDigits[(i>>20)&0x0f]
	dst[1] = hexDigits[(i>>16)&0x0f]
	dst[2] = hexDigits[(i>>12)&0x0f]
	dst[3] = hexDigits[(i>>8)&0x0f]
	dst[4] = hexDigits[(i>>4)&0x0f]
	dst[5] = hexDigits[i&0x0f]
}

// Pair identifies one candidate in the full search space.
type Pair struct {
	Outer Outer
	Inner Inner
}

// Index returns the position of p in the 2^32 space, outer-major.
func (p Pair) Index() uint32 {
	return uint32(p.Outer)<<24 | uint32(p.Inner)&(InnerSpace-1)
}

// PairFromIndex is the inverse of Pair.Index.
func PairFromIndex(idx uint32) Pair {
	return Pair{Outer: Outer(idx >> 24), Inner: Inner(idx & (InnerSpace - 1))}
}

// Placeholder returns the eight characters that replace the template
// placeholder for p.
func (p Pair) Placeholder() [PlaceholderLen]byte {
	var out [PlaceholderLen]byte
	oh := p.Outer.Hex()
	copy(out[:OuterHexLen], oh[:])
	PutInner(out[OuterHexLen:], p.Inner)
	return out
}

func (p Pair) String() string {
	return fmt.Sprintf("%02X/%06X", uint8(p.Outer), uint32(p.Inner))
}
