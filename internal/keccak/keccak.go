// Package keccak runs the Keccak-f[1600] permutation over a single
// caller-padded absorption block.
//
// Library Keccak implementations apply their own padding and keep the
// permutation unexported. The search kernel receives a block whose padding
// is baked in by the program builder, so the host-side lane emulation needs
// the bare permutation to hash exactly the bytes a device lane would.
package keccak

import (
	"encoding/binary"
	"math/bits"
)

const (
	// Rate is the Keccak-256 sponge rate in bytes: (1600 - 2*256) / 8.
	Rate = 136
	// Size is the Keccak-256 digest size in bytes.
	Size = 32

	lanesPerBlock = Rate / 8
)

var roundConstants = [24]uint64{
	0x0000000000000001, 0x0000000000008082, 0x800000000000808A, 0x8000000080008000,
	0x000000000000808B, 0x0000000080000001, 0x8000000080008081, 0x8000000000008009,
	0x000000000000008A, 0x0000000000000088, 0x0000000080008009, 0x000000008000000A,
	0x000000008000808B, 0x800000000000008B, 0x8000000000008089, 0x8000000000008003,
	0x8000000000008002, 0x8000000000000080, 0x000000000000800A, 0x800000008000000A,
	0x8000000080008081, 0x8000000000008080, 0x0000000080000001, 0x8000000080008008,
}

// rho rotation offsets and pi destinations, indexed along the pi walk
// starting at lane 1.
var (
	rotations = [24]int{1, 3, 6, 10, 15, 21, 28, 36, 45, 55, 2, 14, 27, 41, 56, 8, 25, 43, 62, 18, 39, 61, 20, 44}
	piLanes   = [24]int{10, 7, 11, 17, 18, 3, 5, 16, 8, 21, 24, 4, 15, 23, 19, 13, 12, 2, 20, 14, 22, 9, 6, 1}
)

// PermuteBlock absorbs one padded block into a zero state, applies the
// permutation once and squeezes the 32-byte digest. No padding is added.
func PermuteBlock(block *[Rate]byte) [Size]byte {
	var a [25]uint64
	for i := 0; i < lanesPerBlock; i++ {
		a[i] = binary.LittleEndian.Uint64(block[i*8:])
	}
	F1600(&a)

	var out [Size]byte
	for i := 0; i < Size/8; i++ {
		binary.LittleEndian.PutUint64(out[i*8:], a[i])
	}
	return out
}

// F1600 applies the 24-round Keccak-f[1600] permutation to a in place.
func F1600(a *[25]uint64) {
	var c [5]uint64
	for round := 0; round < 24; round++ {
		// theta
		for x := 0; x < 5; x++ {
			c[x] = a[x] ^ a[x+5] ^ a[x+10] ^ a[x+15] ^ a[x+20]
		}
		for x := 0; x < 5; x++ {
			d := c[(x+4)%5] ^ bits.RotateLeft64(c[(x+1)%5], 1)
			for y := 0; y < 25; y += 5 {
				a[y+x] ^= d
			}
		}

		// rho and pi
		cur := a[1]
		for i := 0; i < 24; i++ {
			j := piLanes[i]
			next := a[j]
			a[j] = bits.RotateLeft64(cur, rotations[i])
			cur = next
		}

		// chi
		for y := 0; y < 25; y += 5 {
			for x := 0; x < 5; x++ {
				c[x] = a[y+x]
			}
			for x := 0; x < 5; x++ {
				a[y+x] = c[x] ^ (^c[(x+1)%5] & c[(x+2)%5])
			}
		}

		// iota
		a[0] ^= roundConstants[round]
	}
}
