// Package kernel generates the compute-program text for one outer nonce:
// the padded message skeleton, the target bytes and the lane nonce offset
// as compile-time constants, followed by the hashing kernel itself.
package kernel

import (
	"fmt"
	"strings"

	"github.com/StormyCloudInc/selector-vanitygen/internal/keccak"
	"github.com/StormyCloudInc/selector-vanitygen/internal/nonce"
	"github.com/StormyCloudInc/selector-vanitygen/internal/searchspec"
)

// EntryPoint is the kernel function every backend launches.
const EntryPoint = "hashMessage"

const (
	padStart = 0x01
	padEnd   = 0x80
)

// Skeleton is the single padded absorption block shared by every lane of
// one dispatch. The inner placeholder is left as ASCII '0' fill.
type Skeleton struct {
	Block      [keccak.Rate]byte
	NonceStart int
	ContentLen int
}

// Program is the generated source plus the values it was generated from.
type Program struct {
	Outer    nonce.Outer
	Target   [4]byte
	Skeleton Skeleton
	Source   string
}

// BuildSkeleton lays out prefix ++ hex(outer) ++ "000000" ++ suffix followed
// by Keccak multi-rate padding (0x01 ... 0x80).
func BuildSkeleton(spec *searchspec.Spec, outer nonce.Outer) (Skeleton, error) {
	var sk Skeleton
	n := spec.MessageLen()
	if n > searchspec.MaxContentLen {
		return sk, fmt.Errorf("%w (%d bytes, max %d)", searchspec.ErrMessageTooLong, n, searchspec.MaxContentLen)
	}

	pos := copy(sk.Block[:], spec.Prefix)
	oh := outer.Hex()
	pos += copy(sk.Block[pos:], oh[:])
	sk.NonceStart = pos
	for i := 0; i < nonce.InnerHexLen; i++ {
		sk.Block[pos+i] = '0'
	}
	pos += nonce.InnerHexLen
	pos += copy(sk.Block[pos:], spec.Suffix)
	sk.ContentLen = pos

	sk.Block[pos] = padStart
	sk.Block[keccak.Rate-1] |= padEnd
	return sk, nil
}

// Build renders the program source for spec at outer. kernelSrc is the
// externally supplied kernel body that consumes the generated constants; it
// may be empty for backends that bring their own kernel.
func Build(spec *searchspec.Spec, outer nonce.Outer, kernelSrc string) (*Program, error) {
	sk, err := BuildSkeleton(spec, outer)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.Grow(4096 + len(kernelSrc))
	oh := outer.Hex()
	fmt.Fprintf(&b, "// outer nonce %s, template %q\n", oh[:], spec.Template())
	for i, v := range sk.Block {
		fmt.Fprintf(&b, "#define S_%d %du\n", i, v)
	}
	for i, v := range spec.Target {
		fmt.Fprintf(&b, "#define T_%d %du\n", i, v)
	}
	fmt.Fprintf(&b, "#define NONCE_START_POS %du\n", sk.NonceStart)
	fmt.Fprintf(&b, "#define MESSAGE_LEN %du\n", sk.ContentLen)
	b.WriteString(kernelSrc)

	return &Program{
		Outer:    outer,
		Target:   spec.Target,
		Skeleton: sk,
		Source:   b.String(),
	}, nil
}
