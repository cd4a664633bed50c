// Package validator re-checks device-reported matches on the host with an
// independent Keccak-256 implementation before they are reported.
package validator

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/StormyCloudInc/selector-vanitygen/internal/compute"
	"github.com/StormyCloudInc/selector-vanitygen/internal/nonce"
	"github.com/StormyCloudInc/selector-vanitygen/internal/searchspec"
)

// Solution is a verified (outer, inner) pair with its message and digest.
type Solution struct {
	Pair    nonce.Pair
	Message []byte
	Digest  [32]byte
}

// Selector is the first four digest bytes.
func (s Solution) Selector() [4]byte {
	var sel [4]byte
	copy(sel[:], s.Digest[:4])
	return sel
}

// NonceHex is the 8-character replacement for the template placeholder.
func (s Solution) NonceHex() string {
	ph := s.Pair.Placeholder()
	return string(ph[:])
}

// Rejection is a slot value that failed host verification.
type Rejection struct {
	Outer  nonce.Outer
	Value  uint32
	Reason string
}

func (r Rejection) String() string {
	return fmt.Sprintf("outer %02X slot value 0x%08X: %s", uint8(r.Outer), r.Value, r.Reason)
}

// Report is the outcome of checking one iteration's slots.
type Report struct {
	Solutions  []Solution
	Rejections []Rejection

	// Matches is the device-reported match count, which exceeds the
	// number of checked values when Overflow is set.
	Matches  int
	Overflow bool
}

// Validator verifies slot values against one spec.
type Validator struct {
	spec *searchspec.Spec
}

func New(spec *searchspec.Spec) *Validator {
	return &Validator{spec: spec}
}

// Check verifies every stored slot value of an iteration for outer.
// Values are reported in slot order; duplicates are reported once.
func (v *Validator) Check(outer nonce.Outer, slots *compute.ResultSlots) (Report, error) {
	if slots == nil {
		return Report{}, fmt.Errorf("%w: no result slots to check", compute.ErrBackend)
	}
	r := Report{Matches: slots.Matches(), Overflow: slots.Overflow()}

	seen := make(map[uint32]struct{})
	for _, val := range slots.Values() {
		if _, dup := seen[val]; dup {
			continue
		}
		seen[val] = struct{}{}

		inner := nonce.Inner(val)
		if !inner.Valid() {
			reason := "outside the 24-bit inner nonce space"
			if val == compute.Sentinel {
				reason = "slot counted but never written"
			}
			r.Rejections = append(r.Rejections, Rejection{Outer: outer, Value: val, Reason: reason})
			continue
		}

		sol, ok := Verify(v.spec, nonce.Pair{Outer: outer, Inner: inner})
		if !ok {
			r.Rejections = append(r.Rejections, Rejection{
				Outer:  outer,
				Value:  val,
				Reason: "host digest " + hex.EncodeToString(sol.Digest[:4]) + " does not match target " + v.spec.TargetHex(),
			})
			continue
		}
		r.Solutions = append(r.Solutions, sol)
	}
	return r, nil
}

// Verify rebuilds the message for p and reports whether its selector
// equals the spec target. The Solution is filled in either way.
func Verify(spec *searchspec.Spec, p nonce.Pair) (Solution, bool) {
	msg := spec.Message(p)
	sol := Solution{Pair: p, Message: msg, Digest: Digest(msg)}
	return sol, bytes.Equal(sol.Digest[:4], spec.Target[:])
}

// Digest is the legacy Keccak-256 of msg, the variant Ethereum uses.
func Digest(msg []byte) [32]byte {
	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(msg)
	h.Sum(out[:0])
	return out
}

// Selector is the first four bytes of Digest(msg).
func Selector(msg []byte) [4]byte {
	d := Digest(msg)
	return [4]byte{d[0], d[1], d[2], d[3]}
}
