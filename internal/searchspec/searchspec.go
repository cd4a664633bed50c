// Package searchspec turns the three positional inputs of a search into a
// validated, immutable Spec.
package searchspec

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/StormyCloudInc/selector-vanitygen/internal/keccak"
	"github.com/StormyCloudInc/selector-vanitygen/internal/nonce"
)

// Placeholder is the literal marking where the nonce goes in a template.
const Placeholder = "00000000"

// MaxContentLen is the longest assembled message that still leaves room
// for the 0x01 padding marker inside one absorption block.
const MaxContentLen = keccak.Rate - 1

var (
	// ErrInvalidSpec is wrapped by every configuration error.
	ErrInvalidSpec = errors.New("invalid search spec")

	// ErrMessageTooLong reports a template that does not fit one block.
	ErrMessageTooLong = fmt.Errorf("%w: message does not fit a single %d-byte absorption block", ErrInvalidSpec, keccak.Rate)
)

// Spec is the validated description of one search.
type Spec struct {
	Target      [4]byte
	Prefix      []byte
	Suffix      []byte
	DeviceIndex int
}

// Parse validates target, template and device and builds a Spec.
func Parse(target, template, device string) (*Spec, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}
	prefix, suffix, err := SplitTemplate(template)
	if err != nil {
		return nil, err
	}
	idx, err := ParseDevice(device)
	if err != nil {
		return nil, err
	}
	return New(t, prefix, suffix, idx)
}

// New builds a Spec from already-decoded parts, enforcing the block-size
// invariant.
func New(target [4]byte, prefix, suffix []byte, deviceIndex int) (*Spec, error) {
	if deviceIndex < 0 {
		return nil, fmt.Errorf("%w: device index %d is negative", ErrInvalidSpec, deviceIndex)
	}
	s := &Spec{
		Target:      target,
		Prefix:      bytes.Clone(prefix),
		Suffix:      bytes.Clone(suffix),
		DeviceIndex: deviceIndex,
	}
	if n := s.MessageLen(); n > MaxContentLen {
		return nil, fmt.Errorf("%w (%d bytes, max %d)", ErrMessageTooLong, n, MaxContentLen)
	}
	return s, nil
}

// ParseTarget decodes an 8-character hex selector, with optional 0x prefix.
func ParseTarget(s string) ([4]byte, error) {
	var out [4]byte
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 8 {
		return out, fmt.Errorf("%w: target must be exactly 8 hex characters, got %d", ErrInvalidSpec, len(s))
	}
	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return out, fmt.Errorf("%w: could not decode target: %v", ErrInvalidSpec, err)
	}
	return out, nil
}

// SplitTemplate returns the bytes before and after the single placeholder.
func SplitTemplate(template string) (prefix, suffix []byte, err error) {
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c < 0x20 || c > 0x7e {
			return nil, nil, fmt.Errorf("%w: template has non-printable byte 0x%02x at position %d", ErrInvalidSpec, c, i)
		}
	}
	switch n := strings.Count(template, Placeholder); n {
	case 0:
		return nil, nil, fmt.Errorf("%w: template does not contain %s", ErrInvalidSpec, Placeholder)
	case 1:
	default:
		return nil, nil, fmt.Errorf("%w: template contains %s %d times", ErrInvalidSpec, Placeholder, n)
	}
	before, after, _ := strings.Cut(template, Placeholder)
	return []byte(before), []byte(after), nil
}

// ParseDevice parses a non-negative device index that fits a byte.
func ParseDevice(s string) (int, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid device index %q", ErrInvalidSpec, s)
	}
	return int(n), nil
}

// MessageLen is the length of an assembled message.
func (s *Spec) MessageLen() int {
	return len(s.Prefix) + nonce.PlaceholderLen + len(s.Suffix)
}

// NonceStart is the offset of the lane-controlled hex characters.
func (s *Spec) NonceStart() int {
	return len(s.Prefix) + nonce.OuterHexLen
}

// Message assembles prefix ++ hex(outer) ++ hex6(inner) ++ suffix.
func (s *Spec) Message(p nonce.Pair) []byte {
	msg := make([]byte, 0, s.MessageLen())
	msg = append(msg, s.Prefix...)
	ph := p.Placeholder()
	msg = append(msg, ph[:]...)
	return append(msg, s.Suffix...)
}

// Template reassembles the original template text.
func (s *Spec) Template() string {
	return string(s.Prefix) + Placeholder + string(s.Suffix)
}

// TargetHex is the lowercase hex form of the target, without 0x.
func (s *Spec) TargetHex() string {
	return hex.EncodeToString(s.Target[:])
}

// EstimateAttempts returns the average number of candidates needed to hit
// a 4-byte target.
func EstimateAttempts() float64 {
	return float64(uint64(1) << (8 * len(Spec{}.Target)))
}
