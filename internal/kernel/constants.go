package kernel

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/StormyCloudInc/selector-vanitygen/internal/keccak"
	"github.com/StormyCloudInc/selector-vanitygen/internal/nonce"
)

// ErrMalformedSource is returned when program text lacks a required
// constant or defines one with an unusable value.
var ErrMalformedSource = errors.New("malformed program source")

// Constants are the compile-time values a hashing kernel consumes.
type Constants struct {
	Block      [keccak.Rate]byte
	Target     [4]byte
	NonceStart int
	MessageLen int
}

// ParseConstants reads the #define lines emitted by Build back into
// values. It is the compile step of backends that run the kernel on the
// host.
func ParseConstants(src string) (*Constants, error) {
	var (
		c       Constants
		seenS   [keccak.Rate]bool
		seenT   [4]bool
		seenPos bool
		seenLen bool
		lineNo  int
	)
	scanner := bufio.NewScanner(strings.NewReader(src))
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 || fields[0] != "#define" {
			continue
		}
		name := fields[1]
		if !strings.HasPrefix(name, "S_") && !strings.HasPrefix(name, "T_") &&
			name != "NONCE_START_POS" && name != "MESSAGE_LEN" {
			continue
		}
		v, err := strconv.ParseUint(strings.TrimSuffix(fields[2], "u"), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %s has value %q", ErrMalformedSource, lineNo, name, fields[2])
		}

		switch {
		case name == "NONCE_START_POS":
			c.NonceStart, seenPos = int(v), true
		case name == "MESSAGE_LEN":
			c.MessageLen, seenLen = int(v), true
		default:
			idx, err := strconv.Atoi(name[2:])
			if err != nil || v > 0xff {
				return nil, fmt.Errorf("%w: line %d: bad constant %s=%s", ErrMalformedSource, lineNo, name, fields[2])
			}
			if name[0] == 'S' {
				if idx < 0 || idx >= keccak.Rate {
					return nil, fmt.Errorf("%w: line %d: %s out of range", ErrMalformedSource, lineNo, name)
				}
				c.Block[idx], seenS[idx] = byte(v), true
			} else {
				if idx < 0 || idx >= len(c.Target) {
					return nil, fmt.Errorf("%w: line %d: %s out of range", ErrMalformedSource, lineNo, name)
				}
				c.Target[idx], seenT[idx] = byte(v), true
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSource, err)
	}

	for i, ok := range seenS {
		if !ok {
			return nil, fmt.Errorf("%w: missing S_%d", ErrMalformedSource, i)
		}
	}
	for i, ok := range seenT {
		if !ok {
			return nil, fmt.Errorf("%w: missing T_%d", ErrMalformedSource, i)
		}
	}
	if !seenPos {
		return nil, fmt.Errorf("%w: missing NONCE_START_POS", ErrMalformedSource)
	}
	if !seenLen {
		c.MessageLen = contentLen(&c.Block)
		if c.MessageLen < 0 {
			return nil, fmt.Errorf("%w: no padding marker in message block", ErrMalformedSource)
		}
	}
	if c.NonceStart < nonce.OuterHexLen || c.NonceStart+nonce.InnerHexLen > c.MessageLen {
		return nil, fmt.Errorf("%w: NONCE_START_POS %d outside message of %d bytes", ErrMalformedSource, c.NonceStart, c.MessageLen)
	}
	return &c, nil
}

// contentLen finds the 0x01 padding marker, which shares the last byte
// with the 0x80 marker when the content fills 135 bytes.
func contentLen(block *[keccak.Rate]byte) int {
	if block[keccak.Rate-1] == padStart|padEnd {
		return keccak.Rate - 1
	}
	for i := keccak.Rate - 2; i >= 0; i-- {
		if block[i] == padStart {
			return i
		}
	}
	return -1
}
