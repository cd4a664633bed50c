//go:build opencl && cgo

package compute_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StormyCloudInc/selector-vanitygen/internal/compute"
	"github.com/StormyCloudInc/selector-vanitygen/internal/kernel"
	"github.com/StormyCloudInc/selector-vanitygen/internal/nonce"
	"github.com/StormyCloudInc/selector-vanitygen/internal/searchspec"
	"github.com/StormyCloudInc/selector-vanitygen/internal/validator"
	"github.com/StormyCloudInc/selector-vanitygen/kernels"
)

func openCLOrSkip(t *testing.T, capacity int) compute.Backend {
	t.Helper()
	b, err := compute.New("opencl", compute.Options{SlotCapacity: capacity})
	require.NoError(t, err)
	devices, err := b.Devices()
	require.NoError(t, err)
	if len(devices) == 0 {
		t.Skip("OpenCL GPU not available")
	}
	return b
}

func plantedSpec(t *testing.T, template string, p nonce.Pair) *searchspec.Spec {
	t.Helper()
	s, err := searchspec.Parse("00000000", template, "0")
	require.NoError(t, err)
	s.Target = validator.Selector(s.Message(p))
	return s
}

func dispatch(t *testing.T, b compute.Backend, s *searchspec.Spec, outer nonce.Outer, lanes uint32, capacity int) *compute.ResultSlots {
	t.Helper()
	prog, err := kernel.Build(s, outer, kernels.Keccak256)
	require.NoError(t, err)
	ctx, err := b.NewContext(0, prog)
	require.NoError(t, err)
	defer ctx.Close()

	slots := compute.NewResultSlots(capacity)
	require.NoError(t, ctx.Dispatch(lanes, slots))
	return slots
}

func TestOpenCLFindsPlantedPair(t *testing.T) {
	b := openCLOrSkip(t, compute.DefaultSlotCapacity)

	tests := map[string]struct {
		template string
		pair     nonce.Pair
	}{
		"inner zero":       {"transfer00000000(address,uint256)", nonce.Pair{Outer: 0x2A, Inner: 0}},
		"hex letter lanes": {"claim_00000000(uint256)", nonce.Pair{Outer: 0xFF, Inner: 0xABCDEF}},
		"long template":    {"f00000000(uint256,uint256,uint256,uint256,address,address,bytes32,bytes32,bytes32,bytes32,bytes)", nonce.Pair{Outer: 3, Inner: 123456}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s := plantedSpec(t, tc.template, tc.pair)
			slots := dispatch(t, b, s, tc.pair.Outer, nonce.InnerSpace, compute.DefaultSlotCapacity)

			values := slots.Values()
			assert.Contains(t, values, uint32(tc.pair.Inner))
			for _, v := range values {
				_, ok := validator.Verify(s, nonce.Pair{Outer: tc.pair.Outer, Inner: nonce.Inner(v)})
				assert.True(t, ok, "slot value %06X does not verify on the host", v)
			}
		})
	}
}

func TestOpenCLMatchesCPUOnOverflow(t *testing.T) {
	b := openCLOrSkip(t, 1)

	// Two lanes whose selectors collide make a target with at least two
	// matches in the first 2^19 lanes.
	const lanes = 1 << 19
	s, err := searchspec.Parse("00000000", "collide_00000000(bytes)", "0")
	require.NoError(t, err)
	seen := make(map[[4]byte]uint32, lanes)
	found := false
	for i := uint32(0); i < lanes && !found; i++ {
		sel := validator.Selector(s.Message(nonce.Pair{Outer: 0, Inner: nonce.Inner(i)}))
		if _, dup := seen[sel]; dup {
			s.Target = sel
			found = true
		}
		seen[sel] = i
	}
	require.True(t, found, "no selector collision in the first lanes")

	gpu := dispatch(t, b, s, 0, lanes, 1)
	host := dispatch(t, compute.NewCPU(0), s, 0, lanes, 1)

	assert.GreaterOrEqual(t, gpu.Matches(), 2)
	assert.Equal(t, host.Matches(), gpu.Matches())
	assert.True(t, gpu.Overflow())
	require.Len(t, gpu.Values(), 1)
	_, ok := validator.Verify(s, nonce.Pair{Outer: 0, Inner: nonce.Inner(gpu.Values()[0])})
	assert.True(t, ok)
}

func TestOpenCLRejectsMalformedProgram(t *testing.T) {
	b := openCLOrSkip(t, compute.DefaultSlotCapacity)
	s := plantedSpec(t, "f00000000()", nonce.Pair{Outer: 1, Inner: 77})

	prog, err := kernel.Build(s, 1, "__kernel void hashMessage(__global uint *x) { x[0] = ")
	require.NoError(t, err)
	_, err = b.NewContext(0, prog)
	assert.ErrorIs(t, err, compute.ErrBackend)

	// The failed build released its resources; the device still compiles.
	slots := dispatch(t, b, s, 1, nonce.InnerSpace, compute.DefaultSlotCapacity)
	assert.Contains(t, slots.Values(), uint32(77))
}

func TestOpenCLRejectsBadDeviceIndex(t *testing.T) {
	b := openCLOrSkip(t, compute.DefaultSlotCapacity)
	s := plantedSpec(t, "f00000000()", nonce.Pair{})
	prog, err := kernel.Build(s, 0, kernels.Keccak256)
	require.NoError(t, err)
	_, err = b.NewContext(255, prog)
	assert.ErrorIs(t, err, compute.ErrBackend)
}
