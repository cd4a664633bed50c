package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StormyCloudInc/selector-vanitygen/internal/compute"
	"github.com/StormyCloudInc/selector-vanitygen/internal/kernel"
	"github.com/StormyCloudInc/selector-vanitygen/internal/nonce"
	"github.com/StormyCloudInc/selector-vanitygen/internal/searchspec"
	"github.com/StormyCloudInc/selector-vanitygen/internal/validator"
)

func specFor(t *testing.T, template string, p nonce.Pair) *searchspec.Spec {
	t.Helper()
	s, err := searchspec.Parse("00000000", template, "0")
	require.NoError(t, err)
	s.Target = validator.Selector(s.Message(p))
	return s
}

func TestRunFindsPlantedSolution(t *testing.T) {
	want := nonce.Pair{Outer: 3, Inner: 100}
	spec := specFor(t, "mint00000000(address)", want)

	var found []validator.Solution
	var stats []Stats
	g := New(spec, compute.NewCPU(2), Options{
		Outers:      &OuterRange{First: 2, Last: 4},
		Lanes:       1 << 10,
		OnSolution:  func(s validator.Solution) { found = append(found, s) },
		OnIteration: func(s Stats) { stats = append(stats, s) },
	})

	sum, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.Exhausted)
	assert.False(t, sum.Stopped)
	assert.Equal(t, 3, sum.Iterations)
	assert.Equal(t, uint64(3<<10), sum.Checked)
	require.True(t, sum.Found())
	assert.Contains(t, sum.Solutions, found[0])

	sol := found[0]
	assert.Equal(t, want, sol.Pair)
	assert.Equal(t, "mint03000064(address)", string(sol.Message))
	assert.Equal(t, spec.Target[:], sol.Digest[:4])

	require.Len(t, stats, 3)
	assert.Equal(t, nonce.Outer(2), stats[0].Outer)
	assert.Equal(t, nonce.Outer(4), stats[2].Outer)
	assert.Equal(t, 3, stats[2].Iterations)
	assert.Equal(t, 1, stats[2].Solutions)
}

func TestRunStopOnFirst(t *testing.T) {
	want := nonce.Pair{Outer: 3, Inner: 7}
	spec := specFor(t, "f00000000()", want)

	g := New(spec, compute.NewCPU(1), Options{
		Outers:      &OuterRange{First: 2, Last: 9},
		Lanes:       64,
		StopOnFirst: true,
	})
	sum, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.Stopped)
	assert.False(t, sum.Exhausted)
	assert.Equal(t, 2, sum.Iterations)
	require.Len(t, sum.Solutions, 1)
	assert.Equal(t, want, sum.Solutions[0].Pair)
}

func TestRunExhaustsWithoutSolution(t *testing.T) {
	// The planted inner nonce lies outside the dispatched lanes.
	spec := specFor(t, "f00000000()", nonce.Pair{Outer: 1, Inner: 5000})

	g := New(spec, compute.NewCPU(1), Options{
		Outers: &OuterRange{First: 0, Last: 1},
		Lanes:  256,
	})
	sum, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.Exhausted)
	assert.False(t, sum.Found())
	assert.Empty(t, sum.Rejected)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	spec := specFor(t, "f00000000()", nonce.Pair{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := New(spec, compute.NewCPU(1), Options{Lanes: 16}).Run(ctx)
	require.NoError(t, err)
	assert.True(t, sum.Stopped)
	assert.Zero(t, sum.Iterations)
}

func TestRunRejectsUnknownDevice(t *testing.T) {
	spec := specFor(t, "f00000000()", nonce.Pair{})
	spec.DeviceIndex = 4

	fb := &fakeBackend{}
	_, err := New(spec, fb, Options{Lanes: 16}).Run(context.Background())
	assert.ErrorIs(t, err, compute.ErrNoDevice)
	assert.Zero(t, fb.opened, "no search work before device validation")
}

func TestRunStopsOnBackendError(t *testing.T) {
	spec := specFor(t, "f00000000()", nonce.Pair{})
	boom := errors.New("device lost")
	fb := &fakeBackend{failAt: 2, err: boom}

	sum, err := New(spec, fb, Options{Lanes: 16}).Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, sum.Iterations)
	assert.Equal(t, 3, fb.opened)
	assert.Equal(t, fb.opened, fb.closed, "every context released")
}

func TestRunReportsRejectedMatches(t *testing.T) {
	spec := specFor(t, "f00000000()", nonce.Pair{Outer: 0, Inner: 1})
	fb := &fakeBackend{record: []uint32{2, 3}}

	sum, err := New(spec, fb, Options{
		Outers:       &OuterRange{First: 0, Last: 0},
		Lanes:        16,
		SlotCapacity: 1,
	}).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, sum.Found())
	require.Len(t, sum.Rejected, 1)
	assert.Equal(t, uint32(2), sum.Rejected[0].Value)
	assert.Equal(t, 1, sum.Overflows)
}

func TestRunCompilesOneProgramPerOuter(t *testing.T) {
	spec := specFor(t, "f00000000()", nonce.Pair{})
	fb := &fakeBackend{}

	_, err := New(spec, fb, Options{
		Outers: &OuterRange{First: 250, Last: 255},
		Lanes:  16,
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []nonce.Outer{250, 251, 252, 253, 254, 255}, fb.outers)
}

func TestRunThrottleAndStop(t *testing.T) {
	spec := specFor(t, "f00000000()", nonce.Pair{})
	fb := &fakeBackend{delay: 5 * time.Millisecond}

	var g *Generator
	g = New(spec, fb, Options{
		Lanes:    16,
		Throttle: 1,
		OnIteration: func(s Stats) {
			if s.Iteration == 2 {
				g.Stop()
			}
		},
	})
	sum, err := g.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.Stopped)
	assert.Equal(t, 2, sum.Iterations)
}

func TestOuterRangeLen(t *testing.T) {
	assert.Equal(t, 256, FullRange.Len())
	assert.Equal(t, 1, OuterRange{First: 7, Last: 7}.Len())
	assert.Zero(t, OuterRange{First: 8, Last: 7}.Len())
}

type fakeBackend struct {
	failAt int
	err    error
	record []uint32
	delay  time.Duration

	opened, closed int
	outers         []nonce.Outer
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Devices() ([]compute.Device, error) {
	return []compute.Device{{Name: "fake device", Backend: "fake"}}, nil
}

func (f *fakeBackend) NewContext(_ int, prog *kernel.Program) (compute.Context, error) {
	f.opened++
	f.outers = append(f.outers, prog.Outer)
	return &fakeContext{b: f, n: f.opened}, nil
}

type fakeContext struct {
	b *fakeBackend
	n int
}

func (c *fakeContext) Dispatch(_ uint32, slots *compute.ResultSlots) error {
	time.Sleep(c.b.delay)
	if c.b.err != nil && c.n > c.b.failAt {
		return c.b.err
	}
	for _, v := range c.b.record {
		slots.Record(v)
	}
	return nil
}

func (c *fakeContext) Close() error {
	c.b.closed++
	return nil
}
