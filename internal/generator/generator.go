// Package generator drives a selector search: one build, compile, dispatch,
// read-back and validate cycle per outer nonce, strictly one at a time.
package generator

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/StormyCloudInc/selector-vanitygen/internal/compute"
	"github.com/StormyCloudInc/selector-vanitygen/internal/kernel"
	"github.com/StormyCloudInc/selector-vanitygen/internal/nonce"
	"github.com/StormyCloudInc/selector-vanitygen/internal/searchspec"
	"github.com/StormyCloudInc/selector-vanitygen/internal/validator"
	"github.com/StormyCloudInc/selector-vanitygen/kernels"
)

// OuterRange is an inclusive range of outer nonces.
type OuterRange struct {
	First, Last nonce.Outer
}

// FullRange covers every outer nonce.
var FullRange = OuterRange{First: 0, Last: nonce.OuterSpace - 1}

// Len is the number of outer nonces in the range.
func (r OuterRange) Len() int {
	if r.Last < r.First {
		return 0
	}
	return int(r.Last) - int(r.First) + 1
}

// Options tunes a search. The zero value scans the whole space.
type Options struct {
	// Outers limits the outer nonces visited. Nil means FullRange.
	Outers *OuterRange

	// StopOnFirst ends the search after the first iteration that
	// produced a verified solution.
	StopOnFirst bool

	// Throttle sleeps this fraction of the previous iteration's duration
	// before building the next one. Zero disables it.
	Throttle float64

	SlotCapacity int

	// Lanes per dispatch. Zero means the whole inner space.
	Lanes uint32

	// KernelSource is appended after the generated constants. Empty means
	// the embedded Keccak-256 kernel.
	KernelSource string

	OnSolution  func(validator.Solution)
	OnIteration func(Stats)

	Logger logrus.FieldLogger
}

// Stats holds progress information, sent after every iteration.
type Stats struct {
	Outer        nonce.Outer
	Iteration    int
	Iterations   int
	Checked      uint64
	HashesPerSec float64
	Elapsed      time.Duration
	Solutions    int
}

// Summary is the terminal state of a search.
type Summary struct {
	Solutions  []validator.Solution
	Rejected   []validator.Rejection
	Iterations int
	Checked    uint64
	Overflows  int

	// Exhausted is set when every outer nonce in range was visited.
	Exhausted bool
	// Stopped is set when the search ended early, by cancellation or
	// because StopOnFirst was satisfied.
	Stopped bool
	Elapsed time.Duration
}

// Found reports whether at least one verified solution was produced.
func (s *Summary) Found() bool { return len(s.Solutions) > 0 }

// Generator coordinates the per-outer-nonce iterations of a search.
type Generator struct {
	spec    *searchspec.Spec
	backend compute.Backend
	opts    Options
	log     logrus.FieldLogger

	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates a generator. Missing options get their defaults.
func New(spec *searchspec.Spec, backend compute.Backend, opts Options) *Generator {
	if opts.Outers == nil {
		r := FullRange
		opts.Outers = &r
	}
	if opts.Lanes == 0 || opts.Lanes > nonce.InnerSpace {
		opts.Lanes = nonce.InnerSpace
	}
	if opts.SlotCapacity <= 0 {
		opts.SlotCapacity = compute.DefaultSlotCapacity
	}
	if opts.Throttle < 0 {
		opts.Throttle = 0
	}
	if opts.KernelSource == "" {
		opts.KernelSource = kernels.Keccak256
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Generator{
		spec:    spec,
		backend: backend,
		opts:    opts,
		log:     log.WithField("backend", backend.Name()),
	}
}

// Run validates the device and then visits the outer nonces in order.
// Cancelling ctx or calling Stop ends the search between iterations; a
// launched dispatch always runs to completion. Exhausting the range
// without a solution is not an error.
func (g *Generator) Run(ctx context.Context) (*Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	g.mu.Lock()
	g.cancel = cancel
	g.mu.Unlock()
	defer cancel()

	start := time.Now()
	sum := &Summary{}
	defer func() { sum.Elapsed = time.Since(start) }()

	dev, err := compute.SelectDevice(g.backend, g.spec.DeviceIndex)
	if err != nil {
		return sum, err
	}
	g.log.WithFields(logrus.Fields{
		"device":   dev.Name,
		"target":   g.spec.TargetHex(),
		"template": g.spec.Template(),
		"outers":   g.opts.Outers.Len(),
		"lanes":    g.opts.Lanes,
	}).Info("search started")

	slots := compute.NewResultSlots(g.opts.SlotCapacity)
	v := validator.New(g.spec)
	total := g.opts.Outers.Len()

	var prev time.Duration
	for i := 0; i < total; i++ {
		if g.opts.Throttle > 0 && prev > 0 {
			pause := time.Duration(float64(prev) * g.opts.Throttle)
			select {
			case <-ctx.Done():
			case <-time.After(pause):
			}
		}
		if ctx.Err() != nil {
			sum.Stopped = true
			g.log.Info("search stopped")
			return sum, nil
		}

		outer := g.opts.Outers.First + nonce.Outer(i)
		iterStart := time.Now()
		report, err := g.iterate(outer, slots, v)
		if err != nil {
			return sum, err
		}
		prev = time.Since(iterStart)

		sum.Iterations++
		sum.Checked += uint64(g.opts.Lanes)
		sum.Rejected = append(sum.Rejected, report.Rejections...)
		if report.Overflow {
			sum.Overflows++
		}
		for _, sol := range report.Solutions {
			sum.Solutions = append(sum.Solutions, sol)
			if g.opts.OnSolution != nil {
				g.opts.OnSolution(sol)
			}
		}

		if g.opts.OnIteration != nil {
			elapsed := time.Since(start)
			hps := 0.0
			if elapsed.Seconds() > 0 {
				hps = float64(sum.Checked) / elapsed.Seconds()
			}
			g.opts.OnIteration(Stats{
				Outer:        outer,
				Iteration:    sum.Iterations,
				Iterations:   total,
				Checked:      sum.Checked,
				HashesPerSec: hps,
				Elapsed:      elapsed,
				Solutions:    len(sum.Solutions),
			})
		}

		if g.opts.StopOnFirst && len(report.Solutions) > 0 {
			sum.Stopped = i < total-1
			sum.Exhausted = !sum.Stopped
			return sum, nil
		}
	}

	sum.Exhausted = true
	g.log.WithFields(logrus.Fields{
		"iterations": sum.Iterations,
		"solutions":  len(sum.Solutions),
	}).Info("search space exhausted")
	return sum, nil
}

// Stop cancels the running search after the current iteration.
func (g *Generator) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
	}
}

// iterate runs one outer nonce: build, compile, reset, dispatch, read
// back, validate, release.
func (g *Generator) iterate(outer nonce.Outer, slots *compute.ResultSlots, v *validator.Validator) (validator.Report, error) {
	log := g.log.WithField("outer", fmt.Sprintf("%02X", uint8(outer)))

	prog, err := kernel.Build(g.spec, outer, g.opts.KernelSource)
	if err != nil {
		return validator.Report{}, err
	}

	cctx, err := g.backend.NewContext(g.spec.DeviceIndex, prog)
	if err != nil {
		return validator.Report{}, err
	}
	defer func() {
		if cerr := cctx.Close(); cerr != nil {
			log.WithError(cerr).Warn("releasing compute context")
		}
	}()

	slots.Reset()
	if err := cctx.Dispatch(g.opts.Lanes, slots); err != nil {
		return validator.Report{}, fmt.Errorf("outer nonce %02X: %w", uint8(outer), err)
	}

	report, err := v.Check(outer, slots)
	if err != nil {
		return validator.Report{}, err
	}
	for _, rej := range report.Rejections {
		log.WithField("value", fmt.Sprintf("0x%08X", rej.Value)).Warn("device match rejected: " + rej.Reason)
	}
	if report.Overflow {
		log.WithFields(logrus.Fields{
			"matches":  report.Matches,
			"capacity": slots.Capacity(),
		}).Warn("more matches than result slots, extra matches were dropped")
	}
	for _, sol := range report.Solutions {
		log.WithField("message", string(sol.Message)).Info("solution found")
	}
	log.Debug("iteration complete")
	return report, nil
}
