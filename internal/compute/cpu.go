package compute

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	psutil "github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/cpu"

	"github.com/StormyCloudInc/selector-vanitygen/internal/keccak"
	"github.com/StormyCloudInc/selector-vanitygen/internal/kernel"
	"github.com/StormyCloudInc/selector-vanitygen/internal/nonce"
)

// lanesPerChunk is how many consecutive lanes one goroutine runs.
const lanesPerChunk = 1 << 14

// CPUBackend runs the hashing kernel on the host, one goroutine per core.
// Its compile step reads the constants back out of the generated program
// text, so it executes exactly what a device would be handed.
type CPUBackend struct {
	workers int
}

// NewCPU creates a host backend. workers <= 0 means one per logical CPU.
func NewCPU(workers int) *CPUBackend {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &CPUBackend{workers: workers}
}

func (b *CPUBackend) Name() string { return "cpu" }

// Devices reports the host processor as the single device.
func (b *CPUBackend) Devices() ([]Device, error) {
	d := Device{
		Index:        0,
		Name:         runtime.GOARCH + " host processor",
		ComputeUnits: b.workers,
		Features:     hostFeatures(),
		Backend:      b.Name(),
	}
	if infos, err := psutil.Info(); err == nil && len(infos) > 0 {
		if infos[0].ModelName != "" {
			d.Name = infos[0].ModelName
		}
		d.Vendor = infos[0].VendorID
	}
	return []Device{d}, nil
}

func (b *CPUBackend) NewContext(deviceIndex int, prog *kernel.Program) (Context, error) {
	if deviceIndex != 0 {
		return nil, fmt.Errorf("%w: index %d, cpu backend has 1 device", ErrNoDevice, deviceIndex)
	}
	consts, err := kernel.ParseConstants(prog.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: compiling program for outer nonce %d: %w", ErrBackend, prog.Outer, err)
	}
	return &cpuContext{consts: consts, workers: b.workers}, nil
}

type cpuContext struct {
	consts  *kernel.Constants
	workers int

	mu     sync.Mutex
	closed bool
}

func (c *cpuContext) Dispatch(lanes uint32, slots *ResultSlots) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: dispatch on released context", ErrBackend)
	}
	if lanes > nonce.InnerSpace {
		return fmt.Errorf("%w: %d lanes exceed the inner nonce space", ErrBackend, lanes)
	}

	var g errgroup.Group
	g.SetLimit(c.workers)
	for start := uint32(0); start < lanes; start += lanesPerChunk {
		end := min(start+lanesPerChunk, lanes)
		g.Go(func() error {
			c.runLanes(start, end, slots)
			return nil
		})
	}
	return g.Wait()
}

// runLanes is the kernel body for lanes [start, end).
func (c *cpuContext) runLanes(start, end uint32, slots *ResultSlots) {
	block := c.consts.Block
	pos := c.consts.NonceStart
	t := c.consts.Target
	for lane := start; lane < end; lane++ {
		nonce.PutInner(block[pos:], nonce.Inner(lane))
		d := keccak.PermuteBlock(&block)
		if d[0] == t[0] && d[1] == t[1] && d[2] == t[2] && d[3] == t[3] {
			slots.Record(lane)
		}
	}
}

func (c *cpuContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.consts = nil
	return nil
}

func hostFeatures() string {
	var f []string
	switch runtime.GOARCH {
	case "amd64":
		if cpu.X86.HasAVX2 {
			f = append(f, "avx2")
		}
		if cpu.X86.HasAVX512F {
			f = append(f, "avx512f")
		}
		if cpu.X86.HasBMI2 {
			f = append(f, "bmi2")
		}
	case "arm64":
		if cpu.ARM64.HasSHA3 {
			f = append(f, "sha3")
		}
		if cpu.ARM64.HasASIMD {
			f = append(f, "asimd")
		}
	}
	return strings.Join(f, ",")
}
