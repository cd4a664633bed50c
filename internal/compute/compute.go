// Package compute owns the device side of a search: picking a device,
// compiling one generated program per outer nonce, dispatching it over the
// inner nonce space and reading the result slots back.
package compute

import (
	"errors"
	"fmt"
	"strings"

	"github.com/StormyCloudInc/selector-vanitygen/internal/kernel"
)

var (
	// ErrBackend is wrapped by every device-side failure. None are retried.
	ErrBackend = errors.New("compute backend error")

	// ErrBackendUnavailable means the backend was not compiled in or found
	// no platform.
	ErrBackendUnavailable = fmt.Errorf("%w: backend not available", ErrBackend)

	// ErrNoDevice means the requested device index does not exist.
	ErrNoDevice = fmt.Errorf("%w: no such device", ErrBackend)
)

// Device represents a detected compute device.
type Device struct {
	Index        int    `json:"index" yaml:"index"`
	Name         string `json:"name" yaml:"name"`
	Vendor       string `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	ComputeUnits int    `json:"compute_units" yaml:"compute_units"`
	Features     string `json:"features,omitempty" yaml:"features,omitempty"`
	Backend      string `json:"backend" yaml:"backend"` // "cpu" or "opencl"
}

func (d Device) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d - %s - %s", d.Index, d.Backend, d.Name)
	if d.Vendor != "" {
		fmt.Fprintf(&b, " (%s)", d.Vendor)
	}
	if d.ComputeUnits > 0 {
		fmt.Fprintf(&b, ", %d compute units", d.ComputeUnits)
	}
	if d.Features != "" {
		fmt.Fprintf(&b, ", %s", d.Features)
	}
	return b.String()
}

// Backend creates compute contexts on one kind of device.
type Backend interface {
	Name() string

	// Devices enumerates the devices this backend can run on.
	Devices() ([]Device, error)

	// NewContext acquires platform, device, context, queue and the compiled
	// program for prog, in that order. Everything acquired is released
	// again if a later step fails.
	NewContext(deviceIndex int, prog *kernel.Program) (Context, error)
}

// Context is a compiled program bound to a device for one outer nonce.
// It must be closed with Close.
type Context interface {
	// Dispatch runs lanes independent lanes, lane i testing inner nonce i,
	// and blocks until all lanes finished and slots holds the read-back
	// results. A launched dispatch cannot be cancelled.
	Dispatch(lanes uint32, slots *ResultSlots) error

	// Close releases every resource of the context. It is safe to call
	// more than once.
	Close() error
}

// SelectDevice checks that index names a device of b. Call it before any
// search work begins.
func SelectDevice(b Backend, index int) (Device, error) {
	devices, err := b.Devices()
	if err != nil {
		return Device{}, err
	}
	if len(devices) == 0 {
		return Device{}, fmt.Errorf("%w: %s backend found no devices", ErrBackendUnavailable, b.Name())
	}
	if index < 0 || index >= len(devices) {
		return Device{}, fmt.Errorf("%w: index %d, %s backend has %d device(s)", ErrNoDevice, index, b.Name(), len(devices))
	}
	return devices[index], nil
}

// Options tunes a backend at construction.
type Options struct {
	Workers      int // host goroutines, cpu backend only
	SlotCapacity int // device-side result buffer size, opencl backend only
}

// New returns the backend registered under name.
func New(name string, opts Options) (Backend, error) {
	switch strings.ToLower(name) {
	case "", "cpu":
		return NewCPU(opts.Workers), nil
	case "opencl", "gpu":
		if opts.SlotCapacity <= 0 {
			opts.SlotCapacity = DefaultSlotCapacity
		}
		return newOpenCL(opts.SlotCapacity), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q (allowed: cpu, opencl)", ErrBackend, name)
	}
}
