//go:build !opencl || !cgo

package compute

import (
	"fmt"

	"github.com/StormyCloudInc/selector-vanitygen/internal/kernel"
)

// openCLBackend stands in when OpenCL support is not compiled in.
type openCLBackend struct{}

func newOpenCL(int) Backend { return openCLBackend{} }

func (openCLBackend) Name() string { return "opencl" }

// Devices returns nil when OpenCL support is not compiled in.
func (openCLBackend) Devices() ([]Device, error) { return nil, nil }

// NewContext returns an error when OpenCL support is not compiled in.
func (openCLBackend) NewContext(int, *kernel.Program) (Context, error) {
	return nil, fmt.Errorf("%w: OpenCL support not compiled in (build with -tags opencl and cgo)", ErrBackendUnavailable)
}
