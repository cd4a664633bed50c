//go:build opencl && cgo

package compute

/*
#cgo linux LDFLAGS: -lOpenCL
#cgo windows LDFLAGS: -lOpenCL
#cgo darwin LDFLAGS: -framework OpenCL

#define CL_TARGET_OPENCL_VERSION 120
#ifdef __APPLE__
#include <OpenCL/cl.h>
#else
#include <CL/cl.h>
#endif

#include <stdlib.h>
#include <string.h>
#include <stdio.h>

typedef struct {
    cl_context context;
    cl_command_queue queue;
    cl_program program;
    cl_kernel kernel;
    cl_mem countBuf;
    cl_mem slotsBuf;
    cl_uint capacity;
} OpenCLContext;

static cl_device_id* g_devices = NULL;
static int g_deviceCount = 0;
static int g_initialized = 0;

static void ensureInit(void) {
    if (g_initialized) return;
    g_initialized = 1;

    cl_uint numPlatforms = 0;
    clGetPlatformIDs(0, NULL, &numPlatforms);
    if (numPlatforms == 0) return;

    cl_platform_id* platforms = (cl_platform_id*)malloc(sizeof(cl_platform_id) * numPlatforms);
    clGetPlatformIDs(numPlatforms, platforms, NULL);

    // Devices are numbered across platforms in enumeration order.
    int total = 0;
    for (cl_uint p = 0; p < numPlatforms; p++) {
        cl_uint nd = 0;
        clGetDeviceIDs(platforms[p], CL_DEVICE_TYPE_GPU, 0, NULL, &nd);
        total += nd;
    }
    if (total == 0) { free(platforms); return; }

    g_devices = (cl_device_id*)malloc(sizeof(cl_device_id) * total);
    int idx = 0;
    for (cl_uint p = 0; p < numPlatforms; p++) {
        cl_uint nd = 0;
        clGetDeviceIDs(platforms[p], CL_DEVICE_TYPE_GPU, 0, NULL, &nd);
        if (nd > 0) {
            clGetDeviceIDs(platforms[p], CL_DEVICE_TYPE_GPU, nd, g_devices + idx, NULL);
            idx += nd;
        }
    }
    g_deviceCount = idx;
    free(platforms);
}

int oclDeviceCount(void) {
    ensureInit();
    return g_deviceCount;
}

char* oclDeviceName(int index) {
    ensureInit();
    if (index < 0 || index >= g_deviceCount) return strdup("Unknown");
    char name[256] = {0};
    clGetDeviceInfo(g_devices[index], CL_DEVICE_NAME, sizeof(name) - 1, name, NULL);
    return strdup(name);
}

char* oclDeviceVendor(int index) {
    ensureInit();
    if (index < 0 || index >= g_deviceCount) return strdup("Unknown");
    char vendor[256] = {0};
    clGetDeviceInfo(g_devices[index], CL_DEVICE_VENDOR, sizeof(vendor) - 1, vendor, NULL);
    return strdup(vendor);
}

int oclDeviceComputeUnits(int index) {
    ensureInit();
    if (index < 0 || index >= g_deviceCount) return 0;
    cl_uint units = 0;
    clGetDeviceInfo(g_devices[index], CL_DEVICE_MAX_COMPUTE_UNITS, sizeof(units), &units, NULL);
    return (int)units;
}

static void releaseContext(OpenCLContext* c) {
    if (c->slotsBuf) clReleaseMemObject(c->slotsBuf);
    if (c->countBuf) clReleaseMemObject(c->countBuf);
    if (c->kernel) clReleaseKernel(c->kernel);
    if (c->program) clReleaseProgram(c->program);
    if (c->queue) clReleaseCommandQueue(c->queue);
    if (c->context) clReleaseContext(c->context);
    free(c);
}

// oclNewContext creates context, queue, program, kernel and result buffers
// in that order. On failure everything created so far is released and a
// description is written to errBuf.
void* oclNewContext(int deviceIndex, const char* src, size_t srcLen,
                    const char* entry, unsigned int capacity,
                    char* errBuf, size_t errLen) {
    ensureInit();
    if (deviceIndex < 0 || deviceIndex >= g_deviceCount) {
        snprintf(errBuf, errLen, "device index %d out of range", deviceIndex);
        return NULL;
    }

    cl_device_id dev = g_devices[deviceIndex];
    cl_int err;
    OpenCLContext* c = (OpenCLContext*)calloc(1, sizeof(OpenCLContext));
    c->capacity = capacity;

    c->context = clCreateContext(NULL, 1, &dev, NULL, NULL, &err);
    if (err != CL_SUCCESS) {
        c->context = NULL;
        snprintf(errBuf, errLen, "clCreateContext: %d", err);
        releaseContext(c);
        return NULL;
    }

    c->queue = clCreateCommandQueue(c->context, dev, 0, &err);
    if (err != CL_SUCCESS) {
        c->queue = NULL;
        snprintf(errBuf, errLen, "clCreateCommandQueue: %d", err);
        releaseContext(c);
        return NULL;
    }

    c->program = clCreateProgramWithSource(c->context, 1, &src, &srcLen, &err);
    if (err != CL_SUCCESS) {
        c->program = NULL;
        snprintf(errBuf, errLen, "clCreateProgramWithSource: %d", err);
        releaseContext(c);
        return NULL;
    }

    err = clBuildProgram(c->program, 1, &dev, NULL, NULL, NULL);
    if (err != CL_SUCCESS) {
        char log[4096] = {0};
        clGetProgramBuildInfo(c->program, dev, CL_PROGRAM_BUILD_LOG, sizeof(log) - 1, log, NULL);
        snprintf(errBuf, errLen, "clBuildProgram: %d: %s", err, log);
        releaseContext(c);
        return NULL;
    }

    c->kernel = clCreateKernel(c->program, entry, &err);
    if (err != CL_SUCCESS) {
        c->kernel = NULL;
        snprintf(errBuf, errLen, "clCreateKernel(%s): %d", entry, err);
        releaseContext(c);
        return NULL;
    }

    c->countBuf = clCreateBuffer(c->context, CL_MEM_READ_WRITE, sizeof(cl_uint), NULL, &err);
    if (err != CL_SUCCESS) {
        c->countBuf = NULL;
        snprintf(errBuf, errLen, "clCreateBuffer(count): %d", err);
        releaseContext(c);
        return NULL;
    }
    c->slotsBuf = clCreateBuffer(c->context, CL_MEM_READ_WRITE, sizeof(cl_uint) * capacity, NULL, &err);
    if (err != CL_SUCCESS) {
        c->slotsBuf = NULL;
        snprintf(errBuf, errLen, "clCreateBuffer(slots): %d", err);
        releaseContext(c);
        return NULL;
    }

    clSetKernelArg(c->kernel, 0, sizeof(cl_mem), &c->countBuf);
    clSetKernelArg(c->kernel, 1, sizeof(cl_mem), &c->slotsBuf);
    clSetKernelArg(c->kernel, 2, sizeof(cl_uint), &c->capacity);
    return c;
}

// oclDispatch uploads the reset slots, runs lanes work items and reads the
// slots back. It returns CL_SUCCESS or the first failing status.
int oclDispatch(void* handle, unsigned int lanes,
                unsigned int* matches, unsigned int* values) {
    OpenCLContext* c = (OpenCLContext*)handle;
    cl_int err;

    err = clEnqueueWriteBuffer(c->queue, c->countBuf, CL_TRUE, 0, sizeof(cl_uint), matches, 0, NULL, NULL);
    if (err != CL_SUCCESS) return err;
    err = clEnqueueWriteBuffer(c->queue, c->slotsBuf, CL_TRUE, 0, sizeof(cl_uint) * c->capacity, values, 0, NULL, NULL);
    if (err != CL_SUCCESS) return err;

    size_t globalSize = (size_t)lanes;
    err = clEnqueueNDRangeKernel(c->queue, c->kernel, 1, NULL, &globalSize, NULL, 0, NULL, NULL);
    if (err != CL_SUCCESS) return err;

    err = clFinish(c->queue);
    if (err != CL_SUCCESS) return err;

    err = clEnqueueReadBuffer(c->queue, c->countBuf, CL_TRUE, 0, sizeof(cl_uint), matches, 0, NULL, NULL);
    if (err != CL_SUCCESS) return err;
    return clEnqueueReadBuffer(c->queue, c->slotsBuf, CL_TRUE, 0, sizeof(cl_uint) * c->capacity, values, 0, NULL, NULL);
}

void oclFreeContext(void* handle) {
    if (handle) releaseContext((OpenCLContext*)handle);
}
*/
import "C"
import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/StormyCloudInc/selector-vanitygen/internal/kernel"
)

type openCLBackend struct {
	capacity int
}

func newOpenCL(capacity int) Backend { return openCLBackend{capacity: capacity} }

func (openCLBackend) Name() string { return "opencl" }

// Devices enumerates OpenCL GPU devices across all platforms.
func (b openCLBackend) Devices() ([]Device, error) {
	count := int(C.oclDeviceCount())
	if count == 0 {
		return nil, nil
	}

	devices := make([]Device, count)
	for i := 0; i < count; i++ {
		cName := C.oclDeviceName(C.int(i))
		cVendor := C.oclDeviceVendor(C.int(i))
		devices[i] = Device{
			Index:        i,
			Name:         C.GoString(cName),
			Vendor:       C.GoString(cVendor),
			ComputeUnits: int(C.oclDeviceComputeUnits(C.int(i))),
			Backend:      b.Name(),
		}
		C.free(unsafe.Pointer(cName))
		C.free(unsafe.Pointer(cVendor))
	}
	return devices, nil
}

func (b openCLBackend) NewContext(deviceIndex int, prog *kernel.Program) (Context, error) {
	if int(C.oclDeviceCount()) == 0 {
		return nil, fmt.Errorf("%w: no OpenCL GPU found", ErrBackendUnavailable)
	}

	cSrc := C.CString(prog.Source)
	defer C.free(unsafe.Pointer(cSrc))
	cEntry := C.CString(kernel.EntryPoint)
	defer C.free(unsafe.Pointer(cEntry))

	var errBuf [8192]C.char
	capacity := b.capacity
	handle := C.oclNewContext(
		C.int(deviceIndex),
		cSrc,
		C.size_t(len(prog.Source)),
		cEntry,
		C.uint(capacity),
		&errBuf[0],
		C.size_t(len(errBuf)),
	)
	if handle == nil {
		return nil, fmt.Errorf("%w: outer nonce %d: %s", ErrBackend, prog.Outer, C.GoString(&errBuf[0]))
	}
	return &openCLContext{handle: handle, capacity: capacity}, nil
}

type openCLContext struct {
	mu       sync.Mutex
	handle   unsafe.Pointer
	capacity int
}

func (c *openCLContext) Dispatch(lanes uint32, slots *ResultSlots) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil {
		return fmt.Errorf("%w: dispatch on released context", ErrBackend)
	}
	if slots.Capacity() != c.capacity {
		return fmt.Errorf("%w: slot capacity %d, context built for %d", ErrBackend, slots.Capacity(), c.capacity)
	}

	matches := C.uint(slots.Matches())
	values := make([]C.uint, c.capacity)
	for i, v := range slots.Raw() {
		values[i] = C.uint(v)
	}

	if status := C.oclDispatch(c.handle, C.uint(lanes), &matches, &values[0]); status != C.CL_SUCCESS {
		return fmt.Errorf("%w: kernel dispatch failed with status %d", ErrBackend, int(status))
	}

	out := make([]uint32, c.capacity)
	for i, v := range values {
		out[i] = uint32(v)
	}
	slots.Load(uint32(matches), out)
	return nil
}

func (c *openCLContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle != nil {
		C.oclFreeContext(c.handle)
		c.handle = nil
	}
	return nil
}
