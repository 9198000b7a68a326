package rknn

/*
#include "rknn_api.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"os"
	"unsafe"
)

// CoreMask wraps C.rknn_core_mask and selects which NPU cores a model runs on
type CoreMask int

const (
	NPUCoreAuto    CoreMask = C.RKNN_NPU_CORE_AUTO
	NPUCore0       CoreMask = C.RKNN_NPU_CORE_0
	NPUCore1       CoreMask = C.RKNN_NPU_CORE_1
	NPUCore2       CoreMask = C.RKNN_NPU_CORE_2
	NPUCore012     CoreMask = C.RKNN_NPU_CORE_0_1_2
	NPUSkipSetCore CoreMask = 9999
)

// platformCores lists the core mask to use per Rockchip platform.  Setting
// the core mask is only supported on the multi core NPUs
var platformCores = map[string]CoreMask{
	"rk3588": NPUCoreAuto,
	"rk3582": NPUCoreAuto,
	"rk3576": NPUCoreAuto,
	"rk3568": NPUSkipSetCore,
	"rk3566": NPUSkipSetCore,
	"rk3562": NPUSkipSetCore,
}

// PlatformCoreMask returns the core mask to use for the named platform
func PlatformCoreMask(platform string) (CoreMask, error) {

	mask, ok := platformCores[platform]

	if !ok {
		return NPUSkipSetCore, fmt.Errorf("unknown platform %q", platform)
	}

	return mask, nil
}

// ErrorCode wraps the return codes of the C API
type ErrorCode int

const (
	Success              ErrorCode = C.RKNN_SUCC
	ErrFail              ErrorCode = C.RKNN_ERR_FAIL
	ErrTimeout           ErrorCode = C.RKNN_ERR_TIMEOUT
	ErrDeviceUnavailable ErrorCode = C.RKNN_ERR_DEVICE_UNAVAILABLE
	ErrMallocFail        ErrorCode = C.RKNN_ERR_MALLOC_FAIL
	ErrParamInvalid      ErrorCode = C.RKNN_ERR_PARAM_INVALID
	ErrModelInvalid      ErrorCode = C.RKNN_ERR_MODEL_INVALID
	ErrCtxInvalid        ErrorCode = C.RKNN_ERR_CTX_INVALID
	ErrInputInvalid      ErrorCode = C.RKNN_ERR_INPUT_INVALID
	ErrOutputInvalid     ErrorCode = C.RKNN_ERR_OUTPUT_INVALID
	ErrDeviceMismatch    ErrorCode = C.RKNN_ERR_DEVICE_UNMATCH
	ErrPlatformMismatch  ErrorCode = C.RKNN_ERR_TARGET_PLATFORM_UNMATCH
)

// String returns a readable description of the error code
func (e ErrorCode) String() string {
	switch e {
	case Success:
		return "execution successful"
	case ErrFail:
		return "execution failed"
	case ErrTimeout:
		return "execution timed out"
	case ErrDeviceUnavailable:
		return "device is unavailable"
	case ErrMallocFail:
		return "C memory allocation failed"
	case ErrParamInvalid:
		return "parameter is invalid"
	case ErrModelInvalid:
		return "model file is invalid"
	case ErrCtxInvalid:
		return "context is invalid"
	case ErrInputInvalid:
		return "input is invalid"
	case ErrOutputInvalid:
		return "output is invalid"
	case ErrDeviceMismatch:
		return "device mismatch, please update rknn sdk and npu driver/firmware"
	case ErrPlatformMismatch:
		return "the RKNN model target platform is not compatible with the current platform"
	default:
		return fmt.Sprintf("unknown error code %d", e)
	}
}

// Runtime is a loaded RKNN model on the NPU
type Runtime struct {
	// ctx is the C runtime context
	ctx C.rknn_context
	// ioNum caches the number of model input and output tensors
	ioNum ioNumber
	// inputAttrs caches the input tensor attributes of the model
	inputAttrs []TensorAttr
	// outputAttrs caches the output tensor attributes of the model
	outputAttrs []TensorAttr
}

// NewRuntime loads the RKNN compiled model file onto the NPU cores given
func NewRuntime(modelFile string, core CoreMask) (*Runtime, error) {

	r := &Runtime{}

	err := r.init(modelFile)

	if err != nil {
		return nil, err
	}

	if core != NPUSkipSetCore {
		err = r.setCoreMask(core)

		if err != nil {
			r.Close()
			return nil, err
		}
	}

	r.ioNum, err = r.queryIONumber()

	if err != nil {
		r.Close()
		return nil, err
	}

	r.inputAttrs, err = r.queryTensors(C.RKNN_QUERY_INPUT_ATTR, r.ioNum.input)

	if err != nil {
		r.Close()
		return nil, err
	}

	r.outputAttrs, err = r.queryTensors(C.RKNN_QUERY_OUTPUT_ATTR, r.ioNum.output)

	if err != nil {
		r.Close()
		return nil, err
	}

	if len(r.inputAttrs) == 0 {
		r.Close()
		return nil, fmt.Errorf("model has no input tensors")
	}

	return r, nil
}

// init wraps C.rknn_init which initializes the RKNN context with the given
// model
func (r *Runtime) init(modelFile string) error {

	// check file exists in Go, before passing to C
	info, err := os.Stat(modelFile)

	if err != nil {
		return fmt.Errorf("model file does not exist at %s, error: %w",
			modelFile, err)
	}

	if info.IsDir() {
		return fmt.Errorf("model file is a directory")
	}

	cModelFile := C.CString(modelFile)
	defer C.free(unsafe.Pointer(cModelFile))

	ret := C.rknn_init(&r.ctx, unsafe.Pointer(cModelFile), 0, 0, nil)

	if ret != C.RKNN_SUCC {
		return fmt.Errorf("C.rknn_init call failed with code %d, error: %s",
			ret, ErrorCode(ret).String())
	}

	return nil
}

// setCoreMask wraps C.rknn_set_core_mask
func (r *Runtime) setCoreMask(mask CoreMask) error {

	ret := C.rknn_set_core_mask(r.ctx, C.rknn_core_mask(mask))

	if ret != C.RKNN_SUCC {
		return fmt.Errorf("C.rknn_set_core_mask failed with code %d, error: %s",
			ret, ErrorCode(ret).String())
	}

	return nil
}

// Close wraps C.rknn_destroy which unloads the model and releases all C
// resources
func (r *Runtime) Close() error {

	ret := C.rknn_destroy(r.ctx)

	if ret != C.RKNN_SUCC {
		return fmt.Errorf("C.rknn_destroy failed with code %d, error: %s",
			ret, ErrorCode(ret).String())
	}

	return nil
}

// InputSize returns the width, height and channels of the model input
func (r *Runtime) InputSize() (width, height, channels int) {

	attr := r.inputAttrs[0]

	if attr.Fmt == TensorNCHW {
		return int(attr.Dims[3]), int(attr.Dims[2]), int(attr.Dims[1])
	}

	return int(attr.Dims[2]), int(attr.Dims[1]), int(attr.Dims[3])
}

// InputAttrs returns the model's input tensor attributes
func (r *Runtime) InputAttrs() []TensorAttr {
	return r.inputAttrs
}

// OutputAttrs returns the model's output tensor attributes
func (r *Runtime) OutputAttrs() []TensorAttr {
	return r.outputAttrs
}
