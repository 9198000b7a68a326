package rknn

/*
#include "rknn_api.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"unsafe"

	"gocv.io/x/gocv"
)

// Inference runs the model on a single NHWC uint8 image Mat sized to the
// model input and returns every output tensor as float32.  The returned
// slices are Go memory and remain valid after the call
func (r *Runtime) Inference(mat gocv.Mat) ([][]float32, error) {

	if !mat.IsContinuous() {
		mat = mat.Clone()
		defer mat.Close()
	}

	data, err := mat.DataPtrUint8()

	if err != nil {
		return nil, fmt.Errorf("error getting data pointer to Mat: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("input Mat is empty")
	}

	err = r.setInput(unsafe.Pointer(&data[0]), len(data))

	if err != nil {
		return nil, fmt.Errorf("error setting inputs: %w", err)
	}

	ret := C.rknn_run(r.ctx, nil)

	if ret < 0 {
		return nil, fmt.Errorf("C.rknn_run failed with code %d, error: %s",
			int(ret), ErrorCode(ret).String())
	}

	return r.outputs()
}

// setInput wraps C.rknn_inputs_set for the first model input.  buf must
// point to C memory
func (r *Runtime) setInput(buf unsafe.Pointer, size int) error {

	var cInput C.rknn_input
	cInput.index = 0
	cInput.buf = buf
	cInput.size = C.uint32_t(size)
	cInput.pass_through = 0
	cInput._type = C.rknn_tensor_type(TensorUint8)
	cInput.fmt = C.rknn_tensor_format(TensorNHWC)

	ret := C.rknn_inputs_set(r.ctx, 1, &cInput)

	if ret != C.RKNN_SUCC {
		return fmt.Errorf("C.rknn_inputs_set failed with code %d, error: %s",
			int(ret), ErrorCode(ret).String())
	}

	return nil
}

// outputs fetches all output tensors, copies them to Go memory and
// releases the C buffers.  FP16 tensors are fetched raw and converted here
// as this is faster than having the runtime convert them
func (r *Runtime) outputs() ([][]float32, error) {

	n := int(r.ioNum.output)

	if n == 0 {
		return nil, nil
	}

	cOutputs := make([]C.rknn_output, n)

	for i := range cOutputs {
		cOutputs[i].index = C.uint32_t(i)
		cOutputs[i].want_float = 1

		if r.outputAttrs[i].Type == TensorFloat16 {
			cOutputs[i].want_float = 0
		}
	}

	ret := C.rknn_outputs_get(r.ctx, C.uint32_t(n), &cOutputs[0], nil)

	if ret < 0 {
		return nil, fmt.Errorf("C.rknn_outputs_get failed with code %d, error: %s",
			int(ret), ErrorCode(ret).String())
	}

	result := make([][]float32, n)

	for i, cOut := range cOutputs {
		if cOut.want_float == 1 {
			buf := unsafe.Slice((*float32)(cOut.buf), int(cOut.size)/4)
			result[i] = make([]float32, len(buf))
			copy(result[i], buf)
		} else {
			buf := unsafe.Slice((*uint16)(cOut.buf), int(cOut.size)/2)
			result[i] = float16ToFloat32(buf)
		}
	}

	ret = C.rknn_outputs_release(r.ctx, C.uint32_t(n), &cOutputs[0])

	if ret != C.RKNN_SUCC {
		return nil, fmt.Errorf("C.rknn_outputs_release failed with code %d, error: %s",
			int(ret), ErrorCode(ret).String())
	}

	return result, nil
}
