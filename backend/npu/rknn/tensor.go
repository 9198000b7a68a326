package rknn

/*
#include "rknn_api.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"strings"
	"unsafe"
)

// TensorFormat wraps C.rknn_tensor_format
type TensorFormat int

const (
	TensorNCHW      TensorFormat = C.RKNN_TENSOR_NCHW
	TensorNHWC      TensorFormat = C.RKNN_TENSOR_NHWC
	TensorUndefined TensorFormat = C.RKNN_TENSOR_UNDEFINED
)

// String returns a readable description of the TensorFormat
func (t TensorFormat) String() string {
	switch t {
	case TensorNCHW:
		return "NCHW"
	case TensorNHWC:
		return "NHWC"
	case TensorUndefined:
		return "UNDEFINED"
	default:
		return "UNKNOWN"
	}
}

// TensorType wraps C.rknn_tensor_type
type TensorType int

const (
	TensorFloat32 TensorType = C.RKNN_TENSOR_FLOAT32
	TensorFloat16 TensorType = C.RKNN_TENSOR_FLOAT16
	TensorInt8    TensorType = C.RKNN_TENSOR_INT8
	TensorUint8   TensorType = C.RKNN_TENSOR_UINT8
)

// String returns a readable description of the TensorType
func (t TensorType) String() string {
	switch t {
	case TensorFloat32:
		return "FP32"
	case TensorFloat16:
		return "FP16"
	case TensorInt8:
		return "INT8"
	case TensorUint8:
		return "UINT8"
	default:
		return "UNKNOWN"
	}
}

// maxDims is the maximum number of dimensions of a tensor
const maxDims = C.RKNN_MAX_DIMS

// TensorAttr holds the parts of C.rknn_tensor_attr used for pre and post
// processing
type TensorAttr struct {
	Index  uint32
	NDims  uint32
	Dims   [maxDims]uint32
	Name   string
	NElems uint32
	Size   uint32
	Fmt    TensorFormat
	Type   TensorType
	ZP     int32
	Scale  float32
}

// String returns the TensorAttr's attributes formatted as a string
func (a TensorAttr) String() string {
	return fmt.Sprintf("index=%d, name=%s, n_dims=%d, dims=[%d, %d, %d, %d], "+
		"n_elems=%d, size=%d, fmt=%s, type=%s, zp=%d, scale=%f",
		a.Index, a.Name, a.NDims, a.Dims[0], a.Dims[1], a.Dims[2], a.Dims[3],
		a.NElems, a.Size, a.Fmt, a.Type, a.ZP, a.Scale,
	)
}

// convertTensorAttr converts a C.rknn_tensor_attr to a Go TensorAttr
func convertTensorAttr(cAttr *C.rknn_tensor_attr) TensorAttr {

	name := C.GoStringN(&cAttr.name[0], C.RKNN_MAX_NAME_LEN)

	// trim at the first null byte
	if i := strings.IndexByte(name, 0); i != -1 {
		name = name[:i]
	}

	return TensorAttr{
		Index:  uint32(cAttr.index),
		NDims:  uint32(cAttr.n_dims),
		Dims:   *(*[maxDims]uint32)(unsafe.Pointer(&cAttr.dims)),
		Name:   name,
		NElems: uint32(cAttr.n_elems),
		Size:   uint32(cAttr.size),
		Fmt:    TensorFormat(cAttr.fmt),
		Type:   TensorType(cAttr._type),
		ZP:     int32(cAttr.zp),
		Scale:  float32(cAttr.scale),
	}
}

// ioNumber represents the C.rknn_input_output_num struct
type ioNumber struct {
	input  uint32
	output uint32
}

// queryIONumber queries the number of input and output tensors of the model
func (r *Runtime) queryIONumber() (ioNumber, error) {

	var cIONum C.rknn_input_output_num

	ret := C.rknn_query(r.ctx, C.RKNN_QUERY_IN_OUT_NUM, unsafe.Pointer(&cIONum),
		C.uint(C.sizeof_rknn_input_output_num))

	if ret != C.RKNN_SUCC {
		return ioNumber{}, fmt.Errorf("C.rknn_query RKNN_QUERY_IN_OUT_NUM failed with code %d, error: %s",
			int(ret), ErrorCode(ret).String())
	}

	return ioNumber{
		input:  uint32(cIONum.n_input),
		output: uint32(cIONum.n_output),
	}, nil
}

// queryTensors gets the attributes of n input or output tensors depending
// on cmd
func (r *Runtime) queryTensors(cmd C.rknn_query_cmd, n uint32) ([]TensorAttr, error) {

	attrs := make([]TensorAttr, n)

	for i := uint32(0); i < n; i++ {
		var cAttr C.rknn_tensor_attr
		cAttr.index = C.uint32_t(i)

		ret := C.rknn_query(r.ctx, cmd, unsafe.Pointer(&cAttr),
			C.uint(unsafe.Sizeof(cAttr)))

		if ret != C.RKNN_SUCC {
			return nil, fmt.Errorf("C.rknn_query tensor %d failed with code %d, error: %s",
				i, int(ret), ErrorCode(ret).String())
		}

		attrs[i] = convertTensorAttr(&cAttr)
	}

	return attrs, nil
}
