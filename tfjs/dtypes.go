package tfjs

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
)

// DataType enumerates the TensorFlow data types (tensorflow/core/framework/types.proto), the dtypes used
// by the tfjs model topology.
type DataType int32

const (
	DTInvalid    DataType = 0
	DTFloat      DataType = 1
	DTDouble     DataType = 2
	DTInt32      DataType = 3
	DTUint8      DataType = 4
	DTInt16      DataType = 5
	DTInt8       DataType = 6
	DTString     DataType = 7
	DTComplex64  DataType = 8
	DTInt64      DataType = 9
	DTBool       DataType = 10
	DTQInt8      DataType = 11
	DTQUint8     DataType = 12
	DTQInt32     DataType = 13
	DTBFloat16   DataType = 14
	DTQInt16     DataType = 15
	DTQUint16    DataType = 16
	DTUint16     DataType = 17
	DTComplex128 DataType = 18
	DTHalf       DataType = 19
	DTResource   DataType = 20
	DTVariant    DataType = 21
	DTUint32     DataType = 22
	DTUint64     DataType = 23
)

var dataTypeNames = map[DataType]string{
	DTInvalid:    "DT_INVALID",
	DTFloat:      "DT_FLOAT",
	DTDouble:     "DT_DOUBLE",
	DTInt32:      "DT_INT32",
	DTUint8:      "DT_UINT8",
	DTInt16:      "DT_INT16",
	DTInt8:       "DT_INT8",
	DTString:     "DT_STRING",
	DTComplex64:  "DT_COMPLEX64",
	DTInt64:      "DT_INT64",
	DTBool:       "DT_BOOL",
	DTQInt8:      "DT_QINT8",
	DTQUint8:     "DT_QUINT8",
	DTQInt32:     "DT_QINT32",
	DTBFloat16:   "DT_BFLOAT16",
	DTQInt16:     "DT_QINT16",
	DTQUint16:    "DT_QUINT16",
	DTUint16:     "DT_UINT16",
	DTComplex128: "DT_COMPLEX128",
	DTHalf:       "DT_HALF",
	DTResource:   "DT_RESOURCE",
	DTVariant:    "DT_VARIANT",
	DTUint32:     "DT_UINT32",
	DTUint64:     "DT_UINT64",
}

var dataTypeByName map[string]DataType

func init() {
	dataTypeByName = make(map[string]DataType, len(dataTypeNames))
	for dt, name := range dataTypeNames {
		dataTypeByName[name] = dt
	}
}

// String implements fmt.Stringer.
func (dt DataType) String() string {
	if name, found := dataTypeNames[dt]; found {
		return name
	}
	return fmt.Sprintf("DataType(%d)", int32(dt))
}

// ParseDataType converts a TensorFlow dtype name (e.g. "DT_FLOAT") to a DataType.
func ParseDataType(name string) (DataType, error) {
	dt, found := dataTypeByName[name]
	if !found {
		return DTInvalid, errors.Errorf("unknown TensorFlow data type %q", name)
	}
	return dt, nil
}

// ONNXDataType enumerates the ONNX TensorProto data types, the dtypes of the reconstructed graph.
type ONNXDataType int32

const (
	ONNXUndefined  ONNXDataType = 0
	ONNXFloat      ONNXDataType = 1
	ONNXUint8      ONNXDataType = 2
	ONNXInt8       ONNXDataType = 3
	ONNXUint16     ONNXDataType = 4
	ONNXInt16      ONNXDataType = 5
	ONNXInt32      ONNXDataType = 6
	ONNXInt64      ONNXDataType = 7
	ONNXString     ONNXDataType = 8
	ONNXBool       ONNXDataType = 9
	ONNXFloat16    ONNXDataType = 10
	ONNXDouble     ONNXDataType = 11
	ONNXUint32     ONNXDataType = 12
	ONNXUint64     ONNXDataType = 13
	ONNXComplex64  ONNXDataType = 14
	ONNXComplex128 ONNXDataType = 15
	ONNXBFloat16   ONNXDataType = 16
)

var onnxDataTypeNames = [...]string{
	"UNDEFINED", "FLOAT", "UINT8", "INT8", "UINT16", "INT16", "INT32", "INT64", "STRING", "BOOL", "FLOAT16",
	"DOUBLE", "UINT32", "UINT64", "COMPLEX64", "COMPLEX128", "BFLOAT16",
}

// String implements fmt.Stringer.
func (dt ONNXDataType) String() string {
	if dt >= 0 && int(dt) < len(onnxDataTypeNames) {
		return onnxDataTypeNames[dt]
	}
	return fmt.Sprintf("ONNXDataType(%d)", int32(dt))
}

// tfToONNX is the fixed TensorFlow to ONNX dtype table.
// Resources are mapped to INT64 so control-flow tensors can still flow through the graph.
var tfToONNX = map[DataType]ONNXDataType{
	DTFloat:      ONNXFloat,
	DTHalf:       ONNXFloat16,
	DTBFloat16:   ONNXBFloat16,
	DTDouble:     ONNXDouble,
	DTInt8:       ONNXInt8,
	DTInt16:      ONNXInt16,
	DTInt32:      ONNXInt32,
	DTInt64:      ONNXInt64,
	DTUint8:      ONNXUint8,
	DTUint16:     ONNXUint16,
	DTUint32:     ONNXUint32,
	DTUint64:     ONNXUint64,
	DTString:     ONNXString,
	DTBool:       ONNXBool,
	DTComplex64:  ONNXComplex64,
	DTComplex128: ONNXComplex128,
	DTQInt8:      ONNXInt8,
	DTQUint8:     ONNXUint8,
	DTQInt16:     ONNXInt16,
	DTQUint16:    ONNXUint16,
	DTQInt32:     ONNXInt32,
	DTResource:   ONNXInt64,
	DTVariant:    ONNXUndefined,
}

// ONNX maps the TensorFlow dtype to the ONNX one. Unmapped dtypes return ONNXUndefined.
func (dt DataType) ONNX() ONNXDataType {
	return tfToONNX[dt]
}

// gomlxDType converts a TensorFlow numeric data type to a GoMLX data type, used for element sizes.
func gomlxDType(dt DataType) (dtypes.DType, error) {
	switch dt {
	case DTFloat:
		return dtypes.Float32, nil
	case DTHalf:
		return dtypes.Float16, nil
	case DTBFloat16:
		return dtypes.BFloat16, nil
	case DTDouble:
		return dtypes.Float64, nil
	case DTInt32, DTQInt32:
		return dtypes.Int32, nil
	case DTInt64:
		return dtypes.Int64, nil
	case DTUint8, DTQUint8:
		return dtypes.Uint8, nil
	case DTInt8, DTQInt8:
		return dtypes.Int8, nil
	case DTInt16, DTQInt16:
		return dtypes.Int16, nil
	case DTUint16, DTQUint16:
		return dtypes.Uint16, nil
	case DTUint32:
		return dtypes.Uint32, nil
	case DTUint64:
		return dtypes.Uint64, nil
	case DTBool:
		return dtypes.Bool, nil
	case DTComplex64:
		return dtypes.Complex64, nil
	case DTComplex128:
		return dtypes.Complex128, nil
	default:
		return dtypes.InvalidDType, errors.Errorf("unsupported/non-numeric TensorFlow data type %s", dt)
	}
}

// elementSize returns the number of bytes used by one element of a numeric dtype.
func elementSize(dt DataType) (int, error) {
	gdt, err := gomlxDType(dt)
	if err != nil {
		return 0, err
	}
	return gdt.Size(), nil
}

// manifestDataType converts the dtype names used in the weights manifest ("float32", "int32", ...) to a DataType.
func manifestDataType(name string) (DataType, error) {
	switch name {
	case "float32":
		return DTFloat, nil
	case "float16":
		return DTHalf, nil
	case "float64":
		return DTDouble, nil
	case "int8":
		return DTInt8, nil
	case "int16":
		return DTInt16, nil
	case "int32":
		return DTInt32, nil
	case "int64":
		return DTInt64, nil
	case "uint8":
		return DTUint8, nil
	case "uint16":
		return DTUint16, nil
	case "uint32":
		return DTUint32, nil
	case "uint64":
		return DTUint64, nil
	case "bool":
		return DTBool, nil
	case "complex64":
		return DTComplex64, nil
	case "string":
		return DTString, nil
	default:
		return DTInvalid, errors.Wrapf(ErrFormat, "unknown weight dtype %q", name)
	}
}
