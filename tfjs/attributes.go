package tfjs

import (
	"bytes"
	"encoding/base64"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// This file defines the tfjs node attributes: a value tagged by exactly one key, like { "i": "-1" } or
// { "list": { "i": ["1", "2"] } }, and how they are decoded to Go values.

// AttrValue is one of the attribute variants: FuncAttr, ShapeAttr, TypeAttr, ListAttr, StringAttr, IntAttr,
// FloatAttr, BoolAttr or UnknownAttr.
type AttrValue interface {
	// Tag returns the tfjs tag of the value ("func", "shape", "type", "list", "s", "i", "f" or "b").
	Tag() string
}

// FuncAttr references a function of the model library by name.
type FuncAttr struct {
	Name string
}

// ShapeAttr is a tensor shape. Dimensions of unknown size are -1.
type ShapeAttr struct {
	Dims        []int64
	UnknownRank bool
}

// TypeAttr holds the TensorFlow name of a dtype, e.g. "DT_FLOAT".
type TypeAttr string

// ListAttr is a homogeneous list of values that share the tag ItemTag.
type ListAttr struct {
	ItemTag string
	Items   []AttrValue
}

// StringAttr holds base64 encoded bytes.
type StringAttr string

// IntAttr holds the decimal representation of an integer, which tfjs stores as a string.
type IntAttr string

// FloatAttr holds a float value.
type FloatAttr float64

// BoolAttr holds a boolean value.
type BoolAttr bool

// UnknownAttr holds a value whose tag is not supported (e.g. "tensor" on Const nodes).
// Decoding it fails with ErrUnsupportedAttr.
type UnknownAttr struct {
	TagName string
	Raw     json.RawMessage
}

func (FuncAttr) Tag() string      { return "func" }
func (ShapeAttr) Tag() string     { return "shape" }
func (TypeAttr) Tag() string      { return "type" }
func (ListAttr) Tag() string      { return "list" }
func (StringAttr) Tag() string    { return "s" }
func (IntAttr) Tag() string       { return "i" }
func (FloatAttr) Tag() string     { return "f" }
func (BoolAttr) Tag() string      { return "b" }
func (a UnknownAttr) Tag() string { return a.TagName }

// Attr wraps an AttrValue so it can be parsed from JSON.
type Attr struct {
	Value AttrValue
}

// UnmarshalJSON implements json.Unmarshaler. The JSON object must have exactly one key.
func (a *Attr) UnmarshalJSON(data []byte) error {
	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(data, &tagged); err != nil {
		return errors.Wrapf(ErrFormat, "attribute value is not a JSON object: %v", err)
	}
	if len(tagged) != 1 {
		return errors.Wrapf(ErrFormat, "attribute value must have exactly one type key, got %d", len(tagged))
	}
	for tag, raw := range tagged {
		value, err := parseAttrValue(tag, raw)
		if err != nil {
			return errors.WithMessagef(err, "while parsing attribute value tagged %q", tag)
		}
		a.Value = value
	}
	return nil
}

// MarshalJSON implements json.Marshaler, producing the tfjs representation.
func (a Attr) MarshalJSON() ([]byte, error) {
	payload, err := attrPayload(a.Value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{a.Value.Tag(): payload})
}

func attrPayload(v AttrValue) (any, error) {
	switch v := v.(type) {
	case FuncAttr:
		return map[string]string{"name": v.Name}, nil
	case ShapeAttr:
		dims := make([]map[string]string, len(v.Dims))
		for ii, d := range v.Dims {
			dims[ii] = map[string]string{"size": strconv.FormatInt(d, 10)}
		}
		shape := map[string]any{"dim": dims}
		if v.UnknownRank {
			shape["unknownRank"] = true
		}
		return shape, nil
	case TypeAttr:
		return string(v), nil
	case ListAttr:
		if len(v.Items) == 0 {
			return map[string]any{}, nil
		}
		items := make([]any, len(v.Items))
		for ii, item := range v.Items {
			p, err := attrPayload(item)
			if err != nil {
				return nil, err
			}
			items[ii] = p
		}
		return map[string]any{v.ItemTag: items}, nil
	case StringAttr:
		return string(v), nil
	case IntAttr:
		return string(v), nil
	case FloatAttr:
		return float64(v), nil
	case BoolAttr:
		return bool(v), nil
	case UnknownAttr:
		return v.Raw, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedAttr, "attribute value %T", v)
	}
}

type jsonShape struct {
	Dim []struct {
		Size json.RawMessage `json:"size"`
	} `json:"dim"`
	UnknownRank bool `json:"unknownRank"`
}

// parseAttrValue parses the payload of one tagged value.
func parseAttrValue(tag string, raw json.RawMessage) (AttrValue, error) {
	switch tag {
	case "func":
		var f struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, errors.Wrapf(ErrFormat, "func attribute: %v", err)
		}
		return FuncAttr{Name: f.Name}, nil
	case "shape":
		var s jsonShape
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.Wrapf(ErrFormat, "shape attribute: %v", err)
		}
		shape := ShapeAttr{UnknownRank: s.UnknownRank, Dims: make([]int64, 0, len(s.Dim))}
		for _, d := range s.Dim {
			if len(d.Size) == 0 {
				// Proto3 JSON omits zero values.
				shape.Dims = append(shape.Dims, 0)
				continue
			}
			size, err := strconv.ParseInt(unquote(d.Size), 10, 64)
			if err != nil {
				return nil, errors.Wrapf(ErrFormat, "shape attribute dimension %s: %v", d.Size, err)
			}
			shape.Dims = append(shape.Dims, size)
		}
		return shape, nil
	case "type":
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, errors.Wrapf(ErrFormat, "type attribute: %v", err)
		}
		return TypeAttr(name), nil
	case "list":
		return parseListAttr(raw)
	case "s":
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.Wrapf(ErrFormat, "s attribute: %v", err)
		}
		return StringAttr(s), nil
	case "i":
		return IntAttr(unquote(raw)), nil
	case "f":
		f, err := parseFloat(raw)
		if err != nil {
			return nil, err
		}
		return FloatAttr(f), nil
	case "b":
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, errors.Wrapf(ErrFormat, "b attribute: %v", err)
		}
		return BoolAttr(b), nil
	default:
		return UnknownAttr{TagName: tag, Raw: raw}, nil
	}
}

// parseListAttr parses { "i": [...] }. An empty object is an empty list; if more than one tag is present, only one
// of them may hold items.
func parseListAttr(raw json.RawMessage) (AttrValue, error) {
	var tagged map[string][]json.RawMessage
	if err := json.Unmarshal(raw, &tagged); err != nil {
		return nil, errors.Wrapf(ErrFormat, "list attribute: %v", err)
	}
	list := ListAttr{}
	for tag, items := range tagged {
		if len(items) == 0 {
			continue
		}
		if list.ItemTag != "" {
			return nil, errors.Wrapf(ErrFormat, "list attribute with items of more than one type (%q and %q)",
				list.ItemTag, tag)
		}
		list.ItemTag = tag
		list.Items = make([]AttrValue, 0, len(items))
		for _, item := range items {
			value, err := parseAttrValue(tag, item)
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, value)
		}
	}
	return list, nil
}

func unquote(raw json.RawMessage) string {
	return string(bytes.Trim(bytes.TrimSpace(raw), `"`))
}

// parseFloat accepts JSON numbers and the strings proto3 JSON uses for non-finite values.
func parseFloat(raw json.RawMessage) (float64, error) {
	s := unquote(raw)
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrFormat, "f attribute %s: %v", raw, err)
	}
	return f, nil
}

// DecodeAttr decodes an attribute value to its Go value:
//
//   - "func": the function name (string).
//   - "shape": Shape, with one entry per dimension. A shape of unknown rank decodes to nil, not to an empty
//     Shape, since Shape{} is a scalar.
//   - "type": DataType if tfDTypes is true, otherwise the corresponding ONNXDataType.
//   - "s": the base64 decoded []byte.
//   - "i": int64. "f": float64. "b": bool.
//   - "list": a slice of the decoded items ([]int64, []float64, []bool, [][]byte, []string, []Shape,
//     []DataType or []ONNXDataType), or an empty []any for an empty list.
//
// Any other tag returns an error wrapping ErrUnsupportedAttr.
func DecodeAttr(value AttrValue, tfDTypes bool) (any, error) {
	switch v := value.(type) {
	case ListAttr:
		return decodeList(v, tfDTypes)
	case TypeAttr:
		dt, err := ParseDataType(string(v))
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "%v", err)
		}
		if !tfDTypes {
			return dt.ONNX(), nil
		}
		return dt, nil
	case FuncAttr:
		return v.Name, nil
	case ShapeAttr:
		if v.UnknownRank {
			return Shape(nil), nil
		}
		shape := make(Shape, len(v.Dims))
		for ii, d := range v.Dims {
			shape[ii] = int(d)
		}
		return shape, nil
	case StringAttr:
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(v)))
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "invalid base64 string attribute: %v", err)
		}
		return decoded, nil
	case IntAttr:
		i, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "invalid integer attribute %q: %v", string(v), err)
		}
		return i, nil
	case FloatAttr:
		return float64(v), nil
	case BoolAttr:
		return bool(v), nil
	case nil:
		return nil, errors.Wrap(ErrUnsupportedAttr, "empty attribute value")
	default:
		return nil, errors.Wrapf(ErrUnsupportedAttr, "tag %q", value.Tag())
	}
}

func decodeList(list ListAttr, tfDTypes bool) (any, error) {
	if len(list.Items) == 0 {
		return []any{}, nil
	}
	decoded := make([]any, len(list.Items))
	for ii, item := range list.Items {
		if item.Tag() != list.ItemTag {
			return nil, errors.Wrapf(ErrFormat, "list of %q has an item tagged %q", list.ItemTag, item.Tag())
		}
		v, err := DecodeAttr(item, tfDTypes)
		if err != nil {
			return nil, errors.WithMessagef(err, "list item #%d", ii)
		}
		decoded[ii] = v
	}
	switch list.ItemTag {
	case "i":
		return collect[int64](decoded), nil
	case "f":
		return collect[float64](decoded), nil
	case "b":
		return collect[bool](decoded), nil
	case "s":
		return collect[[]byte](decoded), nil
	case "func":
		return collect[string](decoded), nil
	case "shape":
		return collect[Shape](decoded), nil
	case "type":
		if tfDTypes {
			return collect[DataType](decoded), nil
		}
		return collect[ONNXDataType](decoded), nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedAttr, "list of tag %q", list.ItemTag)
	}
}

// collect converts a slice of decoded values known to be of type T.
func collect[T any](values []any) []T {
	out := make([]T, len(values))
	for ii, v := range values {
		out[ii] = v.(T)
	}
	return out
}

// DecodeAttrs decodes all attributes of a node.
func DecodeAttrs(attrs map[string]Attr, tfDTypes bool) (map[string]any, error) {
	decoded := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		v, err := DecodeAttr(attr.Value, tfDTypes)
		if err != nil {
			return nil, errors.WithMessagef(err, "attribute %q", name)
		}
		decoded[name] = v
	}
	return decoded, nil
}
