package format

// ValueType identifies the fixed type of a column's values, as named in
// the ("Column").
type ValueType uint8

const (
	ValueUnknown ValueType = iota
	ValueInt8
	ValueInt16
	ValueInt32
	ValueInt64
	ValueUint8
	ValueUint16
	ValueUint32
	ValueUint64
	ValueFloat32
	ValueFloat64
	ValueString // short, low-cardinality string
	ValueText   // keyword/free text, tokenized
	ValueBlob   // opaque bytes, never indexed directly
)

// Integer reports whether the type is a signed or unsigned integer of
// any width.
func (v ValueType) Integer() bool {
	return v >= ValueInt8 && v <= ValueUint64
}

// Float reports whether the type is a 32- or 64-bit IEEE-754 float.
func (v ValueType) Float() bool {
	return v == ValueFloat32 || v == ValueFloat64
}

func (v ValueType) String() string {
	switch v {
	case ValueInt8:
		return "int8"
	case ValueInt16:
		return "int16"
	case ValueInt32:
		return "int32"
	case ValueInt64:
		return "int64"
	case ValueUint8:
		return "uint8"
	case ValueUint16:
		return "uint16"
	case ValueUint32:
		return "uint32"
	case ValueUint64:
		return "uint64"
	case ValueFloat32:
		return "float32"
	case ValueFloat64:
		return "float64"
	case ValueString:
		return "string"
	case ValueText:
		return "text"
	case ValueBlob:
		return "blob"
	default:
		return "unknown"
	}
}
