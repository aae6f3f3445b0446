package endpoint

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/ieee754"
	"golang.org/x/exp/slices"
)

type PrimitiveType uint8

const (
	TypeUint PrimitiveType = iota
	TypeInt
	TypeFloat
	TypeBoolean
)

var typeNames = map[PrimitiveType]string{
	TypeUint:    "uint",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeBoolean: "bool",
}

func (datatype PrimitiveType) String() string {
	if name, ok := typeNames[datatype]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint8(datatype))
}

var (
	uintTypeNames = []string{"uint8", "uint16", "uint32", "uint64", "uint"}
	intTypeNames  = []string{"int8", "int16", "int32", "int64", "int"}
)

// ParseType maps a type name of the endpoint export to a primitive type.
// Names of non-primitive endpoints (functions, references) are rejected.
func ParseType(name string) (PrimitiveType, error) {
	switch {
	case name == "float":
		return TypeFloat, nil
	case name == "bool":
		return TypeBoolean, nil
	case slices.Contains(uintTypeNames, name):
		return TypeUint, nil
	case slices.Contains(intTypeNames, name):
		return TypeInt, nil
	}
	return 0, fmt.Errorf("unsupported endpoint type %q", name)
}

// Value is a primitive endpoint value tagged with its type.
// Only the field matching Type is meaningful.
type Value struct {
	Type  PrimitiveType
	Uint  uint32
	Int   int32
	Float float64
	Bool  bool
}

func UintValue(v uint32) Value   { return Value{Type: TypeUint, Uint: v} }
func IntValue(v int32) Value     { return Value{Type: TypeInt, Int: v} }
func FloatValue(v float64) Value { return Value{Type: TypeFloat, Float: v} }
func BoolValue(v bool) Value     { return Value{Type: TypeBoolean, Bool: v} }

// FromWord converts the 32-bit value word of a reply frame.
func FromWord(datatype PrimitiveType, word uint32) Value {
	switch datatype {
	case TypeFloat:
		return FloatValue(ieee754.Decode(word))
	case TypeBoolean:
		return BoolValue(word == 1)
	case TypeInt:
		return IntValue(int32(word))
	default:
		return UintValue(word)
	}
}

// Word returns the 32-bit value word carried by a request frame.
func (value Value) Word() uint32 {
	switch value.Type {
	case TypeFloat:
		return ieee754.Encode(value.Float)
	case TypeBoolean:
		if value.Bool {
			return 1
		}
		return 0
	case TypeInt:
		return uint32(value.Int)
	default:
		return value.Uint
	}
}

// ParseValue converts the text form of a value, e.g. a command line argument.
func ParseValue(datatype PrimitiveType, text string) (Value, error) {
	text = strings.TrimSpace(text)
	switch datatype {
	case TypeFloat:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(f), nil

	case TypeBoolean:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(b), nil

	case TypeInt:
		i, err := strconv.ParseInt(text, 0, 32)
		if err != nil {
			return Value{}, err
		}
		return IntValue(int32(i)), nil

	case TypeUint:
		u, err := strconv.ParseUint(text, 0, 32)
		if err != nil {
			return Value{}, err
		}
		return UintValue(uint32(u)), nil
	}
	return Value{}, fmt.Errorf("unsupported endpoint type %s", datatype)
}

func (value Value) String() string {
	switch value.Type {
	case TypeFloat:
		if math.IsInf(value.Float, 0) || math.IsNaN(value.Float) {
			return strconv.FormatFloat(value.Float, 'g', -1, 64)
		}
		return strconv.FormatFloat(value.Float, 'f', -1, 32)
	case TypeBoolean:
		return strconv.FormatBool(value.Bool)
	case TypeInt:
		return strconv.FormatInt(int64(value.Int), 10)
	default:
		return strconv.FormatUint(uint64(value.Uint), 10)
	}
}
