package token

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// A Token is an item of the output vocabulary shared by the stages and the
// concrete syntax writers.  The feature
//
//	{"type": "Feature", "properties": {"tags": ["red", "tall"]}}
//
// is written as the sequence of Token (in pseudocode for clarity):
//
//	{            -> StartObject
//	"type":      -> Key("type")
//	"Feature",   -> Scalar("Feature", String)
//	"properties" -> Key("properties")
//	{            -> StartObject
//	"tags":      -> Key("tags")
//	[            -> StartArray
//	"red",       -> Scalar("red", String)
//	"tall"       -> Scalar("tall", String)
//	]            -> EndArray
//	}            -> EndObject
//	}            -> EndObject
type Token interface {
	fmt.Stringer
}

// StartObject represents the start of an object (introduced by '{').
type StartObject struct{}

func (s *StartObject) String() string {
	return "StartObject"
}

var _ Token = &StartObject{}

// EndObject represents the end of an object (introduced by '}').
type EndObject struct{}

func (e *EndObject) String() string {
	return "EndObject"
}

var _ Token = &EndObject{}

// StartArray represents the start of an array (introduced by '[').
type StartArray struct{}

func (s *StartArray) String() string {
	return "StartArray"
}

var _ Token = &StartArray{}

// EndArray represents the end of an array (introduced by ']').
type EndArray struct{}

func (e *EndArray) String() string {
	return "EndArray"
}

var _ Token = &EndArray{}

// Scalar is the type used to represent all leaf values and object keys, i.e.
// - strings
// - numbers
// - booleans
// - null
// - raw pre-encoded JSON (geometries coming from a data source)
//
// The type is encoded in the TypeAndFlags field, while the Bytes field
// contains the literal JSON representation of the value.
type Scalar struct {

	// Literal representation of the value, e.g.
	// - the string "foo" is represented as []byte("\"foo\"")
	// - the number 123.5 is represented as []byte("123.5")
	// - a raw point is represented as []byte(`{"type":"Point","coordinates":[1,2]}`)
	Bytes []byte

	// Type of the value and flags
	TypeAndFlags uint8
}

func NewScalar(tp ScalarType, bytes []byte) *Scalar {
	return &Scalar{
		Bytes:        bytes,
		TypeAndFlags: uint8(tp),
	}
}

// NewKey returns a Scalar marking an object key.
func NewKey(name string) *Scalar {
	s := StringScalar(name)
	s.TypeAndFlags |= KeyMask
	return s
}

func (s *Scalar) Type() ScalarType {
	return ScalarType(s.TypeAndFlags & TypeMask)
}

func (s *Scalar) IsKey() bool {
	return KeyMask&s.TypeAndFlags != 0
}

func (s *Scalar) String() string {
	if s.IsKey() {
		return fmt.Sprintf("Key(%s)", s.Bytes)
	}
	return fmt.Sprintf("Scalar(%s)", s.Bytes)
}

// Equal reports whether s and t encode the same value.
func (s *Scalar) Equal(t *Scalar) bool {
	if s == nil || t == nil {
		return false
	}
	if s.Type() != t.Type() {
		return false
	}
	switch s.Type() {
	case Null:
		return true
	case Boolean:
		// The bytes are "true" or "false", so it's enough to compare the first one
		return s.Bytes[0] == t.Bytes[0]
	case String, Number, Raw:
		if bytes.Equal(s.Bytes, t.Bytes) {
			return true
		}
		if s.Type() == Raw {
			return false
		}
	default:
		panic("invalid scalar type")
	}
	// Fall back to slower conversion
	return parseJsonLiteralBytes(s.Bytes) == parseJsonLiteralBytes(t.Bytes)
}

// ToString panics if s is not a string.
func (s *Scalar) ToString() string {
	return parseJsonLiteralBytes(s.Bytes).(string)
}

// ToGo converts s to a Go value: nil, bool, float64, string.  Raw values are
// returned as json.RawMessage.
func (s *Scalar) ToGo() any {
	if s.Type() == Raw {
		return json.RawMessage(s.Bytes)
	}
	return parseJsonLiteralBytes(s.Bytes)
}

func parseJsonLiteralBytes(b []byte) json.Token {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		panic(err)
	}
	return tok
}

// ScalarType encodes the possible scalar types.
type ScalarType uint8

const (
	Null               = 0x0 // the type of JSON null
	Boolean            = 0x1 // a JSON boolean
	Number             = 0x2 // a JSON number
	String             = 0x3 // a JSON string
	Raw     ScalarType = 0x4 // pre-encoded JSON, written verbatim
)

const (
	TypeMask = 0b00111
	KeyMask  = 0b01000
)

var (
	trueBytes  = []byte("true")
	falseBytes = []byte("false")
	nullBytes  = []byte("null")
)

var (
	TrueScalar  = NewScalar(Boolean, trueBytes)
	FalseScalar = NewScalar(Boolean, falseBytes)
	NullScalar  = NewScalar(Null, nullBytes)
)

func StringScalar(s string) *Scalar {
	var b bytes.Buffer
	encoder := json.NewEncoder(&b)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(s); err != nil {
		panic(err)
	}
	var encodedBytes = b.Bytes()
	// Remove the new line at the end
	return NewScalar(String, encodedBytes[:len(encodedBytes)-1])
}

func Float64Scalar(x float64) *Scalar {
	return NewScalar(Number, []byte(strconv.FormatFloat(x, 'g', -1, 64)))
}

func Int64Scalar(n int64) *Scalar {
	return NewScalar(Number, []byte(strconv.FormatInt(n, 10)))
}

// NumberScalar wraps a number literal, e.g. a json.Number from a decoder.
func NumberScalar(literal string) *Scalar {
	return NewScalar(Number, []byte(literal))
}

func BoolScalar(b bool) *Scalar {
	if b {
		return TrueScalar
	}
	return FalseScalar
}

// RawScalar wraps pre-encoded JSON.  The bytes are not validated.
func RawScalar(b []byte) *Scalar {
	return NewScalar(Raw, b)
}

var errNotScalar = errors.New("not a scalar value")

func ToScalar(value any) (*Scalar, error) {
	if value == nil {
		return NullScalar, nil
	}
	switch x := value.(type) {
	case string:
		return StringScalar(x), nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("%w: %v", errNotScalar, x)
		}
		return Float64Scalar(x), nil
	case int64:
		return Int64Scalar(x), nil
	case int:
		return Int64Scalar(int64(x)), nil
	case bool:
		return BoolScalar(x), nil
	case json.Number:
		return NumberScalar(string(x)), nil
	case json.RawMessage:
		return RawScalar(x), nil
	default:
		return nil, errNotScalar
	}
}
