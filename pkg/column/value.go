package column

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/bureau14/qdbbatch/pkg/qdberrors"
)

// Value is a tagged union holding one optional value of a column type.
// The tag is checked on every typed access; a wrong accessor fails with a
// type_mismatch error instead of converting.
//
// A double NaN, an int64 math.MinInt64 and the null timestamp sentinel are
// the null encodings of their types, so constructing a Value from them
// yields a null Value.
type Value struct {
	typ   Type
	null  bool
	f     float64
	i     int64
	ts    Timespec
	bytes []byte
	str   string
}

// Null returns the null Value of type t.
func Null(t Type) Value {
	return Value{typ: t, null: true}
}

// DoubleValue wraps a double.
func DoubleValue(v float64) Value {
	return Value{typ: TypeDouble, f: v, null: math.IsNaN(v)}
}

// Int64Value wraps an int64.
func Int64Value(v int64) Value {
	return Value{typ: TypeInt64, i: v, null: v == math.MinInt64}
}

// BlobValue wraps a blob. A nil slice is a present, zero-length blob; use
// Null(TypeBlob) for "no value".
func BlobValue(v []byte) Value {
	if v == nil {
		v = []byte{}
	}
	return Value{typ: TypeBlob, bytes: v}
}

// StringValue wraps a string.
func StringValue(v string) Value {
	return Value{typ: TypeString, str: v}
}

// SymbolValue wraps a symbol.
func SymbolValue(v string) Value {
	return Value{typ: TypeSymbol, str: v}
}

// TimestampValue wraps a time.Time.
func TimestampValue(t time.Time) Value {
	return TimespecValue(FromTime(t))
}

// TimespecValue wraps a Timespec.
func TimespecValue(ts Timespec) Value {
	return Value{typ: TypeTimestamp, ts: ts, null: ts.IsNull()}
}

// Type returns the tag.
func (v Value) Type() Type { return v.typ }

// IsNull reports whether v holds no value.
func (v Value) IsNull() bool { return v.null }

func (v Value) check(want Type) error {
	if v.typ != want {
		return qdberrors.Newf(qdberrors.ErrorTypeTypeMismatch, "value is %s, not %s", v.typ, want).
			WithDetail("actual", v.typ.String()).
			WithDetail("requested", want.String())
	}
	return nil
}

// AsDouble returns the double payload. ok is false for a null value.
func (v Value) AsDouble() (float64, bool, error) {
	if err := v.check(TypeDouble); err != nil {
		return 0, false, err
	}
	if v.null {
		return math.NaN(), false, nil
	}
	return v.f, true, nil
}

// AsInt64 returns the int64 payload.
func (v Value) AsInt64() (int64, bool, error) {
	if err := v.check(TypeInt64); err != nil {
		return 0, false, err
	}
	if v.null {
		return 0, false, nil
	}
	return v.i, true, nil
}

// AsBlob returns the blob payload. The slice aliases the value's storage.
func (v Value) AsBlob() ([]byte, bool, error) {
	if err := v.check(TypeBlob); err != nil {
		return nil, false, err
	}
	if v.null {
		return nil, false, nil
	}
	return v.bytes, true, nil
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool, error) {
	if err := v.check(TypeString); err != nil {
		return "", false, err
	}
	if v.null {
		return "", false, nil
	}
	return v.str, true, nil
}

// AsSymbol returns the symbol payload.
func (v Value) AsSymbol() (string, bool, error) {
	if err := v.check(TypeSymbol); err != nil {
		return "", false, err
	}
	if v.null {
		return "", false, nil
	}
	return v.str, true, nil
}

// AsTimestamp returns the timestamp payload.
func (v Value) AsTimestamp() (time.Time, bool, error) {
	ts, ok, err := v.AsTimespec()
	if err != nil || !ok {
		return time.Time{}, ok, err
	}
	return ts.Time(), true, nil
}

// AsTimespec returns the raw timestamp payload.
func (v Value) AsTimespec() (Timespec, bool, error) {
	if err := v.check(TypeTimestamp); err != nil {
		return NullTimespec, false, err
	}
	if v.null {
		return NullTimespec, false, nil
	}
	return v.ts, true, nil
}

// Interface returns the payload as float64, int64, []byte, string or
// time.Time, or nil for a null value.
func (v Value) Interface() interface{} {
	var (
		out interface{}
		ok  bool
	)
	switch v.typ {
	case TypeDouble:
		out, ok, _ = v.AsDouble()
	case TypeInt64:
		out, ok, _ = v.AsInt64()
	case TypeBlob:
		out, ok, _ = v.AsBlob()
	case TypeString:
		out, ok, _ = v.AsString()
	case TypeSymbol:
		out, ok, _ = v.AsSymbol()
	case TypeTimestamp:
		out, ok, _ = v.AsTimestamp()
	}
	if !ok {
		return nil
	}
	return out
}

// String formats v for logs and debugging.
func (v Value) String() string {
	if v.null {
		return "null"
	}
	switch v.typ {
	case TypeBlob:
		return fmt.Sprintf("%x", v.bytes)
	case TypeTimestamp:
		return v.ts.Time().Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v.Interface())
}

// Equal reports whether v and o have the same type and payload. Two nulls
// of the same type are equal.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ || v.null != o.null {
		return false
	}
	if v.null {
		return true
	}
	switch v.typ {
	case TypeDouble:
		return v.f == o.f
	case TypeInt64:
		return v.i == o.i
	case TypeTimestamp:
		return v.ts == o.ts
	case TypeBlob:
		return bytes.Equal(v.bytes, o.bytes)
	case TypeString, TypeSymbol:
		return v.str == o.str
	}
	return false
}
