package fixture

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawPrefix marks a fixture string that is inlined as SQL instead of bound.
//
//	updated_at: RAW=NOW()
const RawPrefix = "RAW="

// DatetimeLayouts are tried in order against every non-RAW string value.
// The first layout that parses wins; strings matching none stay strings.
var DatetimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"20060102 15:04:05",
	"20060102 15:04",
	"02012006 15:04:05",
	"02012006 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// Kind identifies the variant held by a Param.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindFloat
	KindBoolean
	KindDatetime
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindDatetime:
		return "datetime"
	case KindRaw:
		return "raw"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Param is a typed SQL value produced from one fixture value.
// Raw params carry a SQL fragment that is inlined into the statement text;
// every other kind is bound through the driver.
type Param struct {
	kind Kind
	s    string
	i    int64
	f    float64
	b    bool
	t    time.Time
}

func Null() Param                { return Param{kind: KindNull} }
func String(s string) Param      { return Param{kind: KindString, s: s} }
func Integer(i int64) Param      { return Param{kind: KindInteger, i: i} }
func Float(f float64) Param      { return Param{kind: KindFloat, f: f} }
func Boolean(b bool) Param       { return Param{kind: KindBoolean, b: b} }
func Datetime(t time.Time) Param { return Param{kind: KindDatetime, t: t} }

// Raw returns a param whose expr is inlined into the statement text.
func Raw(expr string) Param { return Param{kind: KindRaw, s: expr} }

func (p Param) Kind() Kind      { return p.kind }
func (p Param) Time() time.Time { return p.t }
func (p Param) IsRaw() bool     { return p.kind == KindRaw }

// Expr returns the SQL fragment of a Raw param, or "" for other kinds.
func (p Param) Expr() string {
	if p.kind != KindRaw {
		return ""
	}
	return p.s
}

// Value returns the Go value held by p. Datetime values are returned as
// time.Time; callers binding to a driver should go through Dialect.BindParams.
func (p Param) Value() any {
	switch p.kind {
	case KindString, KindRaw:
		return p.s
	case KindInteger:
		return p.i
	case KindFloat:
		return p.f
	case KindBoolean:
		return p.b
	case KindDatetime:
		return p.t
	default:
		return nil
	}
}

// Equal reports whether p and o hold the same kind and value. Datetimes
// compare as instants.
func (p Param) Equal(o Param) bool {
	if p.kind != o.kind {
		return false
	}
	if p.kind == KindDatetime {
		return p.t.Equal(o.t)
	}
	return p.Value() == o.Value()
}

func (p Param) String() string {
	switch p.kind {
	case KindNull:
		return "Null"
	case KindDatetime:
		return "Datetime(" + p.t.Format(time.RFC3339Nano) + ")"
	case KindString:
		return fmt.Sprintf("String(%q)", p.s)
	default:
		return fmt.Sprintf("%s(%v)", strings.ToUpper(p.kind.String()[:1])+p.kind.String()[1:], p.Value())
	}
}

// Coerce converts a scalar decoded from a fixture file into a Param.
// Strings are checked for RawPrefix first, then for DatetimeLayouts in loc.
// Values of any other type wrap ErrUnsupportedValue.
func Coerce(v any, loc *time.Location) (Param, error) {
	switch v := v.(type) {
	case nil:
		return Null(), nil
	case string:
		return coerceString(v, loc), nil
	case bool:
		return Boolean(v), nil
	case int:
		return Integer(int64(v)), nil
	case int8:
		return Integer(int64(v)), nil
	case int16:
		return Integer(int64(v)), nil
	case int32:
		return Integer(int64(v)), nil
	case int64:
		return Integer(v), nil
	case uint:
		return coerceUint(uint64(v))
	case uint8:
		return Integer(int64(v)), nil
	case uint16:
		return Integer(int64(v)), nil
	case uint32:
		return Integer(int64(v)), nil
	case uint64:
		return coerceUint(v)
	case float32:
		return Float(float64(v)), nil
	case float64:
		return Float(v), nil
	case time.Time:
		return Datetime(v.In(loc)), nil
	default:
		return Param{}, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func coerceString(s string, loc *time.Location) Param {
	if expr, ok := strings.CutPrefix(s, RawPrefix); ok {
		return Raw(expr)
	}
	if t, ok := parseDatetime(s, loc); ok {
		return Datetime(t)
	}
	return String(s)
}

func coerceUint(u uint64) (Param, error) {
	if u > math.MaxInt64 {
		return Param{}, fmt.Errorf("%w: integer %d overflows int64", ErrUnsupportedValue, u)
	}
	return Integer(int64(u)), nil
}

func parseDatetime(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range DatetimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
