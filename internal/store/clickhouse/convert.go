package clickhouse

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// int64 covers [-2^63, 2^63); both bounds are exact as float64.
const (
	minInt64Float  = -(1 << 63)
	maxInt64Float  = 1 << 63
	maxUint64Float = 1 << 64
)

// converter turns a decoded row value into the Go type clickhouse-go expects
// for a column.
type converter func(v any) (any, error)

// columnConverter resolves the converter for a ClickHouse column type.
// Wrappers that do not change the Go representation are stripped first.
// Unsupported types pass values through and leave validation to the driver.
func columnConverter(chType string) (conv converter, nullable bool) {
	t := chType
	for {
		switch {
		case strings.HasPrefix(t, "Nullable(") && strings.HasSuffix(t, ")"):
			nullable = true
			t = t[len("Nullable(") : len(t)-1]
		case strings.HasPrefix(t, "LowCardinality(") && strings.HasSuffix(t, ")"):
			t = t[len("LowCardinality(") : len(t)-1]
		default:
			return baseConverter(t), nullable
		}
	}
}

func baseConverter(t string) converter {
	switch {
	case t == "String", strings.HasPrefix(t, "FixedString("), strings.HasPrefix(t, "Enum"):
		return toString
	case t == "Bool":
		return toBool
	case t == "UUID":
		return toUUID
	case t == "Float32":
		return toFloat32
	case t == "Float64":
		return toFloat64
	case t == "Date", t == "Date32", t == "DateTime", strings.HasPrefix(t, "DateTime("), strings.HasPrefix(t, "DateTime64("):
		return toDateTime
	case strings.HasPrefix(t, "Array(") && strings.HasSuffix(t, ")"):
		inner, _ := columnConverter(t[len("Array(") : len(t)-1])
		return toArray(inner)
	}

	if conv, ok := intConverters[t]; ok {
		return conv
	}

	return passThrough
}

var intConverters = map[string]converter{
	"Int8":   signed(math.MinInt8, math.MaxInt8, func(n int64) any { return int8(n) }),
	"Int16":  signed(math.MinInt16, math.MaxInt16, func(n int64) any { return int16(n) }),
	"Int32":  signed(math.MinInt32, math.MaxInt32, func(n int64) any { return int32(n) }),
	"Int64":  signed(math.MinInt64, math.MaxInt64, func(n int64) any { return n }),
	"UInt8":  unsigned(math.MaxUint8, func(n uint64) any { return uint8(n) }),
	"UInt16": unsigned(math.MaxUint16, func(n uint64) any { return uint16(n) }),
	"UInt32": unsigned(math.MaxUint32, func(n uint64) any { return uint32(n) }),
	"UInt64": unsigned(math.MaxUint64, func(n uint64) any { return n }),
}

func passThrough(v any) (any, error) {
	return v, nil
}

func toString(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	default:
		return fmt.Sprintf("%v", val), nil
	}
}

func toBool(v any) (any, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		return strconv.ParseBool(val)
	case []byte:
		return strconv.ParseBool(string(val))
	case int, int64, int32:
		return reflect.ValueOf(val).Int() != 0, nil
	case float64:
		return val != 0, nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("cannot convert %v to bool: %w", val, err)
		}
		return f != 0, nil
	default:
		return nil, fmt.Errorf("cannot convert %v to bool", val)
	}
}

func toUUID(v any) (any, error) {
	switch val := v.(type) {
	case uuid.UUID:
		return val, nil
	case string:
		u, err := uuid.Parse(val)
		if err != nil {
			return nil, fmt.Errorf("failed to parse UUID: %w", err)
		}
		return u, nil
	case []byte:
		u, err := uuid.FromBytes(val)
		if err != nil {
			return nil, fmt.Errorf("failed to convert binary UUID: %w", err)
		}
		return u, nil
	default:
		return toUUID(fmt.Sprintf("%v", val))
	}
}

func toInt64(v any) (int64, error) {
	switch val := v.(type) {
	case float64:
		if val != math.Trunc(val) {
			return 0, fmt.Errorf("cannot convert %v to an integer without loss", val)
		}
		if val < minInt64Float || val >= maxInt64Float {
			return 0, fmt.Errorf("value %v out of int64 range", val)
		}
		return int64(val), nil
	case int, int64, int32, int16, int8:
		return reflect.ValueOf(val).Int(), nil
	case json.Number:
		return val.Int64()
	case string:
		return strconv.ParseInt(val, 10, 64)
	case []byte:
		return strconv.ParseInt(string(val), 10, 64)
	default:
		return 0, fmt.Errorf("cannot convert %v to int", val)
	}
}

func toUint64(v any) (uint64, error) {
	switch val := v.(type) {
	case uint, uint64, uint32, uint16, uint8:
		return reflect.ValueOf(val).Uint(), nil
	case float64:
		if val != math.Trunc(val) {
			return 0, fmt.Errorf("cannot convert %v to an integer without loss", val)
		}
		if val < 0 || val >= maxUint64Float {
			return 0, fmt.Errorf("value %v out of uint64 range", val)
		}
		return uint64(val), nil
	case json.Number:
		return strconv.ParseUint(val.String(), 10, 64)
	case string:
		return strconv.ParseUint(val, 10, 64)
	case []byte:
		return strconv.ParseUint(string(val), 10, 64)
	default:
		n, err := toInt64(v)
		if err != nil {
			return 0, err
		}
		if n < 0 {
			return 0, fmt.Errorf("cannot convert negative value %d to unsigned int", n)
		}
		return uint64(n), nil
	}
}

func signed(lo, hi int64, cast func(int64) any) converter {
	return func(v any) (any, error) {
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		if n < lo || n > hi {
			return nil, fmt.Errorf("value %d out of range [%d, %d]", n, lo, hi)
		}
		return cast(n), nil
	}
}

func unsigned(hi uint64, cast func(uint64) any) converter {
	return func(v any) (any, error) {
		n, err := toUint64(v)
		if err != nil {
			return nil, err
		}
		if n > hi {
			return nil, fmt.Errorf("value %d out of range [0, %d]", n, hi)
		}
		return cast(n), nil
	}
}

func toFloat64(v any) (any, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int, int64, int32:
		return float64(reflect.ValueOf(val).Int()), nil
	case json.Number:
		return val.Float64()
	case string:
		return strconv.ParseFloat(val, 64)
	case []byte:
		return strconv.ParseFloat(string(val), 64)
	default:
		return nil, fmt.Errorf("cannot convert %v to float", val)
	}
}

func toFloat32(v any) (any, error) {
	f, err := toFloat64(v)
	if err != nil {
		return nil, err
	}
	return float32(f.(float64)), nil //nolint:forcetypeassert // toFloat64 returns float64
}

func toDateTime(v any) (any, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case string:
		return parseDateTime(val)
	case int64:
		return time.Unix(val, 0).UTC(), nil
	case float64:
		sec, dec := math.Modf(val)
		return time.Unix(int64(sec), int64(dec*1e9)).UTC(), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return time.Unix(n, 0).UTC(), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("cannot convert %v to time: %w", val, err)
		}
		return toDateTime(f)
	case []byte:
		return parseDateTime(string(val))
	default:
		return parseDateTime(fmt.Sprintf("%v", val))
	}
}

// toArray converts every element with inner and collects the results into a
// slice typed after the first converted element, as the driver rejects []any
// for typed array columns.
func toArray(inner converter) converter {
	return func(v any) (any, error) {
		var items []any
		switch val := v.(type) {
		case []any:
			items = val
		case string:
			if err := decodeNumbers([]byte(val), &items); err != nil {
				return nil, fmt.Errorf("cannot convert string to array: %w", err)
			}
		case []byte:
			if err := decodeNumbers(val, &items); err != nil {
				return nil, fmt.Errorf("cannot convert bytes to array: %w", err)
			}
		default:
			return nil, fmt.Errorf("cannot convert %v to array", val)
		}

		if len(items) == 0 {
			return []any{}, nil
		}

		converted := make([]any, len(items))
		for i, item := range items {
			c, err := inner(item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			converted[i] = c
		}

		first := reflect.TypeOf(converted[0])
		if first == nil {
			return converted, nil
		}

		typed := reflect.MakeSlice(reflect.SliceOf(first), len(converted), len(converted))
		for i, c := range converted {
			cv := reflect.ValueOf(c)
			if !cv.IsValid() || cv.Type() != first {
				return converted, nil
			}
			typed.Index(i).Set(cv)
		}

		return typed.Interface(), nil
	}
}

// parseDateTime attempts to parse a string as a datetime using various formats
func parseDateTime(value string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.999",
		time.RFC1123,
		time.RFC1123Z,
		time.RFC822,
		time.RFC822Z,
		time.RFC850,
		time.ANSIC,
		"2006-01-02",
		"2006/01/02",
		"Jan 2, 2006",
		"2 Jan 2006",
	}

	// unix seconds between 1970 and 2100
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		if i > 0 && i < 4102444800 {
			return time.Unix(i, 0).UTC(), nil
		}
	}

	for _, layout := range formats {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse datetime from '%s'", value)
}

// decodeNumbers unmarshals keeping numbers as json.Number so integers wider
// than 53 bits survive.
func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v) //nolint:wrapcheck // wrapped by callers
}
