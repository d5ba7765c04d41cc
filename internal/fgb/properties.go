package fgb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
)

// decodeProperties reads the attribute bytes of a feature: a sequence of
// little-endian uint16 column indexes, each followed by its value.
func decodeProperties(b []byte, cols []Column) (map[string]any, error) {
	out := make(map[string]any)
	for off := 0; off < len(b); {
		if off+2 > len(b) {
			return out, errors.New("truncated column index")
		}
		ci := int(binary.LittleEndian.Uint16(b[off:]))
		off += 2
		if ci >= len(cols) {
			return out, errors.Newf("column index %d out of range", ci)
		}
		col := cols[ci]
		need := func(n int) error {
			if off+n > len(b) {
				return errors.Newf("truncated value for column %q", col.Name)
			}
			return nil
		}
		var v any
		switch col.Type {
		case Byte, UByte, Bool:
			if err := need(1); err != nil {
				return out, err
			}
			switch col.Type {
			case Byte:
				v = int64(int8(b[off]))
			case UByte:
				v = int64(b[off])
			default:
				v = b[off] != 0
			}
			off++
		case Short, UShort:
			if err := need(2); err != nil {
				return out, err
			}
			u := binary.LittleEndian.Uint16(b[off:])
			if col.Type == Short {
				v = int64(int16(u))
			} else {
				v = int64(u)
			}
			off += 2
		case Int, UInt, Float:
			if err := need(4); err != nil {
				return out, err
			}
			u := binary.LittleEndian.Uint32(b[off:])
			switch col.Type {
			case Int:
				v = int64(int32(u))
			case UInt:
				v = int64(u)
			default:
				v = float64(math.Float32frombits(u))
			}
			off += 4
		case Long, ULong, Double:
			if err := need(8); err != nil {
				return out, err
			}
			u := binary.LittleEndian.Uint64(b[off:])
			switch col.Type {
			case Long:
				v = int64(u)
			case ULong:
				v = u
			default:
				v = math.Float64frombits(u)
			}
			off += 8
		case String, Json, DateTime, Binary:
			if err := need(4); err != nil {
				return out, err
			}
			n := int(binary.LittleEndian.Uint32(b[off:]))
			off += 4
			if err := need(n); err != nil {
				return out, err
			}
			raw := b[off : off+n]
			off += n
			switch col.Type {
			case Binary:
				v = append([]byte(nil), raw...)
			case Json:
				var j any
				if err := json.Unmarshal(raw, &j); err != nil {
					v = string(raw)
				} else {
					v = j
				}
			default:
				v = string(raw)
			}
		default:
			return out, errors.Newf("column %q has unknown type %d", col.Name, col.Type)
		}
		out[col.Name] = v
	}
	return out, nil
}

// encodeProperties writes the values of props for each column that has one.
// Missing and nil values are omitted.
func encodeProperties(props map[string]any, cols []Column) ([]byte, error) {
	var b []byte
	for i, col := range cols {
		v, ok := props[col.Name]
		if !ok || v == nil {
			continue
		}
		b = binary.LittleEndian.AppendUint16(b, uint16(i))
		var err error
		b, err = appendValue(b, col, v)
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

func appendValue(b []byte, col Column, v any) ([]byte, error) {
	switch col.Type {
	case Bool:
		bv, ok := v.(bool)
		if !ok {
			return nil, errors.Newf("column %q: want bool, got %T", col.Name, v)
		}
		if bv {
			return append(b, 1), nil
		}
		return append(b, 0), nil
	case Byte, UByte:
		i, err := toInt(col, v)
		return append(b, byte(i)), err
	case Short, UShort:
		i, err := toInt(col, v)
		return binary.LittleEndian.AppendUint16(b, uint16(i)), err
	case Int, UInt:
		i, err := toInt(col, v)
		return binary.LittleEndian.AppendUint32(b, uint32(i)), err
	case Long, ULong:
		i, err := toInt(col, v)
		return binary.LittleEndian.AppendUint64(b, uint64(i)), err
	case Float:
		f, err := toFloat(col, v)
		return binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(f))), err
	case Double:
		f, err := toFloat(col, v)
		return binary.LittleEndian.AppendUint64(b, math.Float64bits(f)), err
	case String, DateTime:
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case time.Time:
			s = x.Format(time.RFC3339)
		default:
			s = fmt.Sprint(x)
		}
		return appendBlob(b, []byte(s)), nil
	case Json:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "column %q", col.Name)
		}
		return appendBlob(b, raw), nil
	case Binary:
		raw, ok := v.([]byte)
		if !ok {
			return nil, errors.Newf("column %q: want []byte, got %T", col.Name, v)
		}
		return appendBlob(b, raw), nil
	}
	return nil, errors.Newf("column %q has unknown type %d", col.Name, col.Type)
}

func appendBlob(b, raw []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(raw)))
	return append(b, raw...)
}

func toInt(col Column, v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint64:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	}
	return 0, errors.Newf("column %q: want integer, got %T", col.Name, v)
}

func toFloat(col Column, v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, errors.Newf("column %q: want number, got %T", col.Name, v)
}

// InferColumns derives a column schema from property maps. Column order is
// alphabetical. Mixed integer and float values widen to Double; any other
// mix falls back to String.
func InferColumns(props []map[string]any) []Column {
	types := map[string]ColumnType{}
	for _, p := range props {
		for k, v := range p {
			if v == nil {
				continue
			}
			t := valueType(v)
			prev, seen := types[k]
			switch {
			case !seen || prev == t:
				types[k] = t
			case (prev == Long && t == Double) || (prev == Double && t == Long):
				types[k] = Double
			default:
				types[k] = String
			}
		}
	}
	names := make([]string, 0, len(types))
	for k := range types {
		names = append(names, k)
	}
	sort.Strings(names)
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Type: types[n], Nullable: true}
	}
	return cols
}

func valueType(v any) ColumnType {
	switch x := v.(type) {
	case bool:
		return Bool
	case int, int32, int64:
		return Long
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return Long
		}
		return Double
	case float32:
		return Double
	case string:
		return String
	case []byte:
		return Binary
	case time.Time:
		return DateTime
	}
	return Json
}
