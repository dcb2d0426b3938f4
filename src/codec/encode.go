package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// EncodeDocument writes doc as a compact JSON object.
func EncodeDocument(doc bson.D) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeDocument(&buf, doc, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeValue writes a single value in its JSON form.
func EncodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v, ""); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeDocument(buf *bytes.Buffer, doc bson.D, path string) error {
	for _, e := range doc {
		if e.Key == KindKey {
			buf.WriteString(`{"` + KindKey + `":`)
			writeString(buf, string(KindDocument))
			buf.WriteString(`,"` + ValueKey + `":`)
			if err := encodeMembers(buf, doc, path); err != nil {
				return err
			}
			buf.WriteByte('}')
			return nil
		}
	}
	return encodeMembers(buf, doc, path)
}

func encodeMembers(buf *bytes.Buffer, doc bson.D, path string) error {
	buf.WriteByte('{')
	for i, e := range doc {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, e.Key)
		buf.WriteByte(':')
		if err := encodeValue(buf, e.Value, fieldPath(path, e.Key)); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeMap(buf *bytes.Buffer, m map[string]any, path string) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		doc = append(doc, bson.E{Key: k, Value: m[k]})
	}
	return encodeDocument(buf, doc, path)
}

func encodeArray(buf *bytes.Buffer, arr []any, path string) error {
	buf.WriteByte('[')
	for i, v := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(buf, v, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeValue(buf *bytes.Buffer, v any, path string) error {
	switch x := v.(type) {
	case nil, bson.Null:
		buf.WriteString("null")
	case string:
		writeString(buf, x)
	case bool:
		buf.WriteString(strconv.FormatBool(x))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(x), 10))
	case int:
		// Same width choice the driver makes when it marshals a Go int.
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			buf.WriteString(strconv.Itoa(x))
		} else {
			writeTagged(buf, KindInt64, quote(strconv.Itoa(x)))
		}
	case int64:
		writeTagged(buf, KindInt64, quote(strconv.FormatInt(x, 10)))
	case float64:
		encodeDouble(buf, x)
	case float32:
		encodeDouble(buf, float64(x))
	case bson.ObjectID:
		writeTagged(buf, KindID, quote(x.Hex()))
	case bson.DateTime:
		writeTagged(buf, KindDatetime, formatDatetime(x))
	case time.Time:
		writeTagged(buf, KindDatetime, formatDatetime(bson.NewDateTimeFromTime(x)))
	case bson.Binary:
		writeBinary(buf, x.Subtype, x.Data)
	case []byte:
		writeBinary(buf, 0, x)
	case bson.Decimal128:
		writeTagged(buf, KindDecimal, quote(x.String()))
	case bson.Timestamp:
		writeTagged(buf, KindTimestamp, fmt.Sprintf("[%d,%d]", x.T, x.I))
	case bson.Regex:
		var arr bytes.Buffer
		arr.WriteByte('[')
		writeString(&arr, x.Pattern)
		arr.WriteByte(',')
		writeString(&arr, x.Options)
		arr.WriteByte(']')
		writeTagged(buf, KindRegex, arr.String())
	case bson.MinKey:
		writeTagged(buf, KindMinKey, "1")
	case bson.MaxKey:
		writeTagged(buf, KindMaxKey, "1")
	case bson.D:
		return encodeDocument(buf, x, path)
	case bson.M:
		return encodeMap(buf, x, path)
	case map[string]any:
		return encodeMap(buf, x, path)
	case bson.A:
		return encodeArray(buf, x, path)
	case []any:
		return encodeArray(buf, x, path)
	default:
		return fieldError(path, "unsupported value type %T", v)
	}
	return nil
}

// encodeDouble keeps a double distinguishable from an integer: a plain JSON
// number is only used when its text carries a fraction or exponent.
func encodeDouble(buf *bytes.Buffer, f float64) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f == math.Trunc(f) {
		writeTagged(buf, KindDouble, quote(strconv.FormatFloat(f, 'g', -1, 64)))
		return
	}
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
}

func writeBinary(buf *bytes.Buffer, subtype byte, data []byte) {
	buf.WriteString(`{"` + KindKey + `":`)
	writeString(buf, string(KindBinary))
	buf.WriteString(`,"` + ValueKey + `":`)
	writeString(buf, base64.StdEncoding.EncodeToString(data))
	buf.WriteString(`,"` + SubtypeKey + `":`)
	buf.WriteString(strconv.Itoa(int(subtype)))
	buf.WriteByte('}')
}

// writeTagged writes {"$kind":kind,"$value":raw}; raw must already be JSON.
func writeTagged(buf *bytes.Buffer, kind Kind, raw string) {
	buf.WriteString(`{"` + KindKey + `":`)
	writeString(buf, string(kind))
	buf.WriteString(`,"` + ValueKey + `":`)
	buf.WriteString(raw)
	buf.WriteByte('}')
}

// formatDatetime returns the JSON for a datetime $value: an ISO-8601 string
// when the year has four digits, the epoch milliseconds otherwise.
func formatDatetime(d bson.DateTime) string {
	t := d.Time().UTC()
	if y := t.Year(); y < 0 || y > 9999 {
		return strconv.FormatInt(int64(d), 10)
	}
	return quote(t.Format(datetimeLayout))
}

func quote(s string) string {
	var buf bytes.Buffer
	writeString(&buf, s)
	return buf.String()
}

func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	// Encode appends a newline.
	buf.Truncate(buf.Len() - 1)
}
