package codec

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// DecodeDocument parses data and reconstructs the document it encodes.
func DecodeDocument(data []byte) (bson.D, error) {
	node, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return DocumentFromNode(node)
}

// DecodeValue parses data and reconstructs the value it encodes.
func DecodeValue(data []byte) (any, error) {
	node, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return DecodeNode(node)
}

// DocumentFromNode decodes a parsed node that must be a plain (untagged)
// object.
func DocumentFromNode(node any) (bson.D, error) {
	obj, ok := node.(Object)
	if !ok {
		return nil, fieldError("", "expected an object, got %s", describe(node))
	}
	if !obj.hasKey(KindKey) {
		return decodeObject(obj, "")
	}
	v, err := decodeTagged(obj, "")
	if err != nil {
		return nil, err
	}
	doc, ok := v.(bson.D)
	if !ok {
		return nil, fieldError("", "top-level value is a tagged %T, not a document", v)
	}
	return doc, nil
}

// DecodeNode reconstructs the value represented by a parsed node.
func DecodeNode(node any) (any, error) {
	return decodeNode(node, "")
}

func decodeNode(node any, path string) (any, error) {
	switch x := node.(type) {
	case nil:
		return nil, nil
	case bool, string:
		return x, nil
	case json.Number:
		return decodeNumber(x, path)
	case Object:
		if x.hasKey(KindKey) {
			return decodeTagged(x, path)
		}
		return decodeObject(x, path)
	case []any:
		arr := make(bson.A, 0, len(x))
		for i, el := range x {
			v, err := decodeNode(el, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	default:
		return nil, fieldError(path, "unexpected node type %T", node)
	}
}

func decodeObject(obj Object, path string) (bson.D, error) {
	doc := make(bson.D, 0, len(obj))
	for _, m := range obj {
		v, err := decodeNode(m.Value, fieldPath(path, m.Key))
		if err != nil {
			return nil, err
		}
		doc = append(doc, bson.E{Key: m.Key, Value: v})
	}
	return doc, nil
}

// decodeNumber maps an untagged JSON number back to int32, int64 or float64.
func decodeNumber(n json.Number, path string) (any, error) {
	s := string(n)
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fieldError(path, "invalid number %s", s)
		}
		return f, nil
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fieldError(path, "integer %s out of range", s)
	}
	if i >= math.MinInt32 && i <= math.MaxInt32 {
		return int32(i), nil
	}
	return i, nil
}

func decodeTagged(obj Object, path string) (any, error) {
	var (
		kindNode, value, subtype any
		hasValue, hasSubtype     bool
	)
	for _, m := range obj {
		switch m.Key {
		case KindKey:
			kindNode = m.Value
		case ValueKey:
			value, hasValue = m.Value, true
		case SubtypeKey:
			subtype, hasSubtype = m.Value, true
		default:
			return nil, fieldError(path, "unexpected key %q in tagged value", m.Key)
		}
	}
	ks, ok := kindNode.(string)
	if !ok {
		return nil, fieldError(path, "%s must be a string, got %s", KindKey, describe(kindNode))
	}
	kind := Kind(ks)
	if !kind.valid() {
		return nil, fieldError(path, "unknown %s %q", KindKey, ks)
	}
	if !hasValue {
		return nil, fieldError(path, "%s value is missing %s", kind, ValueKey)
	}
	if hasSubtype && kind != KindBinary {
		return nil, fieldError(path, "%s is only valid for %s values", SubtypeKey, KindBinary)
	}

	switch kind {
	case KindID:
		s, err := stringValue(value, kind, path)
		if err != nil {
			return nil, err
		}
		id, err := bson.ObjectIDFromHex(s)
		if err != nil {
			return nil, fieldError(path, "invalid %s %q", kind, s)
		}
		return id, nil
	case KindDatetime:
		if n, ok := value.(json.Number); ok {
			ms, err := strconv.ParseInt(n.String(), 10, 64)
			if err != nil {
				return nil, fieldError(path, "invalid %s milliseconds %s", kind, n)
			}
			return bson.DateTime(ms), nil
		}
		s, err := stringValue(value, kind, path)
		if err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fieldError(path, "invalid %s %q", kind, s)
		}
		return bson.NewDateTimeFromTime(t.UTC()), nil
	case KindBinary:
		s, err := stringValue(value, kind, path)
		if err != nil {
			return nil, err
		}
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fieldError(path, "invalid base64 in %s value", kind)
		}
		if !hasSubtype {
			return nil, fieldError(path, "%s value is missing %s", kind, SubtypeKey)
		}
		st, err := uintValue(subtype, 8)
		if err != nil {
			return nil, fieldError(path, "invalid %s: %v", SubtypeKey, err)
		}
		return bson.Binary{Subtype: byte(st), Data: data}, nil
	case KindInt64:
		s, err := stringValue(value, kind, path)
		if err != nil {
			return nil, err
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fieldError(path, "invalid %s %q", kind, s)
		}
		return i, nil
	case KindDouble:
		s, err := stringValue(value, kind, path)
		if err != nil {
			return nil, err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fieldError(path, "invalid %s %q", kind, s)
		}
		return f, nil
	case KindDecimal:
		s, err := stringValue(value, kind, path)
		if err != nil {
			return nil, err
		}
		d, err := bson.ParseDecimal128(s)
		if err != nil {
			return nil, fieldError(path, "invalid %s %q", kind, s)
		}
		return d, nil
	case KindTimestamp:
		pair, ok := value.([]any)
		if !ok || len(pair) != 2 {
			return nil, fieldError(path, "%s value must be a [t, i] array", kind)
		}
		t, err := uintValue(pair[0], 32)
		if err != nil {
			return nil, fieldError(path, "invalid %s seconds: %v", kind, err)
		}
		i, err := uintValue(pair[1], 32)
		if err != nil {
			return nil, fieldError(path, "invalid %s increment: %v", kind, err)
		}
		return bson.Timestamp{T: uint32(t), I: uint32(i)}, nil
	case KindRegex:
		pair, ok := value.([]any)
		if !ok || len(pair) != 2 {
			return nil, fieldError(path, "%s value must be a [pattern, options] array", kind)
		}
		pattern, ok1 := pair[0].(string)
		options, ok2 := pair[1].(string)
		if !ok1 || !ok2 {
			return nil, fieldError(path, "%s pattern and options must be strings", kind)
		}
		return bson.Regex{Pattern: pattern, Options: options}, nil
	case KindDocument:
		inner, ok := value.(Object)
		if !ok {
			return nil, fieldError(path, "%s value must be an object, got %s", kind, describe(value))
		}
		return decodeObject(inner, path)
	case KindMinKey, KindMaxKey:
		if n, ok := value.(json.Number); !ok || n.String() != "1" {
			return nil, fieldError(path, "%s value must be 1", kind)
		}
		if kind == KindMinKey {
			return bson.MinKey{}, nil
		}
		return bson.MaxKey{}, nil
	}
	return nil, fieldError(path, "unknown %s %q", KindKey, ks)
}

func stringValue(v any, kind Kind, path string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fieldError(path, "%s value must be a string, got %s", kind, describe(v))
	}
	return s, nil
}

func uintValue(v any, bits int) (uint64, error) {
	n, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("expected a number, got %s", describe(v))
	}
	return strconv.ParseUint(n.String(), 10, bits)
}

func describe(node any) string {
	switch node.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case json.Number:
		return "number"
	case Object:
		return "object"
	case []any:
		return "array"
	}
	return fmt.Sprintf("%T", node)
}
