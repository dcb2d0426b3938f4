package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"mongowiz/src/apperr"
)

// Object is a parsed JSON object with member order preserved.
type Object []Member

// Member is one key/value pair of an Object.
type Member struct {
	Key   string
	Value any
}

// Parse reads one JSON value without interpreting tags. Objects become
// Object, arrays []any, numbers json.Number; strings, booleans and null are
// returned as Go values.
func Parse(data []byte) (any, error) {
	return ParseReader(bytes.NewReader(data))
}

// ParseReader is Parse over a stream. The stream must hold exactly one
// JSON value.
func ParseReader(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	v, err := parseValue(dec)
	if err != nil {
		if err == io.EOF {
			return nil, apperr.Formatf("empty input")
		}
		return nil, apperr.Format(err, "invalid JSON")
	}
	if tok, err := dec.Token(); err != io.EOF {
		if err != nil {
			return nil, apperr.Format(err, "invalid JSON after value")
		}
		return nil, apperr.Formatf("unexpected %v after JSON value", tok)
	}
	return v, nil
}

func parseValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}
	switch d {
	case '{':
		obj := Object{}
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, unexpectedEOF(err)
			}
			key, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("object key is %T, not string", kt)
			}
			val, err := parseValue(dec)
			if err != nil {
				return nil, unexpectedEOF(err)
			}
			obj = append(obj, Member{Key: key, Value: val})
		}
		if _, err := dec.Token(); err != nil {
			return nil, unexpectedEOF(err)
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			val, err := parseValue(dec)
			if err != nil {
				return nil, unexpectedEOF(err)
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, unexpectedEOF(err)
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected %q", rune(d))
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
