// Package form encodes loosely typed parameter maps into the bracket-nested
// application/x-www-form-urlencoded bodies the payments platform expects:
//
//	{"card": {"number": "4242"}, "items": [{"id": "a"}]}
//	→ card[number]=4242&items[0][id]=a
package form

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
)

// ErrUnsupported is wrapped by errors about values that have no form encoding.
var ErrUnsupported = errors.New("unsupported parameter value")

// Encode flattens params. A nil value encodes as an empty string, which the
// platform reads as "unset this field".
func Encode(params map[string]any) (url.Values, error) {
	values := url.Values{}
	for key, v := range params {
		if key == "" {
			return nil, fmt.Errorf("%w: empty parameter name", ErrUnsupported)
		}
		if err := encodeValue(values, key, v); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func encodeValue(values url.Values, key string, v any) error {
	switch t := v.(type) {
	case nil:
		values.Add(key, "")
		return nil
	case string:
		values.Add(key, t)
		return nil
	case bool:
		values.Add(key, strconv.FormatBool(t))
		return nil
	case json.Number:
		values.Add(key, t.String())
		return nil
	}

	// Numbers go out as numbers even when their type has a String method,
	// like time.Duration.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		values.Add(key, strconv.FormatInt(rv.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		values.Add(key, strconv.FormatUint(rv.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		values.Add(key, strconv.FormatFloat(rv.Float(), 'f', -1, rv.Type().Bits()))
		return nil
	}

	if s, ok := v.(fmt.Stringer); ok {
		values.Add(key, s.String())
		return nil
	}

	switch rv.Kind() {
	case reflect.String:
		values.Add(key, rv.String())
	case reflect.Bool:
		values.Add(key, strconv.FormatBool(rv.Bool()))
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			values.Add(key, "")
			return nil
		}
		return encodeValue(values, key, rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: %s has non-string map keys", ErrUnsupported, key)
		}
		iter := rv.MapRange()
		for iter.Next() {
			sub := key + "[" + iter.Key().String() + "]"
			if err := encodeValue(values, sub, iter.Value().Interface()); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			sub := key + "[" + strconv.Itoa(i) + "]"
			if err := encodeValue(values, sub, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %s is %T", ErrUnsupported, key, v)
	}
	return nil
}
