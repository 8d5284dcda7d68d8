package bridge

import (
	"encoding/json"
	"errors"
	"reflect"

	apperrors "github.com/miktos/bridge/internal/common/errors"
)

// params is a command's raw parameter mapping.
type params map[string]interface{}

// decode fills the JSON-tagged request v from the parameters. Fields missing
// from the mapping keep the values v already holds. A wrongly typed value
// becomes a validation error naming the field.
func (p params) decode(v interface{}) error {
	if len(p) == 0 {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return apperrors.ValidationError("parameters", err.Error())
	}
	if err := json.Unmarshal(raw, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apperrors.ValidationError(typeErr.Field, "must be "+describeKind(typeErr.Type))
		}
		return apperrors.ValidationError("parameters", err.Error())
	}
	return nil
}

func describeKind(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Ptr:
		return describeKind(t.Elem())
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "an integer"
	case reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.Slice, reflect.Array:
		return "a list"
	case reflect.Map, reflect.Struct:
		return "an object"
	}
	return t.String()
}

// toMap converts a JSON-tagged value into a generic result mapping.
func toMap(v interface{}) map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]interface{}{}
	}
	return m
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
