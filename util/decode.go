package util

import (
	"math"
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

// WholeNumberHook refuses to truncate a float with a fractional part into
// an integer field; mapstructure otherwise drops the fraction silently.
func WholeNumberHook() mapstructure.DecodeHookFuncKind {
	return func(from, to reflect.Kind, data interface{}) (interface{}, error) {
		if from != reflect.Float32 && from != reflect.Float64 {
			return data, nil
		}
		switch to {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			return data, nil
		}
		f := reflect.ValueOf(data).Float()
		if math.Trunc(f) != f || math.IsInf(f, 0) {
			return nil, errors.Errorf("%v is not a whole number", data)
		}
		return data, nil
	}
}

// DecodeOptions tune WeakDecode.
type DecodeOptions struct {
	Metadata    *mapstructure.Metadata
	ErrorUnused bool
}

// WeakDecode decodes in into out with weakly typed input, rejecting
// fractional values for integer fields.
func WeakDecode(in, out interface{}, opts DecodeOptions) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       WholeNumberHook(),
		Metadata:         opts.Metadata,
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      opts.ErrorUnused,
	})
	if err != nil {
		return errors.Wrap(err, "constructing decoder")
	}
	return errors.WithStack(decoder.Decode(in))
}
