package util

import (
	"io"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// ReadYAMLInto reads data for the given io.ReadCloser - until it hits an error
// or reaches EOF - and attempts to strictly unmarshal the data read into the
// given interface.
func ReadYAMLInto(r io.ReadCloser, data interface{}) error {
	defer r.Close()
	bytes, err := ioutil.ReadAll(r)
	if err != nil {
		return err
	}
	return UnmarshalYAMLStrict(bytes, data)
}

// ReadFromYAMLFile reads one YAML (or JSON) document from fn into data.
// Unknown keys and duplicated keys are errors.
func ReadFromYAMLFile(fn string, data interface{}) error {
	if _, err := os.Stat(fn); os.IsNotExist(err) {
		return errors.Errorf("file '%s' does not exist", fn)
	}

	file, err := os.Open(fn)
	if err != nil {
		return errors.Wrapf(err, "problem opening file %s", fn)
	}

	return errors.Wrapf(ReadYAMLInto(file, data), "problem reading yaml from '%s'", fn)
}

// UnmarshalYAMLStrict unmarshals in, rejecting keys that do not map to a
// field of out and keys that appear twice.
func UnmarshalYAMLStrict(in []byte, out interface{}) error {
	return errors.WithStack(yaml.UnmarshalStrict(in, out))
}
