package util

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/pkg/errors"
)

// getCSVFields takes in a struct and retrieves the struct tag values for csv.
// If there is a substruct, then it will recurse and flatten out those fields.
func getCSVFields(t reflect.Type) []string {
	fields := []string{}
	numberFields := t.NumField()
	for i := 0; i < numberFields; i++ {
		fieldType := t.Field(i).Type
		if fieldType.Kind() == reflect.Struct && fieldType.NumField() > 0 {
			fields = append(fields, getCSVFields(fieldType)...)
			continue
		}
		stringVal := t.Field(i).Tag.Get("csv")
		if stringVal != "" {
			fields = append(fields, stringVal)
		}
	}
	return fields
}

// getCSVValues takes in a struct and returns a string of values based on struct tags
func getCSVValues(v reflect.Value) []string {
	values := []string{}
	t := v.Type()
	numberFields := v.NumField()
	for i := 0; i < numberFields; i++ {
		fieldType := v.Field(i).Type()
		if fieldType.Kind() == reflect.Struct && fieldType.NumField() > 0 {
			values = append(values, getCSVValues(v.Field(i))...)
			continue
		}
		if t.Field(i).Tag.Get("csv") != "" {
			values = append(values, fmt.Sprintf("%v", v.Field(i).Interface()))
		}
	}
	return values
}

// convertDataToCSVRecord takes a slice or array of structs and returns a
// header row followed by one row per element, for the fields that carry a
// csv struct tag.
func convertDataToCSVRecord(data interface{}) ([][]string, error) {
	s := reflect.ValueOf(data)
	switch s.Kind() {
	case reflect.Slice, reflect.Array:
	default:
		return nil, errors.Errorf("cannot convert %T to CSV records", data)
	}

	elem := s.Type().Elem()
	if elem.Kind() != reflect.Struct {
		return nil, errors.Errorf("cannot convert elements of type %s to CSV records", elem)
	}

	records := [][]string{getCSVFields(elem)}
	for i := 0; i < s.Len(); i++ {
		records = append(records, getCSVValues(s.Index(i)))
	}
	return records, nil
}

// WriteCSV writes a slice of structs as CSV with a header row. An empty
// slice produces just the header.
func WriteCSV(w io.Writer, data interface{}) error {
	records, err := convertDataToCSVRecord(data)
	if err != nil {
		return err
	}
	csvWriter := csv.NewWriter(w)
	return errors.Wrap(csvWriter.WriteAll(records), "writing CSV records")
}

// WriteCSVFile is WriteCSV to a newly created or truncated file.
func WriteCSVFile(path string, data interface{}) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating '%s'", path)
	}

	catchErr := WriteCSV(file, data)
	closeErr := file.Close()
	if catchErr != nil {
		return errors.Wrapf(catchErr, "writing '%s'", path)
	}
	return errors.Wrapf(closeErr, "closing '%s'", path)
}
