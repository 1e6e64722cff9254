package distribution

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/evergreen-ci/collbench"
	"github.com/pkg/errors"
)

type Shape string

const (
	ShapeVector Shape = "vector"
	ShapeMatrix Shape = "matrix"
)

// Dataset is the output of one generation: a single row for vector
// shapes, NProc rows for matrices.
type Dataset struct {
	Name  string
	Shape Shape
	NProc int
	Rows  [][]int64
	// Path is the file the dataset was written to.
	Path string
}

// FileName is the default name of a generated data file.
func FileName(nproc int, m2m bool, name string) string {
	if m2m {
		return fmt.Sprintf("%d-m2m-%s%s", nproc, name, collbench.DataFileExtension)
	}
	return fmt.Sprintf("%d-%s%s", nproc, name, collbench.DataFileExtension)
}

// DataPath is the file Generate would write for name and params, without
// generating anything.
func DataPath(name string, params map[string]interface{}) (string, error) {
	req, err := parse(name, params)
	if err != nil {
		return "", err
	}
	return req.common.path(name), nil
}

func (p Params) path(name string) string {
	file := p.Filename
	if file == "" {
		file = FileName(p.NProc, p.M2M, name)
	} else if filepath.Ext(file) == "" {
		file += collbench.DataFileExtension
	}
	return filepath.Join(p.SaveDir, file)
}

func (d *Dataset) persist(p Params) (string, error) {
	path := p.path(d.Name)

	if p.SaveDir != "" {
		if err := os.MkdirAll(p.SaveDir, 0755); err != nil {
			return "", errors.Wrapf(err, "creating directory '%s'", p.SaveDir)
		}
	}

	return path, errors.Wrapf(WriteFile(path, d.Rows), "writing '%s'", path)
}

// WriteFile writes rows as comma-delimited integers with no header.
func WriteFile(path string, rows [][]int64) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = errors.WithStack(closeErr)
		}
	}()

	w := csv.NewWriter(f)
	record := []string{}
	for _, row := range rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, strconv.FormatInt(v, 10))
		}
		if err = w.Write(record); err != nil {
			return errors.WithStack(err)
		}
	}
	w.Flush()

	return errors.WithStack(w.Error())
}

// ReadFile parses a data file written by WriteFile.
func ReadFile(path string) ([][]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "reading '%s'", path)
	}

	rows := make([][]int64, 0, len(records))
	for i, record := range records {
		row := make([]int64, 0, len(record))
		for j, field := range record {
			v, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d, column %d of '%s'", i, j, path)
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}

	return rows, nil
}
