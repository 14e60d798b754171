package main

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gwlearn/geom"
	"github.com/YuminosukeSato/gwlearn/gw"
	"github.com/YuminosukeSato/gwlearn/pkg/errors"
)

// columns names the CSV columns a table is built from.
type columns struct {
	features []string
	x, y     string
	target   string
}

// table is a CSV file decoded into the classifier's inputs.
type table struct {
	X        *mat.Dense
	y        *mat.Dense
	points   []geom.Point
	geometry []geom.Geometry
}

func readTable(path string, cols columns, withTarget bool) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	t, err := decodeTable(f, cols, withTarget)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return t, nil
}

func decodeTable(r io.Reader, cols columns, withTarget bool) (*table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, errors.ErrEmptyData
	}

	index := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		index[strings.TrimSpace(name)] = i
	}
	lookup := func(name string) (int, error) {
		i, ok := index[name]
		if !ok {
			return 0, errors.NewValidationError("column", "not found in header", name)
		}
		return i, nil
	}

	featureIdx := make([]int, len(cols.features))
	for j, name := range cols.features {
		if featureIdx[j], err = lookup(name); err != nil {
			return nil, err
		}
	}
	xi, err := lookup(cols.x)
	if err != nil {
		return nil, err
	}
	yi, err := lookup(cols.y)
	if err != nil {
		return nil, err
	}
	ti := -1
	if withTarget {
		if ti, err = lookup(cols.target); err != nil {
			return nil, err
		}
	}

	rows := records[1:]
	t := &table{
		X:        mat.NewDense(len(rows), len(cols.features), nil),
		points:   make([]geom.Point, len(rows)),
		geometry: make([]geom.Geometry, len(rows)),
	}
	labels := make([]bool, len(rows))
	for i, rec := range rows {
		for j, c := range featureIdx {
			v, err := parseFloat(rec, c, i)
			if err != nil {
				return nil, err
			}
			t.X.Set(i, j, v)
		}
		px, err := parseFloat(rec, xi, i)
		if err != nil {
			return nil, err
		}
		py, err := parseFloat(rec, yi, i)
		if err != nil {
			return nil, err
		}
		t.points[i] = geom.Point{X: px, Y: py}
		t.geometry[i] = t.points[i]
		if ti >= 0 {
			if labels[i], err = parseLabel(rec, ti, i); err != nil {
				return nil, err
			}
		}
	}
	if withTarget {
		t.y = gw.BoolTarget(labels)
	}
	return t, nil
}

func parseFloat(rec []string, col, row int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "row %d column %d", row+1, col+1)
	}
	return v, nil
}

// parseLabel accepts 0/1 and the boolean spellings strconv understands.
func parseLabel(rec []string, col, row int) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(rec[col]))
	if err != nil {
		return false, errors.NewValueError("readTable",
			"target must be 0/1 or true/false, got "+strconv.Quote(rec[col])+" at row "+strconv.Itoa(row+1))
	}
	return b, nil
}

// writeProba writes one row per location with the location's coordinates and
// the probability of each global class. Missing rows are written as NaN. When
// labels is not nil a prediction column follows the probabilities.
func writeProba(path string, points []geom.Point, classes []int, proba, labels mat.Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	w := csv.NewWriter(f)

	header := []string{"id", "x", "y"}
	for _, c := range classes {
		header = append(header, "proba_"+strconv.Itoa(c))
	}
	if labels != nil {
		header = append(header, "prediction")
	}
	if err := w.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(header))
	for i, p := range points {
		rec[0] = strconv.Itoa(i)
		rec[1] = formatFloat(p.X)
		rec[2] = formatFloat(p.Y)
		for j := range classes {
			rec[3+j] = formatFloat(proba.At(i, j))
		}
		if labels != nil {
			rec[len(rec)-1] = formatFloat(labels.At(i, 0))
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
