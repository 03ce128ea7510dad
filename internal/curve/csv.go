package curve

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// ReadTable parses a header-less numeric CSV file. Lines starting with '#'
// are ignored.
func ReadTable(r io.Reader) ([][]float64, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	rows := make([][]float64, 0, len(records))
	for i, rec := range records {
		row := make([]float64, 0, len(rec))
		for j, field := range rec {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, types.Wrap(types.KindConfig, err, "row %d column %d is not a number", i, j)
			}
			row = append(row, v)
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// ReadCurveFile loads a two-column curve file.
func ReadCurveFile(path string) (*Curve, error) {
	rows, err := readFile(path)
	if err != nil {
		return nil, err
	}
	c, err := New(rows)
	if err != nil {
		return nil, types.Wrap(types.KindConfig, err, "curve file %s", path)
	}
	return c, nil
}

// ReadMatrixFile loads a rectangular matrix file.
func ReadMatrixFile(path string) (*Matrix, error) {
	rows, err := readFile(path)
	if err != nil {
		return nil, err
	}
	m, err := NewMatrix(rows)
	if err != nil {
		return nil, types.Wrap(types.KindConfig, err, "matrix file %s", path)
	}
	return m, nil
}

func readFile(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.Wrap(types.KindConfig, err, "failed to open %s", path)
	}
	defer f.Close()

	rows, err := ReadTable(f)
	if err != nil {
		return nil, types.Wrap(types.KindConfig, err, "malformed file %s", path)
	}
	return rows, nil
}
