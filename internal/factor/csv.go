package factor

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseCSV reads "cost_threshold,factor" rows. A leading header row is skipped.
func ParseCSV(r io.Reader) ([]ReferencePoint, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var points []ReferencePoint
	line := 0
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidReference, err)
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "cost_threshold") {
			continue
		}
		threshold, err := decimal.NewFromString(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d threshold %q", ErrInvalidReference, line, rec[0])
		}
		f, err := decimal.NewFromString(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d factor %q", ErrInvalidReference, line, rec[1])
		}
		points = append(points, ReferencePoint{Threshold: threshold, Factor: f})
	}
	if err := Validate(points); err != nil {
		return nil, err
	}
	return points, nil
}
