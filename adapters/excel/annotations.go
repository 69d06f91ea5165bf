package excel

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"eegprep/domain/core"
	"eegprep/domain/events"
)

// AnnotationReader loads onset/duration/description tables, including
// BIDS events.tsv files (trial_type is taken as the description).
type AnnotationReader struct {
	sheet string
}

// NewAnnotationReader creates a reader; sheet applies to XLSX input only.
func NewAnnotationReader(sheet string) *AnnotationReader {
	return &AnnotationReader{sheet: sheet}
}

// ReadAnnotations implements ports.AnnotationReaderPort.
func (r *AnnotationReader) ReadAnnotations(ctx context.Context, path string) (events.Annotations, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dr, err := NewDataReader(path, r.sheet)
	if err != nil {
		return nil, err
	}
	sheet, err := dr.ReadSheet()
	if err != nil {
		return nil, err
	}

	onsetCol := sheet.Column("onset")
	if onsetCol < 0 {
		return nil, core.NewValidationError(filepath.Base(path), "missing onset column")
	}
	durCol := sheet.Column("duration")
	descCol := sheet.Column("description", "trial_type", "label", "value")
	if descCol < 0 {
		return nil, core.NewValidationError(filepath.Base(path), "missing description column")
	}

	out := make(events.Annotations, 0, len(sheet.Rows))
	for i, row := range sheet.Rows {
		onset, err := strconv.ParseFloat(row[onsetCol], 64)
		if err != nil {
			return nil, core.NewValidationError(fmt.Sprintf("%s row %d onset", filepath.Base(path), i+2), "not a number")
		}
		var dur float64
		if durCol >= 0 && row[durCol] != "" && row[durCol] != "n/a" {
			dur, err = strconv.ParseFloat(row[durCol], 64)
			if err != nil {
				return nil, core.NewValidationError(fmt.Sprintf("%s row %d duration", filepath.Base(path), i+2), "not a number")
			}
		}
		out = append(out, events.Annotation{Onset: onset, Duration: dur, Description: row[descCol]})
	}
	return out.Sorted(), nil
}
