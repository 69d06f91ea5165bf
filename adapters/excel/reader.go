// Package excel reads recordings and annotation tables from CSV and XLSX
// files and writes reject logs back out as spreadsheets.
package excel

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"eegprep/domain/core"
)

// vendorFormats are acquisition formats recognised but not decoded here.
var vendorFormats = map[string]string{
	".edf":  "European Data Format",
	".bdf":  "BioSemi Data Format",
	".gdf":  "General Data Format",
	".fif":  "Neuromag FIF",
	".set":  "EEGLAB",
	".vhdr": "BrainVision",
	".cnt":  "Neuroscan",
}

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
}

// NewDataReader creates a reader for filePath. Unknown and vendor formats
// fail with core.ErrUnsupportedFormat.
func NewDataReader(filePath, sheet string) (*DataReader, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".csv", ".tsv":
		return &DataReader{filePath: filePath, fileType: "csv"}, nil
	case ".xlsx", ".xlsm":
		if sheet == "" {
			sheet = "Sheet1"
		}
		return &DataReader{filePath: filePath, fileType: "xlsx", sheet: sheet}, nil
	}
	if name, ok := vendorFormats[ext]; ok {
		return nil, core.NewFormatError(filePath, name)
	}
	return nil, core.NewFormatError(filePath, ext)
}

// ReadSheet reads the header row and all data rows.
func (r *DataReader) ReadSheet() (*Sheet, error) {
	log.Printf("[DataReader] Starting to read %s file: %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s file %s", core.ErrNotFound, strings.ToUpper(r.fileType), r.filePath)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	default:
		rows, err = r.readExcelRows()
	}
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, core.NewEmptyInputError(fmt.Sprintf("%s needs a header row and at least one data row", r.filePath))
	}
	return processRows(rows), nil
}

func (r *DataReader) readExcelRows() ([][]string, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(r.sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.sheet, err)
	}
	log.Printf("[DataReader] %s read in %.2fms (%d rows)", r.sheet, float64(time.Since(startTime).Nanoseconds())/1e6, len(rows))
	return rows, nil
}

func (r *DataReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	if strings.EqualFold(filepath.Ext(r.filePath), ".tsv") {
		reader.Comma = '\t'
	}
	reader.FieldsPerRecord = -1
	reader.Comment = '#'
	readStart := time.Now()
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	log.Printf("[DataReader] CSV file read in %.2fms (%d rows)", float64(time.Since(readStart).Nanoseconds())/1e6, len(rows))
	return rows, nil
}

// processRows trims every cell and pads short rows to the header width.
func processRows(rows [][]string) *Sheet {
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	out := &Sheet{Headers: headers}
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		cells := make([]string, len(headers))
		for j := 0; j < len(headers) && j < len(row); j++ {
			cells[j] = strings.TrimSpace(row[j])
		}
		out.Rows = append(out.Rows, cells)
	}
	return out
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), b)
}
