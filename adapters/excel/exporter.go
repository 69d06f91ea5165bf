package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"eegprep/domain/core"
	"eegprep/domain/recording"
	"eegprep/domain/rejection"
)

const (
	rejectSheet  = "RejectLog"
	summarySheet = "Summary"
)

// RejectLogExporter writes reject logs as XLSX (two sheets) or CSV.
type RejectLogExporter struct{}

// NewRejectLogExporter creates an exporter.
func NewRejectLogExporter() *RejectLogExporter {
	return &RejectLogExporter{}
}

// Export implements ports.RejectLogExporterPort.
func (e *RejectLogExporter) Export(ctx context.Context, rl *rejection.RejectLog, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rl == nil {
		return core.NewEmptyInputError("nil reject log")
	}
	rows := rejectRows(rl)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return writeCSV(path, rows)
	case ".xlsx":
	default:
		return core.NewFormatError(path, "reject log export supports .xlsx and .csv")
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", rejectSheet); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(rejectSheet, cell, &values); err != nil {
			return fmt.Errorf("write reject log row %d: %w", i, err)
		}
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	sum := rl.Summarize()
	summary := [][]interface{}{
		{"epochs", sum.Epochs},
		{"bad_epochs", sum.BadEpochs},
		{"bad_cells", sum.BadCells},
		{"interpolated_cells", sum.Interpolated},
	}
	names := make([]string, 0, len(sum.PerChannel))
	for name := range sum.PerChannel {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		summary = append(summary, []interface{}{"channel " + name, sum.PerChannel[name]})
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		r := row
		if err := f.SetSheetRow(summarySheet, cell, &r); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	log.Printf("[Exporter] Reject log written to %s (%d epochs, %d bad)", path, sum.Epochs, sum.BadEpochs)
	return nil
}

// rejectRows lays the log out one epoch per row with a label per channel.
func rejectRows(rl *rejection.RejectLog) [][]string {
	header := append([]string{"epoch", "bad"}, rl.Channels...)
	rows := [][]string{header}
	for i, labels := range rl.Labels {
		row := []string{strconv.Itoa(i), strconv.FormatBool(rl.BadEpochs[i])}
		for _, l := range labels {
			row = append(row, l.String())
		}
		rows = append(rows, row)
	}
	return rows
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// WriteRecording stores rec in the layout RecordingReader reads: a time
// column, a channel-type row, then one row per sample.
func WriteRecording(path string, rec *recording.Recording) error {
	header := append([]string{"time"}, rec.ChannelNames()...)
	types := []string{"type"}
	for _, ch := range rec.Channels {
		types = append(types, string(ch.Type))
	}
	times := rec.Times()
	offset := float64(rec.FirstSamp) / rec.SFreq
	for j := range times {
		times[j] += offset
	}
	sampleRow := func(j int) []string {
		row := make([]string, 0, len(header))
		row = append(row, strconv.FormatFloat(times[j], 'g', -1, 64))
		for _, data := range rec.Data {
			row = append(row, strconv.FormatFloat(data[j], 'g', -1, 64))
		}
		return row
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows := [][]string{header, types}
		for j := 0; j < rec.NTimes(); j++ {
			rows = append(rows, sampleRow(j))
		}
		return writeCSV(path, rows)
	case ".xlsx":
	default:
		return core.NewFormatError(path, "recordings are written as .csv or .xlsx")
	}

	f := excelize.NewFile()
	defer f.Close()
	sw, err := f.NewStreamWriter("Sheet1")
	if err != nil {
		return err
	}
	toCells := func(xs []string) []interface{} {
		out := make([]interface{}, len(xs))
		for i, x := range xs {
			out[i] = x
		}
		return out
	}
	if err := sw.SetRow("A1", toCells(header)); err != nil {
		return err
	}
	if err := sw.SetRow("A2", toCells(types)); err != nil {
		return err
	}
	for j := 0; j < rec.NTimes(); j++ {
		cell, _ := excelize.CoordinatesToCellName(1, j+3)
		values := []interface{}{times[j]}
		for _, data := range rec.Data {
			values = append(values, data[j])
		}
		if err := sw.SetRow(cell, values); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.SaveAs(path)
}
