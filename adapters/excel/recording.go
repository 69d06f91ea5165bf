package excel

import (
	"context"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"eegprep/domain/core"
	"eegprep/domain/recording"
)

// RecordingReader loads a recording stored one channel per column.
//
// The first row names the channels. An optional time column (time, t,
// seconds) fixes the sampling rate and first sample; without it the
// configured SFreq is used. An optional second row of channel types
// (eeg, eog, ecg, stim, ...) overrides the types guessed from the names.
type RecordingReader struct {
	config ReaderConfig
}

// NewRecordingReader creates a reader.
func NewRecordingReader(config ReaderConfig) *RecordingReader {
	if config.Scale == 0 {
		config.Scale = 1
	}
	return &RecordingReader{config: config}
}

// Read implements ports.RecordingReaderPort.
func (r *RecordingReader) Read(ctx context.Context, path string) (*recording.Recording, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dr, err := NewDataReader(path, r.config.Sheet)
	if err != nil {
		return nil, err
	}
	sheet, err := dr.ReadSheet()
	if err != nil {
		return nil, err
	}

	timeCol := sheet.Column("time", "t", "seconds", "time_s")
	var channels []recording.Channel
	var cols []int
	for i, h := range sheet.Headers {
		if i == timeCol {
			continue
		}
		if h == "" {
			return nil, core.NewChannelError(h, fmt.Sprintf("empty header in column %d", i+1))
		}
		channels = append(channels, recording.Channel{Name: h, Type: GuessChannelType(h)})
		cols = append(cols, i)
	}
	if len(channels) == 0 {
		return nil, core.NewEmptyInputError("no channel columns in " + path)
	}

	rows := sheet.Rows
	if types, ok := typesRow(rows[0], cols); ok {
		for k := range channels {
			channels[k].Type = types[k]
		}
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, core.NewEmptyInputError("no samples in " + path)
	}

	data := make([][]float64, len(channels))
	for k := range data {
		data[k] = make([]float64, len(rows))
	}
	var times []float64
	for j, row := range rows {
		for k, col := range cols {
			v, err := strconv.ParseFloat(row[col], 64)
			if err != nil {
				return nil, core.NewValidationError(fmt.Sprintf("%s row %d column %s", filepath.Base(path), j+2, sheet.Headers[col]), "not a number")
			}
			if channels[k].Type != recording.TypeStim {
				v *= r.config.Scale
			}
			data[k][j] = v
		}
		if timeCol >= 0 {
			t, err := strconv.ParseFloat(row[timeCol], 64)
			if err != nil {
				return nil, core.NewValidationError(fmt.Sprintf("%s row %d time", filepath.Base(path), j+2), "not a number")
			}
			times = append(times, t)
		}
	}

	sfreq := r.config.SFreq
	firstSamp := 0
	if timeCol >= 0 {
		if len(times) < 2 {
			return nil, core.NewEmptyInputError("need two samples to infer the sampling rate")
		}
		dt := (times[len(times)-1] - times[0]) / float64(len(times)-1)
		if dt <= 0 {
			return nil, core.NewParameterError("time", dt, "time column must increase")
		}
		sfreq = math.Round(1/dt*1e6) / 1e6
		firstSamp = int(math.Round(times[0] * sfreq))
	}
	if sfreq <= 0 {
		return nil, core.NewParameterError("sfreq", sfreq, "no time column and no sampling rate configured")
	}

	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	rec, err := recording.New(core.RecordingID(id), sfreq, channels, data)
	if err != nil {
		return nil, err
	}
	rec.FirstSamp = firstSamp
	rec.Description = path
	rec.Provenance = []recording.Step{{Stage: "load", Detail: path}}

	log.Printf("[DataReader] Loaded %s: %d channels, %s samples at %g Hz",
		id, len(channels), humanize.Comma(int64(len(rows))), sfreq)
	return rec, nil
}

// typesRow reports whether row is a channel-type row for the given columns.
func typesRow(row []string, cols []int) ([]recording.ChannelType, bool) {
	out := make([]recording.ChannelType, len(cols))
	for k, col := range cols {
		t, ok := recording.ParseChannelType(row[col])
		if !ok {
			return nil, false
		}
		out[k] = t
	}
	return out, true
}

// GuessChannelType infers a type from common channel naming.
func GuessChannelType(name string) recording.ChannelType {
	upper := strings.ToUpper(name)
	switch {
	case strings.Contains(upper, "EOG"):
		return recording.TypeEOG
	case strings.Contains(upper, "ECG"), strings.Contains(upper, "EKG"):
		return recording.TypeECG
	case strings.HasPrefix(upper, "STI"), strings.Contains(upper, "TRIG"), upper == "STATUS":
		return recording.TypeStim
	case strings.HasPrefix(upper, "MEG"):
		return recording.TypeMag
	case strings.HasPrefix(upper, "MISC"):
		return recording.TypeMisc
	}
	return recording.TypeEEG
}
