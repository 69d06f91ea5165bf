package excel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"eegprep/adapters/synthetic"
	"eegprep/domain/core"
	"eegprep/domain/recording"
	"eegprep/domain/rejection"
)

func shortRecording(t *testing.T) *recording.Recording {
	t.Helper()
	cfg := synthetic.DefaultGeneratorConfig()
	cfg.Duration = 2
	rec, _, err := synthetic.NewGenerator(cfg).Generate()
	require.NoError(t, err)
	return rec
}

func TestRecording_CSVRoundTrip(t *testing.T) {
	rec := shortRecording(t)
	path := filepath.Join(t.TempDir(), "sub-01_eeg.csv")
	require.NoError(t, WriteRecording(path, rec))

	got, err := NewRecordingReader(DefaultReaderConfig()).Read(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, core.RecordingID("sub-01_eeg"), got.ID)
	assert.Equal(t, rec.SFreq, got.SFreq)
	assert.Equal(t, rec.Channels, got.Channels)
	require.Equal(t, rec.NTimes(), got.NTimes())
	for ch := range rec.Data {
		assert.InDeltaSlice(t, rec.Data[ch], got.Data[ch], 1e-15)
	}
}

func TestRecording_XLSXRoundTrip(t *testing.T) {
	rec := shortRecording(t)
	path := filepath.Join(t.TempDir(), "run.xlsx")
	require.NoError(t, WriteRecording(path, rec))

	got, err := NewRecordingReader(DefaultReaderConfig()).Read(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, rec.SFreq, got.SFreq)
	assert.Equal(t, rec.ChannelNames(), got.ChannelNames())
	assert.InDeltaSlice(t, rec.Data[0], got.Data[0], 1e-12)
}

func TestRecording_NoTimeColumnUsesConfiguredRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.csv")
	content := "Fz,Cz,EOG left\n1,2,3\n4,5,6\n7,8,9\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := NewRecordingReader(DefaultReaderConfig()).Read(context.Background(), path)
	assert.ErrorIs(t, err, core.ErrInvalidParameter)

	cfg := DefaultReaderConfig()
	cfg.SFreq = 256
	cfg.Scale = 1e-6
	rec, err := NewRecordingReader(cfg).Read(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 256.0, rec.SFreq)
	assert.Equal(t, recording.TypeEOG, rec.Channels[2].Type)
	assert.InDelta(t, 4e-6, rec.Data[0][1], 1e-18)
}

func TestRecording_BadCell(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("time,Fz\n0,1\n0.01,oops\n"), 0o644))
	_, err := NewRecordingReader(DefaultReaderConfig()).Read(context.Background(), path)
	assert.ErrorIs(t, err, core.ErrInvalidParameter)
	assert.Contains(t, err.Error(), "row 3")
}

func TestRecording_VendorFormatsUnsupported(t *testing.T) {
	for _, name := range []string{"a.bdf", "b.gdf", "c.fif", "d.edf", "e.dat"} {
		_, err := NewRecordingReader(DefaultReaderConfig()).Read(context.Background(), name)
		assert.ErrorIs(t, err, core.ErrUnsupportedFormat, name)
	}
}

func TestAnnotations_BIDSEventsTSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.tsv")
	content := "onset\tduration\ttrial_type\n2.5\tn/a\tauditory/right\n1.0\t0.1\tauditory/left\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ann, err := NewAnnotationReader("").ReadAnnotations(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, ann, 2)
	assert.Equal(t, "auditory/left", ann[0].Description)
	assert.Equal(t, 0.1, ann[0].Duration)
	assert.Equal(t, 2.5, ann[1].Onset)
	assert.Zero(t, ann[1].Duration)
}

func TestAnnotations_MissingOnset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ann.csv")
	require.NoError(t, os.WriteFile(path, []byte("start,description\n1,x\n"), 0o644))
	_, err := NewAnnotationReader("").ReadAnnotations(context.Background(), path)
	assert.ErrorIs(t, err, core.ErrInvalidParameter)
}

func TestRejectLogExport_XLSX(t *testing.T) {
	rl := rejection.New(3, []string{"Fz", "Cz"})
	rl.BadEpochs[1] = true
	rl.Labels[1][0] = rejection.Bad
	rl.Labels[2][1] = rejection.Interpolated

	path := filepath.Join(t.TempDir(), "reject.xlsx")
	require.NoError(t, NewRejectLogExporter().Export(context.Background(), rl, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(rejectSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"epoch", "bad", "Fz", "Cz"}, rows[0])
	assert.Equal(t, []string{"1", "true", "bad", "good"}, rows[2])
	assert.Equal(t, "interpolated", rows[3][3])

	v, err := f.GetCellValue(summarySheet, "B2")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestRejectLogExport_UnknownExtension(t *testing.T) {
	err := NewRejectLogExporter().Export(context.Background(), rejection.New(1, []string{"Fz"}), "log.json")
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)
}
