package excel

// ReaderConfig tunes how tabular recordings are interpreted.
type ReaderConfig struct {
	// SFreq is used when the file has no time column.
	SFreq float64 `json:"sfreq" yaml:"sfreq"`
	// Sheet names the XLSX worksheet to read.
	Sheet string `json:"sheet" yaml:"sheet"`
	// Scale multiplies every sample, e.g. 1e-6 for files stored in microvolts.
	Scale float64 `json:"scale" yaml:"scale"`
}

// DefaultReaderConfig reads Sheet1 and leaves samples unscaled.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		Sheet: "Sheet1",
		Scale: 1,
	}
}
