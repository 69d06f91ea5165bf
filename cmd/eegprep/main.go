package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"eegprep/adapters/bids"
	"eegprep/adapters/decomposition"
	"eegprep/adapters/excel"
	"eegprep/adapters/ledger"
	"eegprep/adapters/montage"
	"eegprep/adapters/rejection"
	"eegprep/adapters/rng"
	"eegprep/adapters/spectral"
	"eegprep/adapters/synthetic"
	"eegprep/app"
	"eegprep/domain/recording"
	"eegprep/internal"
	"eegprep/internal/config"
	"eegprep/ports"
)

var (
	cfg    *config.Config
	logger *internal.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "eegprep",
		Short: "EEG/MEG preprocessing and rejection pipeline",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			logger = internal.NewLogger(cfg.Logging.Level)
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newPreprocessCmd(),
		newICACmd(),
		newEventsCmd(),
		newInfoCmd(),
		newSimulateCmd(),
		newRunsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// source picks a recording: a file argument, or a synthetic one.
type source struct {
	simulate bool
	duration float64
	seed     int64
	sidecar  string
	sfreq    float64
	scale    float64
}

func (s *source) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&s.simulate, "simulate", false, "Use a synthetic recording instead of a file")
	cmd.Flags().Float64Var(&s.duration, "duration", 180, "Synthetic recording length in seconds")
	cmd.Flags().Int64Var(&s.seed, "sim-seed", 42, "Synthetic recording seed")
	cmd.Flags().StringVar(&s.sidecar, "sidecar", "", "BIDS JSON sidecar to check the recording against")
	cmd.Flags().Float64Var(&s.sfreq, "sfreq", 0, "Sampling rate for files without a time column")
	cmd.Flags().Float64Var(&s.scale, "scale", 1, "Multiplier applied to every sample (1e-6 for microvolt files)")
}

func (s *source) load(ctx context.Context, args []string) (*recording.Recording, error) {
	var rec *recording.Recording
	switch {
	case s.simulate:
		gc := synthetic.DefaultGeneratorConfig()
		gc.Duration = s.duration
		gc.Seed = s.seed
		r, _, err := synthetic.NewGenerator(gc).Generate()
		if err != nil {
			return nil, err
		}
		rec = r
	case len(args) == 0:
		return nil, fmt.Errorf("a recording file is required unless --simulate is set")
	default:
		rc := excel.DefaultReaderConfig()
		rc.SFreq = s.sfreq
		rc.Scale = s.scale
		var reader ports.RecordingReaderPort = excel.NewRecordingReader(rc)
		r, err := reader.Read(ctx, args[0])
		if err != nil {
			return nil, err
		}
		rec = r
	}

	if s.sidecar != "" {
		var reader ports.SidecarReaderPort = bids.NewSidecarReader()
		info, err := reader.ReadSidecar(ctx, s.sidecar)
		if err != nil {
			return nil, err
		}
		for _, issue := range bids.Check(info, rec) {
			logger.Warn("sidecar mismatch: %s", issue)
		}
	}
	return rec, nil
}

// openLedger connects to LEDGER_DSN, or keeps the run in memory when unset.
func openLedger(ctx context.Context) (ports.LedgerPort, func(), error) {
	if cfg.Ledger.DSN == "" {
		return ledger.NewMemoryLedger(), func() {}, nil
	}
	l, err := ledger.Open(ctx, cfg.Ledger.DSN)
	if err != nil {
		return nil, nil, err
	}
	return l, func() { l.Close() }, nil
}

func newPipelineService(ledgerPort ports.LedgerPort) *app.PipelineService {
	seeded := rng.SeededRNG{}
	return app.NewPipelineService(app.PipelineDeps{
		Filter:     spectral.NewFFTFilter(cfg.Pipeline.FilterWorkers),
		Rejector:   rejection.NewThresholdRejector(rejection.DefaultConfig(), seeded),
		Decomposer: decomposition.NewPCADecomposer(decomposition.DefaultConfig(), seeded),
		Montages:   montage.NewBuiltin(),
		Ledger:     ledgerPort,
		Logger:     logger,
	})
}

func formatInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
