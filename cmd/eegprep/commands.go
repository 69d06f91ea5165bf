package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"eegprep/adapters/artifacts"
	"eegprep/adapters/decomposition"
	"eegprep/adapters/excel"
	"eegprep/adapters/report"
	"eegprep/adapters/rng"
	"eegprep/adapters/spectral"
	"eegprep/adapters/synthetic"
	"eegprep/app"
	"eegprep/internal/config"
	apperrors "eegprep/internal/errors"
	"eegprep/ports"
)

func newRunCmd() *cobra.Command {
	var src source
	var paramsFile, reportDir string
	var noReport bool
	p := app.DefaultParams()

	cmd := &cobra.Command{
		Use:   "run [recording]",
		Short: "Run the preprocessing and rejection pipeline",
		Long: `Filter, epoch, reject, decompose and repair one recording.

Parameters come from --params (YAML, overlaid on the defaults), then from
any flag given explicitly. Reports are written to REPORT_DIR unless
--no-report is set. LEDGER_DSN selects a sqlite or postgres ledger.

Example: eegprep run --simulate --duration 120 --ica-seed 7`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			params := app.DefaultParams()
			if paramsFile == "" {
				paramsFile = cfg.Pipeline.ParamsFile
			}
			if paramsFile != "" {
				loaded, err := app.LoadParams(paramsFile)
				if err != nil {
					return err
				}
				params = loaded
			}
			overrideParams(cmd, &params, p)

			rec, err := src.load(ctx, args)
			if err != nil {
				return err
			}
			ledgerPort, closeLedger, err := openLedger(ctx)
			if err != nil {
				return err
			}
			defer closeLedger()

			start := time.Now()
			out, err := newPipelineService(ledgerPort).Run(ctx, rec, params)
			if err != nil {
				return err
			}
			printOutcome(out, time.Since(start))

			if noReport {
				return nil
			}
			if reportDir == "" {
				reportDir = cfg.Pipeline.ReportDir
			}
			svc := app.NewReportService(excel.NewRejectLogExporter(), logger, report.NewMarkdownRenderer(), report.NewHTMLRenderer())
			paths, err := svc.Write(ctx, out, reportDir)
			if err != nil {
				return err
			}
			for _, path := range paths {
				fmt.Printf("wrote %s\n", path)
			}
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&paramsFile, "params", "", "YAML parameter file")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "Directory for reports (default REPORT_DIR)")
	cmd.Flags().BoolVar(&noReport, "no-report", false, "Skip writing reports")
	cmd.Flags().Float64Var(&p.Highpass, "highpass", p.Highpass, "High-pass cutoff in Hz")
	cmd.Flags().Float64Var(&p.EpochDuration, "epoch-duration", p.EpochDuration, "Fixed-length epoch duration in seconds")
	cmd.Flags().IntVar(&p.TrainEpochs, "train-epochs", p.TrainEpochs, "Epochs used to fit the rejector")
	cmd.Flags().Int64Var(&p.RejectSeed, "reject-seed", p.RejectSeed, "Rejector seed")
	cmd.Flags().Int64Var(&p.ICASeed, "ica-seed", p.ICASeed, "Decomposition seed")
	cmd.Flags().IntVar(&p.NComponents, "n-components", p.NComponents, "Components to keep, 0 keeps all")
	cmd.Flags().IntSliceVar(&p.Exclude, "exclude", p.Exclude, "Component indices to exclude with the fixed decider")
	cmd.Flags().StringVar(&p.Decider, "decider", p.Decider, "Exclusion decider: fixed or reference")
	cmd.Flags().BoolVar(&p.SecondPass, "second-pass", p.SecondPass, "Run rejection again after repair")
	cmd.Flags().StringVar(&p.Montage, "montage", p.Montage, "Restrict EEG channels to a built-in montage")
	return cmd
}

// overrideParams copies explicitly set flags from flagged onto params.
func overrideParams(cmd *cobra.Command, params *app.Params, flagged app.Params) {
	set := cmd.Flags().Changed
	if set("highpass") {
		params.Highpass = flagged.Highpass
	}
	if set("epoch-duration") {
		params.EpochDuration = flagged.EpochDuration
	}
	if set("train-epochs") {
		params.TrainEpochs = flagged.TrainEpochs
	}
	if set("reject-seed") {
		params.RejectSeed = flagged.RejectSeed
	}
	if set("ica-seed") {
		params.ICASeed = flagged.ICASeed
	}
	if set("n-components") {
		params.NComponents = flagged.NComponents
	}
	if set("exclude") {
		params.Exclude = flagged.Exclude
	}
	if set("decider") {
		params.Decider = flagged.Decider
	}
	if set("second-pass") {
		params.SecondPass = flagged.SecondPass
	}
	if set("montage") {
		params.Montage = flagged.Montage
	}
}

func printOutcome(out *app.PipelineOutcome, elapsed time.Duration) {
	fmt.Printf("run %s (%s)\n", out.RunID, elapsed.Round(time.Millisecond))
	fmt.Printf("fingerprint: %s\n", out.Manifest.Fingerprint.Fingerprint)
	fmt.Printf("epochs: %s of %d samples\n", humanize.Comma(int64(out.Epochs.Len())), out.Epochs.NTimes())
	fmt.Printf("first pass: %d bad epochs\n", out.RejectLog.BadCount())
	fmt.Printf("components: %d, excluded %s\n", out.Decomposition.NComponents, formatInts(out.Exclude))
	for _, s := range out.Scores {
		fmt.Printf("  %s (%s): flagged %s\n", s.Kind, s.Channel, formatInts(s.Indices))
	}
	if out.SecondLog != nil {
		fmt.Printf("second pass: %d bad epochs\n", out.SecondLog.BadCount())
	}
}

func newICACmd() *cobra.Command {
	var src source
	var paramsFile, out string
	p := app.DefaultArtifactParams()

	cmd := &cobra.Command{
		Use:   "ica [recording]",
		Short: "Repair a continuous recording by projecting out artifact components",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			params := p
			if paramsFile != "" {
				params = app.DefaultArtifactParams()
				if err := config.LoadYAML(paramsFile, &params); err != nil {
					return err
				}
			}
			rec, err := src.load(ctx, args)
			if err != nil {
				return err
			}

			var decider ports.ExclusionDecider
			if params.Decider == app.DeciderReference {
				decider = ports.ReferenceExclusion()
			} else {
				decider = ports.FixedExclusion(params.Exclude...)
			}
			seeded := rng.SeededRNG{}
			svc := app.NewArtifactService(
				spectral.NewFFTFilter(cfg.Pipeline.FilterWorkers),
				decomposition.NewPCADecomposer(decomposition.DefaultConfig(), seeded),
				artifacts.Detector{},
				decider,
				logger,
			)
			res, err := svc.Run(ctx, rec, params)
			if err != nil {
				return err
			}
			fmt.Printf("fitted %d components on %.0fs, excluded %s\n",
				res.Decomposition.NComponents, res.Cropped.Duration(), formatInts(res.Exclude))
			for _, kind := range params.ReferenceKinds {
				c, evoked, err := svc.ArtifactEpochs(ctx, res.Cropped, kind)
				if err != nil {
					logger.Warn("no %s average: %v", kind, err)
					continue
				}
				fmt.Printf("  %s: %d events, average of %d\n", kind, c.Len(), evoked.NAve)
			}
			if out != "" {
				if err := excel.WriteRecording(out, res.Reconstructed); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", out)
			}
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&paramsFile, "params", "", "YAML artifact parameter file")
	cmd.Flags().StringVar(&out, "out", "", "Write the reconstructed recording to this CSV file")
	cmd.Flags().Float64Var(&p.Crop, "crop", p.Crop, "Seconds kept from the start, 0 keeps everything")
	cmd.Flags().IntVar(&p.NComponents, "n-components", p.NComponents, "Components to fit")
	cmd.Flags().Int64Var(&p.Seed, "seed", p.Seed, "Decomposition seed")
	cmd.Flags().StringVar(&p.Decider, "decider", p.Decider, "Exclusion decider: fixed or reference")
	cmd.Flags().IntSliceVar(&p.Exclude, "exclude", p.Exclude, "Component indices for the fixed decider")
	return cmd
}

func newEventsCmd() *cobra.Command {
	var src source
	var stim string
	var seed int64
	var equalize bool

	cmd := &cobra.Command{
		Use:   "events [recording]",
		Short: "Find stimulus events and cut event-locked epochs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rec, err := src.load(ctx, args)
			if err != nil {
				return err
			}
			svc := app.NewEventsService(rng.SeededRNG{}, logger)
			table, err := svc.FindEvents(rec, stim)
			if err != nil {
				return err
			}
			counts := table.Counts()
			codes := make([]int, 0, len(counts))
			for code := range counts {
				codes = append(codes, code)
			}
			sort.Ints(codes)
			fmt.Printf("%d events on %s\n", len(table), stim)
			for _, code := range codes {
				fmt.Printf("  %4d: %d\n", code, counts[code])
			}

			req := app.DefaultEpochRequest(table)
			req.Seed = seed
			if !equalize {
				req.Equalize = nil
			}
			c, err := svc.Epoch(ctx, rec, req)
			if err != nil {
				return err
			}
			fmt.Printf("%d epochs kept, %d dropped\n", c.Len(), len(c.DropLog))
			byLabel := c.CountByLabel()
			labels := make([]string, 0, len(byLabel))
			for l := range byLabel {
				labels = append(labels, l)
			}
			sort.Strings(labels)
			for _, l := range labels {
				fmt.Printf("  %-16s %d\n", l, byLabel[l])
			}
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&stim, "stim", app.DefaultStimChannel, "Stim channel name")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for equalizing condition counts")
	cmd.Flags().BoolVar(&equalize, "equalize", true, "Equalize auditory and visual condition counts")
	return cmd
}

func newInfoCmd() *cobra.Command {
	var src source

	cmd := &cobra.Command{
		Use:   "info [recording]",
		Short: "Describe a recording",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := src.load(cmd.Context(), args)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %d channels, %s samples at %g Hz (%.1fs)\n",
				rec.ID, rec.NChannels(), humanize.Comma(int64(rec.NTimes())), rec.SFreq, rec.Duration())
			types := make(map[string]int)
			for _, ch := range rec.Channels {
				types[string(ch.Type)]++
			}
			names := make([]string, 0, len(types))
			for t := range types {
				names = append(names, t)
			}
			sort.Strings(names)
			for _, t := range names {
				fmt.Printf("  %-5s %d\n", t, types[t])
			}
			if len(rec.Bads) > 0 {
				fmt.Printf("bads: %v\n", rec.Bads)
			}
			return nil
		},
	}
	src.register(cmd)
	return cmd
}

func newSimulateCmd() *cobra.Command {
	gc := synthetic.DefaultGeneratorConfig()
	var quiet bool

	cmd := &cobra.Command{
		Use:   "simulate [out.csv]",
		Short: "Write a synthetic recording with known artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if quiet {
				gc.BlinkAmplitude = 0
				gc.HeartAmplitude = 0
			}
			rec, truth, err := synthetic.NewGenerator(gc).Generate()
			if err != nil {
				return err
			}
			if err := excel.WriteRecording(args[0], rec); err != nil {
				return err
			}
			fmt.Printf("wrote %s: %d channels, %.0fs, %d blinks, %d beats, %d events\n",
				args[0], rec.NChannels(), rec.Duration(),
				len(truth.BlinkSamples), len(truth.BeatSamples), len(truth.EventSamples))
			return nil
		},
	}
	cmd.Flags().Float64Var(&gc.Duration, "duration", gc.Duration, "Length in seconds")
	cmd.Flags().Float64Var(&gc.SFreq, "sfreq", gc.SFreq, "Sampling rate in Hz")
	cmd.Flags().Int64Var(&gc.Seed, "seed", gc.Seed, "Generator seed")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Leave out blinks and heartbeats")
	return cmd
}

func newRunsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs recorded in the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Ledger.DSN == "" {
				return apperrors.ConfigInvalid("LEDGER_DSN is not set")
			}
			ctx := cmd.Context()
			ledgerPort, closeLedger, err := openLedger(ctx)
			if err != nil {
				return err
			}
			defer closeLedger()
			runs, err := ledgerPort.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			for _, r := range runs {
				fmt.Printf("%s  %-9s  %-20s  %4d epochs  %3d bad  %s\n",
					r.RunID, r.Status, r.RecordingID, r.NEpochs, r.NBad, humanize.Time(r.CreatedAt.Time()))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	return cmd
}
