package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"eegprep/adapters/excel"
	"eegprep/adapters/montage"
	"eegprep/adapters/spectral"
	"eegprep/app"
)

func newPreprocessCmd() *cobra.Command {
	var src source
	var paramsFile, out string
	p := app.DefaultPreprocessParams()

	cmd := &cobra.Command{
		Use:   "preprocess [recording]",
		Short: "Crop, edit channels, remove line noise, resample and repair bad channels",
		Long: `Prepare a continuous recording for analysis.

Stages: crop and channel edits (retype, rename, pick), a power-line noise
scan, optional high-pass, notches at the line frequencies, resampling,
bad-channel edits and spherical spline repair of bad EEG channels.

Parameters come from --params (YAML, overlaid on the defaults), then from
any flag given explicitly.

Example: eegprep preprocess --simulate --sfreq 500 --bads Cz --out prepared.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			params := app.DefaultPreprocessParams()
			if paramsFile != "" {
				loaded, err := app.LoadPreprocessParams(paramsFile)
				if err != nil {
					return err
				}
				params = loaded
			}
			overridePreprocessParams(cmd, &params, p)

			rec, err := src.load(ctx, args)
			if err != nil {
				return err
			}
			filter := spectral.NewFFTFilter(cfg.Pipeline.FilterWorkers)
			svc := app.NewPreprocessService(app.PreprocessDeps{
				Filter:       filter,
				LineNoise:    filter,
				Interpolator: montage.NewSplineInterpolator(),
				Montages:     montage.NewBuiltin(),
				Logger:       logger,
			})

			start := time.Now()
			res, err := svc.Run(ctx, rec, params)
			if err != nil {
				return err
			}
			printPreprocess(res, time.Since(start))

			if out != "" {
				if err := excel.WriteRecording(out, res.Recording); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", out)
			}
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&paramsFile, "params", "", "YAML preprocessing parameter file")
	cmd.Flags().StringVar(&out, "out", "", "Write the prepared recording to this CSV file")
	cmd.Flags().Float64Var(&p.TMin, "tmin", p.TMin, "Crop start in seconds")
	cmd.Flags().Float64Var(&p.TMax, "tmax", p.TMax, "Crop end in seconds, 0 keeps the rest")
	cmd.Flags().StringToStringVar(&p.ChannelTypes, "set-type", nil, "Retype channels, e.g. EOG-left=eog")
	cmd.Flags().StringToStringVar(&p.Rename, "rename", nil, "Rename channels after retyping, e.g. EEG-0=FC3")
	cmd.Flags().StringSliceVar(&p.Picks, "pick", nil, "Channel types to keep, e.g. eeg,eog,stim")
	cmd.Flags().Float64SliceVar(&p.LineFreqs, "line-freqs", p.LineFreqs, "Line frequencies to scan and notch")
	cmd.Flags().Float64Var(&p.NoiseThreshold, "noise-threshold", p.NoiseThreshold, "Line-to-neighbour power ratio reported as noisy")
	cmd.Flags().Float64Var(&p.Highpass, "highpass", p.Highpass, "High-pass cutoff in Hz, 0 skips")
	cmd.Flags().BoolVar(&p.Notch, "notch", p.Notch, "Notch the line frequencies")
	cmd.Flags().Float64Var(&p.Resample, "resample", p.Resample, "Output sample rate in Hz, 0 keeps the input rate")
	cmd.Flags().StringSliceVar(&p.Bads, "bads", nil, "Replace the bad-channel list")
	cmd.Flags().StringSliceVar(&p.AddBads, "add-bad", nil, "Mark channels bad")
	cmd.Flags().StringSliceVar(&p.RemoveBads, "remove-bad", nil, "Unmark bad channels")
	cmd.Flags().BoolVar(&p.Interpolate, "interpolate", p.Interpolate, "Rebuild bad EEG channels from their neighbours")
	cmd.Flags().BoolVar(&p.ResetBads, "reset-bads", p.ResetBads, "Unmark channels once interpolated")
	cmd.Flags().StringVar(&p.Montage, "montage", p.Montage, "Built-in montage supplying sensor positions")
	return cmd
}

// overridePreprocessParams copies explicitly set flags from flagged onto params.
func overridePreprocessParams(cmd *cobra.Command, params *app.PreprocessParams, flagged app.PreprocessParams) {
	set := cmd.Flags().Changed
	if set("tmin") {
		params.TMin = flagged.TMin
	}
	if set("tmax") {
		params.TMax = flagged.TMax
	}
	if set("set-type") {
		params.ChannelTypes = flagged.ChannelTypes
	}
	if set("rename") {
		params.Rename = flagged.Rename
	}
	if set("pick") {
		params.Picks = flagged.Picks
	}
	if set("line-freqs") {
		params.LineFreqs = flagged.LineFreqs
	}
	if set("noise-threshold") {
		params.NoiseThreshold = flagged.NoiseThreshold
	}
	if set("highpass") {
		params.Highpass = flagged.Highpass
	}
	if set("notch") {
		params.Notch = flagged.Notch
	}
	if set("resample") {
		params.Resample = flagged.Resample
	}
	if set("bads") {
		params.Bads = flagged.Bads
	}
	if set("add-bad") {
		params.AddBads = flagged.AddBads
	}
	if set("remove-bad") {
		params.RemoveBads = flagged.RemoveBads
	}
	if set("interpolate") {
		params.Interpolate = flagged.Interpolate
	}
	if set("reset-bads") {
		params.ResetBads = flagged.ResetBads
	}
	if set("montage") {
		params.Montage = flagged.Montage
	}
}

func printPreprocess(out *app.PreprocessOutcome, elapsed time.Duration) {
	rec := out.Recording
	fmt.Printf("preprocess %s (%s)\n", out.RunID, elapsed.Round(time.Millisecond))
	fmt.Printf("stages: %s\n", joinStages(out))
	fmt.Printf("output: %d channels, %.1fs at %g Hz\n", rec.NChannels(), rec.Duration(), rec.SFreq)
	if out.LineNoise != nil {
		for _, l := range out.LineNoise.Lines {
			fmt.Printf("  %g Hz: median ratio %.1f, noisy %d\n", l.Freq, l.MedianRatio, len(l.Noisy))
		}
	}
	if len(out.NotchFreqs) > 0 {
		fmt.Printf("notched: %v Hz\n", out.NotchFreqs)
	}
	if len(out.Interpolated) > 0 {
		fmt.Printf("interpolated: %s\n", strings.Join(out.Interpolated, ", "))
	}
	if len(rec.Bads) > 0 {
		fmt.Printf("still bad: %s\n", strings.Join(rec.Bads, ", "))
	}
}

func joinStages(out *app.PreprocessOutcome) string {
	names := out.Result.Names()
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, " -> ")
}
