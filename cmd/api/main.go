package main

import (
	"context"
	"log"

	"eegprep/adapters/api"
	"eegprep/adapters/decomposition"
	"eegprep/adapters/ledger"
	"eegprep/adapters/montage"
	"eegprep/adapters/rejection"
	"eegprep/adapters/rng"
	"eegprep/adapters/spectral"
	"eegprep/adapters/synthetic"
	"eegprep/app"
	"eegprep/internal"
	"eegprep/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Ledger.DSN == "" {
		log.Fatal("LEDGER_DSN is required to serve the ledger")
	}

	l, err := ledger.Open(context.Background(), cfg.Ledger.DSN)
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}
	defer l.Close()

	hub := api.NewEventHub()
	defer hub.Close()

	seeded := rng.SeededRNG{}
	pipeline := app.NewPipelineService(app.PipelineDeps{
		Filter:     spectral.NewFFTFilter(cfg.Pipeline.FilterWorkers),
		Rejector:   rejection.NewThresholdRejector(rejection.DefaultConfig(), seeded),
		Decomposer: decomposition.NewPCADecomposer(decomposition.DefaultConfig(), seeded),
		Montages:   montage.NewBuiltin(),
		Ledger:     l,
		Observer:   hub,
		Logger:     internal.NewLogger(cfg.Logging.Level),
	})

	launch := func(req api.LaunchRequest) (api.RunJob, error) {
		p, err := app.DecodeParamsJSON(req.Params)
		if err != nil {
			return nil, err
		}
		gc := synthetic.DefaultGeneratorConfig()
		gc.Duration = req.Duration
		gc.Seed = req.Seed
		return func(ctx context.Context) error {
			rec, _, err := synthetic.NewGenerator(gc).Generate()
			if err != nil {
				return err
			}
			_, err = pipeline.Run(ctx, rec, p)
			return err
		}, nil
	}

	server := api.NewServer(l, cfg.Server.GinMode)
	server.EnableRuns(hub, launch)
	if err := server.Start(cfg.Server.Addr()); err != nil {
		log.Fatal("Server failed:", err)
	}
}
