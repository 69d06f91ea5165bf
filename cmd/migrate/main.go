package main

import (
	"context"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"eegprep/adapters/ledger"
	"eegprep/internal/config"
)

func main() {
	if len(os.Args) < 2 || (os.Args[1] != "up" && os.Args[1] != "status") {
		log.Fatal("Usage: migrate up|status (reads LEDGER_DSN)")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Ledger.DSN == "" {
		log.Fatal("LEDGER_DSN is not set")
	}

	driver, source := ledger.ParseDSN(cfg.Ledger.DSN)
	db, err := sqlx.Connect(driver, source)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	migrator := ledger.NewMigrator(db)

	switch os.Args[1] {
	case "up":
		applied, err := migrator.Up(ctx)
		if err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		if len(applied) == 0 {
			log.Printf("Ledger schema is up to date")
		}
		for _, v := range applied {
			log.Printf("Applied %s", v)
		}
	case "status":
		statuses, err := migrator.Status(ctx)
		if err != nil {
			log.Fatalf("Failed to read migration status: %v", err)
		}
		for _, s := range statuses {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			log.Printf("%-40s %s", s.Version, state)
		}
	}
}
