package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"stoyanka/internal/config"
	"stoyanka/internal/database"
	"stoyanka/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type SpacesConfig struct {
	Spaces []models.ParkingSpace `yaml:"spaces"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		spacesPath = flag.String("spaces", "configs/spaces.yaml", "path to spaces.yaml")
		dbPath     = flag.String("db", "./data/stoyanka.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*spacesPath)
	if err != nil {
		return fmt.Errorf("read spaces: %w", err)
	}
	var cfg SpacesConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse spaces: %w", err)
	}
	if len(cfg.Spaces) == 0 {
		return fmt.Errorf("no spaces in yaml")
	}
	if err = config.ValidateSpaces(cfg.Spaces); err != nil {
		return fmt.Errorf("validate spaces: %w", err)
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := range cfg.Spaces {
		if err = db.UpsertSpace(ctx, &cfg.Spaces[i]); err != nil {
			return fmt.Errorf("upsert %s: %w", cfg.Spaces[i].ID, err)
		}
	}

	fmt.Printf("done: upserted=%d\n", len(cfg.Spaces))
	return nil
}
