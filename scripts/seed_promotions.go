package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"courtbook/internal/database"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type PromotionsConfig struct {
	Promotions []models.Promotion `yaml:"promotions"`
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
		promosPath = flag.String("promotions", "configs/promotions.yaml", "path to promotions.yaml")
		dbPath     = flag.String("db", "./data/courtbook.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*promosPath)
	if err != nil {
		return fmt.Errorf("read promotions: %w", err)
	}
	var cfg PromotionsConfig
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse promotions: %w", err)
	}
	if len(cfg.Promotions) == 0 {
		return fmt.Errorf("no promotions in yaml")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created := 0
	skipped := 0
	for i := range cfg.Promotions {
		promo := cfg.Promotions[i]
		if promo.Code == "" {
			continue
		}

		var existingID int64
		err = db.QueryRowContext(ctx,
			`SELECT id FROM promotions WHERE facility_id = ? AND code = ?`,
			promo.FacilityID, promo.Code,
		).Scan(&existingID)
		if err == nil {
			skipped++
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("lookup %s: %w", promo.Code, err)
		}

		if err = db.CreatePromotion(ctx, &promo); err != nil {
			return fmt.Errorf("create %s: %w", promo.Code, err)
		}
		created++
	}

	fmt.Printf("done: created=%d skipped=%d\n", created, skipped)
	return nil
}
