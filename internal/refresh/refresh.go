// Package refresh is the first pipeline step: it brings the box-score dataset
// up to date and loads it into the local store.
package refresh

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"newsletterbot/internal/config"
	"newsletterbot/internal/pipeline"
	"newsletterbot/internal/stats"
	"newsletterbot/internal/storage/sqlite"
)

// Result describes one refresh.
type Result struct {
	Rows  int
	Weeks int
	Last  string
}

// Run executes the configured scraper, if any, then imports the cumulative
// CSV into the store, replacing whatever was there.
func Run(ctx context.Context, cfg config.Config, db *sql.DB) (Result, error) {
	if len(cfg.ScraperCommand) > 0 {
		log.Printf("refresh running scraper cmd=%v", cfg.ScraperCommand)
		scraper := pipeline.CommandStep{StepName: "scraper", Command: cfg.ScraperCommand}
		if err := scraper.Run(ctx); err != nil {
			return Result{}, fmt.Errorf("scraper: %w", err)
		}
	}

	rows, err := stats.LoadCSVFile(cfg.DataCSVPath)
	if err != nil {
		return Result{}, fmt.Errorf("load %s: %w", cfg.DataCSVPath, err)
	}
	if len(rows) == 0 {
		return Result{}, fmt.Errorf("load %s: %w", cfg.DataCSVPath, stats.ErrNoData)
	}

	n, err := sqlite.ReplaceBoxScores(db, rows, stats.WeekNumber)
	if err != nil {
		return Result{}, fmt.Errorf("store box scores: %w", err)
	}

	weeks := stats.Weeks(rows)
	res := Result{Rows: n, Weeks: len(weeks), Last: weeks[len(weeks)-1]}
	log.Printf("refresh imported rows=%d weeks=%d latest=%q", res.Rows, res.Weeks, res.Last)
	return res, nil
}
