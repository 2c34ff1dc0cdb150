// Package newsletter turns the stored box scores into the weekly markdown
// draft using a text-generation model.
package newsletter

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"newsletterbot/internal/config"
	"newsletterbot/internal/domain"
	"newsletterbot/internal/integrations/llm"
	"newsletterbot/internal/stats"
	"newsletterbot/internal/storage/sqlite"
)

// Generator is the text-generation backend.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, llm.LLMUsage, error)
}

type Writer struct {
	Cfg       config.Config
	DB        *sql.DB
	Generator Generator
	Names     stats.TeamNames
	Now       func() time.Time
}

// Result describes one generated draft.
type Result struct {
	IssueID int64
	Week    string
	Title   string
	Path    string
	Usage   llm.LLMUsage
}

// Write builds the prompt from the latest week in the store, generates the
// narrative, and writes it both to the draft file and to the issue history.
// Re-running replaces the draft.
func (w *Writer) Write(ctx context.Context) (Result, error) {
	rows, err := sqlite.LoadBoxScores(w.DB)
	if err != nil {
		return Result{}, fmt.Errorf("load box scores: %w", err)
	}
	weekly, err := stats.Summarize(rows)
	if err != nil {
		return Result{}, err
	}
	log.Printf("newsletter analysing week=%q rows=%d", weekly.Week, len(rows))

	blocks := BuildBlocks(weekly, w.Names)
	systemPrompt, userPrompt := BuildPrompts(weekly.Week, w.Cfg.SeasonLabel(), blocks)

	text, usage, err := w.Generator.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return Result{Usage: usage}, fmt.Errorf("generate: %w", err)
	}
	draft := Tidy(text)
	if Title(draft) == "" {
		return Result{Usage: usage}, fmt.Errorf("generate: empty response")
	}

	if err := writeDraft(w.Cfg.DraftPath, draft); err != nil {
		return Result{Usage: usage}, err
	}

	res := Result{Week: weekly.Week, Title: Title(draft), Path: w.Cfg.DraftPath, Usage: usage}
	res.IssueID, err = sqlite.InsertIssue(w.DB, domain.Issue{
		Round:       stats.WeekNumber(weekly.Week),
		Title:       res.Title,
		Markdown:    draft,
		LLMProvider: w.Cfg.LLMProvider,
		LLMModel:    w.Cfg.LLMModel,
		CreatedAt:   w.now(),
	})
	if err != nil {
		return res, fmt.Errorf("store issue: %w", err)
	}

	log.Printf("newsletter draft saved path=%s issue=%d title=%q tokens=%d", res.Path, res.IssueID, res.Title, usage.TotalTokens())
	return res, nil
}

func (w *Writer) now() time.Time {
	if w.Now == nil {
		return time.Now()
	}
	return w.Now()
}

func writeDraft(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create draft dir: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write draft: %w", err)
	}
	return nil
}
