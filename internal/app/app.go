// Package app wires the command line: one poll, the scheduled poller, and the
// three pipeline steps.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"newsletterbot/internal/acb"
	"newsletterbot/internal/buffer"
	"newsletterbot/internal/config"
	"newsletterbot/internal/httpx"
	"newsletterbot/internal/integrations/llm"
	"newsletterbot/internal/mailer"
	"newsletterbot/internal/newsletter"
	"newsletterbot/internal/pipeline"
	"newsletterbot/internal/poller"
	"newsletterbot/internal/refresh"
	"newsletterbot/internal/roundlog"
	"newsletterbot/internal/scheduler"
	"newsletterbot/internal/stats"
	"newsletterbot/internal/storage/sqlite"
)

// pollAnnotation marks the commands that must exit 0 even when the
// configuration is invalid.
const pollAnnotation = "poll"

func Main() {
	_ = godotenv.Load(".env")

	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command {
	var cfg config.Config
	var cfgErr error

	root := &cobra.Command{
		Use:          "newsletterbot",
		Short:        "ACB round watcher and weekly newsletter",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load()
			if err != nil {
				// A poll always exits 0; check reports the problem itself.
				if cmd.Annotations[pollAnnotation] != "" {
					cfgErr = err
					return nil
				}
				return err
			}
			cfg = loaded
			applied := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
			log.Printf(
				"Config loaded. Season=%s Competition=%s Buffer=%s LogFile=%s BufferFile=%s LLM=%s ExternalHTTPTimeout=%s",
				cfg.Season, cfg.Competition, cfg.Buffer(), cfg.LogFile, cfg.BufferFile, cfg.LLMProvider, applied,
			)
			return nil
		},
		Annotations: map[string]string{pollAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			runCheck(cmd.Context(), cfg, cfgErr)
			return nil
		},
	}

	root.AddCommand(&cobra.Command{
		Use:         "check",
		Short:       "Poll the next unsent round once and trigger the pipeline when it is ready",
		Annotations: map[string]string{pollAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			runCheck(cmd.Context(), cfg, cfgErr)
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "schedule",
		Short: "Poll on poll_schedule and serve /healthz and /status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(cmd.Context(), cfg)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Run the scraper and import the box-score CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cfg, func(db *sql.DB) error {
				_, err := refresh.Run(cmd.Context(), cfg, db)
				return err
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "write",
		Short: "Generate the newsletter draft for the latest week",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireLLM(); err != nil {
				return err
			}
			names, err := stats.LoadTeamNames(cfg.TeamNamesPath)
			if err != nil {
				return err
			}
			return withDB(cfg, func(db *sql.DB) error {
				w := &newsletter.Writer{Cfg: cfg, DB: db, Generator: llm.NewClient(cfg), Names: names, Now: time.Now}
				res, err := w.Write(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Draft %q written to %s (issue %d, %d tokens)\n",
					res.Title, res.Path, res.IssueID, res.Usage.TotalTokens())
				return nil
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "send",
		Short: "Mail the current draft to subscribers and announce it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireMail(); err != nil {
				return err
			}
			return withDB(cfg, func(db *sql.DB) error {
				res, err := mailer.New(cfg, db).Send(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "Issue %d: sent=%d failed=%d of %d\n",
					res.IssueID, res.Sent, res.Failed, res.Recipients)
				return err
			})
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the last sent round, the pending buffer and the latest issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDB(cfg, func(db *sql.DB) error {
				return printStatus(cmd.OutOrStdout(), cfg, db, time.Now())
			})
		},
	})

	return root
}

func newPoller(cfg config.Config) *poller.Poller {
	gate := buffer.NewGate(cfg.BufferFile, cfg.Buffer())
	trigger := pipeline.NewTrigger(pipeline.StepsFromConfig(cfg, selfPath())...)
	return poller.New(cfg, acb.NewClient(cfg), gate, trigger)
}

// runCheck never fails the process: the next invocation retries.
func runCheck(ctx context.Context, cfg config.Config, cfgErr error) {
	if cfgErr != nil {
		log.Printf("check skipped: config: %v", cfgErr)
		return
	}
	res := newPoller(cfg).Run(ctx)
	if res.Err != nil {
		log.Printf("check round=%d action=%s err=%v", res.Round, res.Action, res.Err)
		return
	}
	log.Printf("check round=%d action=%s", res.Round, res.Action)
}

func runSchedule(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched, err := scheduler.New(cfg.PollSchedule, cfg.Location, newPoller(cfg))
	if err != nil {
		return err
	}

	if cfg.StatusAddr != "" {
		src := scheduler.StatusSource{LogPath: cfg.LogFile, Gate: buffer.NewGate(cfg.BufferFile, cfg.Buffer())}
		go func() {
			if err := scheduler.Serve(ctx, cfg.StatusAddr, scheduler.NewRouter(src, sched)); err != nil {
				log.Printf("status server error: %v", err)
			}
		}()
	}

	sched.Loop(ctx)
	return nil
}

func withDB(cfg config.Config, fn func(db *sql.DB) error) error {
	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()
	return fn(db)
}

func printStatus(w io.Writer, cfg config.Config, db *sql.DB, now time.Time) error {
	last := roundlog.LastRound(cfg.LogFile)
	fmt.Fprintf(w, "Season %s, competition %s\n", cfg.SeasonLabel(), cfg.Competition)
	fmt.Fprintf(w, "Last sent round: %d (next: %d)\n", last, last+1)

	gate := buffer.NewGate(cfg.BufferFile, cfg.Buffer())
	if rec, ok := gate.Current(); ok {
		elapsed := now.Sub(rec.Started)
		fmt.Fprintf(w, "Buffer: round %d finished at %s, %s of %s elapsed\n",
			rec.Round, rec.Started.In(cfg.Location).Format("2006-01-02 15:04"),
			elapsed.Round(time.Minute), cfg.Buffer())
	} else {
		fmt.Fprintln(w, "Buffer: idle")
	}

	issue, err := sqlite.LatestIssue(db)
	if errors.Is(err, sqlite.ErrNoIssue) {
		fmt.Fprintln(w, "Latest issue: none")
		return nil
	}
	if err != nil {
		return err
	}
	sent, failed, err := sqlite.DeliveryCounts(db, issue.ID)
	if err != nil {
		return err
	}
	state := "draft"
	if issue.SentAt != nil {
		state = "sent " + issue.SentAt.In(cfg.Location).Format("2006-01-02 15:04")
	}
	fmt.Fprintf(w, "Latest issue: #%d %q (%s, deliveries sent=%d failed=%d)\n", issue.ID, issue.Title, state, sent, failed)
	return nil
}

func selfPath() string {
	if exe, err := os.Executable(); err == nil {
		return exe
	}
	if abs, err := filepath.Abs(os.Args[0]); err == nil {
		return abs
	}
	return os.Args[0]
}
