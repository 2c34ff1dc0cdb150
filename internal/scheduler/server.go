package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"newsletterbot/internal/buffer"
	"newsletterbot/internal/roundlog"
)

// StatusSource supplies the persisted poller state.
type StatusSource struct {
	LogPath string
	Gate    *buffer.Gate
}

type pendingJSON struct {
	Round   int       `json:"round"`
	Started time.Time `json:"started"`
	Elapsed string    `json:"elapsed"`
}

type lastPollJSON struct {
	Round      int    `json:"round"`
	Action     string `json:"action"`
	Total      int    `json:"total"`
	Finished   int    `json:"finished"`
	Unfinished int    `json:"unfinished"`
	Failed     int    `json:"failed"`
	Error      string `json:"error,omitempty"`
	At         string `json:"at"`
}

type statusJSON struct {
	LastRound int           `json:"last_round"`
	NextRound int           `json:"next_round"`
	Pending   *pendingJSON  `json:"pending,omitempty"`
	Schedule  string        `json:"schedule,omitempty"`
	Runs      int           `json:"runs"`
	NextPoll  string        `json:"next_poll,omitempty"`
	LastPoll  *lastPollJSON `json:"last_poll,omitempty"`
}

// NewRouter serves /healthz and /status. sched may be nil.
func NewRouter(src StatusSource, sched *Scheduler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, buildStatus(src, sched, time.Now()))
	})
	return r
}

func buildStatus(src StatusSource, sched *Scheduler, now time.Time) statusJSON {
	last := roundlog.LastRound(src.LogPath)
	out := statusJSON{LastRound: last, NextRound: last + 1}
	if src.Gate != nil {
		if rec, ok := src.Gate.Current(); ok {
			out.Pending = &pendingJSON{
				Round:   rec.Round,
				Started: rec.Started.UTC(),
				Elapsed: now.Sub(rec.Started).Round(time.Second).String(),
			}
		}
	}
	if sched == nil {
		return out
	}
	snap := sched.Snapshot()
	out.Schedule = snap.Schedule
	out.Runs = snap.Runs
	if !snap.NextAt.IsZero() {
		out.NextPoll = snap.NextAt.Format(time.RFC3339)
	}
	if snap.Last != nil {
		lp := &lastPollJSON{
			Round:      snap.Last.Round,
			Action:     string(snap.Last.Action),
			Total:      snap.Last.Status.Total,
			Finished:   snap.Last.Status.Finished,
			Unfinished: snap.Last.Status.Unfinished,
			Failed:     snap.Last.Status.Failed,
			At:         snap.LastAt.Format(time.RFC3339),
		}
		if snap.Last.Err != nil {
			lp.Error = snap.Last.Err.Error()
		}
		out.LastPoll = lp
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("status encode error: %v", err)
	}
}

// Serve runs the status server until ctx is cancelled.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("status server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
