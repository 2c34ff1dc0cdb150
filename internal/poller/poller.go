// Package poller decides, once per invocation, whether the next unsent round
// has finished, and drives the buffer gate and the pipeline from that.
package poller

import (
	"context"
	"fmt"
	"log"
	"time"

	"newsletterbot/internal/acb"
	"newsletterbot/internal/buffer"
	"newsletterbot/internal/config"
	"newsletterbot/internal/roundlog"
)

// MatchSource lists a round's matches and reports each one's status.
type MatchSource interface {
	MatchIDs(ctx context.Context, season, competition string, round int) ([]int, error)
	MatchStatus(ctx context.Context, matchID int) acb.Outcome
}

// Runner is the downstream pipeline.
type Runner interface {
	Run(ctx context.Context, round int) error
}

// RoundStatus counts match outcomes for one round.
type RoundStatus struct {
	Round      int
	Total      int
	Finished   int
	Unfinished int
	Failed     int
}

// FullyFinished reports whether every discovered match has finished. A round
// with no matches is never finished.
func (s RoundStatus) FullyFinished() bool {
	return s.Total > 0 && s.Finished == s.Total
}

// Regressed reports whether at least one match positively reported it is not
// finished. Lookup failures alone do not count.
func (s RoundStatus) Regressed() bool {
	return s.Unfinished > 0
}

type Action string

const (
	ActionNoMatches      Action = "no-matches"
	ActionInProgress     Action = "in-progress"
	ActionWaiting        Action = "waiting"
	ActionSent           Action = "sent"
	ActionPipelineFailed Action = "pipeline-failed"
	ActionStateError     Action = "state-error"
)

// Result summarises one poll.
type Result struct {
	Round  int
	Status RoundStatus
	Action Action
	Err    error
}

type Poller struct {
	Season      string
	Competition string
	LogPath     string
	Source      MatchSource
	Gate        *buffer.Gate
	Pipeline    Runner
	Now         func() time.Time
}

func New(cfg config.Config, source MatchSource, gate *buffer.Gate, pipeline Runner) *Poller {
	return &Poller{
		Season:      cfg.Season,
		Competition: cfg.Competition,
		LogPath:     cfg.LogFile,
		Source:      source,
		Gate:        gate,
		Pipeline:    pipeline,
		Now:         time.Now,
	}
}

// CheckRound looks up every match of round. Each lookup is independent and
// anything other than Finished counts against completion.
func (p *Poller) CheckRound(ctx context.Context, round int) (RoundStatus, error) {
	status := RoundStatus{Round: round}

	ids, err := p.Source.MatchIDs(ctx, p.Season, p.Competition, round)
	if err != nil {
		return status, fmt.Errorf("list matches for round %d: %w", round, err)
	}
	status.Total = len(ids)

	for _, id := range ids {
		outcome := p.Source.MatchStatus(ctx, id)
		switch outcome {
		case acb.Finished:
			status.Finished++
		case acb.Unfinished:
			status.Unfinished++
		default:
			status.Failed++
			log.Printf("poller match lookup failed round=%d match=%d outcome=%s", round, id, outcome)
		}
	}
	return status, nil
}

// Run performs one poll. It never returns an error; problems are reported in
// the Result and logged, and the round is re-evaluated on the next poll.
func (p *Poller) Run(ctx context.Context) Result {
	last := roundlog.LastRound(p.LogPath)
	target := last + 1
	log.Printf("poller start last_sent=%d checking=%d", last, target)

	res := Result{Round: target}
	status, err := p.CheckRound(ctx, target)
	res.Status = status
	if err != nil {
		log.Printf("poller listing error round=%d err=%v", target, err)
	}
	if status.Total == 0 {
		log.Printf("poller round=%d has no matches yet", target)
		res.Action = ActionNoMatches
		return res
	}

	log.Printf("poller round=%d finished=%d/%d unfinished=%d failed=%d", target, status.Finished, status.Total, status.Unfinished, status.Failed)

	if !status.FullyFinished() {
		res.Action = ActionInProgress
		if status.Regressed() {
			if err := p.Gate.Clear(); err != nil {
				log.Printf("poller buffer clear error round=%d err=%v", target, err)
				res.Err = err
			}
		}
		return res
	}

	decision, err := p.Gate.Check(target)
	if err != nil {
		log.Printf("poller buffer error round=%d err=%v", target, err)
		res.Action = ActionStateError
		res.Err = err
		return res
	}
	if decision != buffer.Go {
		res.Action = ActionWaiting
		return res
	}

	log.Printf("poller buffer elapsed round=%d, starting pipeline", target)
	if err := p.Pipeline.Run(ctx, target); err != nil {
		log.Printf("poller pipeline failed round=%d err=%v", target, err)
		res.Action = ActionPipelineFailed
		res.Err = err
		return res
	}

	if err := roundlog.Append(p.LogPath, target, p.now()); err != nil {
		log.Printf("poller completion log error round=%d err=%v", target, err)
		res.Action = ActionStateError
		res.Err = err
		return res
	}
	if err := p.Gate.Clear(); err != nil {
		log.Printf("poller buffer clear error round=%d err=%v", target, err)
		res.Err = err
	}
	log.Printf("poller round=%d sent", target)
	res.Action = ActionSent
	return res
}

func (p *Poller) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}
