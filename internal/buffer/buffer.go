// Package buffer implements the debounce window between detecting a finished
// round and generating its newsletter. The pending record lives in a one-line
// state file "<round>,<unix_timestamp>".
package buffer

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Decision int

const (
	NotYet Decision = iota
	Go
)

func (d Decision) String() string {
	if d == Go {
		return "go"
	}
	return "not-yet"
}

// Record is the pending debounce entry for a single round.
type Record struct {
	Round   int
	Started time.Time
}

type Gate struct {
	Path      string
	Threshold time.Duration
	Now       func() time.Time
}

func NewGate(path string, threshold time.Duration) *Gate {
	return &Gate{Path: path, Threshold: threshold, Now: time.Now}
}

func (g *Gate) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

// Check is called each time round is observed fully finished. The first
// observation always starts the window and returns NotYet.
func (g *Gate) Check(round int) (Decision, error) {
	now := g.now()

	rec, ok := g.Current()
	if !ok {
		log.Printf("buffer start round=%d threshold=%s", round, g.Threshold)
		return NotYet, g.write(Record{Round: round, Started: now})
	}
	if rec.Round != round {
		log.Printf("buffer reset round=%d previous_round=%d", round, rec.Round)
		return NotYet, g.write(Record{Round: round, Started: now})
	}

	elapsed := now.Sub(rec.Started)
	log.Printf("buffer waiting round=%d elapsed=%s threshold=%s", round, elapsed.Round(time.Minute), g.Threshold)
	if elapsed >= g.Threshold {
		return Go, nil
	}
	return NotYet, nil
}

// Current returns the pending record. A missing or malformed file reads as
// no record.
func (g *Gate) Current() (Record, bool) {
	data, err := os.ReadFile(g.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("buffer read error path=%s err=%v", g.Path, err)
		}
		return Record{}, false
	}
	rec, err := ParseRecord(string(data))
	if err != nil {
		log.Printf("buffer ignoring malformed record path=%s err=%v", g.Path, err)
		return Record{}, false
	}
	return rec, true
}

// Clear removes the pending record. Clearing an absent record is not an error.
func (g *Gate) Clear() error {
	if err := os.Remove(g.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove buffer file: %w", err)
	}
	return nil
}

func (g *Gate) write(rec Record) error {
	if dir := filepath.Dir(g.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create buffer dir: %w", err)
		}
	}
	tmp := g.Path + ".tmp"
	if err := os.WriteFile(tmp, []byte(FormatRecord(rec)), 0644); err != nil {
		return fmt.Errorf("write buffer file: %w", err)
	}
	if err := os.Rename(tmp, g.Path); err != nil {
		return fmt.Errorf("replace buffer file: %w", err)
	}
	return nil
}

func FormatRecord(rec Record) string {
	secs := float64(rec.Started.UnixNano()) / float64(time.Second)
	return fmt.Sprintf("%d,%s", rec.Round, strconv.FormatFloat(secs, 'f', 6, 64))
}

// ParseRecord accepts integer or fractional unix timestamps.
func ParseRecord(s string) (Record, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return Record{}, fmt.Errorf("expected 2 fields, got %d", len(parts))
	}
	round, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Record{}, fmt.Errorf("round: %w", err)
	}
	ts, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Record{}, fmt.Errorf("timestamp: %w", err)
	}
	if math.IsNaN(ts) || math.IsInf(ts, 0) || ts < 0 {
		return Record{}, fmt.Errorf("timestamp out of range: %s", parts[1])
	}
	sec, frac := math.Modf(ts)
	return Record{Round: round, Started: time.Unix(int64(sec), int64(frac*1e9))}, nil
}
