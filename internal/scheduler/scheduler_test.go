package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"newsletterbot/internal/buffer"
	"newsletterbot/internal/poller"
	"newsletterbot/internal/roundlog"
)

type countingPoll struct {
	calls int
	res   poller.Result
}

func (c *countingPoll) Run(ctx context.Context) poller.Result {
	c.calls++
	return c.res
}

func TestNewRejectsBadSchedule(t *testing.T) {
	if _, err := New("every tuesday", time.UTC, &countingPoll{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNext(t *testing.T) {
	s, err := New("*/30 * * * *", time.UTC, &countingPoll{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := s.Next(time.Date(2025, 11, 30, 20, 10, 0, 0, time.UTC))
	want := time.Date(2025, 11, 30, 20, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestRunOnceRecordsSnapshot(t *testing.T) {
	p := &countingPoll{res: poller.Result{Round: 7, Action: poller.ActionWaiting}}
	s, err := New("0 * * * *", time.UTC, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.RunOnce(context.Background())
	s.RunOnce(context.Background())
	snap := s.Snapshot()
	if p.calls != 2 || snap.Runs != 2 {
		t.Fatalf("expected 2 runs, got calls=%d runs=%d", p.calls, snap.Runs)
	}
	if snap.Last == nil || snap.Last.Round != 7 || snap.Last.Action != poller.ActionWaiting {
		t.Fatalf("unexpected last result %+v", snap.Last)
	}
}

func TestLoopStopsOnCancel(t *testing.T) {
	s, err := New("0 0 1 1 *", time.UTC, &countingPoll{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Loop(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop")
	}
}

func TestHealthz(t *testing.T) {
	h := NewRouter(StatusSource{LogPath: filepath.Join(t.TempDir(), "log.txt")}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatusReportsRoundAndPendingBuffer(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log.txt")
	if err := roundlog.Append(logPath, 11, time.Date(2025, 11, 30, 23, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	gate := buffer.NewGate(filepath.Join(dir, "buffer_control.txt"), 10*time.Hour)
	gate.Now = func() time.Time { return time.Date(2025, 12, 7, 21, 0, 0, 0, time.UTC) }
	if _, err := gate.Check(12); err != nil {
		t.Fatalf("Check: %v", err)
	}

	p := &countingPoll{res: poller.Result{Round: 12, Action: poller.ActionWaiting, Err: errors.New("x")}}
	s, err := New("*/30 * * * *", time.UTC, p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.RunOnce(context.Background())

	h := NewRouter(StatusSource{LogPath: logPath, Gate: gate}, s)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got statusJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.LastRound != 11 || got.NextRound != 12 {
		t.Fatalf("unexpected rounds %+v", got)
	}
	if got.Pending == nil || got.Pending.Round != 12 {
		t.Fatalf("expected pending round 12, got %+v", got.Pending)
	}
	if got.LastPoll == nil || got.LastPoll.Action != "waiting" || got.LastPoll.Error != "x" {
		t.Fatalf("unexpected last poll %+v", got.LastPoll)
	}
}
