// Package roundlog reads and appends the completion log: one free-text line
// per round that has been generated and sent.
package roundlog

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"
)

var roundPattern = regexp.MustCompile(`(?i)Jornada\s*[:#-]?\s*(\d+)`)

// LastRound returns the highest round number mentioned in the log, or 0 when
// the log is missing, empty or unreadable. Lines have no length limit; a read
// error keeps the highest round seen before it.
func LastRound(path string) int {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("roundlog read error path=%s err=%v", path, err)
		}
		return 0
	}
	defer f.Close()

	last := 0
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if n, ok := ParseRound(line); ok && n > last {
			last = n
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("roundlog read error path=%s err=%v", path, err)
			break
		}
	}
	return last
}

// ParseRound extracts the round number embedded in a log line.
func ParseRound(line string) (int, bool) {
	m := roundPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// FormatEntry renders the line written once a round has been sent.
func FormatEntry(round int, at time.Time) string {
	return fmt.Sprintf("%s : ✅ Jornada %d completada y enviada.\n", at.Format("2006-01-02 15:04"), round)
}

// Append adds the entry for round to the log. Existing lines are never
// rewritten.
func Append(path string, round int, at time.Time) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open completion log: %w", err)
	}
	if _, err := f.WriteString(FormatEntry(round, at)); err != nil {
		f.Close()
		return fmt.Errorf("append completion log: %w", err)
	}
	return f.Close()
}
