package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"newsletterbot/internal/domain"
)

type BoxScore = domain.BoxScore

var weekNumberPattern = regexp.MustCompile(`\d+`)

// WeekNumber extracts the first integer of a week label ("Jornada 12" -> 12),
// or 0 when there is none.
func WeekNumber(label string) int {
	m := weekNumberPattern.FindString(label)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// LoadCSVFile reads the cumulative box-score export.
func LoadCSVFile(path string) ([]BoxScore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses a box-score export by header name. Week, PlayerID, Name and
// Team are required; numeric columns that are missing or unparsable read as 0.
func ReadCSV(r io.Reader) ([]BoxScore, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, required := range []string{"Week", "PlayerID", "Name", "Team"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv missing column %q", required)
		}
	}

	text := func(rec []string, col string) string {
		i, ok := cols[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	num := func(rec []string, col string) float64 {
		v, err := strconv.ParseFloat(text(rec, col), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0
		}
		return v
	}

	var rows []BoxScore
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		rows = append(rows, BoxScore{
			Week:     text(rec, "Week"),
			PlayerID: text(rec, "PlayerID"),
			Name:     text(rec, "Name"),
			Team:     text(rec, "Team"),
			VAL:      num(rec, "VAL"),
			PTS:      num(rec, "PTS"),
			RebT:     num(rec, "Reb_T"),
			AST:      num(rec, "AST"),
			Win:      num(rec, "Win"),
			GamePoss: num(rec, "Game_Poss"),
			TO:       num(rec, "TO"),
			TSPct:    num(rec, "TS%"),
			USGPct:   num(rec, "USG%"),
		})
	}
	return rows, nil
}

// Weeks returns the distinct week labels ordered by their embedded number.
func Weeks(rows []BoxScore) []string {
	seen := make(map[string]bool)
	var weeks []string
	for _, r := range rows {
		if !seen[r.Week] {
			seen[r.Week] = true
			weeks = append(weeks, r.Week)
		}
	}
	sort.SliceStable(weeks, func(i, j int) bool {
		ni, nj := WeekNumber(weeks[i]), WeekNumber(weeks[j])
		if ni != nj {
			return ni < nj
		}
		return weeks[i] < weeks[j]
	})
	return weeks
}

func filterWeeks(rows []BoxScore, weeks ...string) []BoxScore {
	want := make(map[string]bool, len(weeks))
	for _, w := range weeks {
		want[w] = true
	}
	var out []BoxScore
	for _, r := range rows {
		if want[r.Week] {
			out = append(out, r)
		}
	}
	return out
}
