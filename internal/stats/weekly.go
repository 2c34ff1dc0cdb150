package stats

import (
	"errors"
	"sort"
)

const (
	highlightCount    = 3
	trendWeeks        = 3
	trendCount        = 5
	sniperMinPoints   = 10
	possessionsFactor = 100
)

// TeamRates are a team's per-100-possession figures for one week.
type TeamRates struct {
	Team     string
	PTS      float64
	Poss     float64
	RebT     float64
	AST      float64
	TO       float64
	ORTG     float64
	ASTRatio float64
	TORatio  float64
}

// Trend is a player's mean over the most recent weeks.
type Trend struct {
	Name  string
	Team  string
	VAL   float64
	PTS   float64
	TSPct float64
	Games int
}

// Weekly holds everything the newsletter reports for the latest week.
type Weekly struct {
	Week       string
	Weeks      []string
	MVP        BoxScore
	Highlights []BoxScore

	BestOffense TeamRates
	BestPassing TeamRates
	MostCareful TeamRates
	Teams       []TeamRates

	Sniper    *BoxScore
	UsageLead *BoxScore

	TrendWeeks []string
	Trends     []Trend
}

var ErrNoData = errors.New("no box-score rows")

// Summarize computes the weekly leaderboards from the cumulative rows.
func Summarize(rows []BoxScore) (Weekly, error) {
	weeks := Weeks(rows)
	if len(weeks) == 0 {
		return Weekly{}, ErrNoData
	}
	latest := weeks[len(weeks)-1]
	week := filterWeeks(rows, latest)

	w := Weekly{Week: latest, Weeks: weeks}

	w.MVP = pickMVP(week)
	var rest []BoxScore
	for _, r := range week {
		if r.PlayerID != w.MVP.PlayerID {
			rest = append(rest, r)
		}
	}
	w.Highlights = topBy(rest, highlightCount, func(r BoxScore) float64 { return r.VAL })

	w.Teams = TeamAggregates(week)
	if len(w.Teams) > 0 {
		w.BestOffense = bestTeam(w.Teams, func(t TeamRates) float64 { return t.ORTG })
		w.BestPassing = bestTeam(w.Teams, func(t TeamRates) float64 { return t.ASTRatio })
		w.MostCareful = bestTeam(w.Teams, func(t TeamRates) float64 { return -t.TORatio })
	}

	var scorers []BoxScore
	for _, r := range week {
		if r.PTS >= sniperMinPoints {
			scorers = append(scorers, r)
		}
	}
	if top := topBy(scorers, 1, func(r BoxScore) float64 { return r.TSPct }); len(top) == 1 {
		w.Sniper = &top[0]
	}
	if top := topBy(week, 1, func(r BoxScore) float64 { return r.USGPct }); len(top) == 1 {
		w.UsageLead = &top[0]
	}

	if len(weeks) > trendWeeks {
		w.TrendWeeks = weeks[len(weeks)-trendWeeks:]
	} else {
		w.TrendWeeks = weeks
	}
	w.Trends = Trends(filterWeeks(rows, w.TrendWeeks...), trendCount)

	return w, nil
}

// pickMVP is the highest VAL among players whose team won, or among everyone
// when no winner is recorded.
func pickMVP(week []BoxScore) BoxScore {
	var winners []BoxScore
	for _, r := range week {
		if r.Win == 1 {
			winners = append(winners, r)
		}
	}
	pool := winners
	if len(pool) == 0 {
		pool = week
	}
	return topBy(pool, 1, func(r BoxScore) float64 { return r.VAL })[0]
}

// topBy returns the n rows with the highest key, keeping input order on ties.
func topBy(rows []BoxScore, n int, key func(BoxScore) float64) []BoxScore {
	sorted := make([]BoxScore, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return key(sorted[i]) > key(sorted[j]) })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// TeamAggregates sums each team's week and derives rates per 100 possessions
// using the mean of the per-player Game_Poss column.
func TeamAggregates(week []BoxScore) []TeamRates {
	type acc struct {
		rates   TeamRates
		possSum float64
		rows    int
	}
	byTeam := make(map[string]*acc)
	var order []string
	for _, r := range week {
		a, ok := byTeam[r.Team]
		if !ok {
			a = &acc{rates: TeamRates{Team: r.Team}}
			byTeam[r.Team] = a
			order = append(order, r.Team)
		}
		a.rates.PTS += r.PTS
		a.rates.RebT += r.RebT
		a.rates.AST += r.AST
		a.rates.TO += r.TO
		a.possSum += r.GamePoss
		a.rows++
	}

	sort.Strings(order)
	out := make([]TeamRates, 0, len(order))
	for _, team := range order {
		a := byTeam[team]
		t := a.rates
		t.Poss = a.possSum / float64(a.rows)
		if t.Poss > 0 {
			t.ORTG = t.PTS / t.Poss * possessionsFactor
			t.ASTRatio = t.AST / t.Poss * possessionsFactor
			t.TORatio = t.TO / t.Poss * possessionsFactor
		}
		out = append(out, t)
	}
	return out
}

func bestTeam(teams []TeamRates, key func(TeamRates) float64) TeamRates {
	best := teams[0]
	for _, t := range teams[1:] {
		if key(t) > key(best) {
			best = t
		}
	}
	return best
}

// Trends averages VAL, PTS and TS% per player (name and team) and returns the
// top n by VAL.
func Trends(rows []BoxScore, n int) []Trend {
	type key struct{ name, team string }
	sums := make(map[key]*Trend)
	var order []key
	for _, r := range rows {
		k := key{r.Name, r.Team}
		t, ok := sums[k]
		if !ok {
			t = &Trend{Name: r.Name, Team: r.Team}
			sums[k] = t
			order = append(order, k)
		}
		t.VAL += r.VAL
		t.PTS += r.PTS
		t.TSPct += r.TSPct
		t.Games++
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].name != order[j].name {
			return order[i].name < order[j].name
		}
		return order[i].team < order[j].team
	})
	out := make([]Trend, 0, len(order))
	for _, k := range order {
		t := *sums[k]
		g := float64(t.Games)
		t.VAL /= g
		t.PTS /= g
		t.TSPct /= g
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].VAL > out[j].VAL })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
