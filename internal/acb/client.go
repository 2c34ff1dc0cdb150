// Package acb talks to the two ACB endpoints the poller needs: the public
// results page (scraped for match ids) and the live box-score API (used to
// decide whether a match has finished).
package acb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"newsletterbot/internal/config"
	"newsletterbot/internal/httpx"
)

// Outcome is the result of one match-status lookup.
type Outcome int

const (
	Unfinished Outcome = iota
	Finished
	TransientFailure
	PermanentFailure
)

func (o Outcome) String() string {
	switch o {
	case Finished:
		return "finished"
	case Unfinished:
		return "unfinished"
	case TransientFailure:
		return "transient-failure"
	case PermanentFailure:
		return "permanent-failure"
	}
	return "unknown"
}

var matchLinkPattern = regexp.MustCompile(`/partido/estadisticas/id/(\d+)(?:/|$)`)

type Client struct {
	httpClient     *http.Client
	resultsURL     string
	boxscoreURL    string
	apiKey         string
	origin         string
	listingTimeout time.Duration
	statusTimeout  time.Duration
	limiter        *rate.Limiter
}

func NewClient(cfg config.Config) *Client {
	rps := float64(cfg.StatusRequestsPerMinute) / 60.0
	return &Client{
		httpClient:     &http.Client{},
		resultsURL:     strings.TrimRight(cfg.ResultsURL, "/"),
		boxscoreURL:    cfg.BoxscoreURL,
		apiKey:         cfg.ACBAPIKey,
		origin:         strings.TrimRight(cfg.ACBOrigin, "/"),
		listingTimeout: cfg.ListingTimeout(),
		statusTimeout:  cfg.StatusTimeout(),
		limiter:        rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// ResultsPageURL builds the results page for one round.
func (c *Client) ResultsPageURL(season, competition string, round int) string {
	return fmt.Sprintf("%s/temporada_id/%s/competicion_id/%s/jornada_numero/%d", c.resultsURL, season, competition, round)
}

// MatchIDs scrapes the distinct match ids linked from the round's results
// page, sorted ascending. An empty slice with a nil error means the round has
// no published matches yet.
func (c *Client) MatchIDs(ctx context.Context, season, competition string, round int) ([]int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.listingTimeout)
	defer cancel()

	pageURL := c.ResultsPageURL(season, competition, round)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", httpx.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch results page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch results page: status %d", resp.StatusCode)
	}

	return ParseMatchIDs(resp.Body)
}

// ParseMatchIDs extracts match ids from a results page body.
func ParseMatchIDs(r io.Reader) ([]int, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}

	seen := make(map[int]bool)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := matchLinkPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return
		}
		seen[id] = true
	})

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

type boxscoreResponse struct {
	TeamBoxscores []json.RawMessage `json:"teamBoxscores"`
}

// MatchStatus asks the box-score API whether a match has finished. There are
// no retries; a transient failure is re-evaluated on the next poll.
func (c *Client) MatchStatus(ctx context.Context, matchID int) Outcome {
	if err := c.limiter.Wait(ctx); err != nil {
		log.Printf("acb status rate-limit wait match=%d err=%v", matchID, err)
		return TransientFailure
	}

	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	u := c.boxscoreURL + "?" + url.Values{"matchId": {strconv.Itoa(matchID)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		log.Printf("acb status request error match=%d err=%v", matchID, err)
		return PermanentFailure
	}
	req.Header.Set("x-apikey", c.apiKey)
	req.Header.Set("origin", c.origin)
	req.Header.Set("referer", c.origin+"/")
	req.Header.Set("User-Agent", httpx.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("acb status fetch error match=%d err=%v", matchID, err)
		return TransientFailure
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("acb status http error match=%d status=%d", matchID, resp.StatusCode)
		return classifyStatusCode(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("acb status read error match=%d err=%v", matchID, err)
		return TransientFailure
	}
	outcome, err := ParseBoxscoreOutcome(body)
	if err != nil {
		log.Printf("acb status decode error match=%d err=%v", matchID, err)
	}
	return outcome
}

// ParseBoxscoreOutcome treats a body with at least two team box scores as a
// finished match.
func ParseBoxscoreOutcome(body []byte) (Outcome, error) {
	var parsed boxscoreResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return PermanentFailure, fmt.Errorf("decode boxscores: %w", err)
	}
	if len(parsed.TeamBoxscores) < 2 {
		return Unfinished, nil
	}
	return Finished, nil
}

func classifyStatusCode(code int) Outcome {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return TransientFailure
	default:
		return PermanentFailure
	}
}
