package mailer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"

	"newsletterbot/internal/httpx"
)

// FetchSubscribers downloads the published subscriber sheet.
func FetchSubscribers(ctx context.Context, client *http.Client, sheetURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sheetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", httpx.UserAgent)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch subscribers: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch subscribers: status %d", resp.StatusCode)
	}
	return ParseSubscribers(resp.Body)
}

// ParseSubscribers reads a CSV with a header row and returns the distinct
// addresses of the first column whose first value looks like an email.
// Malformed lines are skipped.
func ParseSubscribers(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var records [][]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, nil
	}

	col := -1
	for i, v := range records[0] {
		if strings.Contains(v, "@") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	var emails []string
	for _, rec := range records {
		if col >= len(rec) {
			continue
		}
		email := strings.TrimSpace(rec[col])
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		emails = append(emails, email)
	}
	return emails, nil
}

// WithSender makes sure the sending account also receives the newsletter.
func WithSender(list []string, sender string) []string {
	for _, e := range list {
		if strings.EqualFold(strings.TrimSpace(e), sender) {
			return list
		}
	}
	return append(list, sender)
}
