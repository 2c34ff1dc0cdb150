package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/slack-go/slack"
)

// SocialText is the announcement posted when a new issue goes out.
func SocialText(title string) string {
	return fmt.Sprintf("🏀 %s\n\n📊 Nuevo análisis disponible. Link en bio.\n\n#ACB #AnalyzingBasketball", title)
}

// NotifyMake posts the announcement to a Make (Integromat) webhook, which
// relays it to LinkedIn.
func NotifyMake(ctx context.Context, client *http.Client, webhookURL, text string) error {
	body, err := json.Marshal(map[string]string{"texto": text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post webhook: status %d", resp.StatusCode)
	}
	return nil
}

// NotifySlack posts the announcement to a Slack incoming webhook.
func NotifySlack(ctx context.Context, client *http.Client, webhookURL, text string) error {
	return slack.PostWebhookCustomHTTPContext(ctx, webhookURL, client, &slack.WebhookMessage{Text: text})
}
