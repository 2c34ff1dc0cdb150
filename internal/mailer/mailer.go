// Package mailer publishes a generated newsletter draft: social announcement,
// admin copy, and one email per subscriber.
package mailer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"newsletterbot/internal/config"
	"newsletterbot/internal/domain"
	"newsletterbot/internal/httpx"
	"newsletterbot/internal/newsletter"
	"newsletterbot/internal/stats"
	"newsletterbot/internal/storage/sqlite"
)

const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

type Mailer struct {
	Cfg        config.Config
	DB         *sql.DB
	Transport  Transport
	HTTPClient *http.Client
	Now        func() time.Time
}

// Result summarises one send run.
type Result struct {
	IssueID    int64
	Title      string
	Recipients int
	Sent       int
	Failed     int
}

func New(cfg config.Config, db *sql.DB) *Mailer {
	return &Mailer{
		Cfg: cfg,
		DB:  db,
		Transport: SMTPTransport{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUser,
			Password:   cfg.SMTPPassword,
			SenderName: cfg.SenderName,
		},
		HTTPClient: httpx.Client(),
	}
}

// Send publishes the current draft. A failure for one subscriber is recorded
// and does not stop the others; only a failed connection or an empty
// delivery aborts the run.
func (m *Mailer) Send(ctx context.Context) (Result, error) {
	raw, err := os.ReadFile(m.Cfg.DraftPath)
	if err != nil {
		return Result{}, fmt.Errorf("read draft: %w", err)
	}
	draft := string(raw)
	title := newsletter.Title(draft)
	if title == "" {
		return Result{}, fmt.Errorf("draft %s has no title", m.Cfg.DraftPath)
	}

	issueID, err := m.issueFor(title, draft)
	if err != nil {
		return Result{}, err
	}
	res := Result{IssueID: issueID, Title: title}
	log.Printf("mailer issue=%d title=%q", issueID, title)

	social := SocialText(title)
	m.announce(ctx, social)

	html, err := RenderHTML(draft, m.Cfg.SenderName, m.Cfg.LogoURL, m.Cfg.SiteURL)
	if err != nil {
		return res, err
	}
	text := PlainText(draft)

	recipients := m.recipients(ctx)
	res.Recipients = len(recipients)

	session, err := m.Transport.Open(ctx)
	if err != nil {
		return res, err
	}
	defer session.Close()

	if err := session.Send(Envelope{
		To:      m.Cfg.SMTPUser,
		Subject: "📸 Pack Redes Listo",
		Text:    "Texto para copiar:\n\n" + social,
	}); err != nil {
		log.Printf("mailer admin pack failed: %v", err)
	}

	subject := "🏀 Informe: " + title
	for _, to := range recipients {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		d := domain.Delivery{IssueID: issueID, Recipient: to, Status: DeliverySent, SentAt: m.now()}
		if err := session.Send(Envelope{To: to, Subject: subject, Text: text, HTML: html}); err != nil {
			log.Printf("mailer send failed to=%s: %v", to, err)
			d.Status = DeliveryFailed
			d.Error = err.Error()
			res.Failed++
		} else {
			res.Sent++
		}
		if err := sqlite.RecordDelivery(m.DB, d); err != nil {
			log.Printf("mailer record delivery to=%s: %v", to, err)
		}
	}

	if res.Sent == 0 {
		return res, fmt.Errorf("newsletter not delivered to any of %d recipients", res.Recipients)
	}
	if err := sqlite.MarkIssueSent(m.DB, issueID, m.now()); err != nil {
		return res, fmt.Errorf("mark issue sent: %w", err)
	}
	log.Printf("mailer done issue=%d sent=%d failed=%d", issueID, res.Sent, res.Failed)
	return res, nil
}

// issueFor links the draft to the stored issue it came from. A draft edited
// by hand, or one written outside this tool, becomes a new issue.
func (m *Mailer) issueFor(title, draft string) (int64, error) {
	latest, err := sqlite.LatestIssue(m.DB)
	if err != nil && !errors.Is(err, sqlite.ErrNoIssue) {
		return 0, fmt.Errorf("load latest issue: %w", err)
	}
	if err == nil && latest.SentAt == nil && latest.Markdown == draft {
		return latest.ID, nil
	}
	id, err := sqlite.InsertIssue(m.DB, domain.Issue{
		Round:     stats.WeekNumber(title),
		Title:     title,
		Markdown:  draft,
		CreatedAt: m.now(),
	})
	if err != nil {
		return 0, fmt.Errorf("store issue: %w", err)
	}
	return id, nil
}

func (m *Mailer) announce(ctx context.Context, text string) {
	if m.Cfg.MakeWebhookURL != "" {
		if err := NotifyMake(ctx, m.HTTPClient, m.Cfg.MakeWebhookURL, text); err != nil {
			log.Printf("mailer make webhook failed: %v", err)
		} else {
			log.Printf("mailer make webhook sent")
		}
	}
	if m.Cfg.SlackWebhookURL != "" {
		if err := NotifySlack(ctx, m.HTTPClient, m.Cfg.SlackWebhookURL, text); err != nil {
			log.Printf("mailer slack webhook failed: %v", err)
		}
	}
}

// recipients always includes the sender, so an unreachable sheet still
// produces one delivery.
func (m *Mailer) recipients(ctx context.Context) []string {
	var list []string
	if m.Cfg.SubscribersURL != "" {
		fetched, err := FetchSubscribers(ctx, m.HTTPClient, m.Cfg.SubscribersURL)
		if err != nil {
			log.Printf("mailer subscribers unavailable: %v", err)
		}
		list = fetched
	}
	list = WithSender(list, m.Cfg.SMTPUser)
	log.Printf("mailer recipients=%d", len(list))
	for i := range list {
		list[i] = strings.TrimSpace(list[i])
	}
	return list
}

func (m *Mailer) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
