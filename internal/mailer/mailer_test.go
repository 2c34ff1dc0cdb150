package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"newsletterbot/internal/config"
	"newsletterbot/internal/domain"
	"newsletterbot/internal/storage/sqlite"
)

type fakeTransport struct {
	openErr error
	failTo  map[string]bool
	sent    []Envelope
	closed  bool
}

func (f *fakeTransport) Open(ctx context.Context) (Session, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f, nil
}

func (f *fakeTransport) Send(env Envelope) error {
	if f.failTo[env.To] {
		return errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

const sampleDraft = "## 🏀 Informe ACB: Jornada 10\n\nDestacados:\n\n- **Normantas** firmó **28** de valoración\n"

func newTestMailer(t *testing.T, transport Transport) *Mailer {
	t.Helper()
	dir := t.TempDir()
	db, err := sqlite.InitDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	draft := filepath.Join(dir, "newsletter_borrador.md")
	if err := os.WriteFile(draft, []byte(sampleDraft), 0644); err != nil {
		t.Fatalf("write draft: %v", err)
	}
	return &Mailer{
		Cfg: config.Config{
			DraftPath:  draft,
			SMTPUser:   "bot@example.com",
			SenderName: "Analyzing Basketball",
			LogoURL:    "https://example.com/logo.png",
			SiteURL:    "https://example.com/home",
		},
		DB:         db,
		Transport:  transport,
		HTTPClient: http.DefaultClient,
		Now:        func() time.Time { return time.Date(2025, 12, 1, 10, 0, 0, 0, time.UTC) },
	}
}

func TestParseSubscribers(t *testing.T) {
	csv := "Marca temporal,Nombre,Email\n" +
		"2025/01/01,Ana,ana@example.com\n" +
		"2025/01/02,Luis,luis@example.com\n" +
		"2025/01/03,Ana,ana@example.com\n" +
		"2025/01/04,Sin correo,\n"
	got, err := ParseSubscribers(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ParseSubscribers: %v", err)
	}
	want := []string{"ana@example.com", "luis@example.com"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseSubscribersNoEmailColumn(t *testing.T) {
	got, err := ParseSubscribers(strings.NewReader("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("ParseSubscribers: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no subscribers, got %v", got)
	}
}

func TestWithSender(t *testing.T) {
	got := WithSender([]string{"a@example.com"}, "bot@example.com")
	if len(got) != 2 || got[1] != "bot@example.com" {
		t.Fatalf("sender not appended: %v", got)
	}
	got = WithSender([]string{"Bot@Example.com"}, "bot@example.com")
	if len(got) != 1 {
		t.Fatalf("sender duplicated: %v", got)
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(sampleDraft, "Analyzing Basketball", "https://example.com/logo.png", "https://example.com/home")
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	for _, want := range []string{
		"<h2>🏀 Informe ACB: Jornada 10</h2>",
		"<strong>Normantas</strong>",
		`src="https://example.com/logo.png"`,
		`href="https://example.com/home"`,
		"mailto:?subject=Informe%20Basket",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in html:\n%s", want, html)
		}
	}
}

func TestPlainText(t *testing.T) {
	got := PlainText("## Title\n\n\n\n- **28** de valoración\n")
	want := "Title\n\n- 28 de valoración\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSocialText(t *testing.T) {
	got := SocialText("Informe ACB: Jornada 10")
	if !strings.HasPrefix(got, "🏀 Informe ACB: Jornada 10\n\n") || !strings.HasSuffix(got, "#ACB #AnalyzingBasketball") {
		t.Fatalf("unexpected social text %q", got)
	}
}

func TestNotifyMake(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := NotifyMake(context.Background(), srv.Client(), srv.URL, "hola"); err != nil {
		t.Fatalf("NotifyMake: %v", err)
	}
	if payload["texto"] != "hola" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestSendDeliversAndRecords(t *testing.T) {
	subs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Fecha,Email\nx,ana@example.com\nx,bad@example.com\n"))
	}))
	defer subs.Close()
	var hooked bool
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hooked = true
	}))
	defer hook.Close()

	transport := &fakeTransport{failTo: map[string]bool{"bad@example.com": true}}
	m := newTestMailer(t, transport)
	m.Cfg.SubscribersURL = subs.URL
	m.Cfg.MakeWebhookURL = hook.URL

	res, err := m.Send(context.Background())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !hooked {
		t.Fatalf("make webhook not called")
	}
	if res.Title != "🏀 Informe ACB: Jornada 10" {
		t.Fatalf("unexpected title %q", res.Title)
	}
	if res.Recipients != 3 || res.Sent != 2 || res.Failed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !transport.closed {
		t.Fatalf("session not closed")
	}

	// Admin pack first, then subscribers.
	if len(transport.sent) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(transport.sent))
	}
	if transport.sent[0].To != "bot@example.com" || !strings.Contains(transport.sent[0].Text, "#ACB") {
		t.Fatalf("unexpected admin pack %+v", transport.sent[0])
	}
	if transport.sent[1].Subject != "🏀 Informe: 🏀 Informe ACB: Jornada 10" || transport.sent[1].HTML == "" {
		t.Fatalf("unexpected newsletter %+v", transport.sent[1])
	}

	sent, failed, err := sqlite.DeliveryCounts(m.DB, res.IssueID)
	if err != nil {
		t.Fatalf("DeliveryCounts: %v", err)
	}
	if sent != 2 || failed != 1 {
		t.Fatalf("expected 2/1 deliveries, got %d/%d", sent, failed)
	}
	issue, err := sqlite.LatestIssue(m.DB)
	if err != nil {
		t.Fatalf("LatestIssue: %v", err)
	}
	if issue.SentAt == nil || issue.Round != 10 {
		t.Fatalf("issue not marked sent: %+v", issue)
	}
}

func TestSendReusesWrittenIssue(t *testing.T) {
	transport := &fakeTransport{}
	m := newTestMailer(t, transport)
	id, err := sqlite.InsertIssue(m.DB, domain.Issue{Round: 10, Title: "x", Markdown: sampleDraft})
	if err != nil {
		t.Fatalf("InsertIssue: %v", err)
	}
	res, err := m.Send(context.Background())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.IssueID != id {
		t.Fatalf("expected issue %d, got %d", id, res.IssueID)
	}
}

func TestSendOpenFailure(t *testing.T) {
	m := newTestMailer(t, &fakeTransport{openErr: errors.New("dial refused")})
	if _, err := m.Send(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	issue, err := sqlite.LatestIssue(m.DB)
	if err != nil {
		t.Fatalf("LatestIssue: %v", err)
	}
	if issue.SentAt != nil {
		t.Fatalf("issue should not be marked sent")
	}
}

func TestSendMissingDraft(t *testing.T) {
	m := newTestMailer(t, &fakeTransport{})
	m.Cfg.DraftPath = filepath.Join(t.TempDir(), "missing.md")
	if _, err := m.Send(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}
