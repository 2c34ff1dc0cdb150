package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"newsletterbot/internal/domain"
)

var ErrNoIssue = errors.New("no newsletter issue stored")

func InitDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS box_scores (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		week        TEXT NOT NULL,
		week_number INTEGER NOT NULL DEFAULT 0,
		player_id   TEXT NOT NULL,
		name        TEXT NOT NULL,
		team        TEXT NOT NULL,
		val         REAL NOT NULL DEFAULT 0,
		pts         REAL NOT NULL DEFAULT 0,
		reb_t       REAL NOT NULL DEFAULT 0,
		ast         REAL NOT NULL DEFAULT 0,
		win         REAL NOT NULL DEFAULT 0,
		game_poss   REAL NOT NULL DEFAULT 0,
		turnovers   REAL NOT NULL DEFAULT 0,
		ts_pct      REAL NOT NULL DEFAULT 0,
		usg_pct     REAL NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_box_scores_week ON box_scores(week_number);

	CREATE TABLE IF NOT EXISTS issues (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		round        INTEGER NOT NULL DEFAULT 0,
		title        TEXT NOT NULL,
		markdown     TEXT NOT NULL,
		llm_provider TEXT DEFAULT '',
		llm_model    TEXT DEFAULT '',
		created_at   DATETIME NOT NULL,
		sent_at      DATETIME
	);

	CREATE TABLE IF NOT EXISTS deliveries (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		issue_id  INTEGER NOT NULL,
		recipient TEXT NOT NULL,
		status    TEXT NOT NULL,
		error     TEXT DEFAULT '',
		sent_at   DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_deliveries_issue ON deliveries(issue_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// ReplaceBoxScores swaps the stored dataset for rows in one transaction, so
// re-running a refresh is harmless.
func ReplaceBoxScores(db *sql.DB, rows []domain.BoxScore, weekNumber func(string) int) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM box_scores`); err != nil {
		return 0, fmt.Errorf("clear box scores: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO box_scores (week, week_number, player_id, name, team, val, pts, reb_t, ast, win, game_poss, turnovers, ts_pct, usg_pct)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range rows {
		_, err := stmt.Exec(
			r.Week, weekNumber(r.Week), r.PlayerID, r.Name, r.Team,
			r.VAL, r.PTS, r.RebT, r.AST, r.Win, r.GamePoss, r.TO, r.TSPct, r.USGPct,
		)
		if err != nil {
			return inserted, err
		}
		inserted++
	}
	return inserted, tx.Commit()
}

func LoadBoxScores(db *sql.DB) ([]domain.BoxScore, error) {
	rows, err := db.Query(
		`SELECT week, player_id, name, team, val, pts, reb_t, ast, win, game_poss, turnovers, ts_pct, usg_pct
		 FROM box_scores ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BoxScore
	for rows.Next() {
		var r domain.BoxScore
		if err := rows.Scan(
			&r.Week, &r.PlayerID, &r.Name, &r.Team,
			&r.VAL, &r.PTS, &r.RebT, &r.AST, &r.Win, &r.GamePoss, &r.TO, &r.TSPct, &r.USGPct,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func InsertIssue(db *sql.DB, issue domain.Issue) (int64, error) {
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = time.Now()
	}
	res, err := db.Exec(
		`INSERT INTO issues (round, title, markdown, llm_provider, llm_model, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		issue.Round, issue.Title, issue.Markdown, issue.LLMProvider, issue.LLMModel, issue.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestIssue returns the most recently generated issue.
func LatestIssue(db *sql.DB) (domain.Issue, error) {
	var issue domain.Issue
	var sentAt sql.NullTime
	err := db.QueryRow(
		`SELECT id, round, title, markdown, llm_provider, llm_model, created_at, sent_at
		 FROM issues ORDER BY id DESC LIMIT 1`,
	).Scan(&issue.ID, &issue.Round, &issue.Title, &issue.Markdown, &issue.LLMProvider, &issue.LLMModel, &issue.CreatedAt, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return issue, ErrNoIssue
	}
	if err != nil {
		return issue, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		issue.SentAt = &t
	}
	return issue, nil
}

func MarkIssueSent(db *sql.DB, id int64, at time.Time) error {
	_, err := db.Exec(`UPDATE issues SET sent_at = ? WHERE id = ?`, at, id)
	return err
}

func RecordDelivery(db *sql.DB, d domain.Delivery) error {
	if d.SentAt.IsZero() {
		d.SentAt = time.Now()
	}
	_, err := db.Exec(
		`INSERT INTO deliveries (issue_id, recipient, status, error, sent_at) VALUES (?, ?, ?, ?, ?)`,
		d.IssueID, d.Recipient, d.Status, d.Error, d.SentAt,
	)
	return err
}

// DeliveryCounts returns how many deliveries of an issue succeeded and failed.
func DeliveryCounts(db *sql.DB, issueID int64) (sent, failed int, err error) {
	err = db.QueryRow(
		`SELECT
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status != 'sent' THEN 1 ELSE 0 END), 0)
		 FROM deliveries WHERE issue_id = ?`,
		issueID,
	).Scan(&sent, &failed)
	return sent, failed, err
}
