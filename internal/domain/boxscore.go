package domain

import "time"

// BoxScore is one player's line for one round, as exported by the cumulative
// season CSV.
type BoxScore struct {
	Week     string
	PlayerID string
	Name     string
	Team     string
	VAL      float64
	PTS      float64
	RebT     float64
	AST      float64
	Win      float64
	GamePoss float64
	TO       float64
	TSPct    float64
	USGPct   float64
}

// Issue is one generated newsletter.
type Issue struct {
	ID          int64
	Round       int
	Title       string
	Markdown    string
	LLMProvider string
	LLMModel    string
	CreatedAt   time.Time
	SentAt      *time.Time
}

// Delivery is the outcome of mailing one issue to one recipient.
type Delivery struct {
	IssueID   int64
	Recipient string
	Status    string
	Error     string
	SentAt    time.Time
}
