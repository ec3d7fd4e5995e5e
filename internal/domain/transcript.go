package domain

import "time"

// Transcript author roles. Agent replies carry the persona name that answered.
const (
	AuthorLearner = "learner"
	AuthorPatient = "patient"
)

// TranscriptEntry is one message in a session's transcript. Entries are
// append-only and never edited or removed; Seq is a per-session monotonic
// sequence number assigned by the store.
type TranscriptEntry struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Seq        int64     `json:"seq"`
	Author     string    `json:"author"`
	Text       string    `json:"text"`
	StageIndex int       `json:"stage_index"`
	CreatedAt  time.Time `json:"created_at"`
}
