package model

import "time"

// FeedbackLabel is the closed set of accepted feedback labels. Any
// other string is rejected by the orchestrator with a 400, before the
// record reaches the metadata store.
type FeedbackLabel string

const (
	LabelClick        FeedbackLabel = "click"
	LabelRelevant     FeedbackLabel = "relevant"
	LabelNotRelevant  FeedbackLabel = "not_relevant"
	LabelThumbsUp     FeedbackLabel = "thumbs_up"
	LabelThumbsDown   FeedbackLabel = "thumbs_down"
)

// ValidFeedbackLabels is used for membership checks and error messages.
var ValidFeedbackLabels = map[FeedbackLabel]bool{
	LabelClick:       true,
	LabelRelevant:    true,
	LabelNotRelevant: true,
	LabelThumbsUp:    true,
	LabelThumbsDown:  true,
}

// FeedbackRecord is append-only; it is never mutated once persisted.
type FeedbackRecord struct {
	ID        int64         `json:"id"`
	Query     string        `json:"query"`
	DocID     *string       `json:"docId,omitempty"`
	ChunkID   *string       `json:"chunkId,omitempty"`
	Label     FeedbackLabel `json:"label"`
	UserID    *string       `json:"userId,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
