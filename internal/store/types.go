package store

import "time"

// Decision is the metadata row that owns all indexed content for one
// court decision.
type Decision struct {
	ID           int64      `json:"decision_id"`
	CaseNumber   string     `json:"case_number,omitempty"`
	Title        string     `json:"title,omitempty"`
	CourtName    string     `json:"court_name,omitempty"`
	DecisionDate *time.Time `json:"decision_date,omitempty"`
	LanguageCode string     `json:"language_code"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ReindexStats reports the sizes written by one re-index generation.
type ReindexStats struct {
	Lines       int `json:"lines"`
	UniqueWords int `json:"unique_words"`
	Tokens      int `json:"tokens"`
}

// Occurrence is one appearance of a word at a rune range within a line.
type Occurrence struct {
	LineNo    int `json:"line_no"`
	CharStart int `json:"char_start"`
	CharEnd   int `json:"char_end"`
}

// LineRange is an inclusive line-number interval requested from the context
// assembler.
type LineRange struct {
	From int
	To   int
}

// WordCount is one entry of a decision's word index listing.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// WordOrder selects the ordering of a word index listing.
type WordOrder string

const (
	OrderAlpha     WordOrder = "alpha"
	OrderFrequency WordOrder = "freq"
)

// GroupMember is one word belonging to a group, in membership insertion
// order.
type GroupMember struct {
	WordID int64  `json:"-"`
	Word   string `json:"word"`
}

// WordGroup is a named, user-curated set of words.
type WordGroup struct {
	ID          int64  `json:"group_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Phrase is a literal expression searched as a substring, never tokenized.
type Phrase struct {
	ID           int64  `json:"phrase_id"`
	Name         string `json:"name,omitempty"`
	Expression   string `json:"expression_text"`
	LanguageCode string `json:"language_code"`
}
