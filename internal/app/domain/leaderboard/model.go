package leaderboard

import "time"

// Entry is one display-ready row of a board. Entries are derived from raw
// activity records on every rebuild and never persisted as a source of truth.
type Entry struct {
	Rank          int       `json:"rank"`
	DisplayName   string    `json:"displayName"`
	IdentityToken string    `json:"identityToken"`
	Score         int64     `json:"score"`
	Label         string    `json:"label"`
	LastActiveAt  time.Time `json:"lastActiveAt"`
}

// Page is one offset/limit window over a fully built board.
type Page struct {
	Entries     []Entry `json:"entries"`
	Total       int     `json:"total"`
	HasNext     bool    `json:"hasNext"`
	HasPrevious bool    `json:"hasPrevious"`
}
