package identity

import "time"

// Session is the stored registration of a visitor. Origin is the raw network
// origin string used to derive the quota bucket; it never leaves the store.
type Session struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Origin      string    `json:"origin"`
	CreatedAt   time.Time `json:"created_at"`
}

// Identity is the resolved view of a session the engine hands to consumers:
// a display name plus the one-way hash that buckets rate limits.
type Identity struct {
	DisplayName  string
	Hash         string
	DisplayToken string
}

// MaskToken reduces an identity hash to the short non-reversible form shown
// in rankings.
func MaskToken(hash string) string {
	const visible = 8
	if len(hash) <= visible {
		return "anon-" + hash
	}
	return "anon-" + hash[:visible]
}
