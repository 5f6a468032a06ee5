package activity

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies which board a raw record belongs to.
type Kind string

const (
	KindQuiz Kind = "quiz"
	KindGame Kind = "game"
	KindTips Kind = "tips"
)

// Kinds lists every known board kind in build order.
func Kinds() []Kind {
	return []Kind{KindQuiz, KindGame, KindTips}
}

// ParseKind normalizes and validates a kind string.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindQuiz:
		return KindQuiz, nil
	case KindGame:
		return KindGame, nil
	case KindTips:
		return KindTips, nil
	default:
		return "", fmt.Errorf("unknown board kind %q", raw)
	}
}

// Record is the normalized form of a single completed action: a quiz
// submission, an arcade score, or a tip contribution. Records are immutable
// once written; the store expires them after the retention TTL.
type Record struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	IdentityRef string    `json:"identity_ref"`
	Value       int64     `json:"value"`
	OccurredAt  time.Time `json:"occurred_at"`
	Label       string    `json:"label"`
}

// DedupKey derives the composite identity of the underlying event. Two
// physical keys describing the same submission (legacy and current shape)
// collapse to the same dedup key: same actor, same second, same metric.
func (r Record) DedupKey() string {
	return fmt.Sprintf("%s|%d|%d", r.IdentityRef, r.OccurredAt.UTC().Truncate(time.Second).Unix(), r.Value)
}

// Validate reports whether the record is well formed enough to persist.
func (r Record) Validate() error {
	if strings.TrimSpace(r.IdentityRef) == "" {
		return fmt.Errorf("identity_ref is required")
	}
	if _, err := ParseKind(string(r.Kind)); err != nil {
		return err
	}
	if r.Value < 0 {
		return fmt.Errorf("value must not be negative")
	}
	if r.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	return nil
}
