package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	domain "github.com/PlayPark-Labs/engagement_engine/internal/app/domain/activity"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/metrics"
)

// prefixes lists every physical key shape holding records of kind, current
// shape first so canonical records win downstream deduplication.
func prefixes(kind domain.Kind) []string {
	current := string(kind) + ":v2:"
	switch kind {
	case domain.KindQuiz:
		return []string{current, "quiz:session:"}
	case domain.KindGame:
		return []string{current, "game:session:"}
	case domain.KindTips:
		return []string{current, "tip:"}
	default:
		return []string{current}
	}
}

// Scan materializes every stored record for kind, merging the current and the
// legacy key shapes. A single key that cannot be read or decoded is logged
// and skipped; only prefix enumeration failure aborts the scan. The record
// set is demo scale, so the full slice is returned rather than a stream.
func (s *Service) Scan(ctx context.Context, kind domain.Kind) ([]domain.Record, error) {
	var (
		records []domain.Record
		skipped int
	)
	for _, prefix := range prefixes(kind) {
		keys, err := s.kv.Keys(ctx, prefix+"*")
		if err != nil {
			return nil, fmt.Errorf("enumerate %s records: %w", kind, err)
		}
		for _, key := range keys {
			raw, err := s.kv.Get(ctx, key)
			if err != nil {
				skipped++
				s.log.WithError(err).WithField("key", key).Warn("skipping unreadable record")
				continue
			}
			rec, err := s.decode(kind, key, raw)
			if err != nil {
				skipped++
				s.log.WithError(err).WithField("key", key).Warn("skipping undecodable record")
				continue
			}
			records = append(records, rec)
		}
	}

	metrics.RecordScan(string(kind), len(records), skipped)
	return records, nil
}

func (s *Service) decode(kind domain.Kind, key, raw string) (domain.Record, error) {
	currentPrefix := string(kind) + ":v2:"
	if strings.HasPrefix(key, currentPrefix) {
		var rec domain.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return domain.Record{}, fmt.Errorf("decode record: %w", err)
		}
		if rec.ID == "" {
			rec.ID = strings.TrimPrefix(key, currentPrefix)
		}
		if err := rec.Validate(); err != nil {
			return domain.Record{}, err
		}
		return rec, nil
	}
	return decodeLegacy(kind, key, raw)
}

// decodeLegacy normalizes a record written by the old writers. The metric may
// sit under "score", "points" or "likes"; the timestamp under "ts" (unix
// seconds) or "occurred_at" (RFC3339); the actor under "session" or
// "identity". Anything missing a usable metric, timestamp or actor is
// rejected.
func decodeLegacy(kind domain.Kind, key, raw string) (domain.Record, error) {
	if !gjson.Valid(raw) {
		return domain.Record{}, fmt.Errorf("legacy record is not valid json")
	}
	doc := gjson.Parse(raw)

	value, ok := legacyValue(doc)
	if !ok {
		return domain.Record{}, fmt.Errorf("legacy record has no usable metric")
	}
	occurredAt, ok := legacyTime(doc)
	if !ok {
		return domain.Record{}, fmt.Errorf("legacy record has no usable timestamp")
	}
	ref := legacyIdentity(doc)
	if ref == "" {
		return domain.Record{}, fmt.Errorf("legacy record has no identity reference")
	}

	return domain.Record{
		ID:          key,
		Kind:        kind,
		IdentityRef: ref,
		Value:       value,
		OccurredAt:  occurredAt,
		Label:       strings.TrimSpace(doc.Get("label").String()),
	}, nil
}

func legacyValue(doc gjson.Result) (int64, bool) {
	for _, field := range []string{"score", "points", "likes"} {
		if v := doc.Get(field); v.Exists() {
			n := v.Int()
			if n < 0 {
				return 0, false
			}
			return n, true
		}
	}
	return 0, false
}

func legacyTime(doc gjson.Result) (time.Time, bool) {
	if ts := doc.Get("ts"); ts.Exists() && ts.Int() > 0 {
		return time.Unix(ts.Int(), 0).UTC(), true
	}
	if at := doc.Get("occurred_at"); at.Exists() {
		if parsed, err := time.Parse(time.RFC3339, at.String()); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

func legacyIdentity(doc gjson.Result) string {
	for _, field := range []string{"session", "identity"} {
		if v := strings.TrimSpace(doc.Get(field).String()); v != "" {
			return v
		}
	}
	return ""
}
