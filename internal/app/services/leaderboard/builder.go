package leaderboard

import (
	"context"
	"fmt"
	"sort"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/domain/activity"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/domain/identity"
	domain "github.com/PlayPark-Labs/engagement_engine/internal/app/domain/leaderboard"
)

// build assembles the full ranked board for kind from the raw record set:
// window filter, dedup, tip grouping, deterministic sort, then identity
// resolution. Any scan failure aborts the build; the caller serves the empty
// board rather than a partial or fabricated one.
func (s *Service) build(ctx context.Context, kind activity.Kind) ([]domain.Entry, error) {
	records, err := s.scanner.Scan(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("scan %s records: %w", kind, err)
	}

	cutoff := s.now().Add(-s.window)
	seen := make(map[string]struct{}, len(records))
	fresh := make([]activity.Record, 0, len(records))
	for _, rec := range records {
		if rec.OccurredAt.Before(cutoff) {
			continue
		}
		// First occurrence wins; the scanner yields canonical records ahead
		// of legacy ones, so a twice-represented event keeps its canonical
		// form.
		key := rec.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, rec)
	}

	if kind == activity.KindTips {
		fresh = groupByContributor(fresh)
	}

	sortRecords(fresh)
	return s.resolveEntries(ctx, kind, fresh), nil
}

// groupByContributor folds tip records into one per contributor: values sum,
// the most recent tip supplies the timestamp and label.
func groupByContributor(records []activity.Record) []activity.Record {
	order := make([]string, 0, len(records))
	grouped := make(map[string]activity.Record, len(records))
	for _, rec := range records {
		existing, ok := grouped[rec.IdentityRef]
		if !ok {
			order = append(order, rec.IdentityRef)
			grouped[rec.IdentityRef] = rec
			continue
		}
		existing.Value += rec.Value
		if rec.OccurredAt.After(existing.OccurredAt) {
			existing.OccurredAt = rec.OccurredAt
			existing.Label = rec.Label
		}
		grouped[rec.IdentityRef] = existing
	}

	out := make([]activity.Record, 0, len(order))
	for _, ref := range order {
		out = append(out, grouped[ref])
	}
	return out
}

// sortRecords orders by score descending, ties by most recent first. The
// trailing identity and label comparisons make the order total, so identical
// inputs always paginate identically.
func sortRecords(records []activity.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.After(b.OccurredAt)
		}
		if a.IdentityRef != b.IdentityRef {
			return a.IdentityRef < b.IdentityRef
		}
		return a.Label < b.Label
	})
}

// resolveEntries maps sorted records to display entries. A record whose
// identity cannot be resolved is skipped; the board never shows placeholder
// names. Resolution is memoized per build since one identity usually backs
// many records.
func (s *Service) resolveEntries(ctx context.Context, kind activity.Kind, records []activity.Record) []domain.Entry {
	entries := make([]domain.Entry, 0, len(records))
	resolved := make(map[string]identity.Identity, len(records))
	failed := make(map[string]struct{})

	for _, rec := range records {
		if _, bad := failed[rec.IdentityRef]; bad {
			continue
		}
		id, ok := resolved[rec.IdentityRef]
		if !ok {
			var err error
			id, err = s.resolver.Resolve(ctx, rec.IdentityRef)
			if err != nil {
				failed[rec.IdentityRef] = struct{}{}
				s.log.WithError(err).
					WithField("kind", string(kind)).
					WithField("identity_ref", rec.IdentityRef).
					Warn("skipping record with unresolvable identity")
				continue
			}
			resolved[rec.IdentityRef] = id
		}

		entries = append(entries, domain.Entry{
			DisplayName:   id.DisplayName,
			IdentityToken: id.DisplayToken,
			Score:         rec.Value,
			Label:         rec.Label,
			LastActiveAt:  rec.OccurredAt,
		})
	}
	return entries
}
