package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/domain/activity"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/domain/identity"
)

var base = time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)

type stubScanner struct {
	records map[activity.Kind][]activity.Record
	err     error
	calls   int
}

func (s *stubScanner) Scan(_ context.Context, kind activity.Kind) ([]activity.Record, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.records[kind], nil
}

type stubResolver struct {
	identities map[string]identity.Identity
	calls      int
}

func (r *stubResolver) Resolve(_ context.Context, ref string) (identity.Identity, error) {
	r.calls++
	id, ok := r.identities[ref]
	if !ok {
		return identity.Identity{}, errors.New("session not found")
	}
	return id, nil
}

func ident(name, token string) identity.Identity {
	return identity.Identity{DisplayName: name, DisplayToken: "anon-" + token}
}

func quizRec(ref string, value int64, at time.Time) activity.Record {
	return activity.Record{
		ID:          fmt.Sprintf("%s-%d-%d", ref, value, at.Unix()),
		Kind:        activity.KindQuiz,
		IdentityRef: ref,
		Value:       value,
		OccurredAt:  at,
		Label:       "Quiz Completed",
	}
}

func TestBoardOrderingMostRecentWinsTies(t *testing.T) {
	scanner := &stubScanner{records: map[activity.Kind][]activity.Record{
		activity.KindQuiz: {
			quizRec("sess-a", 9, base.Add(-2*time.Hour)),
			quizRec("sess-b", 9, base.Add(-time.Hour)),
			quizRec("sess-c", 7, base.Add(-time.Minute)),
		},
	}}
	resolver := &stubResolver{identities: map[string]identity.Identity{
		"sess-a": ident("Ada", "aaaa1111"),
		"sess-b": ident("Grace", "bbbb2222"),
		"sess-c": ident("Edsger", "cccc3333"),
	}}
	svc := New(scanner, resolver, nil).WithClock(func() time.Time { return base })

	page, err := svc.GetBoard(context.Background(), activity.KindQuiz, 10, 0)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if page.Total != 3 || len(page.Entries) != 3 {
		t.Fatalf("unexpected page shape: %+v", page)
	}

	wantNames := []string{"Grace", "Ada", "Edsger"}
	wantScores := []int64{9, 9, 7}
	for i, entry := range page.Entries {
		if entry.DisplayName != wantNames[i] || entry.Score != wantScores[i] {
			t.Fatalf("position %d = %s/%d, want %s/%d",
				i, entry.DisplayName, entry.Score, wantNames[i], wantScores[i])
		}
		if entry.Rank != i+1 {
			t.Fatalf("position %d has rank %d", i, entry.Rank)
		}
	}

	// A forced rebuild over identical inputs must order identically.
	rebuilt := svc.Refresh(context.Background(), activity.KindQuiz)
	for i := range rebuilt {
		if rebuilt[i].DisplayName != wantNames[i] {
			t.Fatalf("rebuild reordered position %d: %s", i, rebuilt[i].DisplayName)
		}
	}
}

func TestBoardOrderTotalOnFullTies(t *testing.T) {
	at := base.Add(-time.Hour)
	scanner := &stubScanner{records: map[activity.Kind][]activity.Record{
		activity.KindQuiz: {
			quizRec("sess-b", 5, at),
			quizRec("sess-a", 5, at),
		},
	}}
	resolver := &stubResolver{identities: map[string]identity.Identity{
		"sess-a": ident("Ada", "aaaa1111"),
		"sess-b": ident("Grace", "bbbb2222"),
	}}
	svc := New(scanner, resolver, nil).WithClock(func() time.Time { return base })

	page, err := svc.GetBoard(context.Background(), activity.KindQuiz, 10, 0)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if page.Entries[0].DisplayName != "Ada" || page.Entries[1].DisplayName != "Grace" {
		t.Fatalf("full tie must fall back to identity order, got %+v", page.Entries)
	}
}

func TestBoardWindowFilter(t *testing.T) {
	scanner := &stubScanner{records: map[activity.Kind][]activity.Record{
		activity.KindQuiz: {
			quizRec("sess-a", 5, base.Add(-29*24*time.Hour)),
			quizRec("sess-b", 5, base.Add(-31*24*time.Hour)),
		},
	}}
	resolver := &stubResolver{identities: map[string]identity.Identity{
		"sess-a": ident("Ada", "aaaa1111"),
		"sess-b": ident("Grace", "bbbb2222"),
	}}
	svc := New(scanner, resolver, nil).WithClock(func() time.Time { return base })

	page, err := svc.GetBoard(context.Background(), activity.KindQuiz, 10, 0)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if page.Total != 1 || page.Entries[0].DisplayName != "Ada" {
		t.Fatalf("stale record must be excluded, got %+v", page.Entries)
	}
}

func TestBoardDeduplicatesEchoedRecords(t *testing.T) {
	at := base.Add(-time.Hour)
	canonical := quizRec("sess-a", 5, at)
	echo := quizRec("sess-a", 5, at.Add(300*time.Millisecond))
	echo.ID = "quiz:session:sess-a"
	distinct := quizRec("sess-a", 6, at)

	scanner := &stubScanner{records: map[activity.Kind][]activity.Record{
		activity.KindQuiz: {canonical, echo, distinct},
	}}
	resolver := &stubResolver{identities: map[string]identity.Identity{
		"sess-a": ident("Ada", "aaaa1111"),
	}}
	svc := New(scanner, resolver, nil).WithClock(func() time.Time { return base })

	page, err := svc.GetBoard(context.Background(), activity.KindQuiz, 10, 0)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("echoed record not deduplicated: %+v", page.Entries)
	}
	if page.Entries[0].Score != 6 || page.Entries[1].Score != 5 {
		t.Fatalf("unexpected scores: %+v", page.Entries)
	}
	if resolver.calls != 1 {
		t.Fatalf("resolution not memoized within one build: %d calls", resolver.calls)
	}
}

func TestTipsGroupedByContributor(t *testing.T) {
	tip := func(ref string, value int64, at time.Time, label string) activity.Record {
		return activity.Record{
			ID: fmt.Sprintf("%s-%d", ref, at.Unix()), Kind: activity.KindTips,
			IdentityRef: ref, Value: value, OccurredAt: at, Label: label,
		}
	}
	scanner := &stubScanner{records: map[activity.Kind][]activity.Record{
		activity.KindTips: {
			tip("sess-a", 3, base.Add(-3*time.Hour), "Tip #1"),
			tip("sess-a", 4, base.Add(-time.Hour), "Tip #2"),
			tip("sess-b", 5, base.Add(-2*time.Hour), "Tip #3"),
		},
	}}
	resolver := &stubResolver{identities: map[string]identity.Identity{
		"sess-a": ident("Ada", "aaaa1111"),
		"sess-b": ident("Grace", "bbbb2222"),
	}}
	svc := New(scanner, resolver, nil).WithClock(func() time.Time { return base })

	page, err := svc.GetBoard(context.Background(), activity.KindTips, 10, 0)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected one entry per contributor, got %+v", page.Entries)
	}

	top := page.Entries[0]
	if top.DisplayName != "Ada" || top.Score != 7 {
		t.Fatalf("contributor tips not summed: %+v", top)
	}
	if top.Label != "Tip #2" || !top.LastActiveAt.Equal(base.Add(-time.Hour)) {
		t.Fatalf("most recent tip must supply label and timestamp: %+v", top)
	}
	if page.Entries[1].Score != 5 {
		t.Fatalf("unexpected runner-up: %+v", page.Entries[1])
	}
}

func TestBoardSkipsUnresolvableIdentities(t *testing.T) {
	scanner := &stubScanner{records: map[activity.Kind][]activity.Record{
		activity.KindQuiz: {
			quizRec("sess-a", 9, base.Add(-time.Hour)),
			quizRec("sess-gone", 8, base.Add(-time.Hour)),
			quizRec("sess-b", 7, base.Add(-time.Hour)),
		},
	}}
	resolver := &stubResolver{identities: map[string]identity.Identity{
		"sess-a": ident("Ada", "aaaa1111"),
		"sess-b": ident("Grace", "bbbb2222"),
	}}
	svc := New(scanner, resolver, nil).WithClock(func() time.Time { return base })

	page, err := svc.GetBoard(context.Background(), activity.KindQuiz, 10, 0)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("unresolvable identity must be skipped, got %+v", page.Entries)
	}
	if page.Entries[0].DisplayName != "Ada" || page.Entries[0].Rank != 1 {
		t.Fatalf("unexpected first entry: %+v", page.Entries[0])
	}
	if page.Entries[1].DisplayName != "Grace" || page.Entries[1].Rank != 2 {
		t.Fatalf("ranks must stay contiguous after a skip: %+v", page.Entries[1])
	}
}

func TestBoardFailsClosedOnScanError(t *testing.T) {
	scanner := &stubScanner{err: errors.New("store unreachable")}
	resolver := &stubResolver{identities: map[string]identity.Identity{
		"sess-a": ident("Ada", "aaaa1111"),
	}}
	svc := New(scanner, resolver, nil).WithClock(func() time.Time { return base })
	ctx := context.Background()

	page, err := svc.GetBoard(ctx, activity.KindQuiz, 10, 0)
	if err != nil {
		t.Fatalf("scan failure must degrade to empty, not error: %v", err)
	}
	if page.Total != 0 || len(page.Entries) != 0 {
		t.Fatalf("expected empty board, got %+v", page)
	}

	// The failure must not be cached: once the store recovers, the next
	// request rebuilds.
	scanner.err = nil
	scanner.records = map[activity.Kind][]activity.Record{
		activity.KindQuiz: {quizRec("sess-a", 5, base.Add(-time.Hour))},
	}
	page, err = svc.GetBoard(ctx, activity.KindQuiz, 10, 0)
	if err != nil {
		t.Fatalf("get board after recovery: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("recovery not visible, got %+v", page)
	}
	if scanner.calls != 2 {
		t.Fatalf("expected a rebuild after the failed scan, got %d calls", scanner.calls)
	}
}

func TestBoardValidatesPageParamsBeforeCache(t *testing.T) {
	scanner := &stubScanner{}
	svc := New(scanner, &stubResolver{}, nil).WithClock(func() time.Time { return base })
	ctx := context.Background()

	if _, err := svc.GetBoard(ctx, activity.KindQuiz, 0, 0); err == nil {
		t.Fatal("limit 0 must be rejected")
	}
	if _, err := svc.GetBoard(ctx, activity.KindQuiz, -5, 0); err == nil {
		t.Fatal("negative limit must be rejected")
	}
	if _, err := svc.GetBoard(ctx, activity.KindQuiz, 10, -1); err == nil {
		t.Fatal("negative offset must be rejected")
	}
	if scanner.calls != 0 {
		t.Fatalf("invalid params must never trigger a build, got %d calls", scanner.calls)
	}
}

func TestBoardLimitClamp(t *testing.T) {
	var records []activity.Record
	identities := make(map[string]identity.Identity, 120)
	for i := 1; i <= 120; i++ {
		ref := fmt.Sprintf("sess-%03d", i)
		records = append(records, quizRec(ref, int64(i), base.Add(-time.Duration(i)*time.Minute)))
		identities[ref] = ident(fmt.Sprintf("Player %03d", i), fmt.Sprintf("tok%05d", i))
	}
	scanner := &stubScanner{records: map[activity.Kind][]activity.Record{activity.KindQuiz: records}}
	svc := New(scanner, &stubResolver{identities: identities}, nil).WithClock(func() time.Time { return base })

	page, err := svc.GetBoard(context.Background(), activity.KindQuiz, 500, 0)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if len(page.Entries) != MaxPageLimit {
		t.Fatalf("oversized limit not clamped, got %d entries", len(page.Entries))
	}
	if page.Total != 120 || !page.HasNext || page.HasPrevious {
		t.Fatalf("unexpected page metadata: %+v", page)
	}
	if page.Entries[0].Score != 120 || page.Entries[99].Rank != 100 {
		t.Fatalf("unexpected clamped page contents: first %+v last %+v",
			page.Entries[0], page.Entries[99])
	}
}

func TestBoardCacheHitAndExpiry(t *testing.T) {
	scanner := &stubScanner{records: map[activity.Kind][]activity.Record{
		activity.KindQuiz: {quizRec("sess-a", 5, base.Add(-time.Hour))},
	}}
	resolver := &stubResolver{identities: map[string]identity.Identity{
		"sess-a": ident("Ada", "aaaa1111"),
	}}
	now := base
	svc := New(scanner, resolver, nil).WithClock(func() time.Time { return now })
	ctx := context.Background()

	if _, err := svc.GetBoard(ctx, activity.KindQuiz, 10, 0); err != nil {
		t.Fatalf("get board: %v", err)
	}
	if _, err := svc.GetBoard(ctx, activity.KindQuiz, 10, 5); err != nil {
		t.Fatalf("get board: %v", err)
	}
	if scanner.calls != 1 {
		t.Fatalf("second request within the TTL must hit the cache, got %d builds", scanner.calls)
	}

	// New writes do not invalidate; the board stays as built until expiry.
	scanner.records[activity.KindQuiz] = append(scanner.records[activity.KindQuiz],
		quizRec("sess-a", 50, base.Add(-time.Minute)))
	page, err := svc.GetBoard(ctx, activity.KindQuiz, 10, 0)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("cached board must not see new writes, got %+v", page)
	}

	now = now.Add(6 * time.Minute)
	page, err = svc.GetBoard(ctx, activity.KindQuiz, 10, 0)
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	if scanner.calls != 2 {
		t.Fatalf("expired cache must rebuild, got %d builds", scanner.calls)
	}
	if page.Total != 2 {
		t.Fatalf("rebuild must see the new record, got %+v", page)
	}
}

func TestBoardPaginationCoherence(t *testing.T) {
	scanner := &stubScanner{records: map[activity.Kind][]activity.Record{
		activity.KindQuiz: {
			quizRec("sess-1", 50, base.Add(-time.Hour)),
			quizRec("sess-2", 40, base.Add(-time.Hour)),
			quizRec("sess-3", 30, base.Add(-time.Hour)),
			quizRec("sess-4", 20, base.Add(-time.Hour)),
			quizRec("sess-5", 10, base.Add(-time.Hour)),
		},
	}}
	identities := map[string]identity.Identity{}
	for i := 1; i <= 5; i++ {
		ref := fmt.Sprintf("sess-%d", i)
		identities[ref] = ident(fmt.Sprintf("Player %d", i), fmt.Sprintf("tok%d", i))
	}
	svc := New(scanner, &stubResolver{identities: identities}, nil).
		WithClock(func() time.Time { return base })
	ctx := context.Background()

	var ranks []int
	var scores []int64
	for offset := 0; offset < 6; offset += 2 {
		page, err := svc.GetBoard(ctx, activity.KindQuiz, 2, offset)
		if err != nil {
			t.Fatalf("get board offset %d: %v", offset, err)
		}
		if page.Total != 5 {
			t.Fatalf("offset %d total = %d", offset, page.Total)
		}
		if page.HasPrevious != (offset > 0) {
			t.Fatalf("offset %d hasPrevious = %v", offset, page.HasPrevious)
		}
		if page.HasNext != (offset+2 < 5) {
			t.Fatalf("offset %d hasNext = %v", offset, page.HasNext)
		}
		for _, entry := range page.Entries {
			ranks = append(ranks, entry.Rank)
			scores = append(scores, entry.Score)
		}
	}

	for i, rank := range ranks {
		if rank != i+1 {
			t.Fatalf("ranks not contiguous across pages: %v", ranks)
		}
	}
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[i-1] {
			t.Fatalf("scores not descending across pages: %v", scores)
		}
	}

	page, err := svc.GetBoard(ctx, activity.KindQuiz, 2, 40)
	if err != nil {
		t.Fatalf("get board past the end: %v", err)
	}
	if len(page.Entries) != 0 || page.Total != 5 || page.HasNext || !page.HasPrevious {
		t.Fatalf("offset past the end mishandled: %+v", page)
	}
}
