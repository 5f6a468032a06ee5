package leaderboard

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/domain/activity"
	domain "github.com/PlayPark-Labs/engagement_engine/internal/app/domain/leaderboard"
)

func boardOf(n int) []domain.Entry {
	entries := make([]domain.Entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, domain.Entry{
			DisplayName:   fmt.Sprintf("Player %d", i+1),
			IdentityToken: fmt.Sprintf("anon-tok%04d", i+1),
			Score:         int64(100 - i),
			LastActiveAt:  time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC),
		})
	}
	return entries
}

func TestFeedBroadcastsTopSlice(t *testing.T) {
	feed := NewFeed(nil)
	ch, cancel := feed.Subscribe(activity.KindGame)
	defer cancel()

	feed.Broadcast(activity.KindGame, boardOf(12))

	select {
	case payload := <-ch:
		var update BoardUpdate
		require.NoError(t, json.Unmarshal(payload, &update))
		require.Equal(t, "game", update.Kind)
		require.Len(t, update.Entries, feedTopN)
		require.Equal(t, 1, update.Entries[0].Rank)
		require.Equal(t, int64(100), update.Entries[0].Score)
		require.Equal(t, feedTopN, update.Entries[feedTopN-1].Rank)
	default:
		t.Fatal("expected a buffered update")
	}
}

func TestFeedOnlyReachesMatchingKind(t *testing.T) {
	feed := NewFeed(nil)
	quizCh, cancelQuiz := feed.Subscribe(activity.KindQuiz)
	defer cancelQuiz()
	gameCh, cancelGame := feed.Subscribe(activity.KindGame)
	defer cancelGame()

	feed.Broadcast(activity.KindQuiz, boardOf(2))

	require.Len(t, quizCh, 1)
	require.Len(t, gameCh, 0)
}

func TestFeedDropsSlowSubscriber(t *testing.T) {
	feed := NewFeed(nil)
	ch, cancel := feed.Subscribe(activity.KindTips)
	defer cancel()

	// Fill the subscriber buffer without draining, then overflow it.
	for i := 0; i < subscriberBuffer+1; i++ {
		feed.Broadcast(activity.KindTips, boardOf(1))
	}

	require.Equal(t, 0, feed.subscriberCount(activity.KindTips))

	drained := 0
	for range ch {
		drained++
	}
	require.Equal(t, subscriberBuffer, drained, "channel must close after the buffered updates")
}

func TestFeedCancelIsIdempotent(t *testing.T) {
	feed := NewFeed(nil)
	_, cancel := feed.Subscribe(activity.KindQuiz)

	cancel()
	cancel()
	require.Equal(t, 0, feed.subscriberCount(activity.KindQuiz))
}
