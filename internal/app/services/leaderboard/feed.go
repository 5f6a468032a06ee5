package leaderboard

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/domain/activity"
	domain "github.com/PlayPark-Labs/engagement_engine/internal/app/domain/leaderboard"
	"github.com/PlayPark-Labs/engagement_engine/pkg/logger"
)

const (
	// feedTopN is how many entries each live update carries.
	feedTopN = 10

	// subscriberBuffer is the per-subscriber backlog. A subscriber whose
	// buffer is full when an update arrives is dropped rather than allowed
	// to stall the broadcast.
	subscriberBuffer = 4
)

// BoardUpdate is one live feed message: the current top slice of a board.
type BoardUpdate struct {
	Kind    string         `json:"kind"`
	Entries []domain.Entry `json:"entries"`
	At      time.Time      `json:"at"`
}

// Feed fans rebuilt standings out to live subscribers. Subscribers receive
// pre-marshaled JSON payloads over buffered channels.
type Feed struct {
	log *logger.Logger

	mu   sync.Mutex
	subs map[activity.Kind]map[chan []byte]struct{}
}

// NewFeed creates an empty feed hub.
func NewFeed(log *logger.Logger) *Feed {
	if log == nil {
		log = logger.NewDefault("board-feed")
	}
	return &Feed{
		log:  log,
		subs: make(map[activity.Kind]map[chan []byte]struct{}),
	}
}

// Subscribe registers a live listener for kind. The returned channel closes
// when the hub drops the subscriber; the cancel func must be called when the
// listener goes away and is safe to call after a drop.
func (f *Feed) Subscribe(kind activity.Kind) (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)

	f.mu.Lock()
	if f.subs[kind] == nil {
		f.subs[kind] = make(map[chan []byte]struct{})
	}
	f.subs[kind][ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[kind][ch]; ok {
			delete(f.subs[kind], ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Broadcast pushes the top slice of a freshly built board to every subscriber
// of kind. Subscribers that cannot keep up are dropped.
func (f *Feed) Broadcast(kind activity.Kind, entries []domain.Entry) {
	update := BoardUpdate{
		Kind:    string(kind),
		Entries: paginate(entries, feedTopN, 0).Entries,
		At:      time.Now().UTC(),
	}
	payload, err := json.Marshal(update)
	if err != nil {
		f.log.WithError(err).Warn("encode board update failed")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs[kind] {
		select {
		case ch <- payload:
		default:
			delete(f.subs[kind], ch)
			close(ch)
			f.log.WithField("kind", string(kind)).Warn("dropping slow board feed subscriber")
		}
	}
}

// subscriberCount reports how many listeners kind currently has.
func (f *Feed) subscriberCount(kind activity.Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[kind])
}
