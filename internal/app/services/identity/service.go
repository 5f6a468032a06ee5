package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/PlayPark-Labs/engagement_engine/internal/app/domain/identity"
	"github.com/PlayPark-Labs/engagement_engine/internal/app/storage"
	"github.com/PlayPark-Labs/engagement_engine/pkg/logger"
)

const (
	keyPrefix  = "session:"
	sessionTTL = 90 * 24 * time.Hour
)

var hashInfo = []byte("quota-bucket")

// Service registers visitor sessions and resolves them to display identities.
// The origin hash it derives is the only identity material the rest of the
// engine ever sees; the raw origin stays inside the session record.
type Service struct {
	kv     storage.KeyValueStore
	log    *logger.Logger
	pepper []byte
	now    func() time.Time
}

// New creates a configured identity service. The pepper keys the origin hash
// so identity hashes cannot be reversed by enumerating origins.
func New(kv storage.KeyValueStore, pepper string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("identity")
	}
	if strings.TrimSpace(pepper) == "" {
		pepper = "local-dev-pepper"
		log.Warn("identity pepper not configured; using development default")
	}
	return &Service{
		kv:     kv,
		log:    log,
		pepper: []byte(pepper),
		now:    time.Now,
	}
}

// Register stores a new session for a visitor.
func (s *Service) Register(ctx context.Context, displayName, origin string) (identity.Session, error) {
	displayName = strings.TrimSpace(displayName)
	origin = strings.TrimSpace(origin)

	if displayName == "" {
		return identity.Session{}, fmt.Errorf("display_name is required")
	}
	if origin == "" {
		return identity.Session{}, fmt.Errorf("origin is required")
	}

	session := identity.Session{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		Origin:      origin,
		CreatedAt:   s.now().UTC(),
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return identity.Session{}, fmt.Errorf("encode session: %w", err)
	}
	if err := s.kv.Set(ctx, keyPrefix+session.ID, string(payload), sessionTTL); err != nil {
		return identity.Session{}, fmt.Errorf("store session: %w", err)
	}

	s.log.WithField("session_id", session.ID).Info("session registered")
	return session, nil
}

// Resolve maps a session identifier to its display identity. Unknown or
// undecodable sessions are errors; callers decide whether that skips a
// record or rejects a request.
func (s *Service) Resolve(ctx context.Context, sessionID string) (identity.Identity, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return identity.Identity{}, fmt.Errorf("session id is required")
	}

	raw, err := s.kv.Get(ctx, keyPrefix+sessionID)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	var session identity.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return identity.Identity{}, fmt.Errorf("decode session %s: %w", sessionID, err)
	}

	hash := s.HashOrigin(session.Origin)
	return identity.Identity{
		DisplayName:  session.DisplayName,
		Hash:         hash,
		DisplayToken: identity.MaskToken(hash),
	}, nil
}

// HashOrigin derives the peppered one-way hash that buckets an origin for
// rate limiting.
func (s *Service) HashOrigin(origin string) string {
	reader := hkdf.New(sha256.New, []byte(origin), s.pepper, hashInfo)
	okm := make([]byte, 32)
	// hkdf over sha256 cannot fail before 255*32 bytes of output.
	_, _ = io.ReadFull(reader, okm)
	return hex.EncodeToString(okm)
}
