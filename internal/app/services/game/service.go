// Package game applies plausibility heuristics to arcade score submissions
// before they are admitted into the raw record set.
package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/PlayPark-Labs/engagement_engine/pkg/logger"
)

// Bounds applied when Limits fields are left zero.
const (
	DefaultMaxScorePerSecond = 25
	DefaultLevelBaseline     = 100
	DefaultMinDuration       = 5 * time.Second
	DefaultMaxDuration       = time.Hour
)

// ErrImplausible marks a submission rejected by the plausibility rules.
// Callers report it to the submitter as a validation failure, not a server
// fault.
var ErrImplausible = errors.New("implausible game result")

// Limits bounds what the validator accepts. Zero fields fall back to the
// package defaults, so the zero value is usable.
type Limits struct {
	MaxScorePerSecond int64         `json:"max_score_per_second" yaml:"max_score_per_second"`
	LevelBaseline     int64         `json:"level_baseline" yaml:"level_baseline"`
	MinDuration       time.Duration `json:"min_duration" yaml:"min_duration"`
	MaxDuration       time.Duration `json:"max_duration" yaml:"max_duration"`
}

func (l Limits) withDefaults() Limits {
	if l.MaxScorePerSecond <= 0 {
		l.MaxScorePerSecond = DefaultMaxScorePerSecond
	}
	if l.LevelBaseline <= 0 {
		l.LevelBaseline = DefaultLevelBaseline
	}
	if l.MinDuration <= 0 {
		l.MinDuration = DefaultMinDuration
	}
	if l.MaxDuration <= 0 {
		l.MaxDuration = DefaultMaxDuration
	}
	return l
}

// Service screens game submissions. It is stateless and safe for concurrent
// use.
type Service struct {
	limits Limits
	log    *logger.Logger
}

// New creates a game validation service.
func New(limits Limits, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("game")
	}
	return &Service{limits: limits.withDefaults(), log: log}
}

// Limits returns the effective bounds after defaulting.
func (s *Service) Limits() Limits {
	return s.limits
}

// ValidateScore checks that a claimed score is plausible for the session's
// duration and level. A nil return admits the submission; every rejection
// wraps ErrImplausible with the specific reason.
func (s *Service) ValidateScore(score int64, duration time.Duration, level int64) error {
	if duration < s.limits.MinDuration || duration > s.limits.MaxDuration {
		return s.reject(score, duration, level,
			fmt.Errorf("%w: duration %s outside plausible range %s to %s",
				ErrImplausible, duration, s.limits.MinDuration, s.limits.MaxDuration))
	}

	if maxScore := int64(duration.Seconds() * float64(s.limits.MaxScorePerSecond)); score > maxScore {
		return s.reject(score, duration, level,
			fmt.Errorf("%w: score %d exceeds %d achievable in %s",
				ErrImplausible, score, maxScore, duration))
	}

	if level > 1 {
		if floor := level * s.limits.LevelBaseline; score < floor {
			return s.reject(score, duration, level,
				fmt.Errorf("%w: score %d below the level %d floor of %d",
					ErrImplausible, score, level, floor))
		}
	}

	return nil
}

func (s *Service) reject(score int64, duration time.Duration, level int64, err error) error {
	s.log.WithField("score", score).
		WithField("duration", duration.String()).
		WithField("level", level).
		Debug("rejected game submission")
	return err
}
