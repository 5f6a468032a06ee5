package game

import (
	"errors"
	"testing"
	"time"
)

func TestValidateScore(t *testing.T) {
	svc := New(Limits{}, nil)

	cases := []struct {
		name     string
		score    int64
		duration time.Duration
		level    int64
		ok       bool
	}{
		{"plausible level one", 200, 30 * time.Second, 1, true},
		{"exactly at rate cap", 750, 30 * time.Second, 1, true},
		{"above rate cap", 751, 30 * time.Second, 1, false},
		{"too short session", 40, 2 * time.Second, 1, false},
		{"too long session", 40, 2 * time.Hour, 1, false},
		{"shortest allowed session", 100, 5 * time.Second, 1, true},
		{"level floor met", 300, 60 * time.Second, 3, true},
		{"level floor missed", 299, 60 * time.Second, 3, false},
		{"level one has no floor", 1, 10 * time.Second, 1, true},
		{"zero score level one", 0, 10 * time.Second, 1, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.ValidateScore(tc.score, tc.duration, tc.level)
			if tc.ok && err != nil {
				t.Fatalf("expected submission to pass, got %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("expected submission to be rejected")
				}
				if !errors.Is(err, ErrImplausible) {
					t.Fatalf("rejection must wrap ErrImplausible, got %v", err)
				}
			}
		})
	}
}

func TestValidateScoreCustomLimits(t *testing.T) {
	svc := New(Limits{
		MaxScorePerSecond: 10,
		LevelBaseline:     50,
		MinDuration:       time.Second,
		MaxDuration:       time.Minute,
	}, nil)

	if err := svc.ValidateScore(10, time.Second, 1); err != nil {
		t.Fatalf("one second at the custom cap must pass: %v", err)
	}
	if err := svc.ValidateScore(11, time.Second, 1); err == nil {
		t.Fatal("custom rate cap not applied")
	}
	if err := svc.ValidateScore(100, 10*time.Second, 2); err != nil {
		t.Fatalf("custom level floor of 100 must pass at 100: %v", err)
	}
	if err := svc.ValidateScore(99, 10*time.Second, 2); err == nil {
		t.Fatal("custom level floor not applied")
	}
}

func TestLimitsDefaulting(t *testing.T) {
	got := New(Limits{MaxScorePerSecond: 40}, nil).Limits()

	if got.MaxScorePerSecond != 40 {
		t.Fatalf("explicit rate cap overwritten: %d", got.MaxScorePerSecond)
	}
	if got.LevelBaseline != DefaultLevelBaseline {
		t.Fatalf("level baseline not defaulted: %d", got.LevelBaseline)
	}
	if got.MinDuration != DefaultMinDuration || got.MaxDuration != DefaultMaxDuration {
		t.Fatalf("duration bounds not defaulted: %v..%v", got.MinDuration, got.MaxDuration)
	}
}
