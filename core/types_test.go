package core

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestAddSafe(t *testing.T) {
	if v, err := AddSafe(10, 5); err != nil || v != 15 {
		t.Fatalf("got %v %v", v, err)
	}
	if _, err := AddSafe(math.MaxInt64, 1); err == nil {
		t.Fatalf("expected overflow")
	}
}

func TestNormalizeUserID(t *testing.T) {
	id, err := NormalizeUserID(" Farmer42 ")
	if err != nil || id != "Farmer42" {
		t.Fatalf("got %v %v", id, err)
	}
	if _, err := NormalizeUserID("   "); !errors.Is(err, ErrEmptyUserID) {
		t.Fatalf("expected empty error, got %v", err)
	}
}

func TestParseActivityType(t *testing.T) {
	got, err := ParseActivityType("soil_upload")
	if err != nil || got != ActivitySoilUpload {
		t.Fatalf("got %v %v", got, err)
	}
	for _, loose := range []string{" soil_upload", "Soil_Upload", "LOGIN"} {
		if _, err := ParseActivityType(loose); !errors.Is(err, ErrInvalidActivityType) {
			t.Fatalf("%q: expected invalid activity type, got %v", loose, err)
		}
	}
	_, err = ParseActivityType("harvest")
	if !errors.Is(err, ErrInvalidActivityType) {
		t.Fatalf("expected invalid activity type, got %v", err)
	}
	var typed *InvalidActivityTypeError
	if !errors.As(err, &typed) || typed.Got != "harvest" {
		t.Fatalf("expected typed error, got %#v", err)
	}
}

func TestUserScoreCloneIsDeep(t *testing.T) {
	now := time.Now().UTC()
	s := NewUserScore("u", DefaultCatalog(), now)
	s.Stats.LastLoginDate = &now
	s.Badges = append(s.Badges, EarnedBadge{BadgeID: "soil_expert"})
	s.Achievements.SoilExpert.CompletedAt = &now

	cp := s.Clone()
	cp.Badges[0].BadgeID = "changed"
	*cp.Stats.LastLoginDate = now.Add(time.Hour)
	*cp.Achievements.SoilExpert.CompletedAt = now.Add(time.Hour)

	if s.Badges[0].BadgeID != "soil_expert" {
		t.Fatal("badges shared between clones")
	}
	if !s.Stats.LastLoginDate.Equal(now) {
		t.Fatal("last login date shared between clones")
	}
	if !s.Achievements.SoilExpert.CompletedAt.Equal(now) {
		t.Fatal("achievement timestamps shared between clones")
	}
}
