package model

import (
	"strings"
	"testing"
	"time"
)

func TestIsValidSlug(t *testing.T) {
	valid := []string{"abc", "indie-web", "ring-2", "a1b", "microformats", strings.Repeat("a", 25)}
	for _, s := range valid {
		if !IsValidSlug(s) {
			t.Errorf("IsValidSlug(%q) = false, want true", s)
		}
	}

	invalid := []string{
		"",
		"ab",                      // too short
		strings.Repeat("a", 26),   // too long
		"-leading",
		"trailing-",
		"double--hyphen",
		"UpperCase",
		"under_score",
		"spa ce",
		"dots.dots",
	}
	for _, s := range invalid {
		if IsValidSlug(s) {
			t.Errorf("IsValidSlug(%q) = true, want false", s)
		}
	}
}

func TestSlugBase(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{name: "Indie Web", want: "indie-web"},
		{name: "  Lots   of   spaces  ", want: "lots-of-spaces"},
		{name: "Héllo, Wörld!", want: "hllo-wrld"},
		{name: "already-a-slug", want: "already-a-slug"},
		{name: "!!!", want: "ring"},
		{name: "", want: "ring"},
		{name: "ab", want: "ab-ring"},
		{name: "A Very Long Ring Name That Overflows", want: SlugBase("A Very Long Ring Name That Overflows")},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := SlugBase(tc.name)
			if got != tc.want {
				t.Errorf("SlugBase(%q): got %q, want %q", tc.name, got, tc.want)
			}
			if !IsValidSlug(got) {
				t.Errorf("SlugBase(%q) produced invalid slug %q", tc.name, got)
			}
		})
	}
}

func TestSlugWithSuffix_respectsMaxLength(t *testing.T) {
	base := strings.Repeat("a", 25)
	for _, n := range []int{2, 9, 10, 123} {
		got := SlugWithSuffix(base, n)
		if len(got) > SlugMaxLength {
			t.Errorf("SlugWithSuffix(%q, %d) = %q: length %d exceeds %d", base, n, got, len(got), SlugMaxLength)
		}
		if !IsValidSlug(got) {
			t.Errorf("SlugWithSuffix(%q, %d) produced invalid slug %q", base, n, got)
		}
	}
}

func TestComputeTier(t *testing.T) {
	cases := []struct {
		name string
		rep  ActorReputation
		days int
		want Tier
	}{
		{name: "fresh actor", rep: ActorReputation{}, days: 0, want: TierNew},
		{name: "week old but idle", rep: ActorReputation{}, days: 10, want: TierNew},
		{
			name: "week old with posts",
			rep:  ActorReputation{TotalPosts: 5},
			days: 8,
			want: TierEstablished,
		},
		{
			name: "week old with memberships",
			rep:  ActorReputation{MembershipCount: 2},
			days: 8,
			want: TierEstablished,
		},
		{
			name: "month old, sustained",
			rep:  ActorReputation{TotalPosts: 30, ActiveRings: 2, MembershipCount: 3},
			days: 45,
			want: TierVeteran,
		},
		{
			name: "veteran activity but too young",
			rep:  ActorReputation{TotalPosts: 30, ActiveRings: 2},
			days: 20,
			want: TierEstablished,
		},
		{
			name: "trusted",
			rep:  ActorReputation{TotalPosts: 150, RingsCreated: 4, ActiveRings: 3, MembershipCount: 6},
			days: 120,
			want: TierTrusted,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rep.ComputeTier(tc.days); got != tc.want {
				t.Errorf("ComputeTier(%d) = %q, want %q", tc.days, got, tc.want)
			}
		})
	}
}

func TestEscalatedCooldown(t *testing.T) {
	cases := []struct {
		violations int
		want       time.Duration
	}{
		{violations: 0, want: 0},
		{violations: 2, want: 0},
		{violations: 3, want: time.Hour},
		{violations: 4, want: 2 * time.Hour},
		{violations: 6, want: 8 * time.Hour},
		{violations: 30, want: MaxCooldownHours * time.Hour},
	}

	for _, tc := range cases {
		if got := EscalatedCooldown(tc.violations); got != tc.want {
			t.Errorf("EscalatedCooldown(%d) = %v, want %v", tc.violations, got, tc.want)
		}
	}
}

func TestEscalatedCooldown_neverExceedsCap(t *testing.T) {
	for v := 0; v < 64; v++ {
		if got := EscalatedCooldown(v); got > MaxCooldownHours*time.Hour {
			t.Fatalf("EscalatedCooldown(%d) = %v exceeds cap", v, got)
		}
	}
}
