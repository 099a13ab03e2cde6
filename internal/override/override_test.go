package override

import (
	"testing"
	"time"

	"github.com/shiva/geomatch/internal/model"
)

func TestOpposingTypes(t *testing.T) {
	cases := []struct {
		a, b model.OverrideType
		want bool
	}{
		{model.LockedAssignment, model.BlockPair, true},
		{model.BlockPair, model.LockedAssignment, true},
		{model.LockedAssignment, model.LockedAssignment, false},
		{model.BlockPair, model.BlockPair, false},
		{model.ManualAssignment, model.BlockPair, false},
	}
	for _, c := range cases {
		if got := opposingTypes(c.a, c.b); got != c.want {
			t.Errorf("opposingTypes(%v,%v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func day(n int) *time.Time {
	d := time.Date(2026, time.January, n, 0, 0, 0, 0, time.UTC)
	return &d
}

func TestWindowsOverlap(t *testing.T) {
	cases := []struct {
		name string
		a, b *model.Override
		want bool
	}{
		{
			name: "unbounded windows always overlap",
			a:    &model.Override{},
			b:    &model.Override{},
			want: true,
		},
		{
			name: "a ends before b starts",
			a:    &model.Override{EffectiveTo: day(5)},
			b:    &model.Override{EffectiveFrom: day(10)},
			want: false,
		},
		{
			name: "b ends before a starts",
			a:    &model.Override{EffectiveFrom: day(10)},
			b:    &model.Override{EffectiveTo: day(5)},
			want: false,
		},
		{
			name: "overlapping windows",
			a:    &model.Override{EffectiveFrom: day(1), EffectiveTo: day(10)},
			b:    &model.Override{EffectiveFrom: day(5), EffectiveTo: day(15)},
			want: true,
		},
		{
			name: "touching boundary counts as overlapping",
			a:    &model.Override{EffectiveTo: day(5)},
			b:    &model.Override{EffectiveFrom: day(5)},
			want: true,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := windowsOverlap(c.a, c.b); got != c.want {
				t.Errorf("windowsOverlap = %v, want %v", got, c.want)
			}
		})
	}
}

func TestNew_DefaultsToLastWriteWins(t *testing.T) {
	s := New(nil, "", nil)
	if s.policy != LastWriteWins {
		t.Errorf("policy = %v, want %v", s.policy, LastWriteWins)
	}
}
