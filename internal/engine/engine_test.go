package engine

import (
	"errors"
	"testing"

	"github.com/onepointltd/kbserver/internal/types"
)

func TestNormalizeModeDriftIsGraphOnly(t *testing.T) {
	t.Parallel()
	if _, err := NormalizeMode(types.EngineLight, types.ModeDrift); !errors.Is(err, ErrModeUnsupported) {
		t.Fatalf("light drift err = %v, want ErrModeUnsupported", err)
	}
	if _, err := NormalizeMode(types.EngineCache, types.ModeDrift); !errors.Is(err, ErrModeUnsupported) {
		t.Fatalf("cache drift err = %v, want ErrModeUnsupported", err)
	}
	mode, err := NormalizeMode(types.EngineGraph, types.ModeDrift)
	if err != nil || mode != types.ModeDrift {
		t.Fatalf("graph drift = %s, %v", mode, err)
	}
}

func TestNormalizeModeLightRemapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   types.SearchMode
		want types.SearchMode
	}{
		{types.ModeLocal, types.ModeHybrid},
		{types.ModeAll, types.ModeHybrid},
		{types.ModeGlobal, types.ModeGlobal},
		{types.ModeNaive, types.ModeNaive},
	}
	for _, tc := range cases {
		got, err := NormalizeMode(types.EngineLight, tc.in)
		if err != nil {
			t.Fatalf("light %s: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("light %s normalized to %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeModeGraphPassthrough(t *testing.T) {
	t.Parallel()
	for _, mode := range []types.SearchMode{types.ModeLocal, types.ModeGlobal, types.ModeAll, types.ModeMix} {
		got, err := NormalizeMode(types.EngineGraph, mode)
		if err != nil || got != mode {
			t.Fatalf("graph %s = %s, %v", mode, got, err)
		}
	}
}
