package theme

import (
	"testing"

	"github.com/pgbouncer-lab/liveload/internal/lifecycle"
)

func TestStateColorsDistinct(t *testing.T) {
	seen := make(map[string]lifecycle.State)
	for _, s := range lifecycle.All {
		c := string(StateColor(s))
		if prev, ok := seen[c]; ok {
			t.Errorf("%s and %s share color %s", prev, s, c)
		}
		seen[c] = s
		if StateGlyph(s) == "·" {
			t.Errorf("%s has no glyph", s)
		}
	}
	if StateColor(lifecycle.State(99)) != ColorDefault {
		t.Error("unknown state should use the default color")
	}
}

func TestLoadColor(t *testing.T) {
	tests := []struct {
		frac float64
		want string
	}{
		{0, string(ColorLoadLow)},
		{0.5, string(ColorLoadLow)},
		{0.6, string(ColorLoadMid)},
		{0.9, string(ColorLoadHigh)},
	}
	for _, tt := range tests {
		if got := string(LoadColor(tt.frac)); got != tt.want {
			t.Errorf("LoadColor(%v) = %s, want %s", tt.frac, got, tt.want)
		}
	}
}
