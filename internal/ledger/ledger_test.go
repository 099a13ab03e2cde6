package ledger

import "testing"

func TestCacheHitRate(t *testing.T) {
	cases := []struct {
		name     string
		hits     int
		apiCalls int
		want     float64
	}{
		{"no lookups", 0, 0, 0},
		{"all cached", 10, 0, 1},
		{"all live", 0, 10, 0},
		{"half and half", 5, 5, 0.5},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := cacheHitRate(c.hits, c.apiCalls); got != c.want {
				t.Errorf("cacheHitRate(%d,%d) = %v, want %v", c.hits, c.apiCalls, got, c.want)
			}
		})
	}
}
