package useragent

import (
	"math/rand"
	"strings"
	"testing"
)

func TestRandom_Shape(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		ua := Random(r)
		if !strings.HasPrefix(ua, "Mozilla/5.0 (") {
			t.Errorf("ua %q lacks Mozilla prefix", ua)
		}
		if !strings.Contains(ua, "Chrome/") || !strings.HasSuffix(ua, " Safari/537.36") {
			t.Errorf("ua %q is not a Chrome user agent", ua)
		}
	}
}

func TestRandom_Varies(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		seen[Random(r)] = true
	}
	if len(seen) < 5 {
		t.Errorf("only %d distinct user agents in 100 draws", len(seen))
	}
}

func TestRandom_Deterministic(t *testing.T) {
	a := Random(rand.New(rand.NewSource(9)))
	b := Random(rand.New(rand.NewSource(9)))
	if a != b {
		t.Errorf("same seed produced %q and %q", a, b)
	}
}
