package population

import (
	"errors"
	"testing"

	"github.com/talgya/schelling/internal/agents"
	"github.com/talgya/schelling/internal/neighborhood"
)

func TestSplitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		a, b    float64
		typeB   string
		wantErr error
		ok      bool
	}{
		{name: "default", a: 0.5, b: 0.4, typeB: "O", ok: true},
		{name: "full", a: 0.5, b: 0.5, typeB: "O", ok: true},
		{name: "too much", a: 0.6, b: 0.5, typeB: "O", wantErr: ErrInvalidSplit},
		{name: "negative", a: -0.1, b: 0.5, typeB: "O", wantErr: ErrInvalidSplit},
		{name: "same labels", a: 0.5, b: 0.4, typeB: "X"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSplitConfig(10)
			cfg.SplitA, cfg.SplitB, cfg.TypeB = tt.a, tt.b, tt.typeB
			err := cfg.Validate()
			if tt.ok {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLikesSame_InvalidSplitBuildsNothing(t *testing.T) {
	cfg := DefaultSplitConfig(10)
	cfg.SplitA, cfg.SplitB = 0.7, 0.7
	g, err := NewSpawner(1).LikesSame(cfg)
	if !errors.Is(err, ErrInvalidSplit) {
		t.Errorf("LikesSame() error = %v, want ErrInvalidSplit", err)
	}
	if g != nil {
		t.Error("LikesSame() returned a grid for an invalid split")
	}
}

func countLabels(g *neighborhood.Grid) map[string]int {
	counts := map[string]int{}
	for _, a := range g.Agents {
		counts[a.Type.Label]++
	}
	return counts
}

func TestLikesSame_Population(t *testing.T) {
	cfg := DefaultSplitConfig(50)
	g, err := NewSpawner(7).LikesSame(cfg)
	if err != nil {
		t.Fatalf("LikesSame() error = %v", err)
	}
	if err := g.Check(); err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	counts := countLabels(g)
	if len(counts) != 2 {
		t.Fatalf("labels = %v, want only X and O", counts)
	}
	// 2500 lots: expect about 1250 X, 1000 O and 250 empty.
	if x := counts["X"]; x < 1100 || x > 1400 {
		t.Errorf("X count = %d, want about 1250", x)
	}
	if o := counts["O"]; o < 850 || o > 1150 {
		t.Errorf("O count = %d, want about 1000", o)
	}
	for _, a := range g.Agents {
		if a.Rule != agents.RuleLikesSame || a.Preference != cfg.Preference {
			t.Fatalf("agent %s has rule %s preference %v", a.Position, a.Rule, a.Preference)
		}
	}
}

func TestLikesOthers_Rule(t *testing.T) {
	g, err := NewSpawner(7).LikesOthers(DefaultSplitConfig(10))
	if err != nil {
		t.Fatalf("LikesOthers() error = %v", err)
	}
	if len(g.Agents) == 0 {
		t.Fatal("no agents placed")
	}
	for _, a := range g.Agents {
		if a.Rule != agents.RuleLikesOthers {
			t.Fatalf("agent %s rule = %s, want likes-others", a.Position, a.Rule)
		}
	}
}

func TestSpawner_Deterministic(t *testing.T) {
	cfg := DefaultSplitConfig(20)
	g1, err := NewSpawner(42).LikesSame(cfg)
	if err != nil {
		t.Fatal(err)
	}
	g2, err := NewSpawner(42).LikesSame(cfg)
	if err != nil {
		t.Fatal(err)
	}
	for x := 0; x < cfg.Dimension; x++ {
		for y := 0; y < cfg.Dimension; y++ {
			if a, b := g1.At(x, y).String(), g2.At(x, y).String(); a != b {
				t.Fatalf("lot %d,%d: %s vs %s with the same seed", x, y, a, b)
			}
		}
	}
}

func TestSpawner_ZeroSplitLeavesGridEmpty(t *testing.T) {
	cfg := DefaultSplitConfig(5)
	cfg.SplitA, cfg.SplitB = 0, 0
	g, err := NewSpawner(3).LikesSame(cfg)
	if err != nil {
		t.Fatalf("LikesSame() error = %v", err)
	}
	if len(g.Agents) != 0 {
		t.Errorf("len(Agents) = %d, want 0", len(g.Agents))
	}
	if _, err := g.Stats(); !errors.Is(err, neighborhood.ErrNoAgents) {
		t.Errorf("Stats() error = %v, want ErrNoAgents", err)
	}
}

func TestAges(t *testing.T) {
	cfg := DefaultAgeConfig(30)
	g, err := NewSpawner(11).Ages(cfg)
	if err != nil {
		t.Fatalf("Ages() error = %v", err)
	}
	if err := g.Check(); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	// 900 lots at 95% populated.
	if n := len(g.Agents); n < 820 || n > 900 {
		t.Errorf("len(Agents) = %d, want about 855", n)
	}

	sum := 0.0
	for _, a := range g.Agents {
		if a.Kind != agents.KindContinuous || !a.Type.Numeric {
			t.Fatalf("agent %s is not continuous", a.Position)
		}
		age := a.Type.Value
		if age < cfg.Min || age > cfg.Max || age != float64(int(age)) {
			t.Errorf("age %v outside [%v, %v] or not whole", age, cfg.Min, cfg.Max)
		}
		if a.MinRange != age-cfg.Spread || a.MaxRange != age+cfg.Spread {
			t.Errorf("range [%v, %v] for age %v, want ±%v", a.MinRange, a.MaxRange, age, cfg.Spread)
		}
		sum += age
	}
	// Triangular(20, 90, 45) has mean 51.67; floor lowers it by about 0.5.
	if mean := sum / float64(len(g.Agents)); mean < 48 || mean > 54 {
		t.Errorf("mean age = %.2f, want about 51", mean)
	}
}

func TestAgeConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*AgeConfig)
		ok     bool
	}{
		{name: "default", modify: func(*AgeConfig) {}, ok: true},
		{name: "overpopulated", modify: func(c *AgeConfig) { c.Populated = 1.2 }},
		{name: "mode below min", modify: func(c *AgeConfig) { c.Average = 10 }},
		{name: "flat", modify: func(c *AgeConfig) { c.Min, c.Max, c.Average = 30, 30, 30 }},
		{name: "negative spread", modify: func(c *AgeConfig) { c.Spread = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAgeConfig(10)
			tt.modify(&cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() error = %v, want ok %v", err, tt.ok)
			}
		})
	}
}

func TestTriangular_Bounds(t *testing.T) {
	s := NewSpawner(5)
	for i := 0; i < 10000; i++ {
		v := s.triangular(20, 90, 45)
		if v < 20 || v > 90 {
			t.Fatalf("triangular() = %v, outside [20, 90]", v)
		}
	}
}

func TestClustered(t *testing.T) {
	cfg := DefaultClusterConfig(40)
	g, err := NewSpawner(9).Clustered(cfg)
	if err != nil {
		t.Fatalf("Clustered() error = %v", err)
	}
	if err := g.Check(); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	counts := countLabels(g)
	total := counts["X"] + counts["O"]
	if total != len(g.Agents) {
		t.Errorf("labels = %v, want only X and O", counts)
	}
	// 1600 lots at 90% populated.
	if total < 1350 || total > 1530 {
		t.Errorf("agents = %d, want about 1440", total)
	}
	if counts["X"] == 0 || counts["O"] == 0 {
		t.Errorf("labels = %v, want both types present", counts)
	}
}

func TestClustered_MoreSimilarThanUniform(t *testing.T) {
	clustered := DefaultClusterConfig(40)
	clustered.Bias = 1
	cg, err := NewSpawner(9).Clustered(clustered)
	if err != nil {
		t.Fatal(err)
	}
	ug, err := NewSpawner(9).LikesSame(clustered.SplitConfig)
	if err != nil {
		t.Fatal(err)
	}
	cs, err := cg.FractionSimilar()
	if err != nil {
		t.Fatal(err)
	}
	us, err := ug.FractionSimilar()
	if err != nil {
		t.Fatal(err)
	}
	if cs <= us {
		t.Errorf("clustered similarity %.4f <= uniform %.4f", cs, us)
	}
}

func TestClusterConfig_Validate(t *testing.T) {
	cfg := DefaultClusterConfig(10)
	cfg.Scale = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with zero scale = nil, want error")
	}
	cfg = DefaultClusterConfig(10)
	cfg.SplitA = 0.9
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidSplit) {
		t.Errorf("Validate() error = %v, want ErrInvalidSplit", err)
	}
}
