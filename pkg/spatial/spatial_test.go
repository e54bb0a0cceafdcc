package spatial

import (
	"image"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEstimate_Scenario(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEstimator(cfg)

	// person 40px wide, left of centre in a 640px frame: 50*650/40 = 812.5 -> clamped
	got, ok := e.Estimate(image.Rect(100, 50, 140, 200), "person", 640)
	if !ok {
		t.Fatal("expected a reliable estimate")
	}

	want := Estimate{Direction: Left, DistanceCM: cfg.MaxDistance, PixelWidth: 40}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Estimate mismatch (-want +got):\n%s", diff)
	}

	cfg.MaxDistance = 1000
	got, _ = NewEstimator(cfg).Estimate(image.Rect(100, 50, 140, 200), "person", 640)
	if got.DistanceCM != 812.5 {
		t.Errorf("unclamped distance = %v, want 812.5", got.DistanceCM)
	}
}

func TestEstimate_Unreliable(t *testing.T) {
	e := NewEstimator(DefaultConfig())

	tests := []struct {
		name string
		box  image.Rectangle
		ok   bool
	}{
		{"9px wide", image.Rect(300, 0, 309, 50), false},
		{"10px wide", image.Rect(300, 0, 310, 50), true},
		{"wide box", image.Rect(0, 0, 400, 400), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := e.Estimate(tt.box, "person", 640); ok != tt.ok {
				t.Errorf("ok = %v, want %v", ok, tt.ok)
			}
		})
	}
}

func TestRealWidth_Fallback(t *testing.T) {
	e := NewEstimator(DefaultConfig())

	if w := e.RealWidth("person"); w != 50 {
		t.Errorf("person width = %v, want 50", w)
	}
	if w := e.RealWidth("toaster"); w != 20 {
		t.Errorf("unknown label width = %v, want default 20", w)
	}
}

func TestDistance_Monotonic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinDistance = 1
	cfg.MaxDistance = 1e9
	e := NewEstimator(cfg)

	prev := e.Distance("car", cfg.MinReliablePx)
	for px := cfg.MinReliablePx + 1; px < 2000; px++ {
		d := e.Distance("car", px)
		if d >= prev {
			t.Fatalf("distance not strictly decreasing at %dpx: %v >= %v", px, d, prev)
		}
		prev = d
	}
}

func TestDistance_ClampBounds(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEstimator(cfg)

	for px := 1; px < 3000; px += 7 {
		d := e.Distance("bus", px)
		if d < cfg.MinDistance || d > cfg.MaxDistance {
			t.Fatalf("distance %v for %dpx outside [%v, %v]", d, px, cfg.MinDistance, cfg.MaxDistance)
		}
		if again := Clamp(d, cfg.MinDistance, cfg.MaxDistance); again != d {
			t.Fatalf("clamp not idempotent: %v -> %v", d, again)
		}
	}
}

func TestDirection(t *testing.T) {
	e := NewEstimator(DefaultConfig())
	const center = 320

	tests := []struct {
		name string
		box  image.Rectangle
		want Direction
	}{
		{"fully left", image.Rect(10, 0, 319, 10), Left},
		{"fully right", image.Rect(321, 0, 600, 10), Right},
		{"straddles", image.Rect(300, 0, 340, 10), Ahead},
		{"right edge on centre", image.Rect(200, 0, 320, 10), Ahead},
		{"left edge on centre", image.Rect(320, 0, 400, 10), Ahead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Direction(tt.box, center); got != tt.want {
				t.Errorf("Direction = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDirection_TieSide(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TieBreak = TieSide
	e := NewEstimator(cfg)

	if got := e.Direction(image.Rect(200, 0, 320, 10), 320); got != Left {
		t.Errorf("right edge on centre = %s, want left", got)
	}
	if got := e.Direction(image.Rect(320, 0, 400, 10), 320); got != Right {
		t.Errorf("left edge on centre = %s, want right", got)
	}
	if got := e.Direction(image.Rect(300, 0, 340, 10), 320); got != Ahead {
		t.Errorf("straddling = %s, want ahead", got)
	}
}

func TestDirection_Partition(t *testing.T) {
	e := NewEstimator(DefaultConfig())

	for x1 := 0; x1 < 64; x1 += 3 {
		for x2 := x1 + 1; x2 <= 64; x2 += 5 {
			for center := 0; center <= 64; center += 4 {
				got := e.Direction(image.Rect(x1, 0, x2, 1), center)
				switch got {
				case Left, Right, Ahead:
				default:
					t.Fatalf("unexpected direction %q", got)
				}
			}
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero focal", func(c *Config) { c.FocalLength = 0 }},
		{"zero default width", func(c *Config) { c.DefaultWidth = 0 }},
		{"zero min px", func(c *Config) { c.MinReliablePx = 0 }},
		{"inverted bounds", func(c *Config) { c.MinDistance, c.MaxDistance = 500, 100 }},
		{"bad tie break", func(c *Config) { c.TieBreak = "coin" }},
		{"negative width", func(c *Config) { c.Widths["person"] = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestProximity(t *testing.T) {
	tests := []struct {
		distance float64
		want     string
	}{
		{0, "unknown"},
		{30, "very close"},
		{70, "close"},
		{150, "nearby"},
		{400, "far"},
	}

	for _, tt := range tests {
		if got := Proximity(tt.distance); got != tt.want {
			t.Errorf("Proximity(%v) = %q, want %q", tt.distance, got, tt.want)
		}
	}
}
