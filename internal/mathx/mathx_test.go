package mathx

import "testing"

func TestClamp(t *testing.T) {
	cases := []struct {
		name      string
		v, lo, hi int
		want      int
	}{
		{"below", -5, 0, 10, 0},
		{"above", 15, 0, 10, 10},
		{"inside", 7, 0, 10, 7},
		{"swapped bounds", 15, 10, 0, 10},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Clamp(c.v, c.lo, c.hi); got != c.want {
				t.Errorf("Clamp(%d, %d, %d) = %d, want %d", c.v, c.lo, c.hi, got, c.want)
			}
		})
	}
}

func TestMinMax(t *testing.T) {
	if Min(3, 4) != 3 || Max(3, 4) != 4 {
		t.Fatal("min/max mismatch")
	}
}

func TestMap(t *testing.T) {
	cases := []struct {
		name                            string
		x, inMin, inMax, outMin, outMax int
		want                            int
	}{
		{"full scale low", 0, 0, 1023, 0, 100, 0},
		{"full scale high", 1023, 0, 1023, 0, 100, 100},
		{"inverted midpoint", 600, 400, 800, 100, 0, 50},
		{"inverted low end", 400, 400, 800, 100, 0, 100},
		{"inverted high end", 800, 400, 800, 100, 0, 0},
		{"truncates", 511, 0, 1023, 0, 100, 49},
		{"degenerate input range", 5, 3, 3, 7, 9, 7},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Map(c.x, c.inMin, c.inMax, c.outMin, c.outMax)
			if got != c.want {
				t.Errorf("got %d want %d", got, c.want)
			}
		})
	}
}
