package geo

import (
	"math"
	"testing"
)

// Downtown Almaty, far from any icosahedron pentagon.
const (
	testLat = 43.238949
	testLng = 76.889709
)

func TestCellOf_Deterministic(t *testing.T) {
	c1, err := CellOf(testLat, testLng)
	if err != nil {
		t.Fatalf("CellOf: %v", err)
	}
	c2, err := CellOf(testLat, testLng)
	if err != nil {
		t.Fatalf("CellOf: %v", err)
	}
	if c1 != c2 {
		t.Fatalf("codec must be referentially transparent: %v vs %v", c1, c2)
	}
	if c1 == 0 {
		t.Fatal("zero cell id")
	}
}

func TestCellOf_DistantPointsDiffer(t *testing.T) {
	a, err := CellOf(testLat, testLng)
	if err != nil {
		t.Fatalf("CellOf: %v", err)
	}
	// ~5km north: must be a different resolution-9 cell.
	b, err := CellOf(testLat+0.045, testLng)
	if err != nil {
		t.Fatalf("CellOf: %v", err)
	}
	if a == b {
		t.Fatal("points 5km apart mapped to the same cell")
	}
}

func TestParseCell_RoundTrip(t *testing.T) {
	c, err := CellOf(testLat, testLng)
	if err != nil {
		t.Fatalf("CellOf: %v", err)
	}
	parsed, err := ParseCell(c.String())
	if err != nil {
		t.Fatalf("ParseCell(%q): %v", c.String(), err)
	}
	if parsed != c {
		t.Fatalf("round trip: got %v, want %v", parsed, c)
	}
}

func TestParseCell_RejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "not-a-cell", "zzzzzzzzzzzzzzz", "0"} {
		if _, err := ParseCell(s); err == nil {
			t.Errorf("ParseCell(%q): expected error", s)
		}
	}
}

func TestNeighbours_Counts(t *testing.T) {
	center, err := CellOf(testLat, testLng)
	if err != nil {
		t.Fatalf("CellOf: %v", err)
	}

	// |disk(k)| = 1 + 3k(k+1) away from pentagons.
	for k, want := range map[int]int{0: 1, 1: 7, 2: 19, 3: 37} {
		got, err := Neighbours(center, k)
		if err != nil {
			t.Fatalf("Neighbours k=%d: %v", k, err)
		}
		if len(got) != want {
			t.Errorf("Neighbours k=%d: got %d cells, want %d", k, len(got), want)
		}
	}
}

func TestNeighbours_ContainsCenter(t *testing.T) {
	center, err := CellOf(testLat, testLng)
	if err != nil {
		t.Fatalf("CellOf: %v", err)
	}
	cells, err := Neighbours(center, 2)
	if err != nil {
		t.Fatalf("Neighbours: %v", err)
	}
	found := false
	for _, c := range cells {
		if c == center {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("disk does not contain its own center")
	}
}

func TestRingAt_Counts(t *testing.T) {
	center, err := CellOf(testLat, testLng)
	if err != nil {
		t.Fatalf("CellOf: %v", err)
	}

	// |ring(k)| = 6k for k>0 away from pentagons; ring 0 is the center alone.
	for k, want := range map[int]int{0: 1, 1: 6, 2: 12, 5: 30} {
		got, err := RingAt(center, k)
		if err != nil {
			t.Fatalf("RingAt k=%d: %v", k, err)
		}
		if len(got) != want {
			t.Errorf("RingAt k=%d: got %d cells, want %d", k, len(got), want)
		}
	}
}

func TestRingAt_DisjointFromInnerRings(t *testing.T) {
	center, err := CellOf(testLat, testLng)
	if err != nil {
		t.Fatalf("CellOf: %v", err)
	}

	seen := map[Cell]int{}
	for k := 0; k <= 3; k++ {
		ring, err := RingAt(center, k)
		if err != nil {
			t.Fatalf("RingAt k=%d: %v", k, err)
		}
		for _, c := range ring {
			if prev, ok := seen[c]; ok {
				t.Fatalf("cell %v appears in ring %d and ring %d", c, prev, k)
			}
			seen[c] = k
		}
	}
}

func TestHaversine_KnownDistance(t *testing.T) {
	// Almaty -> Astana is ~970km great-circle.
	got := Haversine(43.238949, 76.889709, 51.169392, 71.449074)
	if got < 940 || got > 1000 {
		t.Fatalf("Almaty-Astana distance: got %.1f km, want ~970", got)
	}
}

func TestHaversine_ZeroAndSymmetry(t *testing.T) {
	if d := Haversine(testLat, testLng, testLat, testLng); d != 0 {
		t.Fatalf("distance to self: got %f, want 0", d)
	}

	ab := Haversine(testLat, testLng, testLat+1, testLng+1)
	ba := Haversine(testLat+1, testLng+1, testLat, testLng)
	if math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("haversine not symmetric: %f vs %f", ab, ba)
	}
}

func TestHaversine_SmallDistance(t *testing.T) {
	// ~0.9km east along a parallel at this latitude.
	lngDelta := 0.9 / (111.32 * math.Cos(testLat*math.Pi/180))
	got := Haversine(testLat, testLng, testLat, testLng+lngDelta)
	if got < 0.85 || got > 0.95 {
		t.Fatalf("short distance: got %.3f km, want ~0.9", got)
	}
}
