package fleet

import (
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"testing"
)

var reWire = regexp.MustCompile(`^-?\d+(\.\d+)?,-?\d+(\.\d+)?$`)

func seeded() *rand.Rand { return rand.New(rand.NewSource(42)) }

func parsePair(t *testing.T, s string) Location {
	t.Helper()
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		t.Fatalf("location %q is not a pair", s)
	}
	lat, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		t.Fatalf("lat %q: %v", parts[0], err)
	}
	lon, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		t.Fatalf("lon %q: %v", parts[1], err)
	}
	return Location{lat, lon}
}

func within(a, b Location, delta float64) bool {
	const eps = 1e-9
	return math.Abs(a[0]-b[0]) <= delta+eps && math.Abs(a[1]-b[1]) <= delta+eps
}

func TestGenerateStations(t *testing.T) {
	t.Parallel()
	for _, n := range []int{1, 3, 100, 257} {
		got := GenerateStations(seeded(), n, DefaultBase)
		if len(got) != n {
			t.Fatalf("n=%d: len = %d", n, len(got))
		}
		seen := map[string]bool{}
		for i, s := range got {
			if seen[s.Code] {
				t.Fatalf("duplicate code %s", s.Code)
			}
			seen[s.Code] = true
			if want := "S" + leftPad(i+1); s.Code != want {
				t.Fatalf("code = %s, want %s", s.Code, want)
			}
			loc, ok := s.Position.Coords()
			if !ok || !within(loc, DefaultBase, StationSpread) {
				t.Fatalf("station %s outside bounding box: %v", s.Code, loc)
			}
		}
	}
	if got := GenerateStations(seeded(), 0, DefaultBase); len(got) != 0 {
		t.Fatalf("n=0 returned %d stations", len(got))
	}
}

func leftPad(i int) string {
	s := strconv.Itoa(i)
	for len(s) < 4 {
		s = "0" + s
	}
	return s
}

func TestGenerateBusesLinesCycle(t *testing.T) {
	t.Parallel()
	got := GenerateBuses(seeded(), 23, DefaultBase)
	if len(got) != 23 {
		t.Fatalf("len = %d", len(got))
	}
	for i, b := range got {
		if b.ID != i+1 {
			t.Fatalf("id = %d, want %d", b.ID, i+1)
		}
		if want := "Line " + strconv.Itoa(i%10+1); b.Line != want {
			t.Fatalf("bus %d line = %q, want %q", b.ID, b.Line, want)
		}
		loc, _ := b.Position.Coords()
		if !within(loc, DefaultBase, BusSpread) {
			t.Fatalf("bus %d outside bounding box: %v", b.ID, loc)
		}
	}
	if got[0].LocalID() != "bus-1" {
		t.Fatalf("LocalID = %q", got[0].LocalID())
	}
}

func TestMutateJittersWithinBand(t *testing.T) {
	t.Parallel()
	r := seeded()
	st := GenerateStations(r, 1, DefaultBase)[0]
	base, _ := st.Position.Coords()

	id1, a := Mutate(r, st)
	id2, b := Mutate(r, st)
	if id1 != "S0001" || id2 != "S0001" {
		t.Fatalf("ids = %q %q", id1, id2)
	}
	la, _ := a.Attributes["location"].(string)
	lb, _ := b.Attributes["location"].(string)
	if la == lb {
		t.Fatalf("expected different locations, got %q twice", la)
	}
	for _, s := range []string{la, lb} {
		if !reWire.MatchString(s) {
			t.Fatalf("location %q does not match wire form", s)
		}
		if !within(parsePair(t, s), base, StationJitter) {
			t.Fatalf("location %q exceeds per-tick jitter from %v", s, base)
		}
	}
	for name, f := range a.Features {
		max := 10
		if name == "arrivals" {
			max = 20
		}
		for k, v := range f.Properties {
			if v < 0 || v > max {
				t.Fatalf("%s.%s = %d out of [0,%d]", name, k, v, max)
			}
		}
	}
}

func TestBusSnapshot(t *testing.T) {
	t.Parallel()
	r := seeded()
	b := GenerateBuses(r, 4, DefaultBase)[3]
	base, _ := b.Position.Coords()
	id, th := Mutate(r, b)
	if id != "bus-4" || th.Attributes["id"] != 4 || th.Attributes["model"] != "Line 4" {
		t.Fatalf("unexpected snapshot %s %+v", id, th.Attributes)
	}
	loc := parsePair(t, th.Attributes["location"].(string))
	if !within(loc, base, BusJitter) {
		t.Fatalf("bus moved too far: %v vs %v", loc, base)
	}
	if c := th.Features["status"].Properties["count"]; c < 0 || c > 100 {
		t.Fatalf("count = %d", c)
	}
}

func TestFormatPosition(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		pos  Position
		want string
		ok   bool
	}{
		{name: "wire text round-trips", pos: PositionText("44.061,12.5671"), want: "44.061,12.5671", ok: true},
		{name: "bracketed list", pos: PositionText("[44.06, 12.57]"), want: "44.06,12.57", ok: true},
		{name: "tuple with negatives", pos: PositionText("(-33.9, -70.65)"), want: "-33.9,-70.65", ok: true},
		{name: "integers fall back to stripping", pos: PositionText("[ 44 , 12 ]"), want: "44,12", ok: true},
		{name: "garbage degrades", pos: PositionText("( unknown )"), want: "unknown", ok: true},
		{name: "unset", pos: Position{}, want: "", ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := FormatPosition(seeded(), tt.pos, StationJitter)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("FormatPosition = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFormattedPairReparses(t *testing.T) {
	t.Parallel()
	r := seeded()
	first, _ := FormatPosition(r, PositionAt(DefaultBase), BusJitter)
	again := FormatLocationText(first)
	if again != first {
		t.Fatalf("re-formatting %q gave %q", first, again)
	}
	if !within(parsePair(t, again), DefaultBase, BusJitter) {
		t.Fatalf("%q outside jitter of base", again)
	}
}

func TestUnsetLocationIsNull(t *testing.T) {
	t.Parallel()
	th := Station{Code: "S0009", Name: "Station 9"}.Snapshot(seeded())
	v, present := th.Attributes["location"]
	if !present || v != nil {
		t.Fatalf("location = %v (present=%v), want nil", v, present)
	}
}

func TestSampleWithReplacement(t *testing.T) {
	t.Parallel()
	pool := Stations(GenerateStations(seeded(), 3, DefaultBase))
	batch := Sample(NewRand(7), pool, 50)
	if len(batch) != 50 {
		t.Fatalf("len = %d, want 50", len(batch))
	}
	seen := map[string]int{}
	for _, e := range batch {
		seen[e.LocalID()]++
	}
	if len(seen) > 3 {
		t.Fatalf("sampled ids outside the pool: %v", seen)
	}
	if Sample(NewRand(1), nil, 5) != nil {
		t.Fatal("empty pool should yield no batch")
	}
}
