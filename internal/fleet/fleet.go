// Package fleet generates the synthetic station and bus pools and turns
// pooled entities into freshly jittered Thing snapshots.
package fleet

import (
	"fmt"
	"strconv"

	"dittoload/internal/thing"
)

// Placement and per-tick jitter bands, in degrees.
// Pool spread > bus movement > station movement.
const (
	StationSpread = 0.02
	BusSpread     = 0.03

	StationJitter = 0.0005
	BusJitter     = 0.001

	busLines = 10
)

// Entity is a pooled, immutable synthetic device.
type Entity interface {
	// LocalID is the namespace-agnostic identity.
	LocalID() string
	// Snapshot builds a fresh update payload with jittered state.
	Snapshot(r Rand) thing.Thing
}

// Mutate is the per-tick transformation of a pooled entity.
func Mutate(r Rand, e Entity) (string, thing.Thing) {
	return e.LocalID(), e.Snapshot(r)
}

type Station struct {
	Code     string
	Name     string
	Position Position
}

func (s Station) LocalID() string { return s.Code }

func (s Station) Snapshot(r Rand) thing.Thing {
	return thing.Thing{
		ThingID: s.Code,
		Attributes: map[string]any{
			"code":     s.Code,
			"model":    s.Name,
			"location": locationAttr(r, s.Position, StationJitter),
		},
		Features: map[string]thing.Feature{
			"actual": {Properties: map[string]int{
				"Direction Rimini":   between(r, 0, 10),
				"Direction Riccione": between(r, 0, 10),
			}},
			"arrivals": {Properties: map[string]int{
				"Direction Rimini":   between(r, 0, 20),
				"Direction Riccione": between(r, 0, 20),
			}},
		},
	}
}

type Bus struct {
	ID       int
	Line     string
	Position Position
}

func (b Bus) LocalID() string { return "bus-" + strconv.Itoa(b.ID) }

func (b Bus) Snapshot(r Rand) thing.Thing {
	model := b.Line
	if model == "" {
		model = "bus"
	}
	return thing.Thing{
		ThingID: b.LocalID(),
		Attributes: map[string]any{
			"id":       b.ID,
			"model":    model,
			"location": locationAttr(r, b.Position, BusJitter),
		},
		Features: map[string]thing.Feature{
			"status": {Properties: map[string]int{
				"count": between(r, 0, 100),
			}},
		},
	}
}

// locationAttr returns nil (JSON null) for an unset position.
func locationAttr(r Rand, p Position, jitter float64) any {
	s, ok := FormatPosition(r, p, jitter)
	if !ok {
		return nil
	}
	return s
}

// GenerateStations builds n stations S0001..Snnnn placed around base.
func GenerateStations(r Rand, n int, base Location) []Station {
	if n <= 0 {
		return nil
	}
	out := make([]Station, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Station{
			Code:     fmt.Sprintf("S%04d", i),
			Name:     fmt.Sprintf("Station %d", i),
			Position: PositionAt(base.Jitter(r, StationSpread)),
		})
	}
	return out
}

// GenerateBuses builds n buses with ids 1..n on lines "Line 1".."Line 10", repeating.
func GenerateBuses(r Rand, n int, base Location) []Bus {
	if n <= 0 {
		return nil
	}
	out := make([]Bus, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Bus{
			ID:       i,
			Line:     fmt.Sprintf("Line %d", (i-1)%busLines+1),
			Position: PositionAt(base.Jitter(r, BusSpread)),
		})
	}
	return out
}

// Stations and Buses adapt typed pools to the Entity interface.
func Stations(pool []Station) []Entity {
	out := make([]Entity, len(pool))
	for i := range pool {
		out[i] = pool[i]
	}
	return out
}

func Buses(pool []Bus) []Entity {
	out := make([]Entity, len(pool))
	for i := range pool {
		out[i] = pool[i]
	}
	return out
}

// Sample draws count entities uniformly at random with replacement.
// The batch size is independent of the pool size.
func Sample(r Rand, pool []Entity, count int) []Entity {
	if len(pool) == 0 || count <= 0 {
		return nil
	}
	out := make([]Entity, count)
	for i := range out {
		out[i] = pool[r.Intn(len(pool))]
	}
	return out
}
