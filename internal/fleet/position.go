package fleet

import (
	"regexp"
	"strconv"
	"strings"
)

// Location is an ordered (latitude, longitude) pair.
type Location [2]float64

// DefaultBase is the reference point synthetic fleets are placed around.
var DefaultBase = Location{44.0600, 12.5667}

func (l Location) Lat() float64 { return l[0] }
func (l Location) Lon() float64 { return l[1] }

// String renders the wire form "lat,lon": shortest round-trip decimals,
// no brackets, no whitespace.
func (l Location) String() string {
	return strconv.FormatFloat(l[0], 'f', -1, 64) + "," + strconv.FormatFloat(l[1], 'f', -1, 64)
}

// Jitter returns l moved by a uniform offset within ±delta on both axes.
func (l Location) Jitter(r Rand, delta float64) Location {
	return Location{
		l[0] + uniform(r, -delta, delta),
		l[1] + uniform(r, -delta, delta),
	}
}

type positionKind uint8

const (
	positionUnset positionKind = iota
	positionCoords
	positionText
)

// Position is an entity's stored location: a live coordinate pair, a
// pre-serialized text from an external source, or unset.
type Position struct {
	kind   positionKind
	coords Location
	text   string
}

func PositionAt(l Location) Position { return Position{kind: positionCoords, coords: l} }

func PositionText(s string) Position { return Position{kind: positionText, text: s} }

// Coords returns the live pair, if the position holds one.
func (p Position) Coords() (Location, bool) {
	return p.coords, p.kind == positionCoords
}

var reDecimal = regexp.MustCompile(`-?\d+\.\d+`)

var locationStripper = strings.NewReplacer(" ", "", "[", "", "]", "", "(", "", ")", "")

// FormatPosition renders p in the "lat,lon" wire form.
//
//   - live pair: jittered by ±jitter, then formatted
//   - text: the first two decimal substrings joined by a comma; when fewer
//     than two are present, the text with spaces and brackets stripped
//     (best-effort, may lack a comma)
//   - unset: ok == false
func FormatPosition(r Rand, p Position, jitter float64) (s string, ok bool) {
	switch p.kind {
	case positionCoords:
		return p.coords.Jitter(r, jitter).String(), true
	case positionText:
		return FormatLocationText(p.text), true
	default:
		return "", false
	}
}

// FormatLocationText normalizes an already-serialized location.
func FormatLocationText(s string) string {
	nums := reDecimal.FindAllString(s, 2)
	if len(nums) >= 2 {
		return nums[0] + "," + nums[1]
	}
	return locationStripper.Replace(s)
}
