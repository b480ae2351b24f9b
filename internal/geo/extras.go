package geo

import "log/slog"

// ExtrasBand holds per-edge classification ranges from the directions
// provider: each row is [startIndex, endIndex, classValue] over the decoded
// coordinate sequence, endIndex inclusive.
type ExtrasBand struct {
	Kind   string
	Values [][3]int
}

const (
	BandWaytype  = "waytype"
	BandTollways = "tollways"
	BandSurface  = "surface"
)

type ExtrasSegment struct {
	Coords []Coordinate
	Class  int
}

// SegmentExtras slices the coordinate sequence into renderable sub-polylines,
// one per range, preserving range order (later segments draw over earlier
// ones). Ranges that fall outside the sequence are skipped with a warning:
// geometry and extras can briefly disagree while a re-route is in flight.
func SegmentExtras(coords []Coordinate, band ExtrasBand) []ExtrasSegment {
	segments := make([]ExtrasSegment, 0, len(band.Values))
	for _, v := range band.Values {
		start, end, class := v[0], v[1], v[2]
		if start < 0 || end >= len(coords) || start > end {
			slog.Warn("extras range out of bounds, skipping",
				"band", band.Kind, "start", start, "end", end, "coords", len(coords))
			continue
		}
		segments = append(segments, ExtrasSegment{
			Coords: coords[start : end+1],
			Class:  class,
		})
	}
	return segments
}

// SurfaceClasses maps each coordinate index to a surface class, last write
// wins for overlapping ranges (upstream data is not guaranteed well-formed).
func SurfaceClasses(coords []Coordinate, band ExtrasBand) []int {
	classes := make([]int, len(coords))
	for _, v := range band.Values {
		start, end, class := v[0], v[1], v[2]
		if start < 0 || start > end {
			slog.Warn("extras range out of bounds, skipping",
				"band", band.Kind, "start", start, "end", end, "coords", len(coords))
			continue
		}
		for i := start; i <= end && i < len(classes); i++ {
			classes[i] = class
		}
	}
	return classes
}
