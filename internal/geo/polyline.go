package geo

import "fmt"

// Coordinate is one decoded polyline vertex. The slice index of a coordinate
// is the join key used by extras ranges, so decode order is never reordered.
type Coordinate struct {
	Lon       float64
	Lat       float64
	Elevation *float64
}

type LatLng struct {
	Lat float64
	Lng float64
}

// DecodeError — малформированная polyline-строка (обрыв varint-группы).
type DecodeError struct {
	Pos int
	Msg string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("polyline decode at byte %d: %s", e.Pos, e.Msg)
}

const (
	coordScale     = 1e5
	elevationScale = 1e2
)

// DecodePolyline decodes an encoded polyline string into coordinates.
// Each value is a chain of 5-bit groups (ASCII offset 63, 0x20 continuation
// bit), zig-zag decoded and accumulated as a delta over the previous vertex.
// With withElevation a third channel is decoded per vertex and scaled by 1e2.
func DecodePolyline(encoded string, withElevation bool) ([]Coordinate, error) {
	coords := []Coordinate{}
	index := 0
	lat, lng, ele := 0, 0, 0

	for index < len(encoded) {
		dLat, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		index = next
		lat += dLat

		dLng, next, err := decodeValue(encoded, index)
		if err != nil {
			return nil, err
		}
		index = next
		lng += dLng

		c := Coordinate{
			Lat: float64(lat) / coordScale,
			Lon: float64(lng) / coordScale,
		}

		if withElevation {
			dEle, next, err := decodeValue(encoded, index)
			if err != nil {
				return nil, err
			}
			index = next
			ele += dEle
			v := float64(ele) / elevationScale
			c.Elevation = &v
		}

		coords = append(coords, c)
	}

	return coords, nil
}

// decodeValue consumes one zig-zag varint starting at pos. The cursor is
// bounded by len(encoded): a continuation bit with no byte behind it is a
// DecodeError, not an infinite loop.
func decodeValue(encoded string, pos int) (int, int, error) {
	if pos >= len(encoded) {
		return 0, pos, &DecodeError{Pos: pos, Msg: "truncated coordinate triple"}
	}

	result, shift := 0, 0
	for {
		if pos >= len(encoded) {
			return 0, pos, &DecodeError{Pos: pos, Msg: "unterminated varint group"}
		}
		b := int(encoded[pos]) - 63
		pos++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), pos, nil
	}
	return result >> 1, pos, nil
}

// LatLngs projects decoded coordinates to map points, dropping elevation.
func LatLngs(coords []Coordinate) []LatLng {
	out := make([]LatLng, 0, len(coords))
	for _, c := range coords {
		out = append(out, LatLng{Lat: c.Lat, Lng: c.Lon})
	}
	return out
}
