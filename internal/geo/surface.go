package geo

// Классы покрытия дороги из surface-канала extras.
var surfaceNames = [...]string{
	0:  "Unknown",
	1:  "Paved",
	2:  "Unpaved",
	3:  "Asphalt",
	4:  "Concrete",
	5:  "Cobblestone",
	6:  "Metal",
	7:  "Wood",
	8:  "Compacted Gravel",
	9:  "Fine Gravel",
	10: "Gravel",
	11: "Dirt",
	12: "Ground",
	13: "Ice",
	14: "Paving Stones",
	15: "Sand",
	16: "Woodchips",
	17: "Grass",
	18: "Grass Paver",
}

// SurfaceName returns the human-readable name for a surface class.
// Out-of-range classes fall back to "Unknown".
func SurfaceName(class int) string {
	if class < 0 || class >= len(surfaceNames) {
		return surfaceNames[0]
	}
	return surfaceNames[class]
}
