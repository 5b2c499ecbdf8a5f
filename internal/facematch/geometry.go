package facematch

// BBoxArea returns the area of a [x1, y1, x2, y2] bounding box.
// Malformed or inverted boxes have zero area.
func BBoxArea(bbox []float64) float64 {
	if len(bbox) != 4 {
		return 0
	}
	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// LargestBBox returns the index of the box with the largest area, or -1 if
// boxes is empty. The first box wins ties.
func LargestBBox(boxes [][]float64) int {
	best := -1
	bestArea := -1.0
	for i, bbox := range boxes {
		if area := BBoxArea(bbox); area > bestArea {
			best, bestArea = i, area
		}
	}
	return best
}
