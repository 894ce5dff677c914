package vision

// BuildCostMatrix returns a len(tracks)×len(detections) matrix with
// cost[i][j] = 1 - IoU(tracks[i], detections[j]).
// Row and column indices follow the order of the input slices.
func BuildCostMatrix(tracks []*Track, detections []Detection) [][]float64 {
	cost := make([][]float64, len(tracks))
	for i, tr := range tracks {
		cost[i] = make([]float64, len(detections))
		for j, det := range detections {
			cost[i][j] = 1 - IoU(tr.BBox, det.BBox)
		}
	}
	return cost
}
