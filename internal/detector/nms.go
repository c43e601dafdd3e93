package detector

import "sort"

// NMS performs Non-Maximum Suppression on detected faces. The result is
// ordered by descending score.
func NMS(faces []Face, iouThreshold float32) []Face {
	if len(faces) == 0 {
		return faces
	}

	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Score > faces[j].Score
	})

	keep := make([]bool, len(faces))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(faces); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(faces); j++ {
			if keep[j] && IoU(faces[i].BoundingBox, faces[j].BoundingBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make([]Face, 0, len(faces))
	for i, face := range faces {
		if keep[i] {
			result = append(result, face)
		}
	}
	return result
}

// IoU calculates Intersection over Union of two bounding boxes
func IoU(a, b BoundingBox) float32 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// FilterFaces drops faces whose shorter box side is below minSize and, when
// oneFace is set, keeps only the highest scoring face.
func FilterFaces(faces []Face, minSize int, oneFace bool) []Face {
	kept := faces[:0]
	for _, f := range faces {
		if minSize > 0 && min(f.BoundingBox.Width(), f.BoundingBox.Height()) < float32(minSize) {
			continue
		}
		kept = append(kept, f)
	}
	if oneFace && len(kept) > 1 {
		best := 0
		for i := range kept {
			if kept[i].Score > kept[best].Score {
				best = i
			}
		}
		kept[0] = kept[best]
		kept = kept[:1]
	}
	return kept
}
