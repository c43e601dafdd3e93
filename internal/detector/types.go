package detector

// Point represents a 2D point
type Point struct {
	X, Y float32
}

// BoundingBox represents a face bounding box
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Center returns box center point
func (b BoundingBox) Center() Point {
	return Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// Area returns box area
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// Translate shifts the box by (dx, dy)
func (b BoundingBox) Translate(dx, dy float32) BoundingBox {
	return BoundingBox{X1: b.X1 + dx, Y1: b.Y1 + dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}

// Transpose exchanges the x and y extents
func (b BoundingBox) Transpose() BoundingBox {
	return BoundingBox{X1: b.Y1, Y1: b.X1, X2: b.Y2, Y2: b.X2}
}

// Landmarks represents 5 facial landmark points
type Landmarks struct {
	LeftEye    Point // index 0
	RightEye   Point // index 1
	Nose       Point // index 2
	LeftMouth  Point // index 3
	RightMouth Point // index 4
}

// Landmarks106 represents 106 facial landmark points in detector order
type Landmarks106 [106]Point

// GetFivePoint extracts 5-point landmarks from 106-point landmarks
func (l *Landmarks106) GetFivePoint() Landmarks {
	// Indices 33-42: one eye region (average of 10 points)
	var eye1X, eye1Y float32
	for i := 33; i <= 42; i++ {
		eye1X += l[i].X
		eye1Y += l[i].Y
	}
	eye1X /= 10
	eye1Y /= 10

	// Indices 87-96: other eye region
	var eye2X, eye2Y float32
	for i := 87; i <= 96; i++ {
		eye2X += l[i].X
		eye2Y += l[i].Y
	}
	eye2X /= 10
	eye2Y /= 10

	return Landmarks{
		LeftEye:    Point{X: eye1X, Y: eye1Y},
		RightEye:   Point{X: eye2X, Y: eye2Y},
		Nose:       l[86],
		LeftMouth:  l[52],
		RightMouth: l[61],
	}
}

// BoundingBox computes tight bounding box around all 106 points
func (l *Landmarks106) BoundingBox() BoundingBox {
	minX, minY := l[0].X, l[0].Y
	maxX, maxY := l[0].X, l[0].Y
	for i := 1; i < len(l); i++ {
		minX = min(minX, l[i].X)
		maxX = max(maxX, l[i].X)
		minY = min(minY, l[i].Y)
		maxY = max(maxY, l[i].Y)
	}
	return BoundingBox{X1: minX, Y1: minY, X2: maxX, Y2: maxY}
}

// Flatten appends the points as [x0,y0,x1,y1,...] shifted by (dx, dy)
func (l *Landmarks106) Flatten(dst []float32, dx, dy float32) []float32 {
	for _, p := range l {
		dst = append(dst, p.X+dx, p.Y+dy)
	}
	return dst
}

// Face is a face found by a face finder, optionally refined with 106 landmarks
type Face struct {
	BoundingBox  BoundingBox
	Landmarks    Landmarks     // 5-point from the finder, zero when unsupported
	Landmarks106 *Landmarks106 // set by a landmark detector
	Score        float32
}
