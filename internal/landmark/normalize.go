// Package landmark converts detector-space landmarks into the renderer's
// canonical vertex layout: coordinates in [-1,1], corrected for the device
// orientation and mirrored for the front camera preview.
package landmark

import (
	"fmt"
	"math"

	"github.com/dudu/facetrack/internal/config"
	"github.com/dudu/facetrack/internal/detector"
)

// Orientation is a device rotation reading in degrees
type Orientation int

const (
	Rotation0   Orientation = 0
	Rotation90  Orientation = 90
	Rotation180 Orientation = 180
	Rotation270 Orientation = 270
)

// ParseOrientation validates a sensor reading in degrees
func ParseOrientation(degrees int) (Orientation, error) {
	switch o := Orientation(degrees); o {
	case Rotation0, Rotation90, Rotation180, Rotation270:
		return o, nil
	}
	return 0, fmt.Errorf("orientation must be 0, 90, 180 or 270, got %d", degrees)
}

// Landscape reports whether the reading is 90 or 270 degrees
func (o Orientation) Landscape() bool {
	return o == Rotation90 || o == Rotation270
}

// RotationHint maps a sensor reading to the rotation the detector should
// apply, given the rotate angle derived at prepare time.
func RotationHint(o Orientation, rotateAngle int) int {
	switch o {
	case Rotation90:
		return 0
	case Rotation270:
		return 180
	case Rotation180:
		return 360 - rotateAngle
	}
	return rotateAngle
}

// Face is a renderer-ready face. Vertices holds [x0,y0,x1,y1,...] in
// canonical vertex order.
type Face struct {
	Index            int
	Vertices         []float32
	Pitch, Yaw, Roll float32
	Age              int
	Gender           int
	Confidence       float32
}

// CopyFrom copies src into f, reusing f's vertex array when the length matches.
func (f *Face) CopyFrom(src *Face) {
	vertices := f.Vertices
	if len(vertices) != len(src.Vertices) {
		vertices = make([]float32, len(src.Vertices))
	}
	copy(vertices, src.Vertices)
	*f = *src
	f.Vertices = vertices
}

// View is the per-frame geometry used for normalization. Width and Height are
// the dimensions the landmarks are divided by, already swapped for landscape
// preview frames.
type View struct {
	Width, Height int
	Orientation   Orientation
	Preview       bool
	BackCamera    bool
	FaceProperty  bool
}

// NewView derives the normalization view for one frame.
func NewView(p config.Params, o Orientation, width, height int) View {
	v := View{Preview: p.Preview, Orientation: o}
	if v.Swapped() {
		width, height = height, width
	}
	return View{
		Width:        width,
		Height:       height,
		Orientation:  o,
		Preview:      p.Preview,
		BackCamera:   p.BackCamera,
		FaceProperty: p.FaceProperty,
	}
}

// Swapped reports whether width and height are exchanged relative to the
// submitted frame, as in the landscape preview.
func (v View) Swapped() bool {
	return v.Preview && v.Orientation.Landscape()
}

// NeedFlip reports whether the renderer must mirror the frame
func (v View) NeedFlip() bool {
	return v.Preview && !v.BackCamera
}

// Point converts one detector-space landmark to vertex coordinates.
// x is normalized by the height and y by the width, which matches the
// detector's rotated output.
func (v View) Point(xr, yr float32) (float32, float32) {
	x := xr/float32(v.Height)*2 - 1
	y := yr/float32(v.Width)*2 - 1
	backPreview := v.Preview && v.BackCamera

	px, py := x, -y
	switch v.Orientation {
	case Rotation90:
		if backPreview {
			px, py = -y, -x
		} else {
			px, py = y, x
		}
	case Rotation270:
		if backPreview {
			px, py = y, x
		} else {
			px, py = -y, -x
		}
	case Rotation180:
		px, py = -x, y
	}

	if v.NeedFlip() {
		px = -px
	}
	return px, py
}

// Pixel inverts Point, mapping vertex coordinates back to detector space.
func (v View) Pixel(px, py float32) (float32, float32) {
	if v.NeedFlip() {
		px = -px
	}
	backPreview := v.Preview && v.BackCamera

	x, y := px, -py
	switch v.Orientation {
	case Rotation90:
		if backPreview {
			x, y = -py, -px
		} else {
			x, y = py, px
		}
	case Rotation270:
		if backPreview {
			x, y = py, px
		} else {
			x, y = -py, -px
		}
	case Rotation180:
		x, y = -px, py
	}

	return (x + 1) / 2 * float32(v.Height), (y + 1) / 2 * float32(v.Width)
}

// Normalizer remaps raw faces through a permutation table.
type Normalizer struct {
	table *Table
}

// NewNormalizer returns a normalizer using table, or Canonical106 when nil
func NewNormalizer(table *Table) *Normalizer {
	if table == nil {
		table = Canonical106
	}
	return &Normalizer{table: table}
}

// Normalize writes raw into dst. dst's vertex array is resized only when the
// landmark count changes. Landmarks whose index is outside the table, or
// whose vertex slot does not fit the array, are discarded.
func (n *Normalizer) Normalize(dst *Face, raw *detector.RawFace, v View) {
	dst.Pitch, dst.Yaw, dst.Roll = AdjustPose(raw.Pitch, raw.Yaw, raw.Roll, v)
	dst.Confidence = raw.Confidence
	if v.FaceProperty {
		dst.Age = raw.Age
		if raw.Age >= 0 {
			dst.Age = max(raw.Age, 1)
		}
		dst.Gender = raw.Gender
	} else {
		dst.Age = -1
		dst.Gender = detector.GenderUnknown
	}

	count := len(raw.Landmarks)
	if len(dst.Vertices) != count {
		dst.Vertices = make([]float32, count)
	}

	for i := 0; i+1 < count; i += 2 {
		vertex := n.table.Transform(i / 2)
		if vertex < 0 || 2*vertex+1 >= count {
			continue
		}
		x, y := v.Point(raw.Landmarks[i], raw.Landmarks[i+1])
		dst.Vertices[2*vertex] = x
		dst.Vertices[2*vertex+1] = y
	}
}

// AdjustPose converts detector pose angles to the renderer's convention.
func AdjustPose(pitch, yaw, roll float32, v View) (float32, float32, float32) {
	if v.BackCamera {
		yaw = -yaw
	}
	if v.Preview {
		if v.BackCamera {
			roll = math.Pi/2 + roll
		} else {
			roll = math.Pi/2 - roll
		}
	}
	return pitch, yaw, roll
}
