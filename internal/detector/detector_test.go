package detector

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/facetrack/internal/config"
)

func TestValidateFrame(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		wantErr bool
	}{
		{"nv21 exact", Frame{Data: make([]byte, 4*2*3/2), Width: 4, Height: 2, Format: FormatNV21}, false},
		{"rgba exact", Frame{Data: make([]byte, 4*2*4), Width: 4, Height: 2, Format: FormatRGBA}, false},
		{"nv21 short", Frame{Data: make([]byte, 11), Width: 4, Height: 2, Format: FormatNV21}, true},
		{"rgba given nv21 size", Frame{Data: make([]byte, 12), Width: 4, Height: 2, Format: FormatRGBA}, true},
		{"zero width", Frame{Data: nil, Width: 0, Height: 2, Format: FormatRGBA}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFrame(tt.frame)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrShapeMismatch)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRect_Rotate(t *testing.T) {
	// 640x480 frame, 100x50 box at (10,20).
	r := Rect{Left: 10, Top: 20, Right: 110, Bottom: 70}

	tests := []struct {
		degrees int
		want    Rect
	}{
		{0, r},
		{90, Rect{Left: 410, Top: 10, Right: 460, Bottom: 110}},
		{180, Rect{Left: 530, Top: 410, Right: 630, Bottom: 460}},
		{270, Rect{Left: 20, Top: 530, Right: 70, Bottom: 630}},
		{-90, Rect{Left: 20, Top: 530, Right: 70, Bottom: 630}},
	}

	for _, tt := range tests {
		got := r.Rotate(tt.degrees, 640, 480)
		assert.Equal(t, tt.want, got, "rotate %d", tt.degrees)
		assert.Equal(t, r.Width()*r.Height(), got.Width()*got.Height())
	}
}

func TestNormalizeRotation(t *testing.T) {
	got, err := NormalizeRotation(450)
	require.NoError(t, err)
	assert.Equal(t, 90, got)

	got, err = NormalizeRotation(-180)
	require.NoError(t, err)
	assert.Equal(t, 180, got)

	_, err = NormalizeRotation(45)
	assert.Error(t, err)
}

func TestNMS(t *testing.T) {
	faces := []Face{
		{BoundingBox: BoundingBox{0, 0, 100, 100}, Score: 0.7},
		{BoundingBox: BoundingBox{5, 5, 105, 105}, Score: 0.9},
		{BoundingBox: BoundingBox{300, 300, 380, 380}, Score: 0.8},
	}

	kept := NMS(faces, 0.4)

	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.9), kept[0].Score)
	assert.Equal(t, float32(0.8), kept[1].Score)
}

func TestIoU(t *testing.T) {
	a := BoundingBox{0, 0, 10, 10}
	assert.InDelta(t, 1.0, IoU(a, a), 1e-6)
	assert.Zero(t, IoU(a, BoundingBox{20, 20, 30, 30}))
	assert.InDelta(t, 25.0/175.0, IoU(a, BoundingBox{5, 5, 15, 15}), 1e-6)
}

func TestFilterFaces(t *testing.T) {
	build := func() []Face {
		return []Face{
			{BoundingBox: BoundingBox{0, 0, 40, 40}, Score: 0.95},
			{BoundingBox: BoundingBox{0, 0, 120, 150}, Score: 0.6},
			{BoundingBox: BoundingBox{200, 0, 400, 200}, Score: 0.8},
		}
	}

	kept := FilterFaces(build(), 100, false)
	require.Len(t, kept, 2)
	assert.Equal(t, float32(0.6), kept[0].Score)

	kept = FilterFaces(build(), 100, true)
	require.Len(t, kept, 1)
	assert.Equal(t, float32(0.8), kept[0].Score)

	assert.Len(t, FilterFaces(build(), 0, false), 3)
}

func TestEstimatePose(t *testing.T) {
	frontal := Landmarks{
		LeftEye:    Point{40, 50},
		RightEye:   Point{80, 50},
		Nose:       Point{60, 70},
		LeftMouth:  Point{45, 90},
		RightMouth: Point{75, 90},
	}

	pitch, yaw, roll := EstimatePose(frontal)
	assert.InDelta(t, 0, pitch, 1e-5)
	assert.InDelta(t, 0, yaw, 1e-5)
	assert.InDelta(t, 0, roll, 1e-5)

	tilted := frontal
	tilted.RightEye = Point{80, 90}
	_, _, roll = EstimatePose(tilted)
	assert.InDelta(t, math.Pi/4, roll, 1e-5)

	turned := frontal
	turned.Nose = Point{70, 70}
	_, yaw, _ = EstimatePose(turned)
	assert.Greater(t, yaw, float32(0))

	_, _, roll = EstimatePose(Landmarks{})
	assert.Zero(t, roll)
}

func TestLandmarks106_Flatten(t *testing.T) {
	var l Landmarks106
	for i := range l {
		l[i] = Point{X: float32(i), Y: float32(2 * i)}
	}

	flat := l.Flatten(nil, 10, 20)
	require.Len(t, flat, 212)
	assert.Equal(t, float32(10), flat[0])
	assert.Equal(t, float32(20), flat[1])
	assert.Equal(t, float32(105+10), flat[210])
	assert.Equal(t, float32(210+20), flat[211])

	box := l.BoundingBox()
	assert.Equal(t, BoundingBox{0, 0, 105, 210}, box)
}

func TestShouldDetect(t *testing.T) {
	assert.True(t, ShouldDetect(config.TrackModeFast, 25, 7, 0), "nothing tracked")

	assert.True(t, ShouldDetect(config.TrackModeNormal, 2, 0, 1))
	assert.False(t, ShouldDetect(config.TrackModeNormal, 2, 1, 1))
	assert.False(t, ShouldDetect(config.TrackModeNormal, 2, 2, 1))
	assert.True(t, ShouldDetect(config.TrackModeNormal, 2, 3, 1))
	assert.True(t, ShouldDetect(config.TrackModeNormal, 0, 5, 1), "zero interval detects every frame")

	assert.True(t, ShouldDetect(config.TrackModeRobust, 25, 5, 2))
	assert.False(t, ShouldDetect(config.TrackModeFast, 25, 0, 2))
}

func TestSearchRegion(t *testing.T) {
	s := Settings{Rotation: 0}
	assert.Equal(t, Rect{Right: 640, Bottom: 480}, SearchRegion(s, 640, 480))

	s.Rotation = 90
	assert.Equal(t, Rect{Right: 480, Bottom: 640}, SearchRegion(s, 640, 480))

	s.ROI = Rect{Left: 10, Top: 20, Right: 110, Bottom: 70}
	assert.Equal(t, Rect{Left: 410, Top: 10, Right: 460, Bottom: 110}, SearchRegion(s, 640, 480))

	s.Rotation = 0
	s.ROI = Rect{Left: -50, Top: 100, Right: 100, Bottom: 900}
	assert.Equal(t, Rect{Left: 0, Top: 100, Right: 100, Bottom: 480}, SearchRegion(s, 640, 480))

	s.ROI = Rect{Left: 700, Top: 0, Right: 800, Bottom: 100}
	assert.Equal(t, Rect{Right: 640, Bottom: 480}, SearchRegion(s, 640, 480), "outside the frame")
}

func TestI420ToNV21(t *testing.T) {
	// 4x2 frame: 8 luma bytes, 2 U, 2 V
	src := []byte{1, 2, 3, 4, 5, 6, 7, 8, 10, 11, 20, 21}

	dst, err := I420ToNV21(nil, src, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 20, 10, 21, 11}, dst)
	assert.Len(t, dst, FormatNV21.FrameSize(4, 2))

	reused, err := I420ToNV21(make([]byte, 0, 64), src, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, dst, reused)

	_, err = I420ToNV21(nil, src[:11], 4, 2)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = I420ToNV21(nil, make([]byte, 9), 3, 2)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestUnrotatePoint(t *testing.T) {
	r := Rect{Left: 10, Top: 20, Right: 110, Bottom: 70}
	for _, deg := range []int{0, 90, 180, 270} {
		rot := r.Rotate(deg, 640, 480)
		x1, y1 := UnrotatePoint(float32(rot.Left), float32(rot.Top), deg, 640, 480)
		x2, y2 := UnrotatePoint(float32(rot.Right), float32(rot.Bottom), deg, 640, 480)

		back := Rect{
			Left:   int(min(x1, x2)),
			Top:    int(min(y1, y2)),
			Right:  int(max(x1, x2)),
			Bottom: int(max(y1, y2)),
		}
		assert.Equal(t, r, back, "rotation %d", deg)
	}
}

func TestTransposed(t *testing.T) {
	tests := []struct {
		rotation int
		swapped  bool
		want     bool
	}{
		{0, false, true},
		{180, false, true},
		{90, false, false},
		{270, false, false},
		{0, true, false},
		{180, true, false},
		{90, true, true},
		{360, false, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Transposed(tt.rotation, tt.swapped), "rotation %d swapped %v", tt.rotation, tt.swapped)
	}
}

func TestTransposePoints(t *testing.T) {
	v := []float32{1, 2, 3, 4, 5}
	TransposePoints(v)
	assert.Equal(t, []float32{2, 1, 4, 3, 5}, v)

	b := BoundingBox{X1: 1, Y1: 2, X2: 3, Y2: 4}
	assert.Equal(t, BoundingBox{X1: 2, Y1: 1, X2: 4, Y2: 3}, b.Transpose())
}
