package engine

import (
	"image"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/dudu/facetrack/internal/config"
	"github.com/dudu/facetrack/internal/detector"
	"github.com/dudu/facetrack/internal/landmark"
)

// fakeFinder returns the same faces on every call and records the size of
// the image it searched.
type fakeFinder struct {
	faces []detector.Face
	sizes []image.Point
}

func (f *fakeFinder) Detect(img gocv.Mat) ([]detector.Face, error) {
	f.sizes = append(f.sizes, image.Pt(img.Cols(), img.Rows()))
	return slices.Clone(f.faces), nil
}

func (f *fakeFinder) Close() error { return nil }

// boxLandmarks puts landmark 0 on the top-left and landmark 1 on the
// bottom-right corner of the face box, the rest on its center.
type boxLandmarks struct{}

func (boxLandmarks) Detect(_ gocv.Mat, face *detector.Face) error {
	b := face.BoundingBox
	var l detector.Landmarks106
	for i := range l {
		l[i] = b.Center()
	}
	l[0] = detector.Point{X: b.X1, Y: b.Y1}
	l[1] = detector.Point{X: b.X2, Y: b.Y2}
	face.Landmarks106 = &l
	return nil
}

func (boxLandmarks) Close() error { return nil }

func newTestEngine(t *testing.T, s detector.Settings, faces ...detector.Face) (*Engine, *fakeFinder) {
	t.Helper()
	finder := &fakeFinder{faces: faces}
	e := NewWithDetectors(finder, boxLandmarks{}, nil)
	if s.Density == 0 {
		s.Density = config.Dense106
	}
	require.NoError(t, e.Configure(s))
	t.Cleanup(func() { e.Close() })
	return e, finder
}

func face(x1, y1, x2, y2, score float32) detector.Face {
	return detector.Face{BoundingBox: detector.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2}, Score: score}
}

func rgba(width, height int) detector.Frame {
	return detector.Frame{Data: make([]byte, width*height*4), Width: width, Height: height, Format: detector.FormatRGBA}
}

func nv21(width, height int) detector.Frame {
	return detector.Frame{Data: make([]byte, width*height*3/2), Width: width, Height: height, Format: detector.FormatNV21}
}

func TestEngine_CornersNormalizeToUnitSquare(t *testing.T) {
	static := config.NewStore().SetPreview(false).Snapshot()
	preview := config.NewStore().SetPreview(true).Snapshot()

	tests := []struct {
		name        string
		params      config.Params
		orientation landmark.Orientation
		rotation    int
		frame       detector.Frame
		box         detector.Face
		corner      [2]float32
	}{
		{"static upright", static, landmark.Rotation0, 0, rgba(640, 480), face(0, 0, 640, 480, 1), [2]float32{480, 640}},
		{"static rotated", static, landmark.Rotation0, 90, rgba(640, 480), face(0, 0, 480, 640, 1), [2]float32{480, 640}},
		{"portrait preview", preview, landmark.Rotation0, 0, nv21(640, 480), face(0, 0, 640, 480, 1), [2]float32{480, 640}},
		{"landscape preview", preview, landmark.Rotation90, 0, nv21(640, 480), face(0, 0, 640, 480, 1), [2]float32{640, 480}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t, detector.Settings{Rotation: tt.rotation}, tt.box)

			view := landmark.NewView(tt.params, tt.orientation, tt.frame.Width, tt.frame.Height)
			tt.frame.Swapped = view.Swapped()
			require.NoError(t, e.Update(tt.frame))

			faces := e.Faces()
			require.Len(t, faces, 1)
			raw := faces[0].Landmarks
			assert.Equal(t, []float32{0, 0}, raw[0:2])
			assert.Equal(t, tt.corner[:], raw[2:4])

			for i := 0; i < 4; i += 2 {
				x, y := view.Point(raw[i], raw[i+1])
				assert.InDelta(t, 1, abs(x), 1e-6, "vertex %d x", i/2)
				assert.InDelta(t, 1, abs(y), 1e-6, "vertex %d y", i/2)
			}
		})
	}
}

func TestEngine_IntervalTracking(t *testing.T) {
	tests := []struct {
		mode  config.TrackMode
		calls int
	}{
		{config.TrackModeNormal, 2},
		{config.TrackModeRobust, 5},
		{config.TrackModeFast, 1},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			e, finder := newTestEngine(t, detector.Settings{Interval: 2, TrackMode: tt.mode}, face(10, 10, 60, 60, 0.9))
			for range 5 {
				require.NoError(t, e.Update(rgba(64, 64)))
				require.Len(t, e.Faces(), 1)
			}
			assert.Len(t, finder.sizes, tt.calls)
		})
	}
}

func TestEngine_RotationChangeRestartsTracking(t *testing.T) {
	e, finder := newTestEngine(t, detector.Settings{Interval: 10}, face(10, 10, 60, 60, 0.9))
	require.NoError(t, e.Update(rgba(64, 64)))
	require.NoError(t, e.Update(rgba(64, 64)))
	assert.Len(t, finder.sizes, 1)

	require.NoError(t, e.Configure(detector.Settings{Rotation: 90, Interval: 10, Density: config.Dense106}))
	require.NoError(t, e.Update(rgba(64, 64)))
	assert.Len(t, finder.sizes, 2)
}

func TestEngine_ROIOffset(t *testing.T) {
	roi := detector.Rect{Left: 200, Top: 120, Right: 440, Bottom: 360}
	e, finder := newTestEngine(t, detector.Settings{ROI: roi}, face(10, 20, 110, 120, 0.9))

	require.NoError(t, e.Update(rgba(640, 480)))
	require.Equal(t, []image.Point{image.Pt(240, 240)}, finder.sizes)

	faces := e.Faces()
	require.Len(t, faces, 1)
	// search region pixels shifted into the frame, then transposed
	assert.Equal(t, []float32{140, 210, 240, 310}, faces[0].Landmarks[0:4])
	assert.Equal(t, detector.BoundingBox{X1: 140, Y1: 210, X2: 240, Y2: 310}, faces[0].Box)
}

func TestEngine_OneFace(t *testing.T) {
	faces := []detector.Face{face(0, 0, 20, 20, 0.5), face(30, 30, 60, 60, 0.9)}

	e, _ := newTestEngine(t, detector.Settings{OneFace: true}, faces...)
	require.NoError(t, e.Update(rgba(64, 64)))
	require.Len(t, e.Faces(), 1)
	assert.InDelta(t, 0.9, e.Faces()[0].Confidence, 1e-6)

	e, _ = newTestEngine(t, detector.Settings{}, faces...)
	require.NoError(t, e.Update(rgba(64, 64)))
	assert.Len(t, e.Faces(), 2)
}

func TestEngine_FaceDefaults(t *testing.T) {
	e, _ := newTestEngine(t, detector.Settings{FaceProperty: true}, face(0, 0, 20, 20, 0.7))
	require.NoError(t, e.Update(rgba(32, 32)))
	require.Len(t, e.Faces(), 1)
	assert.Equal(t, -1, e.Faces()[0].Age)
	assert.Equal(t, detector.GenderUnknown, e.Faces()[0].Gender)
	assert.Len(t, e.Faces()[0].Landmarks, 212)
}

func TestEngine_ConfigureAndUpdateErrors(t *testing.T) {
	e := NewWithDetectors(&fakeFinder{}, boxLandmarks{}, nil)
	assert.ErrorIs(t, e.Update(rgba(8, 8)), detector.ErrNotConfigured)
	assert.ErrorIs(t, e.Configure(detector.Settings{Density: config.Sparse81}), detector.ErrUnsupportedDensity)
	assert.Error(t, e.Configure(detector.Settings{Density: config.Dense106, Rotation: 45}))

	require.NoError(t, e.Configure(detector.Settings{Density: config.Dense106}))
	short := rgba(8, 8)
	short.Data = short.Data[:10]
	assert.ErrorIs(t, e.Update(short), detector.ErrShapeMismatch)
	assert.NoError(t, e.Close())
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
