package tracker

import (
	"github.com/dudu/facetrack/internal/config"
	"github.com/dudu/facetrack/internal/detector"
)

// RotateAngle derives the detector rotation for a camera mounted at
// orientation degrees. Static images use the orientation as is; the front
// camera preview rotates the other way.
func RotateAngle(p config.Params, orientation int) int {
	if !p.Preview || p.BackCamera {
		return orientation
	}
	return 360 - orientation
}

// RegionOfInterest returns the centered square search region whose side is
// ratio times the frame height.
func RegionOfInterest(width, height int, ratio float32) detector.Rect {
	line := int(float32(height) * ratio)
	left := (width - line) / 2
	top := (height - line) / 2
	return detector.Rect{
		Left:   left,
		Top:    top,
		Right:  width - left,
		Bottom: height - top,
	}
}

func settingsFor(p config.Params, rotation, width, height int) detector.Settings {
	s := detector.Settings{
		Rotation:     rotation,
		Interval:     p.DetectInterval,
		MinFaceSize:  p.MinFaceSize,
		OneFace:      !p.MultiFace,
		TrackMode:    p.TrackMode,
		Density:      p.Density,
		Pose3D:       p.Pose3D,
		FaceProperty: p.FaceProperty,
	}
	if p.ROI {
		s.ROI = RegionOfInterest(width, height, p.ROIRatio)
	}
	return s
}
