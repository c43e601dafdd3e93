package detector

import "github.com/dudu/facetrack/internal/config"

// ShouldDetect reports whether the face finder must run on this frame.
// Between detections engines follow the faces found last time using their
// landmarks. Normal mode detects every interval+1 frames, Robust every frame,
// Fast only once tracking has lost every face.
func ShouldDetect(mode config.TrackMode, interval, frameIndex, tracked int) bool {
	if tracked == 0 {
		return true
	}
	switch mode {
	case config.TrackModeRobust:
		return true
	case config.TrackModeFast:
		return false
	}
	return frameIndex%(max(interval, 0)+1) == 0
}

// SearchRegion returns the part of the rotated frame an engine searches, in
// rotated frame pixels. An empty or out of frame ROI selects the whole frame.
func SearchRegion(s Settings, width, height int) Rect {
	rw, rh := width, height
	if d := normalizeDegrees(s.Rotation); d == 90 || d == 270 {
		rw, rh = height, width
	}
	full := Rect{Right: rw, Bottom: rh}
	if s.ROI.Empty() {
		return full
	}

	r := s.ROI.Rotate(s.Rotation, width, height)
	r = Rect{
		Left:   max(r.Left, 0),
		Top:    max(r.Top, 0),
		Right:  min(r.Right, rw),
		Bottom: min(r.Bottom, rh),
	}
	if r.Empty() {
		return full
	}
	return r
}
