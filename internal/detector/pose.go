package detector

import "math"

// EstimatePose derives head pitch, yaw and roll (radians) from the five
// landmark points. It is a geometric approximation: roll is the angle of the
// eye line, yaw the nose offset from the eye midpoint relative to the
// interocular distance, pitch the nose offset between the eye and mouth lines.
func EstimatePose(l Landmarks) (pitch, yaw, roll float32) {
	dx := float64(l.RightEye.X - l.LeftEye.X)
	dy := float64(l.RightEye.Y - l.LeftEye.Y)
	eyeDist := math.Hypot(dx, dy)
	if eyeDist == 0 {
		return 0, 0, 0
	}
	roll = float32(math.Atan2(dy, dx))

	// Project the nose into the eye-aligned frame.
	cos, sin := dx/eyeDist, dy/eyeDist
	eyeMidX := float64(l.LeftEye.X+l.RightEye.X) / 2
	eyeMidY := float64(l.LeftEye.Y+l.RightEye.Y) / 2
	mouthMidX := float64(l.LeftMouth.X+l.RightMouth.X) / 2
	mouthMidY := float64(l.LeftMouth.Y+l.RightMouth.Y) / 2

	noseX := float64(l.Nose.X) - eyeMidX
	noseY := float64(l.Nose.Y) - eyeMidY
	along := noseX*cos + noseY*sin
	across := -noseX*sin + noseY*cos

	mouthAcross := -(mouthMidX-eyeMidX)*sin + (mouthMidY-eyeMidY)*cos
	yaw = float32(math.Asin(clampUnit(2 * along / eyeDist)))
	if mouthAcross != 0 {
		// A frontal nose tip sits roughly half way between the eye and mouth lines.
		pitch = float32(math.Asin(clampUnit(2*across/mouthAcross - 1)))
	}
	return pitch, yaw, roll
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
