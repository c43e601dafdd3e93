package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/facetrack/internal/detector"
	"github.com/dudu/facetrack/internal/facestore"
	"github.com/dudu/facetrack/internal/landmark"
)

var (
	landmarkColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	textColor     = color.RGBA{R: 255, G: 255, B: 0, A: 255}
)

// Window manages the preview display
type Window struct {
	window     *gocv.Window
	name       string
	lastFrame  time.Time
	frameCount int
	fps        float64
}

// NewWindow creates a new preview window
func NewWindow(name string, width, height int) *Window {
	window := gocv.NewWindow(name)
	window.ResizeWindow(width, height)
	return &Window{
		window:    window,
		name:      name,
		lastFrame: time.Now(),
	}
}

// Overlay describes how published vertices map back onto the shown frame
type Overlay struct {
	View     landmark.View
	Rotation int // clockwise degrees the detector applied to the frame
}

// DrawFaces draws every face of snap onto frame, an unrotated BGR frame.
func DrawFaces(frame *gocv.Mat, snap facestore.Snapshot, o Overlay) {
	width, height := frame.Cols(), frame.Rows()
	transpose := detector.Transposed(o.Rotation, o.View.Swapped())
	for _, face := range snap.Faces {
		var top image.Point
		for i := 0; i+1 < len(face.Vertices); i += 2 {
			xr, yr := o.View.Pixel(face.Vertices[i], face.Vertices[i+1])
			if transpose {
				xr, yr = yr, xr
			}
			x, y := detector.UnrotatePoint(xr, yr, o.Rotation, width, height)
			pt := image.Pt(int(x), int(y))
			gocv.Circle(frame, pt, 2, landmarkColor, -1)
			if i == 0 || pt.Y < top.Y {
				top = pt
			}
		}

		label := fmt.Sprintf("#%d yaw %.2f pitch %.2f roll %.2f", face.Index, face.Yaw, face.Pitch, face.Roll)
		gocv.PutText(frame, label, image.Pt(top.X, max(top.Y-10, 15)),
			gocv.FontHersheyPlain, 1, textColor, 1)
	}
}

// Show displays a frame and updates FPS counter
func (w *Window) Show(frame *gocv.Mat) {
	w.frameCount++
	now := time.Now()

	// Calculate FPS every second
	elapsed := now.Sub(w.lastFrame)
	if elapsed >= time.Second {
		w.fps = float64(w.frameCount) / elapsed.Seconds()
		w.frameCount = 0
		w.lastFrame = now
	}

	fpsText := fmt.Sprintf("FPS: %.1f", w.fps)
	gocv.PutText(frame, fpsText, image.Pt(10, 30),
		gocv.FontHersheyPlain, 2, landmarkColor, 2)

	w.window.IMShow(*frame)
}

// WaitKey waits for key press, returns key code or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// FPS returns current frames per second
func (w *Window) FPS() float64 {
	return w.fps
}

// Close closes the window
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}
