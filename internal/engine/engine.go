// Package engine implements the detection adapter on OpenCV and ONNX
// Runtime: a face finder (SCRFD or pigo) followed by the 2d106det landmark
// model, with landmark-driven tracking between detections.
package engine

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/dudu/facetrack/internal/config"
	"github.com/dudu/facetrack/internal/detector"
	"github.com/dudu/facetrack/internal/inference"
)

// Config holds engine configuration
type Config struct {
	Finder        Finder
	DetectorModel string
	LandmarkModel string
	PigoCascade   string
	DetectionSize int
	ConfThreshold float32
	NMSThreshold  float32
	CoreML        bool
	Logger        *slog.Logger
}

// DefaultConfig returns the SCRFD settings used by insightface
func DefaultConfig() Config {
	return Config{
		Finder:        FinderSCRFD,
		DetectorModel: "models/scrfd_10g.onnx",
		LandmarkModel: "models/2d106det.onnx",
		PigoCascade:   "cascade/facefinder",
		DetectionSize: 640,
		ConfThreshold: 0.5,
		NMSThreshold:  0.4,
	}
}

// Engine is a detector.Adapter. It is not safe for concurrent use.
type Engine struct {
	finder    FaceDetector
	landmarks LandmarkDetector
	logger    *slog.Logger

	settings   detector.Settings
	configured bool
	frameIndex int
	tracked    []detector.Face
	faces      []detector.RawFace
}

// New loads the models named by cfg. inference.Initialize must have been
// called when cfg uses an ONNX model.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := inference.Options{CoreML: cfg.CoreML, Logger: logger}

	var finder FaceDetector
	var err error
	switch cfg.Finder {
	case FinderPigo:
		finder, err = NewPigo(cfg.PigoCascade, 20, 5.0)
	default:
		finder, err = NewSCRFD(cfg.DetectorModel, cfg.DetectionSize, cfg.ConfThreshold, cfg.NMSThreshold, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create face finder: %w", err)
	}

	landmarks, err := NewLandmark106(cfg.LandmarkModel, opts)
	if err != nil {
		finder.Close()
		return nil, fmt.Errorf("failed to create landmark detector: %w", err)
	}

	return NewWithDetectors(finder, landmarks, logger), nil
}

// NewWithDetectors builds an engine around already loaded detectors
func NewWithDetectors(finder FaceDetector, landmarks LandmarkDetector, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{finder: finder, landmarks: landmarks, logger: logger}
}

// Factory returns a detector.Factory creating one engine per prepare
func Factory(cfg Config) detector.Factory {
	return func() (detector.Adapter, error) {
		return New(cfg)
	}
}

// Configure applies s. A rotation change drops the tracked faces.
func (e *Engine) Configure(s detector.Settings) error {
	if s.Density != config.Dense106 {
		return fmt.Errorf("%w: %s", detector.ErrUnsupportedDensity, s.Density)
	}
	rotation, err := detector.NormalizeRotation(s.Rotation)
	if err != nil {
		return err
	}
	s.Rotation = rotation

	if !e.configured || s.Rotation != e.settings.Rotation || s.ROI != e.settings.ROI {
		e.tracked = e.tracked[:0]
		e.frameIndex = 0
	}
	if s.FaceProperty && !e.settings.FaceProperty {
		e.logger.Debug("face properties are not estimated by this engine")
	}
	e.settings = s
	e.configured = true
	return nil
}

// Update runs detection on one frame
func (e *Engine) Update(f detector.Frame) error {
	if !e.configured {
		return detector.ErrNotConfigured
	}
	if err := detector.ValidateFrame(f); err != nil {
		return err
	}

	bgr, err := toBGR(f)
	if err != nil {
		return err
	}
	defer bgr.Close()

	rotated := rotate(bgr, e.settings.Rotation)
	defer rotated.Close()

	region := detector.SearchRegion(e.settings, f.Width, f.Height)
	search := rotated.Region(image.Rect(region.Left, region.Top, region.Right, region.Bottom))
	defer search.Close()

	if detector.ShouldDetect(e.settings.TrackMode, e.settings.Interval, e.frameIndex, len(e.tracked)) {
		found, err := e.finder.Detect(search)
		if err != nil {
			return fmt.Errorf("face detection failed: %w", err)
		}
		e.tracked = detector.FilterFaces(found, e.settings.MinFaceSize, e.settings.OneFace)
		e.frameIndex = 0
	}
	e.frameIndex++

	dx, dy := float32(region.Left), float32(region.Top)
	transpose := detector.Transposed(e.settings.Rotation, f.Swapped)
	e.faces = e.faces[:0]
	kept := e.tracked[:0]
	var errs []error
	for _, face := range e.tracked {
		if err := e.landmarks.Detect(search, &face); err != nil {
			errs = append(errs, err)
			continue
		}
		e.faces = append(e.faces, e.rawFace(&face, dx, dy, transpose))

		// follow the face with its landmarks until the next detection
		face.BoundingBox = face.Landmarks106.BoundingBox()
		kept = append(kept, face)
	}
	e.tracked = kept

	if len(e.faces) == 0 && len(errs) > 0 {
		return fmt.Errorf("landmark detection failed: %w", errors.Join(errs...))
	}
	return nil
}

// rawFace reports face in detector pixel space: shifted out of the search
// region and, when transpose is set, with x and y exchanged.
func (e *Engine) rawFace(face *detector.Face, dx, dy float32, transpose bool) detector.RawFace {
	raw := detector.RawFace{
		Landmarks:  face.Landmarks106.Flatten(nil, dx, dy),
		Confidence: face.Score,
		Age:        -1,
		Gender:     detector.GenderUnknown,
		Box:        face.BoundingBox.Translate(dx, dy),
	}
	if e.settings.Pose3D {
		raw.Pitch, raw.Yaw, raw.Roll = detector.EstimatePose(face.Landmarks106.GetFivePoint())
	}
	if transpose {
		detector.TransposePoints(raw.Landmarks)
		raw.Box = raw.Box.Transpose()
	}
	return raw
}

// Faces returns the faces found by the last Update
func (e *Engine) Faces() []detector.RawFace {
	return e.faces
}

// Close releases the models
func (e *Engine) Close() error {
	var errs []error
	if e.finder != nil {
		if err := e.finder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.landmarks != nil {
		if err := e.landmarks.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// toBGR wraps the frame buffer and converts it to a BGR Mat
func toBGR(f detector.Frame) (gocv.Mat, error) {
	var src gocv.Mat
	var code gocv.ColorConversionCode
	var err error
	switch f.Format {
	case detector.FormatNV21:
		src, err = gocv.NewMatFromBytes(f.Height*3/2, f.Width, gocv.MatTypeCV8UC1, f.Data)
		code = gocv.ColorYUVToBGRNV21
	case detector.FormatRGBA:
		src, err = gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC4, f.Data)
		code = gocv.ColorRGBAToBGR
	default:
		return gocv.Mat{}, fmt.Errorf("%w: unknown pixel format %s", detector.ErrShapeMismatch, f.Format)
	}
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to wrap frame: %w", err)
	}
	defer src.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(src, &bgr, code)
	return bgr, nil
}

// rotate returns img rotated clockwise by degrees
func rotate(img gocv.Mat, degrees int) gocv.Mat {
	dst := gocv.NewMat()
	switch degrees {
	case 90:
		gocv.Rotate(img, &dst, gocv.Rotate90Clockwise)
	case 180:
		gocv.Rotate(img, &dst, gocv.Rotate180Clockwise)
	case 270:
		gocv.Rotate(img, &dst, gocv.Rotate90CounterClockwise)
	default:
		img.CopyTo(&dst)
	}
	return dst
}
