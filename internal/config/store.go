package config

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
)

// Density selects how many landmarks the detector reports per face
type Density int

const (
	Dense106 Density = 106
	Sparse81 Density = 81
)

func (d Density) String() string {
	return fmt.Sprintf("%d-point", int(d))
}

// TrackMode selects the detector's tracking strategy
type TrackMode int

const (
	TrackModeNormal TrackMode = iota
	TrackModeRobust
	TrackModeFast
)

func (m TrackMode) String() string {
	switch m {
	case TrackModeNormal:
		return "normal"
	case TrackModeRobust:
		return "robust"
	case TrackModeFast:
		return "fast"
	}
	return fmt.Sprintf("TrackMode(%d)", int(m))
}

// ParseTrackMode converts a mode name to a TrackMode
func ParseTrackMode(s string) (TrackMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return TrackModeNormal, nil
	case "robust":
		return TrackModeRobust, nil
	case "fast":
		return TrackModeFast, nil
	}
	return 0, fmt.Errorf("unknown track mode %q (use normal, robust or fast)", s)
}

// ParseDensity converts a landmark count to a Density
func ParseDensity(n int) (Density, error) {
	switch Density(n) {
	case Dense106, Sparse81:
		return Density(n), nil
	}
	return 0, fmt.Errorf("unsupported landmark density %d (use 106 or 81)", n)
}

// Callback is invoked on the worker goroutine after every processed frame.
// It must not block.
type Callback func()

// Params is a point-in-time copy of the tracking configuration.
type Params struct {
	BackCamera       bool
	Preview          bool
	Enabled          bool
	Pose3D           bool
	ROI              bool
	ROIRatio         float32
	Density          Density
	MultiFace        bool
	FaceProperty     bool
	MinFaceSize      int
	DetectInterval   int
	TrackMode        TrackMode
	RotateAngle      int
	TrackingCallback Callback
}

// Store holds the tunable tracking parameters shared between the caller and
// the tracker's worker goroutine. Every field is independently atomic: writes
// are last-write-wins per field and there is no cross-field atomicity.
type Store struct {
	backCamera     atomic.Bool
	preview        atomic.Bool
	enabled        atomic.Bool
	pose3D         atomic.Bool
	roi            atomic.Bool
	roiRatio       atomic.Uint32
	density        atomic.Int32
	multiFace      atomic.Bool
	faceProperty   atomic.Bool
	minFaceSize    atomic.Int32
	detectInterval atomic.Int32
	trackMode      atomic.Int32
	rotateAngle    atomic.Int32
	callback       atomic.Pointer[Callback]
}

// NewStore returns a store with the default tracking parameters:
// front camera preview, 106 landmarks, multi-face, pose enabled.
func NewStore() *Store {
	s := &Store{}
	s.preview.Store(true)
	s.enabled.Store(true)
	s.pose3D.Store(true)
	s.roiRatio.Store(math.Float32bits(0.8))
	s.density.Store(int32(Dense106))
	s.multiFace.Store(true)
	s.minFaceSize.Store(200)
	s.detectInterval.Store(25)
	return s
}

// SetBackCamera selects the back (true) or front (false) camera
func (s *Store) SetBackCamera(back bool) *Store {
	s.backCamera.Store(back)
	return s
}

// SetPreview selects live preview tracking (true) or static images (false)
func (s *Store) SetPreview(preview bool) *Store {
	s.preview.Store(preview)
	return s
}

// SetEnabled turns tracking on or off. Disabled tracking publishes no faces.
func (s *Store) SetEnabled(enabled bool) *Store {
	s.enabled.Store(enabled)
	return s
}

func (s *Store) Enable3DPose(enable bool) *Store {
	s.pose3D.Store(enable)
	return s
}

func (s *Store) EnableROI(enable bool) *Store {
	s.roi.Store(enable)
	return s
}

// SetROIRatio sets the ROI side length as a fraction of the frame height
func (s *Store) SetROIRatio(ratio float32) *Store {
	s.roiRatio.Store(math.Float32bits(ratio))
	return s
}

func (s *Store) SetLandmarkDensity(d Density) *Store {
	s.density.Store(int32(d))
	return s
}

func (s *Store) EnableMultiFace(enable bool) *Store {
	s.multiFace.Store(enable)
	return s
}

// EnableFaceProperty requests age and gender estimation when the engine supports it
func (s *Store) EnableFaceProperty(enable bool) *Store {
	s.faceProperty.Store(enable)
	return s
}

func (s *Store) SetMinFaceSize(size int) *Store {
	s.minFaceSize.Store(int32(size))
	return s
}

// SetDetectionInterval sets how many frames reuse the previous face boxes
// before the face finder runs again
func (s *Store) SetDetectionInterval(interval int) *Store {
	s.detectInterval.Store(int32(interval))
	return s
}

func (s *Store) SetTrackMode(mode TrackMode) *Store {
	s.trackMode.Store(int32(mode))
	return s
}

// SetCallback registers the completion callback. A nil callback clears it.
func (s *Store) SetCallback(cb Callback) *Store {
	if cb == nil {
		s.callback.Store(nil)
		return s
	}
	s.callback.Store(&cb)
	return s
}

// SetRotateAngle records the rotate angle derived during prepare
func (s *Store) SetRotateAngle(angle int) *Store {
	s.rotateAngle.Store(int32(angle))
	return s
}

// Callback returns the registered completion callback, or nil
func (s *Store) Callback() Callback {
	if cb := s.callback.Load(); cb != nil {
		return *cb
	}
	return nil
}

// Snapshot reads every field once. Fields written concurrently may mix old
// and new values across fields, never within one.
func (s *Store) Snapshot() Params {
	return Params{
		BackCamera:       s.backCamera.Load(),
		Preview:          s.preview.Load(),
		Enabled:          s.enabled.Load(),
		Pose3D:           s.pose3D.Load(),
		ROI:              s.roi.Load(),
		ROIRatio:         math.Float32frombits(s.roiRatio.Load()),
		Density:          Density(s.density.Load()),
		MultiFace:        s.multiFace.Load(),
		FaceProperty:     s.faceProperty.Load(),
		MinFaceSize:      int(s.minFaceSize.Load()),
		DetectInterval:   int(s.detectInterval.Load()),
		TrackMode:        TrackMode(s.trackMode.Load()),
		RotateAngle:      int(s.rotateAngle.Load()),
		TrackingCallback: s.Callback(),
	}
}
