package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Env is the process configuration read from FACETRACK_* variables.
type Env struct {
	BackCamera  bool    `envconfig:"BACK_CAMERA" default:"false"`
	Preview     bool    `envconfig:"PREVIEW" default:"true"`
	Enabled     bool    `envconfig:"ENABLED" default:"true"`
	Pose        bool    `envconfig:"POSE" default:"true"`
	ROI         bool    `envconfig:"ROI" default:"false"`
	ROIRatio    float32 `envconfig:"ROI_RATIO" default:"0.8"`
	Density     int     `envconfig:"DENSITY" default:"106"`
	MultiFace   bool    `envconfig:"MULTI_FACE" default:"true"`
	Property    bool    `envconfig:"PROPERTY" default:"false"`
	MinFaceSize int     `envconfig:"MIN_FACE_SIZE" default:"200"`
	Interval    int     `envconfig:"INTERVAL" default:"25"`
	TrackMode   string  `envconfig:"TRACK_MODE" default:"normal"`

	MaxFaces  int `envconfig:"MAX_FACES" default:"8"`
	QueueSize int `envconfig:"QUEUE_SIZE" default:"64"`

	Finder        string `envconfig:"FINDER" default:"scrfd"`
	DetectorModel string `envconfig:"DETECTOR_MODEL" default:"models/scrfd_10g.onnx"`
	LandmarkModel string `envconfig:"LANDMARK_MODEL" default:"models/2d106det.onnx"`
	PigoCascade   string `envconfig:"PIGO_CASCADE" default:"cascade/facefinder"`
	ORTLibrary    string `envconfig:"ORT_LIBRARY" default:"lib/libonnxruntime.so"`
}

// LoadEnv reads the FACETRACK_* environment
func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process("facetrack", &env); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &env, nil
}

// Store builds a tracking configuration store from the environment values.
func (e *Env) Store() (*Store, error) {
	density, err := ParseDensity(e.Density)
	if err != nil {
		return nil, err
	}
	mode, err := ParseTrackMode(e.TrackMode)
	if err != nil {
		return nil, err
	}
	if e.ROIRatio <= 0 || e.ROIRatio > 1 {
		return nil, fmt.Errorf("roi ratio must be in (0,1], got %v", e.ROIRatio)
	}

	s := NewStore().
		SetBackCamera(e.BackCamera).
		SetPreview(e.Preview).
		SetEnabled(e.Enabled).
		Enable3DPose(e.Pose).
		EnableROI(e.ROI).
		SetROIRatio(e.ROIRatio).
		SetLandmarkDensity(density).
		EnableMultiFace(e.MultiFace).
		EnableFaceProperty(e.Property).
		SetMinFaceSize(e.MinFaceSize).
		SetDetectionInterval(e.Interval).
		SetTrackMode(mode)
	return s, nil
}
