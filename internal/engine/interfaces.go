package engine

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/dudu/facetrack/internal/detector"
)

// Finder names the face finder backend
type Finder string

const (
	FinderSCRFD Finder = "scrfd"
	FinderPigo  Finder = "pigo"
)

// ParseFinder validates a finder name
func ParseFinder(s string) (Finder, error) {
	switch f := Finder(s); f {
	case FinderSCRFD, FinderPigo:
		return f, nil
	}
	return "", fmt.Errorf("unknown face finder %q (want scrfd or pigo)", s)
}

// FaceDetector interface for face detection
type FaceDetector interface {
	Detect(img gocv.Mat) ([]detector.Face, error)
	Close() error
}

// LandmarkDetector interface for 106-point landmark detection
type LandmarkDetector interface {
	Detect(img gocv.Mat, face *detector.Face) error
	Close() error
}
