package tracker

import (
	"sync/atomic"

	"github.com/dudu/facetrack/internal/landmark"
)

// Sensor reports the current device orientation. It is sampled once per
// preview frame on the worker goroutine.
type Sensor interface {
	Orientation() landmark.Orientation
}

// FixedSensor is a Sensor whose reading is set by the caller
type FixedSensor struct {
	degrees atomic.Int32
}

// NewFixedSensor returns a sensor reporting o until changed
func NewFixedSensor(o landmark.Orientation) *FixedSensor {
	s := &FixedSensor{}
	s.Set(o)
	return s
}

func (s *FixedSensor) Set(o landmark.Orientation) {
	s.degrees.Store(int32(o))
}

func (s *FixedSensor) Orientation() landmark.Orientation {
	return landmark.Orientation(s.degrees.Load())
}
