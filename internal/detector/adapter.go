package detector

import (
	"errors"
	"fmt"

	"github.com/dudu/facetrack/internal/config"
)

var (
	// ErrShapeMismatch rejects a frame whose buffer length does not match its
	// dimensions and pixel format.
	ErrShapeMismatch = errors.New("frame buffer does not match dimensions")
	// ErrAdapter marks a failure inside the detection engine.
	ErrAdapter = errors.New("detection adapter failure")
	// ErrUnsupportedDensity is returned by Configure when the engine cannot
	// produce the requested number of landmarks.
	ErrUnsupportedDensity = errors.New("unsupported landmark density")
	// ErrNotConfigured is returned by Update before a successful Configure.
	ErrNotConfigured = errors.New("adapter not configured")
)

// PixelFormat is the layout of a frame buffer
type PixelFormat int

const (
	FormatNV21 PixelFormat = iota // camera preview, 12 bits per pixel
	FormatRGBA                    // static images, 32 bits per pixel
)

func (f PixelFormat) String() string {
	switch f {
	case FormatNV21:
		return "nv21"
	case FormatRGBA:
		return "rgba"
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// FrameSize returns the buffer length of a width x height frame
func (f PixelFormat) FrameSize(width, height int) int {
	switch f {
	case FormatNV21:
		return width * height * 3 / 2
	case FormatRGBA:
		return width * height * 4
	}
	return -1
}

// Frame is one image handed to an adapter
type Frame struct {
	Data   []byte
	Width  int
	Height int
	Format PixelFormat
	// Swapped is set when the consumer treats the frame as height x width,
	// as the landscape preview does.
	Swapped bool
}

// ValidateFrame checks the buffer length against the frame's dimensions
func ValidateFrame(f Frame) error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d", ErrShapeMismatch, f.Width, f.Height)
	}
	if want := f.Format.FrameSize(f.Width, f.Height); len(f.Data) != want {
		return fmt.Errorf("%w: %s %dx%d needs %d bytes, got %d",
			ErrShapeMismatch, f.Format, f.Width, f.Height, want, len(f.Data))
	}
	return nil
}

// Rect is an integer pixel rectangle, right/bottom exclusive
type Rect struct {
	Left, Top, Right, Bottom int
}

func (r Rect) Width() int  { return r.Right - r.Left }
func (r Rect) Height() int { return r.Bottom - r.Top }

// Empty reports whether the rectangle has no area
func (r Rect) Empty() bool {
	return r.Right <= r.Left || r.Bottom <= r.Top
}

// Rotate maps r from a width x height frame into the same frame rotated
// clockwise by degrees (0, 90, 180 or 270).
func (r Rect) Rotate(degrees, width, height int) Rect {
	switch normalizeDegrees(degrees) {
	case 90:
		return Rect{Left: height - r.Bottom, Top: r.Left, Right: height - r.Top, Bottom: r.Right}
	case 180:
		return Rect{Left: width - r.Right, Top: height - r.Bottom, Right: width - r.Left, Bottom: height - r.Top}
	case 270:
		return Rect{Left: r.Top, Top: width - r.Right, Right: r.Bottom, Bottom: width - r.Left}
	}
	return r
}

// UnrotatePoint maps a point of the rotated frame back into the width x
// height frame that Rect.Rotate and the engines rotate clockwise by degrees.
func UnrotatePoint(x, y float32, degrees, width, height int) (float32, float32) {
	switch normalizeDegrees(degrees) {
	case 90:
		return y, float32(height) - x
	case 180:
		return float32(width) - x, float32(height) - y
	case 270:
		return float32(width) - y, x
	}
	return x, y
}

// Transposed reports whether points of a frame rotated by rotation degrees
// must have x and y exchanged to reach detector pixel space, where x runs
// across the consumer's frame height. swapped is Frame.Swapped.
func Transposed(rotation int, swapped bool) bool {
	rotatedSwapped := normalizeDegrees(rotation)%180 != 0
	return rotatedSwapped == swapped
}

// TransposePoints exchanges x and y of every [x,y] pair in place
func TransposePoints(v []float32) {
	for i := 0; i+1 < len(v); i += 2 {
		v[i], v[i+1] = v[i+1], v[i]
	}
}

func normalizeDegrees(d int) int {
	d %= 360
	if d < 0 {
		d += 360
	}
	return d
}

// NormalizeRotation folds any multiple of 90 into [0, 360)
func NormalizeRotation(degrees int) (int, error) {
	d := normalizeDegrees(degrees)
	if d%90 != 0 {
		return 0, fmt.Errorf("rotation %d is not a multiple of 90", degrees)
	}
	return d, nil
}

// Settings is the engine configuration derived by the tracker
type Settings struct {
	Rotation     int  // clockwise degrees applied before detection
	ROI          Rect // search region in unrotated frame pixels; empty means full frame
	Interval     int
	MinFaceSize  int
	OneFace      bool
	TrackMode    config.TrackMode
	Density      config.Density
	Pose3D       bool
	FaceProperty bool
}

const (
	GenderUnknown = -1
	GenderMale    = 0
	GenderFemale  = 1
)

// RawFace is one detected face in detector pixel space. Landmarks are
// [x0,y0,x1,y1,...] with x running across the consumer's frame height and y
// across its width. See Transposed.
type RawFace struct {
	Pitch, Yaw, Roll float32 // radians
	Landmarks        []float32
	Confidence       float32
	Age              int // -1 when unknown
	Gender           int
	Box              BoundingBox
}

// Adapter is a face landmark detection engine. Implementations are used
// from a single goroutine.
type Adapter interface {
	Configure(Settings) error
	Update(Frame) error
	// Faces returns the faces found by the last Update, in detection order.
	Faces() []RawFace
	Close() error
}

// Factory creates a fresh adapter for each prepare
type Factory func() (Adapter, error)

// I420ToNV21 repacks a planar YUV 4:2:0 buffer (Y, U, V planes) into NV21
// (Y plane, interleaved VU). dst is reused when large enough.
func I420ToNV21(dst, src []byte, width, height int) ([]byte, error) {
	size := FormatNV21.FrameSize(width, height)
	if width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("%w: 4:2:0 needs even dimensions, got %dx%d", ErrShapeMismatch, width, height)
	}
	if len(src) != size {
		return nil, fmt.Errorf("%w: i420 %dx%d needs %d bytes, got %d", ErrShapeMismatch, width, height, size, len(src))
	}
	if cap(dst) < size {
		dst = make([]byte, size)
	}
	dst = dst[:size]

	luma := width * height
	quarter := luma / 4
	copy(dst[:luma], src[:luma])
	u := src[luma : luma+quarter]
	v := src[luma+quarter:]
	vu := dst[luma:]
	for i := 0; i < quarter; i++ {
		vu[2*i] = v[i]
		vu[2*i+1] = u[i]
	}
	return dst, nil
}
