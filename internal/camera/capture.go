package camera

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/dudu/facetrack/internal/detector"
)

// ErrClosed is returned by reads after Close or at the end of a video file
var ErrClosed = errors.New("capture closed")

// Capture reads frames from a camera or a video file and packs them into
// the byte layouts the tracker consumes.
type Capture struct {
	video  *gocv.VideoCapture
	source string
	width  int
	height int
	file   bool
	mu     sync.Mutex

	frame gocv.Mat
	yuv   gocv.Mat
	rgba  gocv.Mat
}

// Open opens source: a camera index such as "0", or a video file path.
// Cameras are asked for width x height at fps; files keep their own size.
func Open(source string, fps, width, height int) (*Capture, error) {
	var device any = source
	index, err := strconv.Atoi(source)
	file := err != nil
	if !file {
		device = index
	}

	video, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", source, err)
	}

	if !file {
		video.Set(gocv.VideoCaptureFrameWidth, float64(width))
		video.Set(gocv.VideoCaptureFrameHeight, float64(height))
		video.Set(gocv.VideoCaptureFPS, float64(fps))
	}

	// Get actual dimensions (camera may not support requested resolution)
	actualWidth := int(video.Get(gocv.VideoCaptureFrameWidth))
	actualHeight := int(video.Get(gocv.VideoCaptureFrameHeight))

	return &Capture{
		video:  video,
		source: source,
		width:  actualWidth,
		height: actualHeight,
		file:   file,
		frame:  gocv.NewMat(),
		yuv:    gocv.NewMat(),
		rgba:   gocv.NewMat(),
	}, nil
}

// Read captures the next BGR frame into dst
func (c *Capture) Read(dst *gocv.Mat) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read(dst)
}

func (c *Capture) read(dst *gocv.Mat) error {
	if c.video == nil {
		return ErrClosed
	}
	if !c.video.Read(dst) || dst.Empty() {
		return ErrClosed
	}
	return nil
}

// ReadNV21 captures a frame, copies it into bgr when non-nil, and returns it
// packed as NV21 in buf (reused when large enough).
func (c *Capture) ReadNV21(buf []byte, bgr *gocv.Mat) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.read(&c.frame); err != nil {
		return nil, err
	}
	if bgr != nil {
		c.frame.CopyTo(bgr)
	}

	gocv.CvtColor(c.frame, &c.yuv, gocv.ColorBGRToYUVI420)
	return detector.I420ToNV21(buf, c.yuv.ToBytes(), c.frame.Cols(), c.frame.Rows())
}

// ReadRGBA captures a frame, copies it into bgr when non-nil, and returns
// its RGBA bytes.
func (c *Capture) ReadRGBA(bgr *gocv.Mat) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.read(&c.frame); err != nil {
		return nil, err
	}
	if bgr != nil {
		c.frame.CopyTo(bgr)
	}
	return BGRToRGBA(c.frame, &c.rgba), nil
}

// BGRToRGBA converts img using scratch and returns a copy of the RGBA bytes
func BGRToRGBA(img gocv.Mat, scratch *gocv.Mat) []byte {
	gocv.CvtColor(img, scratch, gocv.ColorBGRToRGBA)
	return scratch.ToBytes()
}

// Width returns frame width
func (c *Capture) Width() int {
	return c.width
}

// Height returns frame height
func (c *Capture) Height() int {
	return c.height
}

// FrameCount returns the number of frames in a video file, or -1 for cameras
func (c *Capture) FrameCount() int {
	if !c.file {
		return -1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.video == nil {
		return -1
	}
	return int(c.video.Get(gocv.VideoCaptureFrameCount))
}

// Close releases the device
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.video == nil {
		return nil
	}
	err := c.video.Close()
	c.video = nil
	c.frame.Close()
	c.yuv.Close()
	c.rgba.Close()
	return err
}
