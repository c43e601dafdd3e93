package engine

import (
	"fmt"
	"image"
	"slices"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/facetrack/internal/detector"
	"github.com/dudu/facetrack/internal/inference"
)

// Landmark106 detects 106 facial landmarks using insightface's 2d106det model
type Landmark106 struct {
	session   *inference.Session
	inputSize int
}

// NewLandmark106 creates a new 106-point landmark detector
func NewLandmark106(modelPath string, opts inference.Options) (*Landmark106, error) {
	session, err := inference.NewSession(modelPath, []string{"data"}, []string{"fc1"}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create landmark session: %w", err)
	}

	return &Landmark106{
		session:   session,
		inputSize: 192,
	}, nil
}

// Detect fills face.Landmarks106 from the crop around face's box, in img pixels.
func (l *Landmark106) Detect(img gocv.Mat, face *detector.Face) error {
	box := face.BoundingBox
	center := box.Center()
	// 1.5x expansion of the longer side, as insightface crops
	scale := float32(l.inputSize) / (max(box.Width(), box.Height()) * 1.5)
	if scale <= 0 || box.Width() <= 0 {
		return fmt.Errorf("empty face box %v", box)
	}

	m := l.cropTransform(center, scale)
	aligned := gocv.NewMat()
	defer aligned.Close()
	gocv.WarpAffine(img, &aligned, m, image.Pt(l.inputSize, l.inputSize))
	m.Close()

	// 2d106det takes raw RGB pixel values
	blob := gocv.BlobFromImage(aligned, 1.0, image.Pt(l.inputSize, l.inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	if err != nil {
		return fmt.Errorf("failed to read input blob: %w", err)
	}
	input, err := inference.CreateTensor([]int64{1, 3, int64(l.inputSize), int64(l.inputSize)}, slices.Clone(data))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	// (1, 212) = 106 landmarks * 2 coords
	output, err := inference.CreateEmptyTensor[float32]([]int64{1, 212})
	if err != nil {
		return fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := l.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return fmt.Errorf("landmark inference failed: %w", err)
	}

	landmarks := l.postprocess(output.GetData(), center, scale)
	face.Landmarks106 = &landmarks
	return nil
}

// cropTransform maps the scaled face crop centered on center to the model input
func (l *Landmark106) cropTransform(center detector.Point, scale float32) gocv.Mat {
	half := float64(l.inputSize) / 2
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	m.SetDoubleAt(0, 0, float64(scale))
	m.SetDoubleAt(0, 1, 0)
	m.SetDoubleAt(0, 2, half-float64(center.X*scale))
	m.SetDoubleAt(1, 0, 0)
	m.SetDoubleAt(1, 1, float64(scale))
	m.SetDoubleAt(1, 2, half-float64(center.Y*scale))
	return m
}

// postprocess maps model output in [-1,1] back to image coordinates
func (l *Landmark106) postprocess(output []float32, center detector.Point, scale float32) detector.Landmarks106 {
	var landmarks detector.Landmarks106
	half := float32(l.inputSize) / 2

	for i := range landmarks {
		landmarks[i] = detector.Point{
			X: output[i*2]*half/scale + center.X,
			Y: output[i*2+1]*half/scale + center.Y,
		}
	}
	return landmarks
}

// Close releases the inference session
func (l *Landmark106) Close() error {
	return l.session.Destroy()
}
