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

var scrfdStrides = [3]int{8, 16, 32}

const scrfdAnchors = 2 // anchors per feature map position

// SCRFD finds faces with insightface's SCRFD model
type SCRFD struct {
	session       *inference.Session
	inputSize     int
	confThreshold float32
	nmsThreshold  float32
}

// NewSCRFD loads an SCRFD model. The model has one input and nine outputs,
// score, bbox and keypoints for each of the three strides.
func NewSCRFD(modelPath string, inputSize int, confThreshold, nmsThreshold float32, opts inference.Options) (*SCRFD, error) {
	inputNames := []string{"input.1"}
	outputNames := []string{
		"score_8", "score_16", "score_32",
		"bbox_8", "bbox_16", "bbox_32",
		"kps_8", "kps_16", "kps_32",
	}

	session, err := inference.NewSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create SCRFD session: %w", err)
	}

	return &SCRFD{
		session:       session,
		inputSize:     inputSize,
		confThreshold: confThreshold,
		nmsThreshold:  nmsThreshold,
	}, nil
}

// Detect finds faces in a BGR image. Boxes and keypoints are in img pixels.
func (s *SCRFD) Detect(img gocv.Mat) ([]detector.Face, error) {
	blob, scale := s.preprocess(img)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read input blob: %w", err)
	}
	input, err := inference.CreateTensor([]int64{1, 3, int64(s.inputSize), int64(s.inputSize)}, slices.Clone(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := make([]ort.Value, 0, 9)
	tensors := make([]*ort.Tensor[float32], 0, 9)
	defer func() {
		for _, t := range tensors {
			t.Destroy()
		}
	}()
	for _, width := range []int64{1, 4, 10} {
		for _, stride := range scrfdStrides {
			side := int64(s.inputSize / stride)
			t, err := inference.CreateEmptyTensor[float32]([]int64{side * side * scrfdAnchors, width})
			if err != nil {
				return nil, fmt.Errorf("failed to create output tensor: %w", err)
			}
			outputs = append(outputs, t)
			tensors = append(tensors, t)
		}
	}

	if err := s.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	faces := s.decode(tensors, scale, img.Cols(), img.Rows())
	return detector.NMS(faces, s.nmsThreshold), nil
}

// preprocess letterboxes img into the model's square input and returns the
// NCHW blob with the scale applied.
func (s *SCRFD) preprocess(img gocv.Mat) (gocv.Mat, float32) {
	scale := float32(s.inputSize) / float32(max(img.Rows(), img.Cols()))
	newWidth := int(float32(img.Cols()) * scale)
	newHeight := int(float32(img.Rows()) * scale)

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Pt(newWidth, newHeight), 0, 0, gocv.InterpolationLinear)

	padded := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), s.inputSize, s.inputSize, gocv.MatTypeCV8UC3)
	defer padded.Close()
	roi := padded.Region(image.Rect(0, 0, newWidth, newHeight))
	resized.CopyTo(&roi)
	roi.Close()

	// (x - 127.5) / 128, RGB order
	blob := gocv.BlobFromImage(padded, 1.0/128.0, image.Pt(s.inputSize, s.inputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	return blob, scale
}

// decode turns the stride outputs into faces in original image pixels
func (s *SCRFD) decode(outputs []*ort.Tensor[float32], scale float32, width, height int) []detector.Face {
	var faces []detector.Face

	for level, stride := range scrfdStrides {
		side := s.inputSize / stride
		scores := outputs[level].GetData()
		boxes := outputs[level+3].GetData()
		kps := outputs[level+6].GetData()
		st := float32(stride)

		for idx := range side * side * scrfdAnchors {
			score := scores[idx]
			if score <= s.confThreshold {
				continue
			}
			pos := idx / scrfdAnchors
			cx := (float32(pos%side) + 0.5) * st
			cy := (float32(pos/side) + 0.5) * st

			b := boxes[idx*4 : idx*4+4]
			box := detector.BoundingBox{
				X1: clamp((cx-b[0]*st)/scale, 0, float32(width)),
				Y1: clamp((cy-b[1]*st)/scale, 0, float32(height)),
				X2: clamp((cx+b[2]*st)/scale, 0, float32(width)),
				Y2: clamp((cy+b[3]*st)/scale, 0, float32(height)),
			}

			k := kps[idx*10 : idx*10+10]
			point := func(i int) detector.Point {
				return detector.Point{X: (cx + k[2*i]*st) / scale, Y: (cy + k[2*i+1]*st) / scale}
			}

			faces = append(faces, detector.Face{
				BoundingBox: box,
				Landmarks: detector.Landmarks{
					LeftEye:    point(0),
					RightEye:   point(1),
					Nose:       point(2),
					LeftMouth:  point(3),
					RightMouth: point(4),
				},
				Score: score,
			})
		}
	}

	return faces
}

// Close releases the inference session
func (s *SCRFD) Close() error {
	return s.session.Destroy()
}

func clamp(x, lo, hi float32) float32 {
	return min(max(x, lo), hi)
}
