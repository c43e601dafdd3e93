package engine

import (
	"fmt"
	"os"
	"sort"

	pigo "github.com/esimov/pigo/core"
	"gocv.io/x/gocv"

	"github.com/dudu/facetrack/internal/detector"
)

// Pigo finds faces with a pigo cascade. It needs no model runtime, which
// makes it a fallback when ONNX Runtime is unavailable.
type Pigo struct {
	classifier *pigo.Pigo
	minSize    int
	threshold  float32
}

// NewPigo unpacks the cascade file at path
func NewPigo(path string, minSize int, threshold float32) (*Pigo, error) {
	cascade, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("error unpacking the cascade file: %v", err)
	}

	return &Pigo{
		classifier: classifier,
		minSize:    max(minSize, 20),
		threshold:  threshold,
	}, nil
}

// Detect finds faces in a BGR image, best score first
func (p *Pigo) Detect(img gocv.Mat) ([]detector.Face, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	rows, cols := gray.Rows(), gray.Cols()
	params := pigo.CascadeParams{
		MinSize:     p.minSize,
		MaxSize:     max(rows, cols),
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,

		ImageParams: pigo.ImageParams{
			Pixels: gray.ToBytes(),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	// The result contains quadruplets representing the row, column, scale and detection score.
	dets := p.classifier.RunCascade(params, 0)
	dets = p.classifier.ClusterDetections(dets, 0.2)

	faces := make([]detector.Face, 0, len(dets))
	for _, d := range dets {
		if d.Q < p.threshold {
			continue
		}
		half := float32(d.Scale) / 2
		cx, cy := float32(d.Col), float32(d.Row)
		faces = append(faces, detector.Face{
			BoundingBox: detector.BoundingBox{
				X1: clamp(cx-half, 0, float32(cols)),
				Y1: clamp(cy-half, 0, float32(rows)),
				X2: clamp(cx+half, 0, float32(cols)),
				Y2: clamp(cy+half, 0, float32(rows)),
			},
			Score: d.Q,
		})
	}

	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Score > faces[j].Score
	})
	return faces, nil
}

// Close is a no-op; the cascade lives in memory
func (p *Pigo) Close() error {
	return nil
}
