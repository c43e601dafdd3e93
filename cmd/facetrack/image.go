package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/dudu/facetrack/internal/camera"
	"github.com/dudu/facetrack/internal/facestore"
)

var imageRotation int

var imageCmd = &cobra.Command{
	Use:   "image <path>",
	Short: "Track faces on a single image and print their vertices as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runImage(cmd.Context(), args[0], imageRotation)
	},
}

func init() {
	imageCmd.Flags().IntVarP(&imageRotation, "rotation", "r", 0, "Clockwise rotation to apply before detection")
	rootCmd.AddCommand(imageCmd)
}

type imageFace struct {
	Index      int       `json:"index"`
	Vertices   []float32 `json:"vertices"`
	Pitch      float32   `json:"pitch"`
	Yaw        float32   `json:"yaw"`
	Roll       float32   `json:"roll"`
	Age        int       `json:"age"`
	Gender     int       `json:"gender"`
	Confidence float32   `json:"confidence"`
}

type imageResult struct {
	Path     string      `json:"path"`
	Width    int         `json:"width"`
	Height   int         `json:"height"`
	NeedFlip bool        `json:"need_flip"`
	Faces    []imageFace `json:"faces"`
}

func runImage(ctx context.Context, path string, rotation int) error {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return fmt.Errorf("failed to read image %s", path)
	}
	defer img.Close()

	scratch := gocv.NewMat()
	defer scratch.Close()
	rgba := camera.BGRToRGBA(img, &scratch)
	width, height := img.Cols(), img.Rows()

	store, err := env.Store()
	if err != nil {
		return err
	}
	store.SetPreview(false)

	t, cleanup, err := newTracker(store)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := t.Initialize("image"); err != nil {
		return err
	}
	err = errors.Join(
		t.Prepare(ctx, rotation, width, height),
		t.SubmitFrame(rgba, width, height),
	)
	// Shutdown drains the queue, so the store holds this image's result.
	err = errors.Join(err, t.Shutdown())
	if err != nil {
		return err
	}
	if stats := t.Stats(); stats.Failures > 0 || stats.Rejected > 0 {
		return fmt.Errorf("tracking failed for %s (see log)", path)
	}

	return json.NewEncoder(os.Stdout).Encode(imageResultFor(path, width, height, t.Store().Snapshot()))
}

func imageResultFor(path string, width, height int, snap facestore.Snapshot) imageResult {
	res := imageResult{
		Path:     path,
		Width:    width,
		Height:   height,
		NeedFlip: snap.NeedFlip,
		Faces:    make([]imageFace, 0, len(snap.Faces)),
	}
	for _, f := range snap.Faces {
		res.Faces = append(res.Faces, imageFace{
			Index:      f.Index,
			Vertices:   f.Vertices,
			Pitch:      f.Pitch,
			Yaw:        f.Yaw,
			Roll:       f.Roll,
			Age:        f.Age,
			Gender:     f.Gender,
			Confidence: f.Confidence,
		})
	}
	return res
}
