package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/dudu/facetrack/internal/camera"
	"github.com/dudu/facetrack/internal/config"
	"github.com/dudu/facetrack/internal/detector"
	"github.com/dudu/facetrack/internal/facestore"
	"github.com/dudu/facetrack/internal/landmark"
	"github.com/dudu/facetrack/internal/recorder"
	"github.com/dudu/facetrack/internal/tracker"
	"github.com/dudu/facetrack/internal/ui"
)

// TrackOptions holds the flags of the track command
type TrackOptions struct {
	InputPath   string
	CameraIndex int
	FPS         int
	Width       int
	Height      int
	BackCamera  bool
	Mount       int
	Sensor      int
	RecordPath  string
	Window      bool
}

var trackOpts TrackOptions

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Track faces on a camera or video file in preview mode",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runTrack(cmd.Context(), trackOpts)
	},
}

func init() {
	trackCmd.Flags().StringVarP(&trackOpts.InputPath, "input", "i", "", "Video file to track instead of a camera")
	trackCmd.Flags().IntVarP(&trackOpts.CameraIndex, "camera", "c", 0, "Camera device index")
	trackCmd.Flags().IntVar(&trackOpts.FPS, "fps", 30, "Requested camera frame rate")
	trackCmd.Flags().IntVar(&trackOpts.Width, "width", 640, "Requested camera frame width")
	trackCmd.Flags().IntVar(&trackOpts.Height, "height", 480, "Requested camera frame height")
	trackCmd.Flags().BoolVar(&trackOpts.BackCamera, "back", false, "Treat the source as a back camera (no mirroring)")
	trackCmd.Flags().IntVar(&trackOpts.Mount, "mount", 0, "Camera mount orientation in degrees")
	trackCmd.Flags().IntVar(&trackOpts.Sensor, "sensor", 0, "Device orientation reading in degrees: 0, 90, 180 or 270")
	trackCmd.Flags().StringVar(&trackOpts.RecordPath, "record", "", "Record published faces to this SQLite database")
	trackCmd.Flags().BoolVarP(&trackOpts.Window, "window", "w", false, "Show a preview window with the tracked landmarks")

	rootCmd.AddCommand(trackCmd)
}

func runTrack(ctx context.Context, opts TrackOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reading, err := landmark.ParseOrientation(opts.Sensor)
	if err != nil {
		return err
	}
	store, err := env.Store()
	if err != nil {
		return err
	}
	store.SetPreview(true).SetBackCamera(opts.BackCamera)

	source := opts.InputPath
	if source == "" {
		source = strconv.Itoa(opts.CameraIndex)
	}
	capture, err := camera.Open(source, opts.FPS, opts.Width, opts.Height)
	if err != nil {
		return err
	}
	defer capture.Close()
	width, height := capture.Width(), capture.Height()
	logger.Info("source opened", "source", source, "width", width, "height", height)

	var rec *recorder.Recorder
	if opts.RecordPath != "" {
		rec, err = recorder.Open(ctx, opts.RecordPath, source, logger)
		if err != nil {
			return err
		}
		defer rec.Close()
	}

	sensor := tracker.NewFixedSensor(reading)
	t, cleanup, err := newTracker(store, tracker.WithSensor(sensor))
	if err != nil {
		return err
	}
	defer cleanup()

	// The callback runs on the tracker goroutine and must not block, so it
	// only signals the consumer below. Signals coalesce while it is busy.
	published := make(chan struct{}, 1)
	store.SetCallback(func() {
		select {
		case published <- struct{}{}:
		default:
		}
	})

	if err := t.Initialize("track"); err != nil {
		return err
	}

	var record func(context.Context, facestore.Snapshot) error
	if rec != nil {
		record = rec.Record
	}
	var latest atomic.Pointer[facestore.Snapshot]
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		consume(ctx, t.Store(), published, &latest, record)
	}()

	loopErr := trackLoop(ctx, t, capture, store, opts, &latest)

	shutdownErr := t.Shutdown()
	close(published)
	wg.Wait()
	logStats(t)

	return errors.Join(loopErr, shutdownErr)
}

func trackLoop(ctx context.Context, t *tracker.Tracker, capture *camera.Capture, store *config.Store, opts TrackOptions, latest *atomic.Pointer[facestore.Snapshot]) error {
	width, height := capture.Width(), capture.Height()
	if err := t.Prepare(ctx, opts.Mount, width, height); err != nil {
		return fmt.Errorf("failed to prepare tracker: %w", err)
	}

	var bar *progressbar.ProgressBar
	if total := capture.FrameCount(); total > 0 {
		bar = progressbar.NewOptions64(int64(total),
			progressbar.OptionSetDescription("Tracking"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
		defer bar.Finish()
	}

	var window *ui.Window
	var bgr *gocv.Mat
	if opts.Window {
		window = ui.NewWindow("facetrack", width, height)
		defer window.Close()
		frame := gocv.NewMat()
		defer frame.Close()
		bgr = &frame
	}

	var buf []byte
	for ctx.Err() == nil {
		var err error
		buf, err = capture.ReadNV21(buf, bgr)
		if errors.Is(err, camera.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := t.SubmitFrame(buf, width, height); err != nil {
			return err
		}
		if bar != nil {
			bar.Add(1)
		}

		if window == nil {
			continue
		}
		if snap := latest.Load(); snap != nil {
			ui.DrawFaces(bgr, *snap, overlayFor(store.Snapshot(), *snap, width, height))
		}
		window.Show(bgr)
		if key := window.WaitKey(1); key == 27 || key == 'q' {
			return nil
		}
	}
	return nil
}

// consume stores every new snapshot of store in latest and hands it to record
// when set, until published is closed.
func consume(ctx context.Context, store *facestore.Store, published <-chan struct{}, latest *atomic.Pointer[facestore.Snapshot], record func(context.Context, facestore.Snapshot) error) {
	var last uint64
	for range published {
		snap := store.Snapshot()
		if snap.Sequence == last {
			continue
		}
		last = snap.Sequence
		latest.Store(&snap)

		if record == nil {
			continue
		}
		if err := record(ctx, snap); err != nil {
			logger.Warn("failed to record frame", "sequence", snap.Sequence, "error", err)
		}
	}
}

// overlayFor rebuilds the view and rotation the tracker used for snap.
func overlayFor(p config.Params, snap facestore.Snapshot, width, height int) ui.Overlay {
	rotation, err := detector.NormalizeRotation(landmark.RotationHint(snap.Orientation, p.RotateAngle))
	if err != nil {
		rotation = 0
	}
	return ui.Overlay{
		View:     landmark.NewView(p, snap.Orientation, width, height),
		Rotation: rotation,
	}
}
