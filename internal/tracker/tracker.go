// Package tracker runs face tracking on a dedicated worker goroutine. Callers
// enqueue prepare and frame tasks; the worker executes them one at a time in
// submission order, normalizes the detected landmarks and publishes them to a
// face store before firing the completion callback.
package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dudu/facetrack/internal/config"
	"github.com/dudu/facetrack/internal/detector"
	"github.com/dudu/facetrack/internal/facestore"
	"github.com/dudu/facetrack/internal/landmark"
)

var (
	// ErrNotReady is returned by task submission before Initialize or after Shutdown.
	ErrNotReady = errors.New("tracker not running")
	// ErrAlreadyRunning is returned by Initialize when the worker is running.
	ErrAlreadyRunning = errors.New("tracker already running")
)

// DefaultQueueSize is the task queue capacity when none is given
const DefaultQueueSize = 64

// Timing holds per-frame timing information
type Timing struct {
	Detection time.Duration
	Normalize time.Duration
	Total     time.Duration
}

// Stats are cumulative counters over the tracker's lifetime
type Stats struct {
	Frames   uint64 // frame tasks executed
	Faces    uint64 // faces published
	Failures uint64 // adapter failures, including recovered panics
	Rejected uint64 // frames whose buffer did not match their dimensions
	Dropped  uint64 // faces beyond the store's capacity
	Last     Timing
}

type taskKind int

const (
	taskPrepare taskKind = iota
	taskFrame
)

type task struct {
	kind          taskKind
	orientation   int
	width, height int
	data          []byte
}

// Option configures a Tracker
type Option func(*Tracker)

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithSensor sets the orientation source sampled for preview frames
func WithSensor(s Sensor) Option {
	return func(t *Tracker) { t.sensor = s }
}

// WithStore sets the face store the tracker publishes to
func WithStore(s *facestore.Store) Option {
	return func(t *Tracker) { t.store = s }
}

// WithQueueSize sets the task queue capacity. A full queue blocks producers.
func WithQueueSize(n int) Option {
	return func(t *Tracker) { t.queueSize = n }
}

// WithTable replaces the landmark permutation table
func WithTable(table *landmark.Table) Option {
	return func(t *Tracker) { t.normalizer = landmark.NewNormalizer(table) }
}

// Tracker owns one worker goroutine and the detection adapter it drives.
type Tracker struct {
	cfg        *config.Store
	factory    detector.Factory
	logger     *slog.Logger
	sensor     Sensor
	store      *facestore.Store
	normalizer *landmark.Normalizer
	queueSize  int

	// mu serializes Initialize and Shutdown against producers.
	mu    sync.RWMutex
	tasks chan task
	done  chan struct{}
	log   *slog.Logger

	// Owned by the worker goroutine.
	adapter  detector.Adapter
	settings detector.Settings
	hint     int
	faces    []landmark.Face
	closeErr error

	frames    atomic.Uint64
	published atomic.Uint64
	failures  atomic.Uint64
	rejected  atomic.Uint64
	dropped   atomic.Uint64

	timingMu   sync.Mutex
	lastTiming Timing
}

// New creates a tracker. The worker does not run until Initialize.
func New(cfg *config.Store, factory detector.Factory, opts ...Option) *Tracker {
	t := &Tracker{
		cfg:       cfg,
		factory:   factory,
		queueSize: DefaultQueueSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.sensor == nil {
		t.sensor = NewFixedSensor(landmark.Rotation0)
	}
	if t.store == nil {
		t.store = facestore.New(facestore.DefaultCapacity)
	}
	if t.normalizer == nil {
		t.normalizer = landmark.NewNormalizer(nil)
	}
	if t.queueSize <= 0 {
		t.queueSize = DefaultQueueSize
	}
	t.log = t.logger
	return t
}

// Store returns the face store results are published to
func (t *Tracker) Store() *facestore.Store {
	return t.store
}

// Initialize starts the worker goroutine and returns once it accepts tasks.
func (t *Tracker) Initialize(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tasks != nil {
		return ErrAlreadyRunning
	}

	t.log = t.logger.With("tracker", name, "session", uuid.NewString())
	tasks := make(chan task, t.queueSize)
	ready := make(chan struct{})
	done := make(chan struct{})
	go t.run(tasks, ready, done)
	<-ready

	t.tasks, t.done = tasks, done
	t.log.Info("tracker started", "queue_size", t.queueSize)
	return nil
}

// Prepare enqueues a task that (re)creates the detection adapter for frames
// of width x height from a camera mounted at orientation degrees. It blocks
// only while the queue is full.
func (t *Tracker) Prepare(ctx context.Context, orientation, width, height int) error {
	if _, err := detector.NormalizeRotation(orientation); err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	return t.enqueue(ctx, task{kind: taskPrepare, orientation: orientation, width: width, height: height})
}

// SubmitFrame enqueues one frame: NV21 in preview mode, RGBA otherwise. The
// buffer is copied, so the caller may reuse it once SubmitFrame returns.
func (t *Tracker) SubmitFrame(data []byte, width, height int) error {
	return t.enqueue(context.Background(), task{
		kind:   taskFrame,
		data:   bytes.Clone(data),
		width:  width,
		height: height,
	})
}

func (t *Tracker) enqueue(ctx context.Context, tk task) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.tasks == nil {
		return ErrNotReady
	}
	select {
	case t.tasks <- tk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown lets queued tasks finish, releases the adapter and clears the
// completion callback. Calling it on a stopped tracker does nothing.
func (t *Tracker) Shutdown() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tasks == nil {
		return nil
	}
	close(t.tasks)
	<-t.done
	t.tasks, t.done = nil, nil
	t.cfg.SetCallback(nil)

	stats := t.Stats()
	t.log.Info("tracker stopped",
		"frames", stats.Frames,
		"faces", stats.Faces,
		"failures", stats.Failures,
		"rejected", stats.Rejected,
	)

	err := t.closeErr
	t.closeErr = nil
	return err
}

// Stats returns the tracker's counters
func (t *Tracker) Stats() Stats {
	t.timingMu.Lock()
	last := t.lastTiming
	t.timingMu.Unlock()

	return Stats{
		Frames:   t.frames.Load(),
		Faces:    t.published.Load(),
		Failures: t.failures.Load(),
		Rejected: t.rejected.Load(),
		Dropped:  t.dropped.Load(),
		Last:     last,
	}
}

func (t *Tracker) run(tasks <-chan task, ready, done chan<- struct{}) {
	defer close(done)

	t.hint = -1
	close(ready)

	for tk := range tasks {
		t.runTask(tk)
	}

	if err := t.releaseAdapter(); err != nil {
		t.closeErr = err
	}
}

func (t *Tracker) runTask(tk task) {
	defer func() {
		if r := recover(); r != nil {
			t.failures.Add(1)
			t.log.Error("task panicked", "panic", r)
		}
	}()

	switch tk.kind {
	case taskPrepare:
		t.prepare(tk)
	case taskFrame:
		t.track(tk)
	}
}

func (t *Tracker) prepare(tk task) {
	p := t.cfg.Snapshot()
	if !p.Enabled {
		t.log.Debug("tracking disabled, prepare skipped")
		return
	}

	angle, _ := detector.NormalizeRotation(RotateAngle(p, tk.orientation))
	t.cfg.SetRotateAngle(angle)

	if err := t.releaseAdapter(); err != nil {
		t.log.Warn("failed to close previous adapter", "error", err)
	}

	settings := settingsFor(p, angle, tk.width, tk.height)
	adapter, err := t.newAdapter(settings)
	if err != nil {
		t.failures.Add(1)
		t.log.Warn("prepare failed", "error", err)
		return
	}

	t.adapter, t.settings, t.hint = adapter, settings, angle
	t.log.Info("detector prepared",
		"width", tk.width,
		"height", tk.height,
		"rotation", angle,
		"roi", settings.ROI,
		"track_mode", settings.TrackMode.String(),
	)
}

func (t *Tracker) newAdapter(s detector.Settings) (adapter detector.Adapter, err error) {
	defer recoverAdapter(&err)

	adapter, err = t.factory()
	if err != nil {
		return nil, fmt.Errorf("%w: create: %w", detector.ErrAdapter, err)
	}
	if err := adapter.Configure(s); err != nil {
		adapter.Close()
		return nil, fmt.Errorf("%w: configure: %w", detector.ErrAdapter, err)
	}
	return adapter, nil
}

func (t *Tracker) releaseAdapter() error {
	if t.adapter == nil {
		return nil
	}
	err := t.adapter.Close()
	t.adapter = nil
	t.hint = -1
	return err
}

func (t *Tracker) track(tk task) {
	start := time.Now()
	t.frames.Add(1)

	p := t.cfg.Snapshot()
	defer t.notify(p.TrackingCallback)
	if !p.Enabled {
		t.store.Publish(facestore.Frame{})
		return
	}

	reading := landmark.Rotation0
	if p.Preview {
		reading = t.sensor.Orientation()
	}
	view := landmark.NewView(p, reading, tk.width, tk.height)

	raw, err := t.detect(p, view, tk)
	detection := time.Since(start)
	if err != nil {
		if errors.Is(err, detector.ErrShapeMismatch) {
			t.rejected.Add(1)
			t.log.Warn("frame rejected", "error", err)
		} else {
			t.failures.Add(1)
			t.log.Warn("detection failed", "error", err)
		}
		raw = nil
	}

	normStart := time.Now()
	faces := t.normalize(raw, view)
	dropped := t.store.Publish(facestore.Frame{
		Orientation: reading,
		NeedFlip:    view.NeedFlip(),
		Faces:       faces,
	})
	if dropped > 0 {
		t.dropped.Add(uint64(dropped))
		t.log.Debug("faces beyond store capacity dropped", "dropped", dropped)
	}
	t.published.Add(uint64(len(faces) - dropped))

	t.timingMu.Lock()
	t.lastTiming = Timing{
		Detection: detection,
		Normalize: time.Since(normStart),
		Total:     time.Since(start),
	}
	t.timingMu.Unlock()
}

func (t *Tracker) detect(p config.Params, view landmark.View, tk task) (faces []detector.RawFace, err error) {
	defer recoverAdapter(&err)

	if t.adapter == nil {
		return nil, fmt.Errorf("%w: %w", detector.ErrAdapter, detector.ErrNotConfigured)
	}

	format := detector.FormatRGBA
	if p.Preview {
		format = detector.FormatNV21
	}
	frame := detector.Frame{
		Data:    tk.data,
		Width:   tk.width,
		Height:  tk.height,
		Format:  format,
		Swapped: view.Swapped(),
	}
	if err := detector.ValidateFrame(frame); err != nil {
		return nil, err
	}

	reading := view.Orientation
	hint, err := detector.NormalizeRotation(landmark.RotationHint(reading, p.RotateAngle))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", detector.ErrAdapter, err)
	}
	if hint != t.hint {
		s := t.settings
		s.Rotation = hint
		if err := t.adapter.Configure(s); err != nil {
			return nil, fmt.Errorf("%w: reconfigure: %w", detector.ErrAdapter, err)
		}
		t.settings, t.hint = s, hint
		t.log.Debug("detector rotation changed", "rotation", hint, "orientation", int(reading))
	}

	if err := t.adapter.Update(frame); err != nil {
		return nil, fmt.Errorf("%w: update: %w", detector.ErrAdapter, err)
	}
	return t.adapter.Faces(), nil
}

// normalize converts raw faces into the worker's reusable face buffer.
func (t *Tracker) normalize(raw []detector.RawFace, v landmark.View) []landmark.Face {
	n := len(raw)
	if n > cap(t.faces) {
		grown := make([]landmark.Face, n)
		copy(grown, t.faces[:cap(t.faces)])
		t.faces = grown
	}
	t.faces = t.faces[:n]

	for i := range raw {
		t.normalizer.Normalize(&t.faces[i], &raw[i], v)
		t.faces[i].Index = i
	}
	return t.faces
}

// notify runs the callback read with the frame's configuration snapshot.
func (t *Tracker) notify(cb config.Callback) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("tracking callback panicked", "panic", r)
		}
	}()
	cb()
}

func recoverAdapter(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: panic: %v", detector.ErrAdapter, r)
	}
}
