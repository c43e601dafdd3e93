package config

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Defaults(t *testing.T) {
	p := NewStore().Snapshot()

	assert.False(t, p.BackCamera)
	assert.True(t, p.Preview)
	assert.True(t, p.Enabled)
	assert.True(t, p.Pose3D)
	assert.False(t, p.ROI)
	assert.InDelta(t, 0.8, p.ROIRatio, 1e-6)
	assert.Equal(t, Dense106, p.Density)
	assert.True(t, p.MultiFace)
	assert.Equal(t, 200, p.MinFaceSize)
	assert.Equal(t, 25, p.DetectInterval)
	assert.Equal(t, TrackModeNormal, p.TrackMode)
	assert.Nil(t, p.TrackingCallback)
}

func TestStore_SettersChain(t *testing.T) {
	calls := 0
	s := NewStore().
		SetBackCamera(true).
		SetPreview(false).
		EnableROI(true).
		SetROIRatio(0.5).
		SetLandmarkDensity(Sparse81).
		EnableMultiFace(false).
		EnableFaceProperty(true).
		SetMinFaceSize(64).
		SetDetectionInterval(0).
		SetTrackMode(TrackModeFast).
		SetRotateAngle(270).
		SetCallback(func() { calls++ })

	p := s.Snapshot()
	assert.True(t, p.BackCamera)
	assert.False(t, p.Preview)
	assert.True(t, p.ROI)
	assert.InDelta(t, 0.5, p.ROIRatio, 1e-6)
	assert.Equal(t, Sparse81, p.Density)
	assert.False(t, p.MultiFace)
	assert.True(t, p.FaceProperty)
	assert.Equal(t, 64, p.MinFaceSize)
	assert.Equal(t, 0, p.DetectInterval)
	assert.Equal(t, TrackModeFast, p.TrackMode)
	assert.Equal(t, 270, p.RotateAngle)

	require.NotNil(t, p.TrackingCallback)
	p.TrackingCallback()
	assert.Equal(t, 1, calls)

	s.SetCallback(nil)
	assert.Nil(t, s.Callback())
}

// Writers and the reading worker may overlap; each field must stay intact
// (run with -race).
func TestStore_ConcurrentFieldWrites(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.SetMinFaceSize(i).SetBackCamera(i%2 == 0)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			p := s.Snapshot()
			assert.GreaterOrEqual(t, p.MinFaceSize, 0)
			assert.Less(t, p.MinFaceSize, 1000)
		}
	}()
	wg.Wait()

	assert.Equal(t, 999, s.Snapshot().MinFaceSize)
}

func TestParseTrackMode(t *testing.T) {
	tests := []struct {
		in      string
		want    TrackMode
		wantErr bool
	}{
		{"", TrackModeNormal, false},
		{"normal", TrackModeNormal, false},
		{"Robust", TrackModeRobust, false},
		{" fast ", TrackModeFast, false},
		{"turbo", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTrackMode(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, p Params)
	}{
		{
			name:    "uses defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, p Params) {
				assert.False(t, p.BackCamera)
				assert.True(t, p.Preview)
				assert.Equal(t, Dense106, p.Density)
			},
		},
		{
			name: "reads overrides",
			envVars: map[string]string{
				"FACETRACK_BACK_CAMERA":   "true",
				"FACETRACK_PREVIEW":       "false",
				"FACETRACK_ROI":           "true",
				"FACETRACK_ROI_RATIO":     "0.6",
				"FACETRACK_DENSITY":       "81",
				"FACETRACK_TRACK_MODE":    "robust",
				"FACETRACK_MIN_FACE_SIZE": "48",
			},
			check: func(t *testing.T, p Params) {
				assert.True(t, p.BackCamera)
				assert.False(t, p.Preview)
				assert.True(t, p.ROI)
				assert.InDelta(t, 0.6, p.ROIRatio, 1e-6)
				assert.Equal(t, Sparse81, p.Density)
				assert.Equal(t, TrackModeRobust, p.TrackMode)
				assert.Equal(t, 48, p.MinFaceSize)
			},
		},
		{
			name:    "rejects unknown density",
			envVars: map[string]string{"FACETRACK_DENSITY": "68"},
			wantErr: true,
		},
		{
			name:    "rejects roi ratio out of range",
			envVars: map[string]string{"FACETRACK_ROI_RATIO": "1.5"},
			wantErr: true,
		},
		{
			name:    "rejects malformed bool",
			envVars: map[string]string{"FACETRACK_POSE": "maybe"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			env, err := LoadEnv()
			if err == nil {
				var s *Store
				s, err = env.Store()
				if err == nil && tt.check != nil {
					tt.check(t, s.Snapshot())
				}
			}

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLogger(&buf, "json", "warn")
	logger.Info("hidden")
	logger.Warn("shown", "frame", 3)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"frame":3`)
}
