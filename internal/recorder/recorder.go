// Package recorder persists published face store snapshots to SQLite so a
// tracking run can be inspected after the fact.
package recorder

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dudu/facetrack/internal/facestore"
	"github.com/dudu/facetrack/internal/landmark"
)

// schema.sql defines the sessions, frames and faces tables.
//
//go:embed schema.sql
var schemaSQL string

// Frame is one recorded snapshot
type Frame struct {
	Sequence    uint64
	Orientation landmark.Orientation
	NeedFlip    bool
	RecordedAt  time.Time
	Faces       []landmark.Face
}

// Recorder writes snapshots of one tracking session
type Recorder struct {
	db      *sql.DB
	session uuid.UUID
	logger  *slog.Logger
}

// Open opens or creates the database at path and starts a session for source.
func Open(ctx context.Context, path, source string, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recorder database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize recorder schema: %w", err)
	}

	session := uuid.New()
	_, err = db.ExecContext(ctx,
		`INSERT INTO sessions (id, source, started_at) VALUES (?, ?, ?)`,
		session.String(), source, time.Now().UnixNano())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to start recorder session: %w", err)
	}

	logger.Info("recorder session started", "path", path, "session", session.String())
	return &Recorder{db: db, session: session, logger: logger}, nil
}

// Session returns the id of the session being recorded
func (r *Recorder) Session() uuid.UUID {
	return r.session
}

// Record stores snap and its faces in one transaction
func (r *Recorder) Record(ctx context.Context, snap facestore.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO frames (session_id, sequence, orientation, need_flip, face_count, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.session.String(), int64(snap.Sequence), int(snap.Orientation), snap.NeedFlip, len(snap.Faces), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to insert frame: %w", err)
	}
	frameID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get frame ID: %w", err)
	}

	for _, f := range snap.Faces {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO faces (frame_id, slot, pitch, yaw, roll, age, gender, confidence, vertices)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, frameID, f.Index, f.Pitch, f.Yaw, f.Roll, f.Age, f.Gender, f.Confidence, encodeVertices(f.Vertices))
		if err != nil {
			return fmt.Errorf("failed to insert face %d: %w", f.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit frame: %w", err)
	}
	return nil
}

// Frames returns every frame of the current session in recording order
func (r *Recorder) Frames(ctx context.Context) ([]Frame, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT f.id, f.sequence, f.orientation, f.need_flip, f.recorded_at,
		       c.slot, c.pitch, c.yaw, c.roll, c.age, c.gender, c.confidence, c.vertices
		FROM frames f
		LEFT JOIN faces c ON c.frame_id = f.id
		WHERE f.session_id = ?
		ORDER BY f.id, c.slot
	`, r.session.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var frames []Frame
	lastID := int64(-1)
	for rows.Next() {
		var (
			id, sequence, recordedAt int64
			orientation              int
			needFlip                 bool
			slot, age, gender        sql.NullInt64
			pitch, yaw, roll, conf   sql.NullFloat64
			vertices                 []byte
		)
		if err := rows.Scan(&id, &sequence, &orientation, &needFlip, &recordedAt,
			&slot, &pitch, &yaw, &roll, &age, &gender, &conf, &vertices); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}

		if id != lastID {
			frames = append(frames, Frame{
				Sequence:    uint64(sequence),
				Orientation: landmark.Orientation(orientation),
				NeedFlip:    needFlip,
				RecordedAt:  time.Unix(0, recordedAt),
			})
			lastID = id
		}
		if !slot.Valid {
			continue
		}
		frame := &frames[len(frames)-1]
		frame.Faces = append(frame.Faces, landmark.Face{
			Index:      int(slot.Int64),
			Vertices:   decodeVertices(vertices),
			Pitch:      float32(pitch.Float64),
			Yaw:        float32(yaw.Float64),
			Roll:       float32(roll.Float64),
			Age:        int(age.Int64),
			Gender:     int(gender.Int64),
			Confidence: float32(conf.Float64),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read frames: %w", err)
	}
	return frames, nil
}

// Close closes the database
func (r *Recorder) Close() error {
	r.logger.Info("recorder session closed", "session", r.session.String())
	return r.db.Close()
}

func encodeVertices(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVertices(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
